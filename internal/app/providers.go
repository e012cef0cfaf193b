package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/orato/internal/config"
	"github.com/MrWong99/orato/internal/health"
	"github.com/MrWong99/orato/internal/resilience"
	"github.com/MrWong99/orato/pkg/provider/aligner"
	"github.com/MrWong99/orato/pkg/provider/aligner/mfa"
	"github.com/MrWong99/orato/pkg/provider/phonemes"
	"github.com/MrWong99/orato/pkg/provider/phonemes/wav2vec"
	"github.com/MrWong99/orato/pkg/provider/recognizer"
	"github.com/MrWong99/orato/pkg/provider/recognizer/whisper"
)

// Providers holds one value per provider slot. Nil means the slot is not
// configured; only Recognizer is mandatory. The names are used in metrics,
// logs and report provenance.
type Providers struct {
	Recognizer     recognizer.Recognizer
	RecognizerName string

	Aligner     aligner.ForcedAligner
	AlignerName string

	Extractor     phonemes.Extractor
	ExtractorName string

	// Checkers probe every created provider that exposes a health method.
	Checkers []health.Checker

	closers []func() error
}

// Close releases providers that hold native resources.
func (p *Providers) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	p.closers = nil
	return errors.Join(errs...)
}

// availabler is implemented by providers that can check their runtime
// prerequisites (mfa.Aligner).
type availabler interface {
	Available(ctx context.Context) error
}

// healther is implemented by HTTP-backed providers with a health endpoint
// (wav2vec.Client).
type healther interface {
	Health(ctx context.Context) error
}

// RegisterBuiltinProviders registers every provider implementation shipped
// with Orato.
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── Recognizer ───────────────────────────────────────────────────────────

	reg.RegisterRecognizer("whisper", func(entry config.ProviderEntry) (recognizer.Recognizer, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.String("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// whisper-native loads a ggml model in process; Model is its path.
	reg.RegisterRecognizer("whisper-native", func(entry config.ProviderEntry) (recognizer.Recognizer, error) {
		var opts []whisper.NativeOption
		if lang := entry.String("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := entry.Int("threads", 0); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(entry.Model, opts...)
	})

	// ── Aligner ──────────────────────────────────────────────────────────────

	reg.RegisterAligner("mfa", func(entry config.ProviderEntry) (aligner.ForcedAligner, error) {
		var opts []mfa.Option
		if dict := entry.String("dictionary", ""); dict != "" {
			opts = append(opts, mfa.WithDictionary(dict))
		}
		if d := entry.Duration("timeout", 0); d > 0 {
			opts = append(opts, mfa.WithTimeout(d))
		}
		if entry.Model != "" {
			opts = append(opts, mfa.WithAcousticModel(entry.Model))
		}
		if bin := entry.String("binary", ""); bin != "" {
			opts = append(opts, mfa.WithBinary(bin))
		}
		if dir := entry.String("work_dir", ""); dir != "" {
			opts = append(opts, mfa.WithWorkDir(dir))
		}
		return mfa.New(opts...), nil
	})

	// ── Extractor ────────────────────────────────────────────────────────────

	reg.RegisterExtractor("wav2vec", func(entry config.ProviderEntry) (phonemes.Extractor, error) {
		return wav2vec.New(entry.BaseURL)
	})
}

// BuildProviders instantiates every configured provider through reg. A slot
// with fallbacks is wrapped in the matching resilience group so each member
// sits behind its own circuit breaker.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	fb := resilience.FallbackConfig{}

	// ── Recognizer ───────────────────────────────────────────────────────────
	rc := cfg.Providers.Recognizer
	rec, err := createOne(ps, "recognizer", rc, reg.CreateRecognizer)
	if err != nil {
		return nil, err
	}
	if len(rc.Fallbacks) > 0 {
		group := resilience.NewRecognizerFallback(rec, rc.Name, fb)
		for _, e := range rc.Fallbacks {
			r, err := createOne(ps, "recognizer", e, reg.CreateRecognizer)
			if err != nil {
				ps.Close()
				return nil, err
			}
			group.AddFallback(e.Name, r)
		}
		rec = group
	}
	ps.Recognizer, ps.RecognizerName = rec, rc.Name

	// ── Aligner ──────────────────────────────────────────────────────────────
	if ac := cfg.Providers.Aligner; ac.Name != "" {
		al, err := createOne(ps, "aligner", ac, reg.CreateAligner)
		if err != nil {
			ps.Close()
			return nil, err
		}
		if len(ac.Fallbacks) > 0 {
			group := resilience.NewAlignerFallback(al, ac.Name, fb)
			for _, e := range ac.Fallbacks {
				a, err := createOne(ps, "aligner", e, reg.CreateAligner)
				if err != nil {
					ps.Close()
					return nil, err
				}
				group.AddFallback(e.Name, a)
			}
			al = group
		}
		ps.Aligner, ps.AlignerName = al, ac.Name
	}

	// ── Extractor ────────────────────────────────────────────────────────────
	if xc := cfg.Providers.Extractor; xc.Name != "" {
		x, err := createOne(ps, "extractor", xc, reg.CreateExtractor)
		if err != nil {
			ps.Close()
			return nil, err
		}
		if len(xc.Fallbacks) > 0 {
			group := resilience.NewExtractorFallback(x, xc.Name, fb)
			for _, e := range xc.Fallbacks {
				f, err := createOne(ps, "extractor", e, reg.CreateExtractor)
				if err != nil {
					ps.Close()
					return nil, err
				}
				group.AddFallback(e.Name, f)
			}
			x = group
		}
		ps.Extractor, ps.ExtractorName = x, xc.Name
	}

	return ps, nil
}

// createOne builds a single provider, records its closer and health probe,
// and logs the result. Aligners and extractors are optional dependencies:
// the engine degrades to a weaker pronunciation method without them.
func createOne[T any](ps *Providers, kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (T, error)) (T, error) {
	p, err := create(entry)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}

	if c, ok := any(p).(io.Closer); ok {
		ps.closers = append(ps.closers, c.Close)
	}

	name := kind + "/" + entry.Name
	optional := kind != "recognizer"
	switch probe := any(p).(type) {
	case availabler:
		ps.Checkers = append(ps.Checkers, health.Checker{Name: name, Check: probe.Available, Optional: optional})
	case healther:
		ps.Checkers = append(ps.Checkers, health.Checker{Name: name, Check: probe.Health, Optional: optional})
	}

	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, nil
}
