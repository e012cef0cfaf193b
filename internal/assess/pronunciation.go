package assess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/orato/internal/content"
	"github.com/MrWong99/orato/internal/observe"
	"github.com/MrWong99/orato/internal/report"
	"github.com/MrWong99/orato/internal/resilience"
	"github.com/MrWong99/orato/internal/scoring"
	"github.com/MrWong99/orato/internal/text"
	"github.com/MrWong99/orato/pkg/audio"
	"github.com/MrWong99/orato/pkg/phoneme"
	"github.com/MrWong99/orato/pkg/provider/aligner"
	"github.com/MrWong99/orato/pkg/provider/phonemes"
)

// errNoExtractor marks a fallback that had nothing to fall back to.
var errNoExtractor = errors.New("assess: no phoneme extractor configured")

// pronunciation routes between the forced and the extractor path. scorer is
// nil when neither produced phonemes.
func (e *Engine) pronunciation(
	ctx context.Context,
	clip *audio.Clip,
	refWords []string,
	words []content.WordResult,
	clear bool,
	tun *tuning,
) (report.Method, []scoring.WordInput, *scoring.Scorer) {
	log := observe.Logger(ctx)

	method := report.MethodFallback
	if clear {
		inputs, err := e.forced(ctx, clip, refWords, words)
		if err == nil {
			return report.MethodForced, inputs, tun.forced
		}
		log.Warn("forced alignment failed, falling back to phoneme extractor", "error", err)
		e.metrics.RecordFallback(ctx, ReasonForcedAlignFailed)
		method = report.MethodForcedFallback
	} else {
		e.metrics.RecordFallback(ctx, ReasonUnclearAudio)
	}

	inputs, err := e.fallback(ctx, clip, words)
	if err != nil {
		log.Warn("phoneme extraction failed, reporting content only", "error", err)
		return report.MethodNone, nil, nil
	}
	return method, inputs, tun.fallback
}

// forced runs the aligner over the reference transcript and pairs aligned
// words with the correctly spoken reference words.
func (e *Engine) forced(ctx context.Context, clip *audio.Clip, refWords []string, words []content.WordResult) ([]scoring.WordInput, error) {
	if e.aligner == nil {
		return nil, errors.New("assess: no forced aligner configured")
	}
	ctx, span := observe.StartSpan(ctx, "assess.forced_align")
	defer span.End()

	var aligned []aligner.Word
	start := time.Now()
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		sctx, cancel := e.stage(ctx)
		defer cancel()
		var err error
		aligned, err = e.aligner.impl.Align(sctx, clip, strings.Join(refWords, " "))
		return err
	})
	e.metrics.RecordStage(ctx, observe.StageForcedAlign, time.Since(start).Seconds())
	if err == nil && len(aligned) == 0 {
		err = aligner.ErrNoAlignment
	}
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			e.providerFailed(ctx, e.aligner.name, "aligner")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "forced alignment failed")
		return nil, fmt.Errorf("assess: forced align: %w", err)
	}
	e.metrics.RecordProviderRequest(ctx, e.aligner.name, "aligner", "ok")
	span.SetAttributes(attribute.Int("aligned.words", len(aligned)))

	return e.pairAligned(words, aligned), nil
}

// pairAligned walks the correct content results and the aligned words in
// step, matching by normalised text. Repeated reference words pair with
// successive aligned occurrences.
func (e *Engine) pairAligned(words []content.WordResult, aligned []aligner.Word) []scoring.WordInput {
	var out []scoring.WordInput
	cursor := 0
	for _, w := range words {
		if w.Status != content.StatusCorrect {
			continue
		}
		idx := -1
		for j := cursor; j < len(aligned); j++ {
			if text.NormalizeWord(aligned[j].Text) == w.Word {
				idx = j
				break
			}
		}
		if idx < 0 {
			continue
		}
		cursor = idx + 1

		expected, ok := e.lexicon.Lookup(w.Word)
		if !ok {
			continue
		}
		a := aligned[idx]
		out = append(out, scoring.WordInput{
			Word:     w.Word,
			RefIndex: w.RefIndex,
			Start:    ptr(a.Start),
			End:      ptr(a.End),
			Expected: expected,
			Observed: phoneme.FilterSpeech(a.Labels()),
		})
	}
	return out
}

// fallback asks the extractor for the phones inside each correct word's
// recogniser timing. Any extractor error fails the whole path.
func (e *Engine) fallback(ctx context.Context, clip *audio.Clip, words []content.WordResult) ([]scoring.WordInput, error) {
	if e.extractor == nil {
		return nil, errNoExtractor
	}
	ctx, span := observe.StartSpan(ctx, "assess.fallback_extract")
	defer span.End()

	start := time.Now()
	inputs, err := e.extract(ctx, clip, words)
	e.metrics.RecordStage(ctx, observe.StageFallbackExtract, time.Since(start).Seconds())
	if err != nil {
		e.providerFailed(ctx, e.extractor.name, "phonemes")
		span.RecordError(err)
		span.SetStatus(codes.Error, "phoneme extraction failed")
		return nil, fmt.Errorf("assess: extract phonemes: %w", err)
	}
	e.metrics.RecordProviderRequest(ctx, e.extractor.name, "phonemes", "ok")
	span.SetAttributes(attribute.Int("scored.words", len(inputs)))
	return inputs, nil
}

func (e *Engine) extract(ctx context.Context, clip *audio.Clip, words []content.WordResult) ([]scoring.WordInput, error) {
	sctx, cancel := e.stage(ctx)
	defer cancel()

	se, windowed := e.extractor.impl.(phonemes.SpanExtractor)
	var whole []phonemes.Timed
	if !windowed {
		var err error
		if whole, err = e.extractor.impl.Extract(sctx, clip); err != nil {
			return nil, err
		}
	}

	var out []scoring.WordInput
	for _, w := range words {
		if w.Status != content.StatusCorrect || !w.Timed() {
			continue
		}
		expected, ok := e.lexicon.Lookup(w.Word)
		if !ok {
			continue
		}
		var phones []phonemes.Timed
		if windowed {
			var err error
			if phones, err = se.ExtractSpan(sctx, clip, *w.Start, *w.End); err != nil {
				return nil, err
			}
		} else {
			phones = phonemes.Within(whole, *w.Start, *w.End)
		}
		out = append(out, scoring.WordInput{
			Word:     w.Word,
			RefIndex: w.RefIndex,
			Start:    w.Start,
			End:      w.End,
			Expected: expected,
			Observed: observed(phones),
		})
	}
	return out, nil
}

// observed maps extractor labels to ARPAbet. Labels with no mapping are kept
// as invalid phonemes so they count as mismatches.
func observed(ts []phonemes.Timed) []phoneme.Phoneme {
	out := make([]phoneme.Phoneme, 0, len(ts))
	for _, t := range ts {
		if phoneme.IsNonSpeech(t.Label) {
			continue
		}
		if a, ok := phoneme.FromIPA(t.Label); ok {
			out = append(out, phoneme.Parse(a))
			continue
		}
		out = append(out, phoneme.Parse(t.Label))
	}
	return out
}

func ptr(f float64) *float64 { return &f }
