package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/MrWong99/orato/internal/assess"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"recognizer": {"whisper", "whisper-native"},
	"aligner":    {"mfa"},
	"extractor":  {"wav2vec"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultRequestTimeout = 2 * time.Minute
	DefaultMaxUploadBytes = 32 << 20
	DefaultMaxConcurrency = 4
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}

	def := assess.DefaultSettings()
	s := &cfg.Scoring
	if s.ASRConfidenceThreshold == 0 {
		s.ASRConfidenceThreshold = def.ASRConfidenceThreshold
	}
	if s.SilenceRatioThreshold == 0 {
		s.SilenceRatioThreshold = def.SilenceRatioThreshold
	}
	if s.PronunciationThresholdClear == 0 {
		s.PronunciationThresholdClear = def.ThresholdClear
	}
	if s.PronunciationThresholdNoisy == 0 {
		s.PronunciationThresholdNoisy = def.ThresholdNoisy
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = HistoryMemory
	}
	if cfg.Batch.MaxConcurrency == 0 {
		cfg.Batch.MaxConcurrency = DefaultMaxConcurrency
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout %s must not be negative", cfg.Server.RequestTimeout))
	}
	if cfg.Server.StageTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.stage_timeout %s must not be negative", cfg.Server.StageTimeout))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls needs both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.Recognizer.Name == "" {
		errs = append(errs, errors.New("providers.recognizer.name is required"))
	}
	for _, p := range []struct {
		kind string
		e    ProviderEntry
	}{
		{"recognizer", cfg.Providers.Recognizer},
		{"aligner", cfg.Providers.Aligner},
		{"extractor", cfg.Providers.Extractor},
	} {
		kind, e := p.kind, p.e
		validateProviderName(kind, e.Name)
		for i, fb := range e.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
			}
			if len(fb.Fallbacks) > 0 {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d] must not declare fallbacks of its own", kind, i))
			}
			validateProviderName(kind, fb.Name)
		}
		if e.Name == "" && len(e.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks set without a primary provider", kind))
		}
	}

	if cfg.Providers.Aligner.Name == "" && cfg.Providers.Extractor.Name == "" {
		slog.Warn("neither providers.aligner nor providers.extractor is configured; reports will be content-only")
	}

	// Scoring
	s := cfg.Scoring
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"asr_confidence_threshold", s.ASRConfidenceThreshold},
		{"silence_ratio_threshold", s.SilenceRatioThreshold},
		{"pronunciation_threshold_clear", s.PronunciationThresholdClear},
		{"pronunciation_threshold_noisy", s.PronunciationThresholdNoisy},
	} {
		if f.v < 0 || f.v > 1 {
			errs = append(errs, fmt.Errorf("scoring.%s %.2f is out of range [0, 1]", f.name, f.v))
		}
	}
	for i, p := range s.AccentPairs {
		if p.Expected == "" || p.Observed == "" {
			errs = append(errs, fmt.Errorf("scoring.accent_pairs[%d] needs both expected and observed", i))
		}
	}

	// Lexicon
	if cfg.Lexicon.Path == "" {
		errs = append(errs, errors.New("lexicon.path is required"))
	}

	// History
	if !cfg.History.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: memory, postgres, sqlite", cfg.History.Backend))
	}
	if (cfg.History.Backend == HistoryPostgres || cfg.History.Backend == HistorySQLite) && cfg.History.DSN == "" {
		errs = append(errs, fmt.Errorf("history.dsn is required when backend is %s", cfg.History.Backend))
	}

	// Batch
	if cfg.Batch.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("batch.max_concurrency %d must not be negative", cfg.Batch.MaxConcurrency))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
