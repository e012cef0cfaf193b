// Package config provides the configuration schema, loader, and provider
// registry for the Orato assessment service.
package config

import (
	"time"

	"github.com/MrWong99/orato/internal/align"
	"github.com/MrWong99/orato/internal/assess"
)

// LogLevel controls log verbosity for the Orato server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// HistoryBackend selects where learner attempts are stored.
type HistoryBackend string

const (
	HistoryMemory   HistoryBackend = "memory"
	HistoryPostgres HistoryBackend = "postgres"
	HistorySQLite   HistoryBackend = "sqlite"
)

// IsValid reports whether b is a recognised history backend.
func (b HistoryBackend) IsValid() bool {
	switch b {
	case HistoryMemory, HistoryPostgres, HistorySQLite:
		return true
	}
	return false
}

// Config is the root configuration structure for Orato.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Lexicon   LexiconConfig   `yaml:"lexicon"`
	History   HistoryConfig   `yaml:"history"`
	Batch     BatchConfig     `yaml:"batch"`
}

// ServerConfig holds network and logging settings for the Orato server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// RequestTimeout bounds a single assessment request end to end.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// StageTimeout bounds each external provider call. Zero leaves only
	// RequestTimeout in effect.
	StageTimeout time.Duration `yaml:"stage_timeout"`

	// MaxUploadBytes caps the multipart body of POST /v1/assessments.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// external stage. Each field selects a named provider registered in the
// [Registry]. Only the recognizer is required.
type ProvidersConfig struct {
	Recognizer ProviderEntry `yaml:"recognizer"`
	Aligner    ProviderEntry `yaml:"aligner"`
	Extractor  ProviderEntry `yaml:"extractor"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "mfa").
	Name string `yaml:"name"`

	// BaseURL is the endpoint of HTTP-backed providers.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider. For whisper-native it is the
	// path to the ggml model file; for mfa the acoustic model name.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// String returns the option key as a string, or def when it is absent or not
// a string.
func (e ProviderEntry) String(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Duration parses the option key as a Go duration string, or returns def.
func (e ProviderEntry) Duration(key string, def time.Duration) time.Duration {
	s, ok := e.Options[key].(string)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Int returns the option key as an int, or def.
func (e ProviderEntry) Int(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// ScoringConfig holds the routing and pronunciation thresholds. This section
// is hot-reloadable.
type ScoringConfig struct {
	ASRConfidenceThreshold      float64 `yaml:"asr_confidence_threshold"`
	SilenceRatioThreshold       float64 `yaml:"silence_ratio_threshold"`
	PronunciationThresholdClear float64 `yaml:"pronunciation_threshold_clear"`
	PronunciationThresholdNoisy float64 `yaml:"pronunciation_threshold_noisy"`

	// AccentPairs replaces the built-in accent-equivalent substitutions when
	// set. An explicit empty list disables accent tolerance.
	AccentPairs []align.AccentPair `yaml:"accent_pairs"`
}

// Settings converts the section into engine settings.
func (s ScoringConfig) Settings() assess.Settings {
	return assess.Settings{
		ASRConfidenceThreshold: s.ASRConfidenceThreshold,
		SilenceRatioThreshold:  s.SilenceRatioThreshold,
		ThresholdClear:         s.PronunciationThresholdClear,
		ThresholdNoisy:         s.PronunciationThresholdNoisy,
		AccentPairs:            s.AccentPairs,
	}
}

// LexiconConfig locates the pronunciation dictionary.
type LexiconConfig struct {
	// Path is a CMUdict-format file (MFA dictionaries are accepted too).
	Path string `yaml:"path"`
}

// HistoryConfig selects the learner history backend.
type HistoryConfig struct {
	Backend HistoryBackend `yaml:"backend"`

	// DSN is the PostgreSQL connection string or the SQLite file path.
	DSN string `yaml:"dsn"`
}

// BatchConfig bounds concurrent work in batch assessments.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}
