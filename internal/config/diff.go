package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only the log level and the scoring section are applied at runtime; every
// other changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ScoringChanged bool
	NewScoring     ScoringConfig

	// RestartRequired names the sections that changed but only take effect
	// after a restart, e.g. "providers.aligner" or "history".
	RestartRequired []string
}

// Changed reports whether d contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ScoringChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !scoringEqual(old.Scoring, new.Scoring) {
		d.ScoringChanged = true
		d.NewScoring = new.Scoring
	}

	restart := func(section string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	os, ns := old.Server, new.Server
	restart("server.listen_addr", os.ListenAddr != ns.ListenAddr)
	restart("server.timeouts", os.RequestTimeout != ns.RequestTimeout || os.StageTimeout != ns.StageTimeout)
	restart("server.max_upload_bytes", os.MaxUploadBytes != ns.MaxUploadBytes)
	restart("server.tls", !reflect.DeepEqual(os.TLS, ns.TLS))
	restart("providers.recognizer", !reflect.DeepEqual(old.Providers.Recognizer, new.Providers.Recognizer))
	restart("providers.aligner", !reflect.DeepEqual(old.Providers.Aligner, new.Providers.Aligner))
	restart("providers.extractor", !reflect.DeepEqual(old.Providers.Extractor, new.Providers.Extractor))
	restart("lexicon", old.Lexicon != new.Lexicon)
	restart("history", old.History != new.History)
	restart("batch", old.Batch != new.Batch)

	return d
}

func scoringEqual(a, b ScoringConfig) bool {
	if a.ASRConfidenceThreshold != b.ASRConfidenceThreshold ||
		a.SilenceRatioThreshold != b.SilenceRatioThreshold ||
		a.PronunciationThresholdClear != b.PronunciationThresholdClear ||
		a.PronunciationThresholdNoisy != b.PronunciationThresholdNoisy {
		return false
	}
	// nil (defaults) and empty (disabled) are different settings.
	if (a.AccentPairs == nil) != (b.AccentPairs == nil) {
		return false
	}
	return slices.Equal(a.AccentPairs, b.AccentPairs)
}
