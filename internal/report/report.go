// Package report merges content and pronunciation verdicts into the final
// per-word report.
//
// Content status always dominates: a word that was missed, substituted or
// repeated keeps that status with zero confidence whatever the phoneme path
// said about it. Only words the reader said correctly consult the
// pronunciation verdict, which may downgrade them to mispronounced.
package report

import (
	"github.com/MrWong99/orato/internal/content"
	"github.com/MrWong99/orato/internal/rhythm"
	"github.com/MrWong99/orato/internal/scoring"
	"github.com/MrWong99/orato/internal/text"
	"github.com/MrWong99/orato/pkg/audio"
)

// Status is the final verdict for one word.
type Status string

const (
	StatusCorrect       Status = "correct"
	StatusMispronounced Status = "mispronounced"
	StatusMissed        Status = "missed"
	StatusSubstituted   Status = "substituted"
	StatusRepeated      Status = "repeated"
)

// Method names the phoneme source used for pronunciation scoring.
type Method string

const (
	// MethodForced means forced alignment produced the phonemes.
	MethodForced Method = "mfa"

	// MethodFallback means the audio was not clear and the neural phoneme
	// recogniser was used directly.
	MethodFallback Method = "wavlm"

	// MethodForcedFallback means forced alignment failed on clear audio and
	// the neural phoneme recogniser took over.
	MethodForcedFallback Method = "wavlm_fallback"

	// MethodNone means no phoneme source succeeded; the report carries
	// content verdicts only.
	MethodNone Method = "none"
)

// WordRecord is one row of the final report.
type WordRecord struct {
	Word       string   `json:"word"`
	Status     Status   `json:"status"`
	Start      *float64 `json:"start"`
	End        *float64 `json:"end"`
	Confidence float64  `json:"confidence"`
	Spoken     string   `json:"spoken,omitempty"`
}

// Summary aggregates the word records.
type Summary struct {
	TotalWords    int `json:"total_words"`
	Correct       int `json:"correct"`
	Mispronounced int `json:"mispronounced"`
	Missed        int `json:"missed"`
	Repeated      int `json:"repeated"`
	Substituted   int `json:"substituted"`

	// Accuracy is correct / total × 100, or 0 for an empty report.
	Accuracy float64 `json:"accuracy"`

	// AverageConfidence is the mean confidence of correct records, or 0
	// when there are none.
	AverageConfidence float64 `json:"average_confidence"`

	// Pronunciation is present only when phoneme-level scoring ran.
	Pronunciation *scoring.Summary `json:"pronunciation_summary,omitempty"`
}

// FinalReport is the artifact returned to callers.
type FinalReport struct {
	ID                  string         `json:"id,omitempty"`
	Words               []WordRecord   `json:"words"`
	Summary             Summary        `json:"summary"`
	AudioClear          bool           `json:"audio_clear"`
	PronunciationMethod Method         `json:"pronunciation_method"`
	Quality             *audio.Quality `json:"quality_metrics,omitempty"`
	Pauses              []rhythm.Pause `json:"pauses,omitempty"`

	// Unscored lists reference words without a lexicon entry. They are
	// judged on content only.
	Unscored []string `json:"unscored_words,omitempty"`
}

// key identifies one occurrence of a reference word. The reference index
// disambiguates repeated words in the passage.
type key struct {
	word string
	ref  int
}

// Merge combines content results (reference order with repetitions
// interleaved) with pronunciation results.
//
// A correct content word looks up its pronunciation verdict by normalised
// word and reference position, so two occurrences of the same word are
// judged independently. Pronunciation results without a reference position
// (RefIndex < 0) are matched by word text alone. A correct word without any
// verdict stays correct with confidence 1.
func Merge(words []content.WordResult, pron []scoring.WordResult) []WordRecord {
	byPos := make(map[key]scoring.WordResult, len(pron))
	byText := make(map[string]scoring.WordResult)
	for _, p := range pron {
		w := text.NormalizeWord(p.Word)
		if w == "" {
			continue
		}
		if p.RefIndex >= 0 {
			byPos[key{w, p.RefIndex}] = p
		} else {
			byText[w] = p
		}
	}

	out := make([]WordRecord, 0, len(words))
	for _, c := range words {
		rec := WordRecord{Word: c.Word, Start: c.Start, End: c.End}
		switch c.Status {
		case content.StatusMissed:
			rec.Status = StatusMissed
			rec.Start, rec.End = nil, nil
		case content.StatusRepeated:
			rec.Status = StatusRepeated
		case content.StatusSubstituted:
			rec.Status = StatusSubstituted
			rec.Spoken = c.Spoken
		case content.StatusCorrect:
			w := text.NormalizeWord(c.Word)
			p, ok := byPos[key{w, c.RefIndex}]
			if !ok {
				p, ok = byText[w]
			}
			if !ok {
				rec.Status = StatusCorrect
				rec.Confidence = 1
				break
			}
			rec.Status = StatusMispronounced
			if p.Status == scoring.StatusCorrect {
				rec.Status = StatusCorrect
			}
			rec.Confidence = p.Confidence
			if rec.Start == nil {
				rec.Start = p.Start
			}
			if rec.End == nil {
				rec.End = p.End
			}
		default:
			rec.Status = Status(c.Status)
		}
		out = append(out, rec)
	}
	return out
}

// Summarize counts statuses and computes accuracy and average confidence.
func Summarize(words []WordRecord) Summary {
	var (
		s       = Summary{TotalWords: len(words)}
		confSum float64
	)
	for _, w := range words {
		switch w.Status {
		case StatusCorrect:
			s.Correct++
			confSum += w.Confidence
		case StatusMispronounced:
			s.Mispronounced++
		case StatusMissed:
			s.Missed++
		case StatusRepeated:
			s.Repeated++
		case StatusSubstituted:
			s.Substituted++
		}
	}
	if s.TotalWords > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.TotalWords) * 100
	}
	if s.Correct > 0 {
		s.AverageConfidence = confSum / float64(s.Correct)
	}
	return s
}

// Build merges the verdicts and attaches the summary. pronunciation may be
// nil when no phoneme source succeeded.
func Build(words []content.WordResult, pron []scoring.WordResult, pronunciation *scoring.Summary) FinalReport {
	merged := Merge(words, pron)
	sum := Summarize(merged)
	sum.Pronunciation = pronunciation
	return FinalReport{Words: merged, Summary: sum}
}
