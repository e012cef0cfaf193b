// Package content decides which reference words a speaker actually said.
//
// [Match] aligns the normalised reference words against the recogniser's
// words with the unit-cost word aligner and maps every step onto a
// [WordResult]:
//
//	match        → correct      (recogniser timings kept)
//	deletion     → missed       (no timings)
//	substitution → substituted  (spoken word and recogniser timings kept)
//	insertion    → repeated     (spoken word and recogniser timings kept)
//
// Substituted words carry diagnostic phonetic similarity scores computed
// with Double Metaphone and Jaro-Winkler. They never change a status.
package content

import (
	"github.com/antzucaro/matchr"

	"github.com/MrWong99/orato/internal/align"
	"github.com/MrWong99/orato/internal/text"
	"github.com/MrWong99/orato/pkg/provider/recognizer"
)

// Status is the content verdict for one word.
type Status string

const (
	StatusCorrect     Status = "correct"
	StatusMissed      Status = "missed"
	StatusSubstituted Status = "substituted"
	StatusRepeated    Status = "repeated"
)

// WordResult is the content verdict for one reference word, or for one
// extra recognised word when Status is StatusRepeated.
type WordResult struct {
	// Word is the normalised reference word, or the normalised spoken word
	// for repeated results.
	Word   string `json:"word"`
	Status Status `json:"status"`

	// Start and End are recogniser timings in seconds; nil for missed words.
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`

	// Spoken is the recognised word for substituted results.
	Spoken string `json:"spoken,omitempty"`

	// RefIndex is the position in the reference word list, -1 for repeated
	// results.
	RefIndex int `json:"ref_index"`

	// HypIndex is the position in the recogniser word list, -1 for missed
	// results.
	HypIndex int `json:"-"`

	// Similarity is the Jaro-Winkler similarity of the primary Double
	// Metaphone keys of the reference and spoken word, for substituted
	// results. Words without a key are compared as spelled.
	Similarity float64 `json:"similarity,omitempty"`

	// SoundsAlike reports whether the reference and spoken word share a
	// Double Metaphone code, for substituted results.
	SoundsAlike bool `json:"sounds_alike,omitempty"`
}

// Timed reports whether the result carries recogniser timings.
func (r WordResult) Timed() bool { return r.Start != nil && r.End != nil }

// Match aligns reference words (already normalised, see [text.Words])
// against recogniser output. Recognised words that normalise to nothing,
// such as stray punctuation, are ignored. Either side may be empty.
func Match(reference []string, spoken []recognizer.Word) []WordResult {
	hyp := make([]string, 0, len(spoken))
	hypIdx := make([]int, 0, len(spoken))
	for i, w := range spoken {
		if n := text.NormalizeWord(w.Text); n != "" {
			hyp = append(hyp, n)
			hypIdx = append(hypIdx, i)
		}
	}

	ops := align.Words(reference, hyp)
	out := make([]WordResult, 0, len(ops))
	for _, op := range ops {
		r := WordResult{RefIndex: op.RefIndex, HypIndex: -1}
		if op.HasHyp() {
			r.HypIndex = hypIdx[op.HypIndex]
			w := spoken[r.HypIndex]
			r.Start, r.End = ptr(w.Start), ptr(w.End)
		}
		switch op.Op {
		case align.OpMatch:
			r.Word, r.Status = op.Ref, StatusCorrect
		case align.OpDeletion:
			r.Word, r.Status = op.Ref, StatusMissed
		case align.OpSubstitution:
			r.Word, r.Status, r.Spoken = op.Ref, StatusSubstituted, op.Hyp
			r.Similarity = similarity(op.Ref, op.Hyp)
			r.SoundsAlike = soundsAlike(op.Ref, op.Hyp)
		case align.OpInsertion:
			r.Word, r.Status = op.Hyp, StatusRepeated
		}
		out = append(out, r)
	}
	return out
}

// Reference returns the reference words covered by results, in order. For
// any output of Match this reproduces the reference list exactly.
func Reference(results []WordResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		if r.Status != StatusRepeated {
			out = append(out, r.Word)
		}
	}
	return out
}

// similarity compares the primary Double Metaphone keys of a and b, or the
// words themselves when either has no key (digits only, for example).
func similarity(a, b string) float64 {
	ka, _ := matchr.DoubleMetaphone(a)
	kb, _ := matchr.DoubleMetaphone(b)
	if ka == "" || kb == "" {
		return matchr.JaroWinkler(a, b, false)
	}
	return matchr.JaroWinkler(ka, kb, false)
}

// soundsAlike reports whether a and b share a Double Metaphone code.
// Words without consonant codes never sound alike.
func soundsAlike(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

func ptr(f float64) *float64 { return &f }
