// Package aligner defines the ForcedAligner interface for forced-alignment
// backends.
//
// A forced aligner is given a recording and its known transcript and returns
// per-word, per-phone timings. Phone labels are passed through verbatim;
// silence and pause markers ("sil", "sp", "spn", empty) may be present and
// must be filtered by the caller before phoneme scoring.
package aligner

import (
	"context"
	"errors"

	"github.com/MrWong99/orato/pkg/audio"
)

// ErrNoAlignment is returned when the aligner ran but produced no words.
var ErrNoAlignment = errors.New("aligner: no aligned words")

// Phone is one aligned phone interval.
type Phone struct {
	Label string  `json:"label"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Word is one aligned word with the phones that fall inside it.
type Word struct {
	Text   string  `json:"word"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Phones []Phone `json:"phones"`
}

// Labels returns the phone labels of w in order.
func (w Word) Labels() []string {
	out := make([]string, len(w.Phones))
	for i, p := range w.Phones {
		out[i] = p.Label
	}
	return out
}

// ForcedAligner is the abstraction over any forced-alignment backend.
//
// Implementations must be safe for concurrent use.
type ForcedAligner interface {
	// Align aligns transcript against clip and returns the words in time
	// order. A backend failure (tool missing, timeout, crash) is returned as
	// an error; callers treat it as recoverable.
	Align(ctx context.Context, clip *audio.Clip, transcript string) ([]Word, error)
}
