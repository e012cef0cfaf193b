// Package phonemes defines the Extractor interface for neural phoneme
// recognisers used when forced alignment is unavailable or the audio is too
// noisy for it.
//
// Extractors work without the reference transcript, so their output is lower
// fidelity than forced alignment: labels may be IPA or ARPAbet and
// timestamps are approximate. Callers map labels with [phoneme.FromIPA]
// and drop non-speech markers before scoring.
package phonemes

import (
	"context"

	"github.com/MrWong99/orato/pkg/audio"
)

// Timed is one recognised phone with an approximate time span in seconds.
type Timed struct {
	Label string  `json:"label"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Extractor is the abstraction over a neural phoneme recogniser.
//
// Implementations must be safe for concurrent use.
type Extractor interface {
	// Extract recognises the phones of the whole clip in time order.
	Extract(ctx context.Context, clip *audio.Clip) ([]Timed, error)
}

// SpanExtractor is implemented by extractors that can recognise a single
// time window of a clip. Per-word windows give far better phone boundaries
// than splitting a whole-clip result by time.
type SpanExtractor interface {
	Extractor

	// ExtractSpan recognises the phones between start and end seconds.
	ExtractSpan(ctx context.Context, clip *audio.Clip, start, end float64) ([]Timed, error)
}

// Spread assigns equal-length slots between start and end to labels.
func Spread(labels []string, start, end float64) []Timed {
	if len(labels) == 0 {
		return nil
	}
	step := max(0, end-start) / float64(len(labels))
	out := make([]Timed, len(labels))
	for i, l := range labels {
		out[i] = Timed{Label: l, Start: start + float64(i)*step, End: start + float64(i+1)*step}
	}
	return out
}

// Within returns the phones of ps whose midpoint lies in [start, end].
func Within(ps []Timed, start, end float64) []Timed {
	var out []Timed
	for _, p := range ps {
		mid := (p.Start + p.End) / 2
		if mid >= start && mid <= end {
			out = append(out, p)
		}
	}
	return out
}
