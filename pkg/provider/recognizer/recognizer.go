// Package recognizer defines the Recognizer interface for automatic speech
// recognition backends.
//
// A recognizer turns a whole recording into an ordered list of words with
// start and end times. Orato uses the words for content alignment against the
// reference passage and the timings for pause analysis, so backends must
// return word-level timestamps. Recognition confidence is optional; when a
// backend cannot report it the clarity gate falls back to the silence ratio
// alone.
//
// Implementations must be safe for concurrent use.
package recognizer

import (
	"context"

	"github.com/MrWong99/orato/pkg/audio"
)

// Word is one recognised word.
type Word struct {
	// Text is the word as emitted by the backend, before normalisation.
	Text string `json:"text"`

	// Start and End are offsets from the beginning of the clip in seconds.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Confidence is the backend's probability for the word, if reported.
	Confidence *float64 `json:"confidence,omitempty"`
}

// Result is the recogniser output for one clip.
type Result struct {
	// Words is ordered by start time. It may be empty.
	Words []Word `json:"words"`

	// Confidence is the utterance-level confidence in [0, 1], or nil when
	// the backend does not report one.
	Confidence *float64 `json:"confidence,omitempty"`
}

// Recognizer is the abstraction over any ASR backend.
type Recognizer interface {
	// Recognize transcribes clip. An empty result is not an error; callers
	// decide whether silence is acceptable.
	Recognize(ctx context.Context, clip *audio.Clip) (Result, error)
}

// MeanConfidence averages the per-word confidences of words. It returns nil
// when no word carries a confidence.
func MeanConfidence(words []Word) *float64 {
	var sum float64
	var n int
	for _, w := range words {
		if w.Confidence != nil {
			sum += *w.Confidence
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}
