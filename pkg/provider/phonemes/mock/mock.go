// Package mock provides test doubles for the phonemes.Extractor and
// phonemes.SpanExtractor interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/orato/pkg/audio"
	"github.com/MrWong99/orato/pkg/provider/phonemes"
)

// ExtractCall records a single invocation of Extract or ExtractSpan. Start
// and End are zero for whole-clip calls.
type ExtractCall struct {
	Clip       *audio.Clip
	Start, End float64
}

// Extractor is a mock implementation of phonemes.Extractor.
type Extractor struct {
	mu sync.Mutex

	// Phones is returned by every Extract call.
	Phones []phonemes.Timed

	// Err, if non-nil, is returned as the error from Extract.
	Err error

	// Calls records every call to Extract.
	Calls []ExtractCall
}

// Extract records the call and returns Phones, Err.
func (e *Extractor) Extract(_ context.Context, clip *audio.Clip) ([]phonemes.Timed, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, ExtractCall{Clip: clip})
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Phones, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (e *Extractor) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}

// SpanExtractor is a mock implementation of phonemes.SpanExtractor. Spans
// returns the labels for a window; when nil, ExtractSpan returns no phones.
type SpanExtractor struct {
	Extractor

	// Spans computes the labels recognised in [start, end].
	Spans func(start, end float64) []string
}

// ExtractSpan records the call and returns Spans(start, end) spread over
// the window.
func (s *SpanExtractor) ExtractSpan(_ context.Context, clip *audio.Clip, start, end float64) ([]phonemes.Timed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, ExtractCall{Clip: clip, Start: start, End: end})
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Spans == nil {
		return nil, nil
	}
	return phonemes.Spread(s.Spans(start, end), start, end), nil
}

var (
	_ phonemes.Extractor     = (*Extractor)(nil)
	_ phonemes.SpanExtractor = (*SpanExtractor)(nil)
)
