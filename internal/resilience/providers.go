package resilience

import (
	"context"

	"github.com/MrWong99/orato/pkg/audio"
	"github.com/MrWong99/orato/pkg/provider/aligner"
	"github.com/MrWong99/orato/pkg/provider/phonemes"
	"github.com/MrWong99/orato/pkg/provider/recognizer"
)

// RecognizerFallback is a [recognizer.Recognizer] that fails over between
// several recognisers, for example a whisper.cpp server with the embedded
// model behind it.
type RecognizerFallback struct {
	group *FallbackGroup[recognizer.Recognizer]
}

var _ recognizer.Recognizer = (*RecognizerFallback)(nil)

// NewRecognizerFallback returns a fallback chain starting with primary.
func NewRecognizerFallback(primary recognizer.Recognizer, primaryName string, cfg FallbackConfig) *RecognizerFallback {
	return &RecognizerFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends r to the chain.
func (f *RecognizerFallback) AddFallback(name string, r recognizer.Recognizer) {
	f.group.AddFallback(name, r)
}

// Recognize asks each recogniser in turn.
func (f *RecognizerFallback) Recognize(ctx context.Context, clip *audio.Clip) (recognizer.Result, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, r recognizer.Recognizer) (recognizer.Result, error) {
		return r.Recognize(ctx, clip)
	})
}

// AlignerFallback is an [aligner.ForcedAligner] that fails over between
// forced aligners. A single-member chain is still useful: its breaker
// stops the engine from waiting on an aligner that keeps failing.
type AlignerFallback struct {
	group *FallbackGroup[aligner.ForcedAligner]
}

var _ aligner.ForcedAligner = (*AlignerFallback)(nil)

// NewAlignerFallback returns a fallback chain starting with primary.
func NewAlignerFallback(primary aligner.ForcedAligner, primaryName string, cfg FallbackConfig) *AlignerFallback {
	return &AlignerFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a to the chain.
func (f *AlignerFallback) AddFallback(name string, a aligner.ForcedAligner) {
	f.group.AddFallback(name, a)
}

// Align asks each aligner in turn.
func (f *AlignerFallback) Align(ctx context.Context, clip *audio.Clip, transcript string) ([]aligner.Word, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, a aligner.ForcedAligner) ([]aligner.Word, error) {
		return a.Align(ctx, clip, transcript)
	})
}

// ExtractorFallback is a [phonemes.SpanExtractor] that fails over between
// phoneme extractors. Members without window support answer ExtractSpan by
// extracting the whole clip and keeping the phones inside the window.
type ExtractorFallback struct {
	group *FallbackGroup[phonemes.Extractor]
}

var _ phonemes.SpanExtractor = (*ExtractorFallback)(nil)

// NewExtractorFallback returns a fallback chain starting with primary.
func NewExtractorFallback(primary phonemes.Extractor, primaryName string, cfg FallbackConfig) *ExtractorFallback {
	return &ExtractorFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends e to the chain.
func (f *ExtractorFallback) AddFallback(name string, e phonemes.Extractor) {
	f.group.AddFallback(name, e)
}

// Extract asks each extractor in turn.
func (f *ExtractorFallback) Extract(ctx context.Context, clip *audio.Clip) ([]phonemes.Timed, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, e phonemes.Extractor) ([]phonemes.Timed, error) {
		return e.Extract(ctx, clip)
	})
}

// ExtractSpan asks each extractor in turn for the phones in [start, end].
func (f *ExtractorFallback) ExtractSpan(ctx context.Context, clip *audio.Clip, start, end float64) ([]phonemes.Timed, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, e phonemes.Extractor) ([]phonemes.Timed, error) {
		if se, ok := e.(phonemes.SpanExtractor); ok {
			return se.ExtractSpan(ctx, clip, start, end)
		}
		ps, err := e.Extract(ctx, clip)
		if err != nil {
			return nil, err
		}
		return phonemes.Within(ps, start, end), nil
	})
}
