// This file contains the Native recognizer backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/orato/pkg/audio"
	"github.com/MrWong99/orato/pkg/provider/recognizer"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that Native satisfies recognizer.Recognizer.
var _ recognizer.Recognizer = (*Native)(nil)

// Native implements recognizer.Recognizer using the whisper.cpp Go bindings.
// The model is loaded once and shared; every Recognize call creates its own
// whisper context, so concurrent calls do not interfere.
type Native struct {
	model    whisperlib.Model
	language string
	threads  uint
}

// NativeOption is a functional option for configuring a Native recognizer.
type NativeOption func(*Native)

// WithNativeLanguage sets the language code for transcription. Defaults to
// "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// WithNativeThreads sets the number of inference threads. Zero keeps the
// library default.
func WithNativeThreads(threads uint) NativeOption {
	return func(n *Native) { n.threads = threads }
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the recognizer is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	n := &Native{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the whisper model.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// Recognize runs inference over the clip samples, resampled to 16 kHz, with
// one segment emitted per word.
func (n *Native) Recognize(ctx context.Context, clip *audio.Clip) (recognizer.Result, error) {
	if err := ctx.Err(); err != nil {
		return recognizer.Result{}, fmt.Errorf("whisper: %w", err)
	}
	if clip == nil || len(clip.Samples) == 0 {
		return recognizer.Result{}, nil
	}
	samples := audio.Resample(clip.Samples, clip.SampleRate, whisperlib.SampleRate)

	wctx, err := n.model.NewContext()
	if err != nil {
		return recognizer.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(n.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", n.language, "error", err)
	}
	if n.threads > 0 {
		wctx.SetThreads(n.threads)
	}
	wctx.SetTokenTimestamps(true)
	wctx.SetMaxSegmentLength(1)
	wctx.SetSplitOnWord(true)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return recognizer.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var words []recognizer.Word
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return recognizer.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if w, ok := segmentWord(segment); ok {
			words = append(words, w)
		}
	}
	return recognizer.Result{Words: words, Confidence: recognizer.MeanConfidence(words)}, nil
}

// segmentWord converts a single-word segment. Special tokens such as
// "[_BEG_]" are excluded from the confidence.
func segmentWord(seg whisperlib.Segment) (recognizer.Word, bool) {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return recognizer.Word{}, false
	}
	w := recognizer.Word{
		Text:  text,
		Start: seg.Start.Seconds(),
		End:   seg.End.Seconds(),
	}
	var sum float64
	var cnt int
	for _, tok := range seg.Tokens {
		if strings.HasPrefix(tok.Text, "[_") || strings.TrimSpace(tok.Text) == "" {
			continue
		}
		sum += float64(tok.P)
		cnt++
	}
	if cnt > 0 {
		p := sum / float64(cnt)
		w.Confidence = &p
	}
	return w, true
}
