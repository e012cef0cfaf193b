// Package mock provides a test double for the recognizer.Recognizer
// interface.
//
// Example:
//
//	r := &mock.Recognizer{Result: recognizer.Result{Words: words}}
//	res, _ := r.Recognize(ctx, clip)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/orato/pkg/audio"
	"github.com/MrWong99/orato/pkg/provider/recognizer"
)

// RecognizeCall records a single invocation of Recognizer.Recognize.
type RecognizeCall struct {
	// Ctx is the context passed to Recognize.
	Ctx context.Context
	// Clip is the clip passed to Recognize.
	Clip *audio.Clip
}

// Recognizer is a mock implementation of recognizer.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Result is returned by every Recognize call.
	Result recognizer.Result

	// Err, if non-nil, is returned as the error from Recognize.
	Err error

	// Calls records every call to Recognize.
	Calls []RecognizeCall
}

// Recognize records the call and returns Result, Err.
func (r *Recognizer) Recognize(ctx context.Context, clip *audio.Clip) (recognizer.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, RecognizeCall{Ctx: ctx, Clip: clip})
	if r.Err != nil {
		return recognizer.Result{}, r.Err
	}
	return r.Result, nil
}

// CallCount returns the number of Recognize calls. Thread-safe.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = nil
}

// Ensure Recognizer implements recognizer.Recognizer at compile time.
var _ recognizer.Recognizer = (*Recognizer)(nil)
