// Package mock provides a test double for the aligner.ForcedAligner
// interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/orato/pkg/audio"
	"github.com/MrWong99/orato/pkg/provider/aligner"
)

// AlignCall records a single invocation of Aligner.Align.
type AlignCall struct {
	Ctx        context.Context
	Clip       *audio.Clip
	Transcript string
}

// Aligner is a mock implementation of aligner.ForcedAligner.
type Aligner struct {
	mu sync.Mutex

	// Words is returned by every Align call.
	Words []aligner.Word

	// Err, if non-nil, is returned as the error from Align.
	Err error

	// Calls records every call to Align.
	Calls []AlignCall
}

// Align records the call and returns Words, Err.
func (a *Aligner) Align(ctx context.Context, clip *audio.Clip, transcript string) ([]aligner.Word, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, AlignCall{Ctx: ctx, Clip: clip, Transcript: transcript})
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Words, nil
}

// CallCount returns the number of Align calls. Thread-safe.
func (a *Aligner) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Calls)
}

// Ensure Aligner implements aligner.ForcedAligner at compile time.
var _ aligner.ForcedAligner = (*Aligner)(nil)
