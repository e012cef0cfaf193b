package assess

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/orato/internal/report"
	"github.com/MrWong99/orato/pkg/audio"
)

// Request is one utterance of a batch.
type Request struct {
	Text string
	Clip *audio.Clip
}

// Outcome is the result of one batch request. Exactly one of Report and
// Err is meaningful.
type Outcome struct {
	Report report.FinalReport
	Err    error
}

// AssessBatch assesses independent utterances concurrently, at most
// WithBatchLimit at a time. Outcomes are in request order. One failing
// utterance does not stop the others; the returned error is non-nil only
// when ctx ends before the batch completes.
func (e *Engine) AssessBatch(ctx context.Context, reqs []Request) ([]Outcome, error) {
	out := make([]Outcome, len(reqs))
	var g errgroup.Group
	g.SetLimit(e.batchLimit)
	for i, r := range reqs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rep, err := e.Assess(ctx, r.Text, r.Clip)
			out[i] = Outcome{Report: rep, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}
