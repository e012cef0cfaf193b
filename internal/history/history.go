// Package history keeps a learner's past assessments so that recurring
// pronunciation patterns can be reported across attempts.
//
// Three [Store] backends are provided: [MemStore] for tests and single-shot
// runs, [PostgresStore] (pgx) for deployments, and [SQLiteStore]
// (modernc.org/sqlite, no cgo) for a single-node install.
package history

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MrWong99/orato/internal/report"
)

// ErrInvalidAttempt is returned by Save when an attempt lacks its ID or
// learner ID.
var ErrInvalidAttempt = errors.New("history: attempt needs an id and a learner id")

// Attempt is one stored assessment.
type Attempt struct {
	ID        string    `json:"id"`
	LearnerID string    `json:"learner_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`

	Method   string  `json:"pronunciation_method"`
	Accuracy float64 `json:"accuracy"`

	// ScorePTE and Band are zero when no pronunciation score was computed.
	ScorePTE float64 `json:"score_pte"`
	Band     int     `json:"band"`

	// Patterns are the substitution counts of the attempt, keyed "E->O".
	Patterns map[string]int `json:"patterns,omitempty"`
}

// PatternCount is a substitution pattern aggregated over attempts.
type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// Store persists attempts. Implementations must be safe for concurrent use.
type Store interface {
	// Save records an attempt. Saving an ID twice replaces the earlier one.
	Save(ctx context.Context, a Attempt) error

	// Recent returns up to limit attempts of learnerID, newest first.
	Recent(ctx context.Context, learnerID string, limit int) ([]Attempt, error)

	// Patterns sums the substitution patterns of learnerID's attempts
	// created at or after since, sorted by count descending then pattern.
	Patterns(ctx context.Context, learnerID string, since time.Time) ([]PatternCount, error)
}

// FromReport builds an attempt from a finished report.
func FromReport(learnerID, passage string, r report.FinalReport, at time.Time) Attempt {
	a := Attempt{
		ID:        r.ID,
		LearnerID: learnerID,
		Text:      passage,
		CreatedAt: at.UTC(),
		Method:    string(r.PronunciationMethod),
		Accuracy:  r.Summary.Accuracy,
	}
	if p := r.Summary.Pronunciation; p != nil {
		a.ScorePTE = p.ScorePTE
		a.Band = p.Band
		if len(p.Patterns) > 0 {
			a.Patterns = make(map[string]int, len(p.Patterns))
			for k, v := range p.Patterns {
				a.Patterns[k] = v
			}
		}
	}
	return a
}

func validate(a Attempt) error {
	if a.ID == "" || a.LearnerID == "" {
		return fmt.Errorf("%w (id %q, learner %q)", ErrInvalidAttempt, a.ID, a.LearnerID)
	}
	return nil
}

// sortPatterns orders counts by count descending, then pattern.
func sortPatterns(pc []PatternCount) {
	slices.SortFunc(pc, func(a, b PatternCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Pattern, b.Pattern)
	})
}
