// Package pattern tracks recurring phoneme errors within one utterance.
//
// A speaker who makes the same substitution again and again shows a stable
// accent feature rather than random mistakes. A [Tracker] counts every
// (expected, observed) substitution pair; pairs seen at least
// [SystematicThreshold] times are systematic and earn a consistency bonus.
//
// A Tracker is scoped to a single assessment. Create one per utterance and
// never share it between goroutines.
package pattern

import (
	"cmp"
	"slices"

	"github.com/MrWong99/orato/internal/align"
	"github.com/MrWong99/orato/pkg/phoneme"
)

const (
	// SystematicThreshold is the count at which a pair becomes systematic.
	SystematicThreshold = 3

	// BonusPerOccurrence is the bonus earned per occurrence of a systematic
	// pair.
	BonusPerOccurrence = 0.02

	// MaxBonus caps the consistency bonus.
	MaxBonus = 0.10

	// Deleted is the observed label recorded for deletions.
	Deleted = "<eps>"
)

// Pair is an (expected, observed) base-symbol pair.
type Pair struct {
	Expected string `json:"expected"`
	Observed string `json:"observed"`
}

// String renders the pair as "E->O".
func (p Pair) String() string { return p.Expected + "->" + p.Observed }

// Deletion reports whether the pair records a deleted phoneme.
func (p Pair) Deletion() bool { return p.Observed == Deleted }

// Count is a pair with its number of occurrences.
type Count struct {
	Pair
	Count int `json:"count"`

	// Rule names the cost rule that priced the pair's first occurrence,
	// such as "accent_equivalent" or "final_voiceless_stop_deletion".
	Rule string `json:"rule,omitempty"`
}

// Tracker accumulates error pairs for one utterance.
type Tracker struct {
	subs   map[Pair]int
	errors map[Pair]int
	rules  map[Pair]string
	order  []Pair
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		subs:   make(map[Pair]int),
		errors: make(map[Pair]int),
		rules:  make(map[Pair]string),
	}
}

// Observe records the substitutions and deletions of one word's alignment.
// Only substitutions count towards systematic patterns; deletions appear
// in the error list only.
func (t *Tracker) Observe(ops []align.Operation[phoneme.Phoneme]) {
	for _, op := range ops {
		switch op.Op {
		case align.OpSubstitution:
			p := Pair{Expected: op.Ref.Base, Observed: op.Hyp.Base}
			t.subs[p]++
			t.addError(p, op.Rule)
		case align.OpDeletion:
			t.addError(Pair{Expected: op.Ref.Base, Observed: Deleted}, op.Rule)
		}
	}
}

func (t *Tracker) addError(p Pair, rule string) {
	if t.errors[p] == 0 {
		t.order = append(t.order, p)
		t.rules[p] = rule
	}
	t.errors[p]++
}

// Substitutions returns every substitution pair with its count.
func (t *Tracker) Substitutions() map[Pair]int {
	out := make(map[Pair]int, len(t.subs))
	for p, n := range t.subs {
		out[p] = n
	}
	return out
}

// Systematic returns the substitution pairs seen at least
// SystematicThreshold times, most frequent first. Ties keep first-seen
// order.
func (t *Tracker) Systematic() []Count {
	var out []Count
	for _, p := range t.order {
		if n := t.subs[p]; n >= SystematicThreshold {
			out = append(out, Count{Pair: p, Count: n, Rule: t.rules[p]})
		}
	}
	slices.SortStableFunc(out, func(a, b Count) int { return cmp.Compare(b.Count, a.Count) })
	return out
}

// Errors returns every substitution and deletion pair, most frequent first.
// Ties keep first-seen order.
func (t *Tracker) Errors() []Count {
	out := make([]Count, 0, len(t.order))
	for _, p := range t.order {
		out = append(out, Count{Pair: p, Count: t.errors[p], Rule: t.rules[p]})
	}
	slices.SortStableFunc(out, func(a, b Count) int { return cmp.Compare(b.Count, a.Count) })
	return out
}

// Bonus returns the consistency bonus of the tracked substitutions.
func (t *Tracker) Bonus() float64 {
	return Bonus(t.subs)
}

// Bonus computes the consistency bonus for substitution counts: 0.02 per
// occurrence of each systematic pair, capped at 0.10.
func Bonus(counts map[Pair]int) float64 {
	var b float64
	for _, n := range counts {
		if n >= SystematicThreshold {
			b += BonusPerOccurrence * float64(n)
		}
	}
	return min(b, MaxBonus)
}
