package align

import "github.com/MrWong99/orato/pkg/phoneme"

// costEpsilon absorbs floating-point noise when comparing path costs.
const costEpsilon = 1e-9

// PhonemeAlignment is the result of aligning one word's phonemes.
type PhonemeAlignment struct {
	Ops  []Operation[phoneme.Phoneme]
	Cost float64
}

// Phonemes aligns the expected phonemes of one word against the observed
// ones using policy (NewCostPolicy() when nil). Observed sequences should
// already be stripped of non-speech markers; see [phoneme.FilterSpeech].
//
// Among predecessors of equal cost the one whose path contains fewer
// non-match operations wins. Remaining ties fall back to diagonal, then
// deletion, then insertion.
func Phonemes(expected, observed []phoneme.Phoneme, policy *CostPolicy) PhonemeAlignment {
	if policy == nil {
		policy = NewCostPolicy()
	}
	n, m := len(expected), len(observed)
	cost := newGrid[float64](n+1, m+1)
	edits := newGrid[int](n+1, m+1)
	moves := newGrid[move](n+1, m+1)

	delStep := func(i int) Step {
		return Step{Op: OpDeletion, Expected: expected[i], Final: i == n-1}
	}
	insStep := func(j int) Step {
		return Step{Op: OpInsertion, Observed: observed[j]}
	}
	delCost := func(i int) float64 { return policy.Cost(delStep(i)) }
	insCost := func(j int) float64 { return policy.Cost(insStep(j)) }
	diagStep := func(i, j int) Step {
		s := Step{Op: OpSubstitution, Expected: expected[i], Observed: observed[j], Final: i == n-1}
		if expected[i].SameSound(observed[j]) {
			s.Op = OpMatch
		}
		return s
	}

	for i := 1; i <= n; i++ {
		cost.set(i, 0, cost.at(i-1, 0)+delCost(i-1))
		edits.set(i, 0, i)
		moves.set(i, 0, moveUp)
	}
	for j := 1; j <= m; j++ {
		cost.set(0, j, cost.at(0, j-1)+insCost(j-1))
		edits.set(0, j, j)
		moves.set(0, j, moveLeft)
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			ds := diagStep(i-1, j-1)
			diagEdit := 0
			if ds.Op != OpMatch {
				diagEdit = 1
			}
			cands := [3]struct {
				cost  float64
				edits int
				mv    move
			}{
				{cost.at(i-1, j-1) + policy.Cost(ds), edits.at(i-1, j-1) + diagEdit, moveDiag},
				{cost.at(i-1, j) + delCost(i-1), edits.at(i-1, j) + 1, moveUp},
				{cost.at(i, j-1) + insCost(j-1), edits.at(i, j-1) + 1, moveLeft},
			}
			best := cands[0]
			for _, c := range cands[1:] {
				switch {
				case c.cost < best.cost-costEpsilon:
					best = c
				case c.cost <= best.cost+costEpsilon && c.edits < best.edits:
					best = c
				}
			}
			cost.set(i, j, best.cost)
			edits.set(i, j, best.edits)
			moves.set(i, j, best.mv)
		}
	}

	ops := make([]Operation[phoneme.Phoneme], 0, max(n, m))
	backtrace(moves, n, m, func(mv move, i, j int) {
		switch mv {
		case moveDiag:
			s := diagStep(i, j)
			ops = append(ops, Operation[phoneme.Phoneme]{
				Op: s.Op, Ref: expected[i], Hyp: observed[j],
				RefIndex: i, HypIndex: j, Cost: policy.Cost(s), Rule: policy.Rule(s),
			})
		case moveUp:
			ops = append(ops, Operation[phoneme.Phoneme]{
				Op: OpDeletion, Ref: expected[i],
				RefIndex: i, HypIndex: -1, Cost: delCost(i), Rule: policy.Rule(delStep(i)),
			})
		case moveLeft:
			ops = append(ops, Operation[phoneme.Phoneme]{
				Op: OpInsertion, Hyp: observed[j],
				RefIndex: -1, HypIndex: j, Cost: insCost(j), Rule: policy.Rule(insStep(j)),
			})
		}
	})
	return PhonemeAlignment{Ops: ops, Cost: cost.at(n, m)}
}
