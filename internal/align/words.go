package align

// Words aligns reference words against hypothesis words with unit costs:
// match 0, substitution 1, deletion 1, insertion 1. Words compare equal when
// their strings are equal, so callers normalise both sides first.
//
// When several predecessors yield the same minimal cost the diagonal move
// wins over a deletion, and a deletion wins over an insertion. Preferring the
// diagonal keeps as many reference words as possible attached to a
// recognized word (and therefore to a timestamp).
//
// Empty inputs are valid: an empty reference yields only insertions, an empty
// hypothesis only deletions, and two empty inputs an empty path.
func Words(ref, hyp []string) []Operation[string] {
	n, m := len(ref), len(hyp)
	cost := newGrid[int](n+1, m+1)
	moves := newGrid[move](n+1, m+1)

	for i := 1; i <= n; i++ {
		cost.set(i, 0, i)
		moves.set(i, 0, moveUp)
	}
	for j := 1; j <= m; j++ {
		cost.set(0, j, j)
		moves.set(0, j, moveLeft)
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			sub := 1
			if ref[i-1] == hyp[j-1] {
				sub = 0
			}
			diag := cost.at(i-1, j-1) + sub
			del := cost.at(i-1, j) + 1
			ins := cost.at(i, j-1) + 1

			best, mv := diag, moveDiag
			if del < best {
				best, mv = del, moveUp
			}
			if ins < best {
				best, mv = ins, moveLeft
			}
			cost.set(i, j, best)
			moves.set(i, j, mv)
		}
	}

	ops := make([]Operation[string], 0, max(n, m))
	backtrace(moves, n, m, func(mv move, i, j int) {
		switch mv {
		case moveDiag:
			op := Operation[string]{Op: OpMatch, Ref: ref[i], Hyp: hyp[j], RefIndex: i, HypIndex: j}
			if ref[i] != hyp[j] {
				op.Op, op.Cost = OpSubstitution, 1
			}
			ops = append(ops, op)
		case moveUp:
			ops = append(ops, Operation[string]{Op: OpDeletion, Ref: ref[i], RefIndex: i, HypIndex: -1, Cost: 1})
		case moveLeft:
			ops = append(ops, Operation[string]{Op: OpInsertion, Hyp: hyp[j], RefIndex: -1, HypIndex: j, Cost: 1})
		}
	})
	return ops
}
