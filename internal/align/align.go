// Package align implements the two edit-distance aligners Orato is built on.
//
// [Words] aligns reference words against recognized words with unit costs and
// decides, for every reference word, whether it was spoken, skipped or
// replaced. [Phonemes] aligns a word's expected phonemes against the observed
// ones using a [CostPolicy] that forgives common accent features and weighs
// vowel errors more heavily.
//
// Both aligners fill an (n+1)×(m+1) cost table together with a parallel
// backtrace table and reconstruct the path iteratively from the bottom-right
// cell, so long passages cannot exhaust the stack. Both are pure functions
// and safe for concurrent use.
package align

import "fmt"

// Op is the kind of a single alignment step.
type Op int

const (
	// OpMatch pairs a reference item with an equal hypothesis item.
	OpMatch Op = iota

	// OpSubstitution pairs a reference item with a different hypothesis item.
	OpSubstitution

	// OpDeletion consumes a reference item that has no hypothesis counterpart.
	OpDeletion

	// OpInsertion consumes a hypothesis item that has no reference counterpart.
	OpInsertion
)

// String returns the short lower-case name used in reports.
func (o Op) String() string {
	switch o {
	case OpMatch:
		return "match"
	case OpSubstitution:
		return "sub"
	case OpDeletion:
		return "del"
	case OpInsertion:
		return "ins"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Operation is one step of an alignment path. Ref is the zero value for
// insertions and Hyp is the zero value for deletions; the corresponding index
// is -1 in those cases.
type Operation[T any] struct {
	Op       Op
	Ref      T
	Hyp      T
	RefIndex int
	HypIndex int
	Cost     float64

	// Rule names the cost rule that priced the step. Only phoneme
	// alignments set it.
	Rule string
}

// HasRef reports whether the operation consumed a reference item.
func (o Operation[T]) HasRef() bool { return o.Op != OpInsertion }

// HasHyp reports whether the operation consumed a hypothesis item.
func (o Operation[T]) HasHyp() bool { return o.Op != OpDeletion }

// TotalCost sums the cost of every operation in ops.
func TotalCost[T any](ops []Operation[T]) float64 {
	var sum float64
	for _, op := range ops {
		sum += op.Cost
	}
	return sum
}

// Counts tallies operations by kind.
type Counts struct {
	Matches       int
	Substitutions int
	Deletions     int
	Insertions    int
}

// Edits returns the number of non-match operations.
func (c Counts) Edits() int { return c.Substitutions + c.Deletions + c.Insertions }

// Count tallies ops by kind.
func Count[T any](ops []Operation[T]) Counts {
	var c Counts
	for _, op := range ops {
		switch op.Op {
		case OpMatch:
			c.Matches++
		case OpSubstitution:
			c.Substitutions++
		case OpDeletion:
			c.Deletions++
		case OpInsertion:
			c.Insertions++
		}
	}
	return c
}

// move records which predecessor a DP cell was reached from.
type move uint8

const (
	moveNone move = iota
	moveDiag
	moveUp   // deletion: (i-1, j)
	moveLeft // insertion: (i, j-1)
)

// grid is a flat (rows×cols) table.
type grid[T any] struct {
	cols int
	data []T
}

func newGrid[T any](rows, cols int) grid[T] {
	return grid[T]{cols: cols, data: make([]T, rows*cols)}
}

func (g grid[T]) at(i, j int) T { return g.data[i*g.cols+j] }

func (g grid[T]) set(i, j int, v T) { g.data[i*g.cols+j] = v }

// backtrace walks the move table from (n, m) to (0, 0) and returns the visited
// steps in forward order. emit is called for each step with the indices of
// the consumed items (-1 when absent).
func backtrace(moves grid[move], n, m int, emit func(mv move, i, j int)) {
	type step struct {
		mv   move
		i, j int
	}
	path := make([]step, 0, n+m)
	i, j := n, m
	for i > 0 || j > 0 {
		mv := moves.at(i, j)
		switch mv {
		case moveDiag:
			path = append(path, step{mv, i - 1, j - 1})
			i--
			j--
		case moveUp:
			path = append(path, step{mv, i - 1, -1})
			i--
		case moveLeft:
			path = append(path, step{mv, -1, j - 1})
			j--
		default:
			// Unreachable for a completely filled table.
			panic(fmt.Sprintf("align: empty backtrace cell (%d,%d)", i, j))
		}
	}
	for k := len(path) - 1; k >= 0; k-- {
		emit(path[k].mv, path[k].i, path[k].j)
	}
}
