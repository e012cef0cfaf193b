// Package rhythm evaluates the pauses a reader makes at commas and full
// stops.
//
// For every pause token of the reference passage the [Evaluator] measures
// the silence between the last spoken word before it and the first timed
// word after it, compares that against a window scaled by the reader's own
// speech rate, and assigns a penalty in [0, 1]. Pauses that bunch up within
// a short time span are amplified as hesitation. The mean penalty, capped
// at [MaxPenalty], feeds the rhythm component of the pronunciation score.
package rhythm

import (
	"cmp"
	"slices"

	"github.com/MrWong99/orato/internal/content"
	"github.com/MrWong99/orato/internal/text"
)

const (
	// MaxPenalty caps the aggregated pause penalty.
	MaxPenalty = 0.3

	// LongPauseLimit is the duration beyond which a pause earns the full
	// penalty.
	LongPauseLimit = 1.5

	// BaseInterWordGap is the inter-word gap of a reader at normal speed.
	BaseInterWordGap = 0.25

	// ClusterWindow is the largest gap between pauses that still counts as
	// one hesitation cluster.
	ClusterWindow = 2.0

	shortPauseFloor      = 0.3
	shortPauseMax        = 0.3
	commaShortFactor     = 0.5
	functionWordFactor   = 0.6
	afterRepeatFactor    = 1.5
	clusterAmplification = 0.2
	minRateScale         = 0.5
	maxRateScale         = 2.0
)

// window is the base (min, max) pause duration per punctuation mark.
var window = map[string][2]float64{
	",": {0.3, 0.5},
	".": {0.6, 1.0},
}

// missedPenalty is the base penalty when no pause could be measured.
var missedPenalty = map[string]float64{
	",": 0.05,
	".": 0.3,
}

// Status classifies a measured pause.
type Status string

const (
	StatusCorrect Status = "correct_pause"
	StatusShort   Status = "short_pause"
	StatusLong    Status = "long_pause"
	StatusMissed  Status = "missed_pause"
)

// Pause is the evaluation of one pause token.
type Pause struct {
	// Punct is "," or ".".
	Punct  string `json:"word"`
	Status Status `json:"status"`

	// Penalty is in [0, 1] after hesitation clustering.
	Penalty float64 `json:"penalty"`

	// Duration is the measured silence, nil when either side had no timing.
	Duration *float64 `json:"pause_duration"`

	// Expected is the scaled (min, max) window.
	Expected [2]float64 `json:"expected_range"`

	// Start is the end of the preceding word, End the start of the
	// following one.
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`

	// AfterWord is the last spoken word before the pause.
	AfterWord string `json:"after_word,omitempty"`

	// ClusterSize is the number of pauses in this pause's hesitation
	// cluster, or 0 when the pause stands alone.
	ClusterSize int `json:"cluster_size,omitempty"`
}

// Evaluation is the outcome for a whole utterance.
type Evaluation struct {
	Pauses []Pause `json:"pauses"`

	// Penalty is the mean pause penalty, capped at MaxPenalty.
	Penalty float64 `json:"penalty"`

	// RateScale is the speech-rate factor applied to the pause windows.
	RateScale float64 `json:"rate_scale"`
}

// Evaluator scores pauses. The zero value is ready to use and safe for
// concurrent use.
type Evaluator struct{}

// Score evaluates every pause token of reference against the content
// results. Pause tokens at the very end of the passage have no following
// word and are not evaluated.
func (Evaluator) Score(words []content.WordResult, reference []text.Token) Evaluation {
	// anchors[k] is the number of reference words preceding pause k.
	var (
		puncts  []string
		anchors []int
		nWords  int
	)
	for _, tok := range reference {
		if tok.Kind == text.Pause {
			puncts = append(puncts, tok.Text)
			anchors = append(anchors, nWords)
			continue
		}
		nWords++
	}

	scale := RateScale(words)
	ev := Evaluation{RateScale: scale}

	var (
		lastEnd      *float64
		prevWord     string
		lastRepeated bool
		next         int
	)
	emit := func(upTo, from int) {
		for ; next < len(puncts) && anchors[next] <= upTo; next++ {
			var (
				nextStart *float64
				dur       *float64
			)
			for _, w := range words[from:] {
				if w.Start != nil {
					nextStart = w.Start
					break
				}
			}
			if lastEnd != nil && nextStart != nil {
				d := max(0, *nextStart-*lastEnd)
				dur = &d
			}
			p := Evaluate(puncts[next], dur, scale, prevWord, lastRepeated)
			p.Start, p.End = lastEnd, nextStart
			ev.Pauses = append(ev.Pauses, p)
		}
	}

	for i, w := range words {
		if w.RefIndex >= 0 {
			emit(w.RefIndex, i)
		}
		if w.Status == content.StatusMissed {
			continue
		}
		if w.End != nil {
			lastEnd = w.End
		}
		prevWord = w.Word
		lastRepeated = w.Status == content.StatusRepeated
	}

	Cluster(ev.Pauses, ClusterWindow)
	ev.Penalty = Aggregate(ev.Pauses)
	return ev
}

// Evaluate classifies a single pause. duration is nil when the silence
// could not be measured. prevWord is the last spoken word before the
// pause; afterRepeated reports whether that word was a repetition.
func Evaluate(punct string, duration *float64, scale float64, prevWord string, afterRepeated bool) Pause {
	w, ok := window[punct]
	if !ok {
		w = window[","]
	}
	lo, hi := w[0]*scale, w[1]*scale
	p := Pause{Punct: punct, Duration: duration, Expected: [2]float64{lo, hi}, AfterWord: prevWord}

	switch {
	case duration == nil:
		p.Status = StatusMissed
		p.Penalty = missedPenalty["."]
		if punct != "." {
			p.Penalty = missedPenalty[","] * scale
		}
	case *duration < lo:
		p.Status = StatusShort
		ratio := (lo - *duration) / lo
		var pen float64
		if ratio > shortPauseFloor {
			pen = (ratio - shortPauseFloor) / (1 - shortPauseFloor) * shortPauseMax
		}
		if punct == "," {
			pen *= commaShortFactor
		}
		p.Penalty = min(pen, shortPauseMax)
	case *duration > hi:
		p.Status = StatusLong
		if *duration > LongPauseLimit {
			p.Penalty = 1
		} else {
			p.Penalty = 0.5 + 0.5*min((*duration-hi)/hi, 1)
		}
	default:
		p.Status = StatusCorrect
	}

	if prevWord != "" && text.IsFunctionWord(prevWord) {
		p.Penalty *= functionWordFactor
	}
	if afterRepeated {
		p.Penalty = min(p.Penalty*afterRepeatFactor, 1)
	}
	return p
}

// RateScale is the mean positive gap between consecutive timed words
// divided by BaseInterWordGap, clamped to [0.5, 2]. It is 1 when fewer than
// two timed words exist or no gap is positive.
func RateScale(words []content.WordResult) float64 {
	var (
		sum     float64
		n       int
		prevEnd *float64
	)
	for _, w := range words {
		if !w.Timed() {
			continue
		}
		if prevEnd != nil {
			if gap := *w.Start - *prevEnd; gap > 0 {
				sum += gap
				n++
			}
		}
		prevEnd = w.End
	}
	if n == 0 {
		return 1
	}
	return max(minRateScale, min(maxRateScale, sum/float64(n)/BaseInterWordGap))
}

// Cluster amplifies the penalties of pauses that follow each other within
// span seconds. Pauses are visited in start-time order; a cluster of k
// pauses multiplies each member's penalty by 1 + 0.2(k−1), capped at 1.
// The slice order is left unchanged.
func Cluster(pauses []Pause, span float64) {
	if len(pauses) < 2 {
		return
	}
	order := make([]int, len(pauses))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(deref(pauses[a].Start), deref(pauses[b].Start))
	})

	apply := func(cluster []int) {
		k := len(cluster)
		if k < 2 {
			return
		}
		amp := 1 + clusterAmplification*float64(k-1)
		for _, idx := range cluster {
			pauses[idx].Penalty = min(pauses[idx].Penalty*amp, 1)
			pauses[idx].ClusterSize = k
		}
	}

	cluster := []int{order[0]}
	for _, idx := range order[1:] {
		prev := pauses[cluster[len(cluster)-1]]
		prevEnd := prev.End
		if prevEnd == nil {
			prevEnd = prev.Start
		}
		gap := deref(pauses[idx].Start) - deref(prevEnd)
		if gap >= 0 && gap <= span {
			cluster = append(cluster, idx)
			continue
		}
		apply(cluster)
		cluster = []int{idx}
	}
	apply(cluster)
}

// Aggregate returns the mean penalty capped at MaxPenalty, or 0 without
// pauses.
func Aggregate(pauses []Pause) float64 {
	if len(pauses) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pauses {
		sum += p.Penalty
	}
	return min(sum/float64(len(pauses)), MaxPenalty)
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
