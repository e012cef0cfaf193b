// Package scoring turns phoneme alignments into a PTE-style pronunciation
// score.
//
// Four components feed the total:
//
//	phone        0.55  1 − Σcost / (Σexpected × 1.2), floored at 0
//	stress       0.25  matched primary-stressed vowels / primary-stressed vowels
//	rhythm       0.10  1 − pause penalty / 0.3
//	consistency  0.10  bonus for systematic substitution patterns
//
// The total maps onto the 10–90 scale as round(total × 90 + 10, 1), capped
// at 90, and from there onto a coarse proficiency band.
package scoring

import (
	"math"

	"github.com/MrWong99/orato/internal/align"
	"github.com/MrWong99/orato/internal/pattern"
	"github.com/MrWong99/orato/pkg/phoneme"
)

const (
	// CostNormalizer scales the expected phoneme count into the maximum
	// cost a word can reasonably accrue.
	CostNormalizer = 1.2

	// MaxPausePenalty is the largest pause penalty the rhythm collaborator
	// reports.
	MaxPausePenalty = 0.3

	// ThresholdForced is the per-word confidence a correctly pronounced
	// word needs when phonemes come from forced alignment.
	ThresholdForced = 0.75

	// ThresholdFallback is the looser threshold used for phonemes from the
	// neural fallback.
	ThresholdFallback = 0.6
)

// Component weights of the total score.
const (
	WeightPhone       = 0.55
	WeightStress      = 0.25
	WeightRhythm      = 0.10
	WeightConsistency = 0.10
)

// Status is the pronunciation verdict for one word.
type Status string

const (
	StatusCorrect       Status = "correct"
	StatusMispronounced Status = "mispronounced"
)

// WordInput is one correctly spoken word to be scored.
type WordInput struct {
	Word     string
	RefIndex int

	Start, End *float64

	// Expected is the dictionary pronunciation, stress-marked.
	Expected []phoneme.Phoneme

	// Observed holds the recognised phonemes with non-speech markers
	// already removed.
	Observed []phoneme.Phoneme
}

// WordResult is the pronunciation verdict for one word.
type WordResult struct {
	Word     string   `json:"word"`
	RefIndex int      `json:"ref_index"`
	Status   Status   `json:"status"`
	Start    *float64 `json:"start,omitempty"`
	End      *float64 `json:"end,omitempty"`

	// Confidence is max(0, 1 − cost / (expected × 1.2)).
	Confidence float64 `json:"confidence"`

	Cost          float64 `json:"cost"`
	ExpectedCount int     `json:"expected_count"`

	Ops []align.Operation[phoneme.Phoneme] `json:"-"`
}

// Summary is the utterance-level pronunciation assessment.
type Summary struct {
	PhoneScore       float64 `json:"phone_score"`
	StressScore      float64 `json:"stress_score"`
	RhythmScore      float64 `json:"rhythm_score"`
	ConsistencyBonus float64 `json:"consistency_bonus"`
	ScorePTE         float64 `json:"score_pte"`
	Band             int     `json:"band"`

	// Errors lists substitution and deletion pairs, most frequent first.
	Errors []pattern.Count `json:"errors"`

	// Patterns counts substitution pairs keyed "E->O".
	Patterns map[string]int `json:"patterns"`

	Feedback []string `json:"feedback"`

	// FinalStopDropRate is the share of words ending in a stop whose final
	// stop was deleted; nil when no scored word ends in a stop.
	FinalStopDropRate *float64 `json:"final_stop_drop_rate,omitempty"`

	WordsScored int `json:"words_scored"`
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithPolicy sets the phoneme cost policy. Defaults to align.NewCostPolicy().
func WithPolicy(p *align.CostPolicy) Option {
	return func(s *Scorer) { s.policy = p }
}

// Scorer scores the words of one phoneme source. It is immutable and safe
// for concurrent use; all per-utterance state lives inside Score.
type Scorer struct {
	policy    *align.CostPolicy
	threshold float64
}

// New returns a Scorer that marks a word correct when its confidence is at
// least threshold.
func New(threshold float64, opts ...Option) *Scorer {
	s := &Scorer{threshold: threshold}
	for _, o := range opts {
		o(s)
	}
	if s.policy == nil {
		s.policy = align.NewCostPolicy()
	}
	return s
}

// Threshold returns the per-word confidence threshold.
func (s *Scorer) Threshold() float64 { return s.threshold }

// Score aligns every word, tracks error patterns across the utterance and
// computes the summary. Words without an expected pronunciation are
// skipped. pausePenalty comes from the rhythm collaborator and is clamped
// to [0, MaxPausePenalty].
func (s *Scorer) Score(words []WordInput, pausePenalty float64) ([]WordResult, Summary) {
	tracker := pattern.NewTracker()
	var (
		results               []WordResult
		totalCost             float64
		totalExpected         int
		stressed, stressedHit int
		finalStops, dropped   int
	)

	for _, w := range words {
		n := len(w.Expected)
		if n == 0 {
			continue
		}
		a := align.Phonemes(w.Expected, w.Observed, s.policy)
		tracker.Observe(a.Ops)
		totalCost += a.Cost
		totalExpected += n

		for _, op := range a.Ops {
			if !op.HasRef() {
				continue
			}
			if op.Ref.IsPrimaryStressedVowel() {
				stressed++
				if op.Op == align.OpMatch {
					stressedHit++
				}
			}
			if op.RefIndex == n-1 && op.Ref.IsStop() {
				finalStops++
				if op.Op == align.OpDeletion {
					dropped++
				}
			}
		}

		conf := WordConfidence(a.Cost, n)
		st := StatusMispronounced
		if conf >= s.threshold {
			st = StatusCorrect
		}
		results = append(results, WordResult{
			Word: w.Word, RefIndex: w.RefIndex, Status: st,
			Start: w.Start, End: w.End,
			Confidence: conf, Cost: a.Cost, ExpectedCount: n,
			Ops: a.Ops,
		})
	}

	sum := Summary{
		PhoneScore:       PhoneScore(totalCost, totalExpected),
		StressScore:      1,
		RhythmScore:      RhythmScore(pausePenalty),
		ConsistencyBonus: tracker.Bonus(),
		Errors:           tracker.Errors(),
		Patterns:         make(map[string]int),
		WordsScored:      len(results),
	}
	if stressed > 0 {
		sum.StressScore = float64(stressedHit) / float64(stressed)
	}
	if finalStops > 0 {
		r := float64(dropped) / float64(finalStops)
		sum.FinalStopDropRate = &r
	}
	for p, c := range tracker.Substitutions() {
		sum.Patterns[p.String()] = c
	}
	sum.ScorePTE = ScorePTE(Total(sum.PhoneScore, sum.StressScore, sum.RhythmScore, sum.ConsistencyBonus))
	sum.Band = Band(sum.ScorePTE)
	sum.Feedback = Feedback(sum, tracker.Systematic())
	return results, sum
}

// WordConfidence is max(0, 1 − cost / (expected × 1.2)). A word with no
// expected phonemes has confidence 1.
func WordConfidence(cost float64, expected int) float64 {
	if expected <= 0 {
		return 1
	}
	return math.Max(0, 1-cost/(float64(expected)*CostNormalizer))
}

// PhoneScore is the utterance-level phone intelligibility. It is 1 when
// nothing was scored.
func PhoneScore(totalCost float64, totalExpected int) float64 {
	if totalExpected <= 0 {
		return 1
	}
	return clamp01(1 - totalCost/(float64(totalExpected)*CostNormalizer))
}

// RhythmScore converts a pause penalty into a score in [0, 1].
func RhythmScore(pausePenalty float64) float64 {
	return clamp01(1 - pausePenalty/MaxPausePenalty)
}

// Total combines the components with their weights. Inputs are clamped to
// [0, 1].
func Total(phone, stress, rhythm, bonus float64) float64 {
	return WeightPhone*clamp01(phone) +
		WeightStress*clamp01(stress) +
		WeightRhythm*clamp01(rhythm) +
		WeightConsistency*clamp01(bonus)
}

// ScorePTE maps a total in [0, 1] onto the 10–90 scale with one decimal.
func ScorePTE(total float64) float64 {
	return math.Min(90, round1(total*90+10))
}

// Band maps a PTE score onto a proficiency band. Ranges are right-open:
//
//	≥90 → 90, [85,90) → 85, [80,85) → 79, [75,80) → 73,
//	[70,75) → 65, [60,70) → 58, [50,60) → 50,
//	[45,50) → 45, below 45 → 30
func Band(score float64) int {
	switch {
	case score >= 90:
		return 90
	case score >= 85:
		return 85
	case score >= 80:
		return 79
	case score >= 75:
		return 73
	case score >= 70:
		return 65
	case score >= 60:
		return 58
	case score >= 50:
		return 50
	case score >= 45:
		return 45
	default:
		return 30
	}
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }

func clamp01(x float64) float64 { return math.Max(0, math.Min(1, x)) }
