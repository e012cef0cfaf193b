package align

import (
	"strings"

	"github.com/MrWong99/orato/pkg/phoneme"
)

// AccentPair is a directional substitution (expected → observed) that is
// accepted as an accent feature rather than a pronunciation error.
type AccentPair struct {
	Expected string `yaml:"expected" json:"expected"`
	Observed string `yaml:"observed" json:"observed"`
}

// String renders the pair as "E->O".
func (p AccentPair) String() string { return p.Expected + "->" + p.Observed }

// DefaultAccentPairs are the accent-equivalent substitutions applied when no
// pair set is configured.
var DefaultAccentPairs = []AccentPair{
	{"TH", "T"}, {"TH", "D"},
	{"DH", "D"}, {"DH", "T"},
	{"V", "W"}, {"W", "V"},
	{"Z", "S"}, {"ZH", "SH"},
}

// Cost multipliers applied to the unit base cost.
const (
	baseCost              = 1.0
	accentMultiplier      = 0.4
	stressedVowelMult     = 1.4
	unstressedVowelMult   = 1.2
	finalVoicelessDelMult = 0.3
	finalVoicedDelMult    = 0.7
)

// Step describes a single candidate edit for cost evaluation.
type Step struct {
	Op       Op
	Expected phoneme.Phoneme
	Observed phoneme.Phoneme

	// Final is true when Expected is the last phoneme of the word.
	Final bool
}

// rule is one entry of the cost table: the first rule that applies sets the
// multiplier for a step.
type rule struct {
	name       string
	applies    func(Step) bool
	multiplier float64
}

// CostPolicy is an ordered, table-driven phoneme cost function. A policy is
// immutable after construction and safe for concurrent use.
type CostPolicy struct {
	rules []rule
	pairs map[AccentPair]bool
}

// PolicyOption configures a CostPolicy.
type PolicyOption func(*CostPolicy)

// WithAccentPairs replaces the accent-equivalent pair set. Symbols are
// upper-cased; an empty slice disables accent tolerance entirely.
func WithAccentPairs(pairs []AccentPair) PolicyOption {
	return func(p *CostPolicy) {
		p.pairs = make(map[AccentPair]bool, len(pairs))
		for _, ap := range pairs {
			p.pairs[AccentPair{
				Expected: strings.ToUpper(strings.TrimSpace(ap.Expected)),
				Observed: strings.ToUpper(strings.TrimSpace(ap.Observed)),
			}] = true
		}
	}
}

// NewCostPolicy builds the standard accent-tolerant cost table:
//
//	accent-equivalent substitution       ×0.4
//	vowel substitution, primary stress   ×1.4
//	vowel substitution, otherwise        ×1.2
//	deletion of final T, K, P            ×0.3
//	deletion of final D, B, G            ×0.7
//	anything else                        ×1.0
func NewCostPolicy(opts ...PolicyOption) *CostPolicy {
	p := &CostPolicy{}
	WithAccentPairs(DefaultAccentPairs)(p)
	for _, o := range opts {
		o(p)
	}
	p.rules = []rule{
		{
			name: "accent_equivalent",
			applies: func(s Step) bool {
				return s.Op == OpSubstitution && s.Expected.Valid() && s.Observed.Valid() &&
					p.pairs[AccentPair{s.Expected.Base, s.Observed.Base}]
			},
			multiplier: accentMultiplier,
		},
		{
			name: "stressed_vowel_substitution",
			applies: func(s Step) bool {
				return s.Op == OpSubstitution && s.Expected.IsPrimaryStressedVowel()
			},
			multiplier: stressedVowelMult,
		},
		{
			name: "vowel_substitution",
			applies: func(s Step) bool {
				return s.Op == OpSubstitution && s.Expected.IsVowel()
			},
			multiplier: unstressedVowelMult,
		},
		{
			name: "final_voiceless_stop_deletion",
			applies: func(s Step) bool {
				return s.Op == OpDeletion && s.Final && s.Expected.IsVoicelessStop()
			},
			multiplier: finalVoicelessDelMult,
		},
		{
			name: "final_voiced_stop_deletion",
			applies: func(s Step) bool {
				return s.Op == OpDeletion && s.Final && s.Expected.IsVoicedStop()
			},
			multiplier: finalVoicedDelMult,
		},
	}
	return p
}

// Cost evaluates the table for s. Matches cost nothing.
func (p *CostPolicy) Cost(s Step) float64 {
	if s.Op == OpMatch {
		return 0
	}
	for _, r := range p.rules {
		if r.applies(s) {
			return baseCost * r.multiplier
		}
	}
	return baseCost
}

// Rule returns the name of the rule that priced s: "match" for matches and
// "default" when no table entry applies.
func (p *CostPolicy) Rule(s Step) string {
	if s.Op == OpMatch {
		return "match"
	}
	for _, r := range p.rules {
		if r.applies(s) {
			return r.name
		}
	}
	return "default"
}
