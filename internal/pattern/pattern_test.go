package pattern_test

import (
	"math"
	"testing"

	"github.com/MrWong99/orato/internal/align"
	"github.com/MrWong99/orato/internal/pattern"
	"github.com/MrWong99/orato/pkg/phoneme"
)

func sub(exp, obs string) align.Operation[phoneme.Phoneme] {
	return align.Operation[phoneme.Phoneme]{
		Op: align.OpSubstitution, Ref: phoneme.Parse(exp), Hyp: phoneme.Parse(obs),
	}
}

func del(exp string) align.Operation[phoneme.Phoneme] {
	return align.Operation[phoneme.Phoneme]{Op: align.OpDeletion, Ref: phoneme.Parse(exp), HypIndex: -1}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestBonus(t *testing.T) {
	t.Parallel()

	th := pattern.Pair{Expected: "TH", Observed: "T"}
	v := pattern.Pair{Expected: "V", Observed: "W"}
	tests := []struct {
		name   string
		counts map[pattern.Pair]int
		want   float64
	}{
		{"none", nil, 0},
		{"below threshold", map[pattern.Pair]int{th: 2}, 0},
		{"at threshold", map[pattern.Pair]int{th: 3}, 0.06},
		{"four of one pair", map[pattern.Pair]int{th: 4}, 0.08},
		{"three plus three capped", map[pattern.Pair]int{th: 3, v: 3}, 0.10},
		{"many capped", map[pattern.Pair]int{th: 20}, 0.10},
		{"systematic plus stray", map[pattern.Pair]int{th: 3, v: 1}, 0.06},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := pattern.Bonus(tt.counts); !approx(got, tt.want) {
				t.Errorf("Bonus = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBonus_Monotonic(t *testing.T) {
	t.Parallel()

	p := pattern.Pair{Expected: "Z", Observed: "S"}
	prev := 0.0
	for n := 0; n <= 10; n++ {
		b := pattern.Bonus(map[pattern.Pair]int{p: n})
		if b < prev {
			t.Fatalf("Bonus(%d) = %v < Bonus(%d) = %v", n, b, n-1, prev)
		}
		prev = b
	}
}

func TestTracker(t *testing.T) {
	t.Parallel()

	tr := pattern.NewTracker()
	tr.Observe([]align.Operation[phoneme.Phoneme]{sub("TH", "T"), del("K")})
	tr.Observe([]align.Operation[phoneme.Phoneme]{sub("TH1", "T"), sub("AE1", "EH")})
	tr.Observe([]align.Operation[phoneme.Phoneme]{sub("TH", "T"), {Op: align.OpMatch}})
	tr.Observe([]align.Operation[phoneme.Phoneme]{sub("TH", "T")})

	sys := tr.Systematic()
	if len(sys) != 1 || sys[0].String() != "TH->T" || sys[0].Count != 4 {
		t.Fatalf("Systematic = %+v, want TH->T x4", sys)
	}
	if !approx(tr.Bonus(), 0.08) {
		t.Errorf("Bonus = %v, want 0.08", tr.Bonus())
	}

	errs := tr.Errors()
	if len(errs) != 3 {
		t.Fatalf("len(Errors) = %d, want 3", len(errs))
	}
	if errs[0].String() != "TH->T" {
		t.Errorf("Errors[0] = %v, want most frequent first", errs[0])
	}
	if !errs[1].Deletion() || errs[1].Expected != "K" {
		t.Errorf("Errors[1] = %v, want the K deletion (first seen among ties)", errs[1])
	}
	if _, ok := tr.Substitutions()[pattern.Pair{Expected: "K", Observed: pattern.Deleted}]; ok {
		t.Error("deletions must not count as substitution patterns")
	}
}

func TestTracker_ErrorRules(t *testing.T) {
	t.Parallel()

	tr := pattern.NewTracker()
	tr.Observe(align.Phonemes(phoneme.Must("TH IH1 NG K"), phoneme.Must("T IH NG"), nil).Ops)
	tr.Observe(align.Phonemes(phoneme.Must("K AE1 T"), phoneme.Must("K EH T"), nil).Ops)

	want := map[string]string{
		"TH->T":    "accent_equivalent",
		"K-><eps>": "final_voiceless_stop_deletion",
		"AE->EH":   "stressed_vowel_substitution",
	}
	errs := tr.Errors()
	if len(errs) != len(want) {
		t.Fatalf("Errors = %+v, want %d pairs", errs, len(want))
	}
	for _, c := range errs {
		if c.Rule != want[c.String()] {
			t.Errorf("%s: Rule = %q, want %q", c, c.Rule, want[c.String()])
		}
	}
}
