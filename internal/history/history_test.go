package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/orato/internal/report"
	"github.com/MrWong99/orato/internal/scoring"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// backends returns a fresh instance of every local Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemStore(),
		"sqlite": sq,
	}
}

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	attempts := []Attempt{
		{ID: "a1", LearnerID: "kim", Text: "the cat", CreatedAt: t0, Method: "mfa", ScorePTE: 79.5, Band: 79,
			Patterns: map[string]int{"DH->D": 2, "TH->T": 1}},
		{ID: "a2", LearnerID: "kim", Text: "think", CreatedAt: t0.Add(time.Hour), Method: "wavlm", ScorePTE: 66, Band: 65,
			Patterns: map[string]int{"TH->T": 3}},
		{ID: "a3", LearnerID: "kim", Text: "van", CreatedAt: t0.Add(2 * time.Hour), Method: "none"},
		{ID: "b1", LearnerID: "ola", Text: "very", CreatedAt: t0.Add(30 * time.Minute), Method: "mfa",
			Patterns: map[string]int{"V->W": 4}},
	}
	for _, a := range attempts {
		if err := s.Save(ctx, a); err != nil {
			t.Fatalf("Save(%s): %v", a.ID, err)
		}
	}
}

func TestStore_Recent(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			got, err := s.Recent(context.Background(), "kim", 2)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(got) != 2 || got[0].ID != "a3" || got[1].ID != "a2" {
				t.Fatalf("Recent = %+v, want a3, a2", got)
			}
			if !got[1].CreatedAt.Equal(t0.Add(time.Hour)) {
				t.Errorf("CreatedAt = %v, want %v", got[1].CreatedAt, t0.Add(time.Hour))
			}
			if got[1].Patterns["TH->T"] != 3 || got[1].Band != 65 {
				t.Errorf("a2 = %+v, want band 65 and TH->T=3", got[1])
			}
			if got[0].Patterns != nil {
				t.Errorf("a3 patterns = %v, want nil", got[0].Patterns)
			}
		})
	}
}

func TestStore_Patterns(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			got, err := s.Patterns(ctx, "kim", time.Time{})
			if err != nil {
				t.Fatalf("Patterns: %v", err)
			}
			want := []PatternCount{{"TH->T", 4}, {"DH->D", 2}}
			if len(got) != len(want) {
				t.Fatalf("Patterns = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("Patterns[%d] = %v, want %v", i, got[i], want[i])
				}
			}

			got, err = s.Patterns(ctx, "kim", t0.Add(time.Minute))
			if err != nil {
				t.Fatalf("Patterns since: %v", err)
			}
			if len(got) != 1 || got[0] != (PatternCount{"TH->T", 3}) {
				t.Errorf("Patterns since = %v, want [TH->T 3]", got)
			}
		})
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := Attempt{ID: "x", LearnerID: "kim", CreatedAt: t0, Patterns: map[string]int{"Z->S": 1}}
			if err := s.Save(ctx, a); err != nil {
				t.Fatalf("Save: %v", err)
			}
			a.Patterns = map[string]int{"W->V": 2}
			a.Band = 85
			if err := s.Save(ctx, a); err != nil {
				t.Fatalf("Save again: %v", err)
			}
			got, err := s.Recent(ctx, "kim", 10)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(got) != 1 || got[0].Band != 85 {
				t.Fatalf("Recent = %+v, want the replaced attempt", got)
			}
			if len(got[0].Patterns) != 1 || got[0].Patterns["W->V"] != 2 {
				t.Errorf("patterns = %v, want only W->V=2", got[0].Patterns)
			}
		})
	}
}

func TestStore_SaveValidates(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Save(context.Background(), Attempt{ID: "x"})
			if !errors.Is(err, ErrInvalidAttempt) {
				t.Errorf("err = %v, want ErrInvalidAttempt", err)
			}
		})
	}
}

func TestFromReport(t *testing.T) {
	t.Parallel()

	r := report.FinalReport{
		ID:                  "r1",
		PronunciationMethod: report.MethodForced,
		Summary: report.Summary{
			Accuracy: 75,
			Pronunciation: &scoring.Summary{
				ScorePTE: 81.2,
				Band:     79,
				Patterns: map[string]int{"TH->T": 2},
			},
		},
	}
	local := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	a := FromReport("kim", "think thin", r, local)

	if a.ID != "r1" || a.LearnerID != "kim" || a.Text != "think thin" {
		t.Errorf("identity = %+v", a)
	}
	if a.Method != "mfa" || a.Accuracy != 75 || a.ScorePTE != 81.2 || a.Band != 79 {
		t.Errorf("scores = %+v", a)
	}
	if a.CreatedAt.Location() != time.UTC || !a.CreatedAt.Equal(local) {
		t.Errorf("CreatedAt = %v, want %v in UTC", a.CreatedAt, local)
	}
	r.Summary.Pronunciation.Patterns["TH->T"] = 9
	if a.Patterns["TH->T"] != 2 {
		t.Error("FromReport shares the report's pattern map")
	}

	none := FromReport("kim", "x", report.FinalReport{ID: "r2", PronunciationMethod: report.MethodNone}, local)
	if none.Band != 0 || none.Patterns != nil {
		t.Errorf("content-only attempt = %+v, want no score", none)
	}
}
