package lexicon_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/orato/pkg/lexicon"
	"github.com/MrWong99/orato/pkg/phoneme"
)

const sample = `;;; test dictionary
BICYCLE  B AY1 S IH0 K AH0 L
RACING  R EY1 S IH0 NG
THE  DH AH0
THE(2)  DH IY0
think	0.99	T HH IH1 NG K
THINK(2)  TH IH1 NG K
`

func labels(ps []phoneme.Phoneme) string {
	s := make([]string, len(ps))
	for i, p := range ps {
		s[i] = p.String()
	}
	return strings.Join(s, " ")
}

func TestParse(t *testing.T) {
	t.Parallel()

	d, err := lexicon.Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Len() != 4 {
		t.Errorf("Len() = %d, want 4", d.Len())
	}

	tests := []struct {
		word string
		want string
	}{
		{"bicycle", "B AY1 S IH0 K AH0 L"},
		{"Racing,", "R EY1 S IH0 NG"},
		{"the", "DH AH0"},
		{"think", "T HH IH1 NG K"},
	}
	for _, tt := range tests {
		got, ok := d.Lookup(tt.word)
		if !ok {
			t.Errorf("Lookup(%q) not found", tt.word)
			continue
		}
		if labels(got) != tt.want {
			t.Errorf("Lookup(%q) = %q, want %q", tt.word, labels(got), tt.want)
		}
	}

	if v := d.Variants("the"); len(v) != 2 || labels(v[1]) != "DH IY0" {
		t.Errorf("Variants(the) = %v, want two entries ending in DH IY0", v)
	}
	if _, ok := d.Lookup("unicycle"); ok {
		t.Error("Lookup(unicycle) found an entry, want none")
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	if _, err := lexicon.Parse(strings.NewReader(";;; only comments\n")); !errors.Is(err, lexicon.ErrEmpty) {
		t.Errorf("comments only: err = %v, want ErrEmpty", err)
	}
	_, err := lexicon.Parse(strings.NewReader("HELLO HH AH0 L OW1\nBROKEN\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("malformed line: err = %v, want line 2 error", err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "en.dict")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := lexicon.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := d.Lookup("bicycle"); !ok {
		t.Error("Lookup(bicycle) after Load: not found")
	}

	if _, err := lexicon.Load(filepath.Join(t.TempDir(), "missing.dict")); err == nil {
		t.Error("Load(missing) returned nil error")
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	t.Parallel()

	d := lexicon.New()
	d.Add("cat", phoneme.Must("K AE1 T")...)
	got, _ := d.Lookup("cat")
	got[0] = phoneme.Parse("B")
	again, _ := d.Lookup("cat")
	if again[0].Base != "K" {
		t.Errorf("mutating a lookup result changed the dictionary: %v", labels(again))
	}
}

func TestMissing(t *testing.T) {
	t.Parallel()

	d := lexicon.New()
	d.Add("cat", phoneme.Must("K AE1 T")...)
	got := lexicon.Missing(d, []string{"the", "cat", "sat", "the"})
	if want := []string{"the", "sat"}; !slices.Equal(got, want) {
		t.Errorf("Missing = %v, want %v", got, want)
	}
}
