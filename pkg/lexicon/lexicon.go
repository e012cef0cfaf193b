// Package lexicon looks up expected pronunciations for reference words.
//
// Dictionaries use the CMU Pronouncing Dictionary layout: one entry per line,
// the word followed by its ARPAbet phonemes. Alternative pronunciations are
// written as "WORD(2)". Lines starting with ";;;" are comments. The tab
// separated format used by Montreal Forced Aligner dictionaries is accepted
// too. The first pronunciation listed for a word is its canonical one.
package lexicon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/MrWong99/orato/internal/text"
	"github.com/MrWong99/orato/pkg/phoneme"
)

// ErrEmpty is returned when a dictionary source holds no entries.
var ErrEmpty = errors.New("lexicon: dictionary has no entries")

// Lexicon maps a normalised word to its expected phonemes.
//
// Implementations must be safe for concurrent use.
type Lexicon interface {
	// Lookup returns the canonical pronunciation of word. The boolean is
	// false when the word is unknown.
	Lookup(word string) ([]phoneme.Phoneme, bool)
}

// Dict is an in-memory pronunciation dictionary.
type Dict struct {
	mu      sync.RWMutex
	entries map[string][][]phoneme.Phoneme
}

var _ Lexicon = (*Dict)(nil)

// New returns an empty dictionary. Use [Dict.Add] to populate it.
func New() *Dict {
	return &Dict{entries: make(map[string][][]phoneme.Phoneme)}
}

// Load reads a dictionary file from disk.
func Load(path string) (*Dict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lexicon: open %q: %w", path, err)
	}
	defer f.Close()
	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("lexicon: %q: %w", path, err)
	}
	return d, nil
}

// Parse reads a dictionary from r. Malformed lines are reported with their
// line number.
func Parse(r io.Reader) (*Dict, error) {
	d := New()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, ";;;") || strings.HasPrefix(raw, "#") {
			continue
		}
		fields := strings.Fields(raw)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: want a word and at least one phoneme, got %q", line, raw)
		}
		d.Add(headword(fields[0]), pronunciation(fields[1:])...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("lexicon: read: %w", err)
	}
	if d.Len() == 0 {
		return nil, ErrEmpty
	}
	return d, nil
}

// headword strips the "(n)" variant suffix.
func headword(s string) string {
	if i := strings.IndexByte(s, '('); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}
	return text.NormalizeWord(s)
}

// pronunciation drops the optional probability columns that MFA writes
// between the word and its phones.
func pronunciation(fields []string) []phoneme.Phoneme {
	for len(fields) > 1 && isNumber(fields[0]) {
		fields = fields[1:]
	}
	return phoneme.ParseAll(fields)
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	dot := false
	for _, r := range s {
		switch {
		case r == '.' && !dot:
			dot = true
		case r < '0' || r > '9':
			return false
		}
	}
	return true
}

// Add appends a pronunciation for word. The first pronunciation added for a
// word is the canonical one.
func (d *Dict) Add(word string, phones ...phoneme.Phoneme) {
	w := text.NormalizeWord(word)
	if w == "" || len(phones) == 0 {
		return
	}
	cp := make([]phoneme.Phoneme, len(phones))
	copy(cp, phones)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[w] = append(d.entries[w], cp)
}

// Lookup implements [Lexicon].
func (d *Dict) Lookup(word string) ([]phoneme.Phoneme, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	prons := d.entries[text.NormalizeWord(word)]
	if len(prons) == 0 {
		return nil, false
	}
	out := make([]phoneme.Phoneme, len(prons[0]))
	copy(out, prons[0])
	return out, true
}

// Variants returns every pronunciation listed for word.
func (d *Dict) Variants(word string) [][]phoneme.Phoneme {
	d.mu.RLock()
	defer d.mu.RUnlock()
	prons := d.entries[text.NormalizeWord(word)]
	out := make([][]phoneme.Phoneme, len(prons))
	for i, p := range prons {
		out[i] = append([]phoneme.Phoneme(nil), p...)
	}
	return out
}

// Len returns the number of distinct words.
func (d *Dict) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Missing returns the words of words that have no entry, in order and
// without duplicates.
func Missing(lex Lexicon, words []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		if _, ok := lex.Lookup(w); !ok {
			out = append(out, w)
		}
	}
	return out
}
