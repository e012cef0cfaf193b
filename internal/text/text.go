// Package text turns reference passages into normalised tokens.
//
// Words are lower-cased and stripped of every character outside
// [a-z0-9'], so "Don't!" becomes "don't". Only internal apostrophes survive:
// quoting apostrophes and the trailing one of a plural possessive are
// dropped. Commas and full stops that end a word, also inside closing quotes
// or brackets, are kept as separate pause tokens because the rhythm evaluator needs
// to know where a reader is expected to pause. The content aligner only ever
// sees word tokens.
package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Kind distinguishes words from pause punctuation.
type Kind int

const (
	// Word is a normalised reference word.
	Word Kind = iota

	// Pause is a "," or "." that implies a pause in reading.
	Pause
)

// Token is one reference token.
type Token struct {
	Text string
	Kind Kind
}

var stripRe = regexp.MustCompile(`[^a-z0-9']+`)

// closers may follow pause punctuation at the end of a raw token.
const closers = `"')]}’”»`

// IsPausePunct reports whether s is pause punctuation.
func IsPausePunct(s string) bool {
	return s == "," || s == "."
}

// Normalize lower-cases tok and drops everything except letters, digits and
// internal apostrophes. Pause punctuation passed on its own is returned
// unchanged.
func Normalize(tok string) string {
	if t := strings.TrimSpace(tok); IsPausePunct(t) {
		return t
	}
	return NormalizeWord(tok)
}

// NormalizeWord is Normalize without the pause-punctuation exception. It is
// used for recognizer output, which never carries pause tokens.
func NormalizeWord(tok string) string {
	w := stripRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(tok)), "")
	return strings.Trim(w, "'")
}

// Tokenize splits a reference passage into word and pause tokens.
//
//	Tokenize("Hello, world.")    // hello , world .
//	Tokenize(`She said "hi."`)   // she said hi .
func Tokenize(passage string) []Token {
	var out []Token
	for _, raw := range strings.Fields(passage) {
		raw, trailing := peelPauses(raw)
		if w := NormalizeWord(raw); w != "" {
			out = append(out, Token{Text: w, Kind: Word})
		}
		out = append(out, trailing...)
	}
	return out
}

// peelPauses strips pause punctuation and closing quotes or brackets from
// the end of raw. The pause tokens are returned in passage order.
func peelPauses(raw string) (string, []Token) {
	var rev []string
	for raw != "" {
		r, size := utf8.DecodeLastRuneInString(raw)
		last := raw[len(raw)-size:]
		if !IsPausePunct(last) && !strings.ContainsRune(closers, r) {
			break
		}
		if IsPausePunct(last) {
			rev = append(rev, last)
		}
		raw = raw[:len(raw)-size]
	}
	trailing := make([]Token, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		trailing = append(trailing, Token{Text: rev[i], Kind: Pause})
	}
	return raw, trailing
}

// Words returns the text of the word tokens in order.
func Words(tokens []Token) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.Kind == Word {
			out = append(out, t.Text)
		}
	}
	return out
}

// functionWords don't require a strong pause after them.
var functionWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "to": true, "in": true,
	"on": true, "at": true, "for": true, "with": true, "by": true,
	"from": true, "as": true, "is": true, "was": true, "are": true,
	"were": true,
}

// IsFunctionWord reports whether w is a closed-class function word.
func IsFunctionWord(w string) bool {
	return functionWords[strings.ToLower(w)]
}
