package mfa

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/orato/pkg/phoneme"
	"github.com/MrWong99/orato/pkg/provider/aligner"
)

// Interval is one labelled span of a TextGrid tier. Point tiers use Start ==
// End.
type Interval struct {
	Start, End float64
	Mark       string
}

// Tier is a named TextGrid tier.
type Tier struct {
	Name      string
	Class     string
	Intervals []Interval
}

// TextGrid is a parsed Praat TextGrid.
type TextGrid struct {
	Start, End float64
	Tiers      []Tier
}

var errTextGrid = errors.New("mfa: malformed TextGrid")

// ParseTextGrid reads a TextGrid in either the long or the short text
// format. Both formats carry the same sequence of values; the long format
// merely labels them, so the parser reads the value stream and ignores
// labels and bracketed indices.
func ParseTextGrid(data string) (*TextGrid, error) {
	s := &tgScanner{toks: tgTokens(data)}

	if ft := s.str(); ft != "ooTextFile" {
		return nil, fmt.Errorf("%w: file type %q", errTextGrid, ft)
	}
	if oc := s.str(); oc != "TextGrid" {
		return nil, fmt.Errorf("%w: object class %q", errTextGrid, oc)
	}
	tg := &TextGrid{Start: s.num(), End: s.num()}
	if !s.flag() {
		return tg, s.err
	}
	n := int(s.num())
	for range n {
		if s.err != nil {
			break
		}
		t := Tier{Class: s.str(), Name: s.str()}
		s.num() // tier xmin
		s.num() // tier xmax
		count := int(s.num())
		for range count {
			if s.err != nil {
				break
			}
			var iv Interval
			if t.Class == "TextTier" {
				iv.Start = s.num()
				iv.End = iv.Start
			} else {
				iv.Start, iv.End = s.num(), s.num()
			}
			iv.Mark = s.str()
			t.Intervals = append(t.Intervals, iv)
		}
		tg.Tiers = append(tg.Tiers, t)
	}
	if s.err != nil {
		return nil, s.err
	}
	return tg, nil
}

// Tier returns the first tier whose lower-cased name is one of names.
func (tg *TextGrid) Tier(names ...string) (Tier, bool) {
	for _, t := range tg.Tiers {
		for _, n := range names {
			if strings.EqualFold(t.Name, n) {
				return t, true
			}
		}
	}
	return Tier{}, false
}

// Words extracts the aligned words with their phones. The word tier is the
// one named "words", "word" or "orthography", otherwise the first tier; the
// phone tier is named "phones", "phone" or "phonemes", otherwise the second
// tier. A phone belongs to the word whose span contains its midpoint.
func (tg *TextGrid) Words() []aligner.Word {
	wt, ok := tg.Tier("words", "word", "orthography")
	if !ok {
		if len(tg.Tiers) == 0 {
			return nil
		}
		wt = tg.Tiers[0]
	}
	pt, ok := tg.Tier("phones", "phone", "phonemes", "phoneme")
	if !ok && len(tg.Tiers) > 1 {
		pt = tg.Tiers[1]
	}

	var words []aligner.Word
	for _, iv := range wt.Intervals {
		mark := strings.TrimSpace(iv.Mark)
		if phoneme.IsNonSpeech(mark) {
			continue
		}
		words = append(words, aligner.Word{Text: mark, Start: iv.Start, End: iv.End})
	}

	wi := 0
	for _, iv := range pt.Intervals {
		mark := strings.TrimSpace(iv.Mark)
		if mark == "" {
			continue
		}
		mid := (iv.Start + iv.End) / 2
		for wi < len(words) && words[wi].End < mid {
			wi++
		}
		if wi == len(words) {
			break
		}
		if mid < words[wi].Start {
			continue
		}
		words[wi].Phones = append(words[wi].Phones, aligner.Phone{Label: mark, Start: iv.Start, End: iv.End})
	}
	return words
}

// ---- tokenizer --------------------------------------------------------------

type tgKind int

const (
	tgString tgKind = iota
	tgNumber
	tgFlag
)

type tgToken struct {
	kind tgKind
	text string
}

// tgTokens extracts quoted strings, numbers and <flag> markers. Labels such
// as "xmin =" and indices such as "[3]" are skipped.
func tgTokens(data string) []tgToken {
	var out []tgToken
	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '"':
			var sb strings.Builder
			i++
			for i < len(data) {
				if data[i] == '"' {
					if i+1 < len(data) && data[i+1] == '"' {
						sb.WriteByte('"')
						i += 2
						continue
					}
					i++
					break
				}
				sb.WriteByte(data[i])
				i++
			}
			out = append(out, tgToken{tgString, sb.String()})
		case c == '[':
			for i < len(data) && data[i] != ']' {
				i++
			}
			i++
		case c == '<':
			j := strings.IndexByte(data[i:], '>')
			if j < 0 {
				return out
			}
			out = append(out, tgToken{tgFlag, data[i+1 : i+j]})
			i += j + 1
		case c == '-' || c == '.' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < len(data) && strings.IndexByte("0123456789.eE+-", data[j]) >= 0 {
				j++
			}
			out = append(out, tgToken{tgNumber, data[i:j]})
			i = j
		case isIdentByte(c):
			// Skip whole identifiers so digits inside them are not read as
			// numbers.
			for i < len(data) && isIdentByte(data[i]) {
				i++
			}
		default:
			i++
		}
	}
	return out
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '?' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

type tgScanner struct {
	toks []tgToken
	pos  int
	err  error
}

func (s *tgScanner) next(kind tgKind) (tgToken, bool) {
	if s.err != nil {
		return tgToken{}, false
	}
	if s.pos >= len(s.toks) {
		s.err = fmt.Errorf("%w: unexpected end of file", errTextGrid)
		return tgToken{}, false
	}
	t := s.toks[s.pos]
	if t.kind != kind {
		s.err = fmt.Errorf("%w: unexpected value %q at token %d", errTextGrid, t.text, s.pos)
		return tgToken{}, false
	}
	s.pos++
	return t, true
}

func (s *tgScanner) str() string {
	t, _ := s.next(tgString)
	return t.text
}

func (s *tgScanner) num() float64 {
	t, ok := s.next(tgNumber)
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		s.err = fmt.Errorf("%w: bad number %q", errTextGrid, t.text)
	}
	return v
}

// flag consumes an optional <exists>/<absent> marker and reports whether
// tiers follow.
func (s *tgScanner) flag() bool {
	if s.err != nil || s.pos >= len(s.toks) {
		return false
	}
	if t := s.toks[s.pos]; t.kind == tgFlag {
		s.pos++
		return t.text == "exists"
	}
	return true
}
