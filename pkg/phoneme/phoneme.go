// Package phoneme defines the ARPAbet phoneme value used throughout Orato.
//
// A [Phoneme] is a base symbol (for example "IH" or "TH") plus an optional
// lexical stress digit. Dictionary pronunciations carry stress on vowels
// ("IH1"); aligner and fallback output usually do not. Two phonemes are
// considered the same sound when their base symbols are equal; stress is
// scored separately.
//
// Labels that are not part of the ARPAbet inventory still parse, but the
// resulting Phoneme reports Valid() == false and never compares equal to any
// other phoneme, including an identical invalid label.
package phoneme

import (
	"strings"
)

// Stress is the lexical stress marker of a vowel.
type Stress int

const (
	// NoStress marks a phoneme without a stress digit (all consonants and
	// unstressed-annotation output from aligners).
	NoStress Stress = -1

	// Unstressed is the "0" stress digit.
	Unstressed Stress = 0

	// Primary is the "1" stress digit.
	Primary Stress = 1

	// Secondary is the "2" stress digit.
	Secondary Stress = 2
)

// Phoneme is a single ARPAbet symbol.
type Phoneme struct {
	// Base is the upper-case symbol without stress digit, e.g. "AY".
	Base string

	// Stress is the stress digit, or NoStress.
	Stress Stress

	valid bool
}

// vowels is the ARPAbet vowel inventory.
var vowels = map[string]bool{
	"AA": true, "AE": true, "AH": true, "AO": true, "AW": true,
	"AY": true, "EH": true, "ER": true, "EY": true, "IH": true,
	"IY": true, "OW": true, "OY": true, "UH": true, "UW": true,
}

// consonants is the ARPAbet consonant inventory.
var consonants = map[string]bool{
	"B": true, "CH": true, "D": true, "DH": true, "F": true, "G": true,
	"HH": true, "JH": true, "K": true, "L": true, "M": true, "N": true,
	"NG": true, "P": true, "R": true, "S": true, "SH": true, "T": true,
	"TH": true, "V": true, "W": true, "Y": true, "Z": true, "ZH": true,
}

// aliases folds reduced-vowel symbols emitted by some aligners onto the
// CMUdict inventory.
var aliases = map[string]string{
	"AX":  "AH",
	"AXR": "ER",
	"IX":  "IH",
	"UX":  "UW",
}

var (
	voicelessStops = map[string]bool{"P": true, "T": true, "K": true}
	voicedStops    = map[string]bool{"B": true, "D": true, "G": true}
)

// nonSpeech holds the lower-case labels of silence, pause and CTC filler
// tokens. They carry no phonetic content.
var nonSpeech = map[string]bool{
	"":        true,
	"sil":     true,
	"sp":      true,
	"spn":     true,
	"<blank>": true,
	"<eps>":   true,
	"<unk>":   true,
	"<pad>":   true,
	"|":       true,
}

// Parse converts an ARPAbet label such as "ih1", "TH" or "AX0" into a
// Phoneme. It never fails: unknown symbols produce an invalid Phoneme.
func Parse(label string) Phoneme {
	s := strings.ToUpper(strings.TrimSpace(label))
	st := NoStress
	if n := len(s); n > 1 {
		switch s[n-1] {
		case '0':
			st, s = Unstressed, s[:n-1]
		case '1':
			st, s = Primary, s[:n-1]
		case '2':
			st, s = Secondary, s[:n-1]
		}
	}
	if a, ok := aliases[s]; ok {
		s = a
	}
	return Phoneme{Base: s, Stress: st, valid: vowels[s] || consonants[s]}
}

// ParseAll parses every label in labels.
func ParseAll(labels []string) []Phoneme {
	out := make([]Phoneme, 0, len(labels))
	for _, l := range labels {
		out = append(out, Parse(l))
	}
	return out
}

// Must builds a sequence from space-separated labels. It is meant for tests
// and static tables.
func Must(seq string) []Phoneme {
	return ParseAll(strings.Fields(seq))
}

// Valid reports whether the base symbol belongs to the ARPAbet inventory.
func (p Phoneme) Valid() bool { return p.valid }

// IsVowel reports whether p is a valid vowel.
func (p Phoneme) IsVowel() bool { return p.valid && vowels[p.Base] }

// IsPrimaryStressedVowel reports whether p is a vowel carrying stress "1".
func (p Phoneme) IsPrimaryStressedVowel() bool {
	return p.IsVowel() && p.Stress == Primary
}

// IsVoicelessStop reports whether p is one of T, K, P.
func (p Phoneme) IsVoicelessStop() bool { return p.valid && voicelessStops[p.Base] }

// IsVoicedStop reports whether p is one of D, B, G.
func (p Phoneme) IsVoicedStop() bool { return p.valid && voicedStops[p.Base] }

// IsStop reports whether p is a plosive.
func (p Phoneme) IsStop() bool { return p.IsVoicelessStop() || p.IsVoicedStop() }

// SameSound reports whether p and q denote the same base sound. Invalid
// phonemes never match.
func (p Phoneme) SameSound(q Phoneme) bool {
	return p.valid && q.valid && p.Base == q.Base
}

// String renders the phoneme back into ARPAbet notation.
func (p Phoneme) String() string {
	if p.Stress == NoStress {
		return p.Base
	}
	return p.Base + string(rune('0'+int(p.Stress)))
}

// IsNonSpeech reports whether label is a silence, pause or filler marker.
func IsNonSpeech(label string) bool {
	return nonSpeech[strings.ToLower(strings.TrimSpace(label))]
}

// FilterSpeech drops non-speech labels and parses the remainder.
func FilterSpeech(labels []string) []Phoneme {
	out := make([]Phoneme, 0, len(labels))
	for _, l := range labels {
		if IsNonSpeech(l) {
			continue
		}
		out = append(out, Parse(l))
	}
	return out
}
