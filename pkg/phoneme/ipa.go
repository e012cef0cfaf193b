package phoneme

import "strings"

// ipaToARPAbet maps the IPA symbols emitted by espeak-style phoneme
// recognisers onto ARPAbet base symbols. Length marks and stress marks are
// stripped before lookup.
var ipaToARPAbet = map[string]string{
	// vowels
	"ɑ": "AA", "a": "AA", "ɒ": "AA",
	"æ": "AE",
	"ʌ": "AH", "ə": "AH", "ɐ": "AH",
	"ɔ": "AO",
	"aʊ": "AW",
	"aɪ": "AY",
	"ɛ": "EH", "e": "EH",
	"ɝ": "ER", "ɚ": "ER", "ɜ": "ER",
	"eɪ": "EY",
	"ɪ": "IH", "ᵻ": "IH",
	"i": "IY",
	"oʊ": "OW", "o": "OW", "əʊ": "OW",
	"ɔɪ": "OY",
	"ʊ": "UH",
	"u": "UW",
	// consonants
	"b": "B", "tʃ": "CH", "d": "D", "ð": "DH", "f": "F", "ɡ": "G", "g": "G",
	"h": "HH", "dʒ": "JH", "k": "K", "l": "L", "m": "M", "n": "N", "ŋ": "NG",
	"p": "P", "ɹ": "R", "r": "R", "s": "S", "ʃ": "SH", "t": "T", "θ": "TH",
	"v": "V", "w": "W", "j": "Y", "z": "Z", "ʒ": "ZH", "ɾ": "T", "ʔ": "T",
	"l̩": "L", "n̩": "N",
}

// FromIPA converts one IPA phone to its ARPAbet base symbol. Labels that
// already are ARPAbet pass through upper-cased. The boolean is false when
// no mapping exists.
func FromIPA(label string) (string, bool) {
	s := strings.TrimSpace(label)
	s = strings.NewReplacer("ː", "", "ˈ", "", "ˌ", "", "ˑ", "").Replace(s)
	if a, ok := ipaToARPAbet[s]; ok {
		return a, true
	}
	if p := Parse(s); p.Valid() {
		return p.String(), true
	}
	return "", false
}
