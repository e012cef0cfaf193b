package scoring

import (
	"fmt"

	"github.com/MrWong99/orato/internal/pattern"
)

// MaxFeedback bounds the number of feedback messages.
const MaxFeedback = 5

// Feedback thresholds.
const (
	strongStress      = 0.8
	clearPhone        = 0.75
	stableBonus       = 0.06
	coachStress       = 0.75
	coachRhythm       = 0.75
	finalStopDropWarn = 0.2
	clarityBand       = 65
	topErrors         = 3
)

// Feedback selects canned messages for sum, in this order: systematic
// accent patterns, strengths, stable accent, the three most frequent
// errors, stress coaching, rhythm coaching, dropped final consonants, and
// a general clarity note for low bands. At most MaxFeedback messages are
// returned.
func Feedback(sum Summary, systematic []pattern.Count) []string {
	var out []string

	for _, c := range systematic {
		out = append(out, fmt.Sprintf("Consistent accent pattern: %s pronounced as %s", c.Expected, c.Observed))
	}

	switch {
	case sum.StressScore >= strongStress && sum.PhoneScore >= clearPhone:
		out = append(out, "Your vowel clarity is strong, especially on stressed syllables.")
	case sum.PhoneScore >= clearPhone:
		out = append(out, "Your pronunciation is generally clear and easy to follow.")
	}

	if sum.ConsistencyBonus >= stableBonus {
		out = append(out, "Your pronunciation is consistent, indicating a stable accent.")
	}

	for i, e := range sum.Errors {
		if i == topErrors {
			break
		}
		if e.Deletion() {
			out = append(out, "Missed sound: "+e.Expected)
		} else {
			out = append(out, fmt.Sprintf("%s sounded like %s", e.Expected, e.Observed))
		}
	}

	if sum.StressScore < coachStress {
		out = append(out, "Try to maintain stress on important words for higher scores.")
	}
	if sum.RhythmScore < coachRhythm {
		out = append(out, "Try to keep your rhythm smooth by avoiding long or frequent pauses.")
	}
	if sum.FinalStopDropRate != nil && *sum.FinalStopDropRate >= finalStopDropWarn {
		out = append(out, "Final consonants are sometimes dropped, which slightly affects clarity.")
	}
	if sum.Band < clarityBand {
		out = append(out, "Focus on pronouncing each sound clearly to move into a higher band.")
	}

	if len(out) > MaxFeedback {
		out = out[:MaxFeedback]
	}
	return out
}
