package ocr

import (
	"strings"
	"unicode"
)

// heuristicConfidence estimates recognition quality from the shape of the text
// when the backend reports no score of its own. It is a coarse observability
// signal, not a correctness guarantee.
func heuristicConfidence(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	runes := []rune(text)
	var alpha, garbage int
	for _, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			alpha++
		case r == '�' || (unicode.IsControl(r) && r != '\n' && r != '\t'):
			garbage++
		}
	}

	score := 0.3 // base: the backend produced something
	if alphaRatio := float64(alpha) / float64(len(runes)); alphaRatio > 0.5 {
		score += 0.3
	} else if alphaRatio > 0.25 {
		score += 0.15
	}
	if len(strings.Fields(text)) >= 20 {
		score += 0.2
	}
	if len(runes) > 200 {
		score += 0.1
	}
	score -= float64(garbage) / float64(len(runes)) * 2

	if score < 0.05 {
		score = 0.05
	}
	if score > 1 {
		score = 1
	}
	return score
}
