// Package quality decides whether native extraction yielded enough signal for
// a page, or whether the page should fall through to OCR.
package quality

import (
	"strings"
	"unicode"
)

// Decision is the per-page verdict on native-extracted text.
type Decision struct {
	NeedsOCR  bool
	WordCount int
	Reasons   []string
}

// CountWords counts whitespace-separated tokens.
func CountWords(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return len(strings.Fields(s))
}

// Score evaluates native-extracted page text against a minimum-signal
// threshold (rune count of usable text). The threshold is a tunable handed in
// by the caller, never a constant baked in here.
func Score(text string, minTextLen int) Decision {
	clean := normalize(text)
	wc := CountWords(clean)

	runes := []rune(clean)
	total := len(runes)
	if total == 0 {
		return Decision{NeedsOCR: true, Reasons: []string{"empty_text"}}
	}

	var reasons []string
	needs := false

	if total < minTextLen {
		needs = true
		reasons = append(reasons, "below_min_signal")
	}

	// A page of replacement chars or control noise is a broken text layer even
	// when it clears the length bar.
	alpha, garbage := 0, 0
	for _, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			alpha++
		case r == '�' || (unicode.IsControl(r) && r != '\n' && r != '\t'):
			garbage++
		}
	}
	if float64(garbage)/float64(total) > 0.05 {
		needs = true
		reasons = append(reasons, "garbage_chars")
	}
	if float64(alpha)/float64(total) < 0.05 {
		needs = true
		reasons = append(reasons, "no_alphanumeric_signal")
	}

	// Runs of single-rune "words" are the classic scrambled-extraction shape.
	if wc >= 8 && singleRuneWordRatio(clean) > 0.6 {
		needs = true
		reasons = append(reasons, "scrambled_text")
	}

	return Decision{NeedsOCR: needs, WordCount: wc, Reasons: reasons}
}

func singleRuneWordRatio(s string) float64 {
	words := strings.Fields(s)
	if len(words) == 0 {
		return 0
	}
	single := 0
	for _, w := range words {
		if len([]rune(w)) == 1 {
			single++
		}
	}
	return float64(single) / float64(len(words))
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
