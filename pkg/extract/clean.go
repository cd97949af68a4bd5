// Package extract turns a captured frame into the text that gets embedded:
// OCR cleanup, quality gating, and the vision-first source policy.
package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// LiveMaxChars bounds cleaned OCR text during live capture.
	LiveMaxChars = 2000

	// ReprocessMaxChars bounds cleaned OCR text during reprocessing.
	ReprocessMaxChars = 1000

	minTokenLen     = 2
	maxTokenLen     = 25
	maxDigitToken   = 10
	repeatThreshold = 4
)

// CleanOCRText normalizes raw OCR output and truncates it to max runes.
// A max of zero or less disables truncation.
func CleanOCRText(text string, max int) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if allowedRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	collapsed := collapseRepeats(strings.Join(strings.Fields(b.String()), " "))

	kept := make([]string, 0, 64)
	for _, tok := range strings.Fields(collapsed) {
		if keepToken(tok) {
			kept = append(kept, tok)
		}
	}

	return truncateRunes(strings.TrimSpace(strings.Join(kept, " ")), max)
}

func allowedRune(r rune) bool {
	if isWordRune(r) || unicode.IsSpace(r) {
		return true
	}
	return strings.ContainsRune(`-.,!?;:()"'/`, r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// collapseRepeats shortens runs of four or more identical word runes to two.
func collapseRepeats(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))

	for i := 0; i < len(runes); {
		j := i + 1
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		n := j - i
		if n >= repeatThreshold && isWordRune(runes[i]) {
			n = 2
		}
		for k := 0; k < n; k++ {
			out = append(out, runes[i])
		}
		i = j
	}

	return string(out)
}

func keepToken(tok string) bool {
	n := utf8.RuneCountInString(tok)
	if n < minTokenLen || n > maxTokenLen {
		return false
	}

	allDigits := true
	hasLetter := false
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			allDigits = false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}

	if allDigits && n > maxDigitToken {
		return false
	}
	return hasLetter
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// IsLowQuality reports whether text is too short or too noisy to be worth
// keeping on its own.
func IsLowQuality(text string) bool {
	total := utf8.RuneCountInString(text)
	if total < 10 {
		return true
	}

	words := strings.Fields(text)
	if len(words) < 3 {
		return true
	}

	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if float64(letters)/float64(total) < 0.3 {
		return true
	}

	short := 0
	for _, w := range words {
		if utf8.RuneCountInString(w) <= 2 {
			short++
		}
	}
	return float64(short)/float64(len(words)) > 0.7
}

// CombineSources merges OCR and vision text. Long OCR text leads with the
// vision description as context; otherwise the description leads.
func CombineSources(ocr, vision string) string {
	ocr = strings.TrimSpace(ocr)
	vision = strings.TrimSpace(vision)

	switch {
	case ocr == "":
		return vision
	case vision == "":
		return ocr
	case utf8.RuneCountInString(ocr) > 50:
		return ocr + "\n\nContext: " + vision
	default:
		return vision + "\n\nText: " + ocr
	}
}
