package summary

import (
	"strings"
	"unicode"
)

const ellipsis = "…"

// SmartTruncate shortens text to at most maxLen runes. It prefers ending on
// a sentence, then on a phrase break, then on a word; failing all three it
// cuts hard. Every cut except a sentence end gets an ellipsis.
func SmartTruncate(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 0 {
		return ""
	}
	if maxLen == 1 {
		return ellipsis
	}

	// a boundary only counts if it keeps at least half the budget
	minKeep := maxLen / 2

	for i := maxLen - 1; i+1 >= minKeep && i >= 0; i-- {
		if isSentenceEnd(runes[i]) && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			return string(runes[:i+1])
		}
	}

	limit := maxLen - 1 // room for the ellipsis

	for i := limit - 1; i >= minKeep && i > 0; i-- {
		if isPhraseBreak(runes[i]) {
			return trimCut(runes[:i]) + ellipsis
		}
	}

	for i := limit; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			if cut := trimCut(runes[:i]); cut != "" {
				return cut + ellipsis
			}
		}
	}

	return trimCut(runes[:limit]) + ellipsis
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isPhraseBreak(r rune) bool {
	switch r {
	case ',', ';', ':', '–', '—':
		return true
	}
	return false
}

func trimCut(runes []rune) string {
	return strings.TrimRightFunc(string(runes), func(r rune) bool {
		return unicode.IsSpace(r) || isPhraseBreak(r)
	})
}
