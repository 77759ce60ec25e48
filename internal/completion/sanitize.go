package completion

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("```[A-Za-z0-9_+-]*[ \t]*\r?\n?")

// StripFences removes markdown code fence markers, keeping the fenced text.
func StripFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}

var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'`':  '`',
	'“':  '”',
	'‘':  '’',
	'«':  '»',
}

// StripQuotes removes matching quote characters wrapping the whole string.
func StripQuotes(s string) string {
	s = strings.TrimSpace(s)
	for {
		r := []rune(s)
		if len(r) < 2 {
			return s
		}
		closing, ok := quotePairs[r[0]]
		if !ok || r[len(r)-1] != closing {
			return s
		}
		s = strings.TrimSpace(string(r[1 : len(r)-1]))
	}
}

// SanitizeSummary strips fences and then wrapping quotes.
func SanitizeSummary(s string) string {
	return StripQuotes(StripFences(s))
}
