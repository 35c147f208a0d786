package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes text for indexing: invalid UTF-8 and control characters are
// dropped, whitespace runs collapse to one space, and the ends are trimmed.
func Preprocess(text string) string {
	text = strings.ToValidUTF8(text, "")
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := true
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// PreprocessLines applies Preprocess to each line and keeps the line breaks, so
// display text retains its paragraphs. Runs of blank lines collapse to one.
func PreprocessLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := lines[:0]
	blank := false
	for _, line := range lines {
		line = Preprocess(line)
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
