package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// htmlSkipped elements contribute no text.
var htmlSkipped = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true,
	atom.Noscript: true, atom.Svg: true, atom.Template: true,
}

// htmlBlocks elements start a new line.
var htmlBlocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true, atom.Dt: true, atom.Dd: true,
	atom.Table: true, atom.Tr: true, atom.Blockquote: true, atom.Pre: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
}

// StripHTML removes markup, scripts and styles from an HTML page and returns its
// text, one non-empty line per block element. Entities are decoded.
func StripHTML(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder
	skipped := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return joinLines(b.String(), false)
		case html.TextToken:
			if skipped == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Body {
				// an unclosed <head> ends where the body starts
				skipped = 0
			}
			switch {
			case htmlSkipped[a]:
				if tt == html.StartTagToken {
					skipped++
				} else if tt == html.EndTagToken && skipped > 0 {
					skipped--
				}
			case htmlBlocks[a]:
				b.WriteByte('\n')
			case a == atom.Td || a == atom.Th:
				b.WriteByte(' ')
			}
		}
	}
}

// joinLines collapses runs of spaces inside each line and drops empty lines. With
// keepParagraphs, one blank line is kept wherever the input had any.
func joinLines(content string, keepParagraphs bool) string {
	lines := strings.Split(content, "\n")
	out := lines[:0]
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank && keepParagraphs {
			out = append(out, "")
		}
		blank = false
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
