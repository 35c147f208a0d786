package extract

import (
	"strings"

	"github.com/russross/blackfriday/v2"
	"golang.org/x/net/html"
)

func parseMarkdown(content string) *blackfriday.Node {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	md := blackfriday.New(blackfriday.WithExtensions(blackfriday.CommonExtensions))
	return md.Parse([]byte(content))
}

// StripMarkdown removes markdown syntax and keeps the readable text, including the
// contents of code blocks and image alt text. Blocks are separated by a blank line.
func StripMarkdown(content string) string {
	var b strings.Builder
	parseMarkdown(content).Walk(func(n *blackfriday.Node, entering bool) blackfriday.WalkStatus {
		switch n.Type {
		case blackfriday.Text:
			b.WriteString(html.UnescapeString(string(n.Literal)))
		case blackfriday.Code:
			b.Write(n.Literal)
		case blackfriday.CodeBlock:
			b.WriteString("\n\n")
			b.Write(n.Literal)
			b.WriteString("\n\n")
		case blackfriday.HTMLBlock:
			b.WriteString("\n\n")
			b.WriteString(StripHTML(string(n.Literal)))
			b.WriteString("\n\n")
		case blackfriday.Softbreak, blackfriday.Hardbreak:
			b.WriteByte('\n')
		case blackfriday.TableCell:
			if !entering {
				b.WriteByte(' ')
			}
		case blackfriday.Paragraph, blackfriday.Heading, blackfriday.Item, blackfriday.TableRow:
			if !entering {
				b.WriteString("\n\n")
			}
		}
		return blackfriday.GoToNext
	})
	return joinLines(b.String(), true)
}

// MarkdownTitle returns the text of the first level-one heading, or "".
func MarkdownTitle(content string) string {
	var title strings.Builder
	parseMarkdown(content).Walk(func(n *blackfriday.Node, entering bool) blackfriday.WalkStatus {
		if !entering || n.Type != blackfriday.Heading || n.HeadingData.Level != 1 {
			return blackfriday.GoToNext
		}
		n.Walk(func(c *blackfriday.Node, _ bool) blackfriday.WalkStatus {
			switch c.Type {
			case blackfriday.Text:
				title.WriteString(html.UnescapeString(string(c.Literal)))
			case blackfriday.Code:
				title.Write(c.Literal)
			}
			return blackfriday.GoToNext
		})
		return blackfriday.Terminate
	})
	return strings.Join(strings.Fields(title.String()), " ")
}
