package e2e

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// FileExtensions are the formats articles are written in for directory-source tests.
var FileExtensions = []string{".txt", ".md", ".html", ".xlsx"}

// RenderArticle returns the file content for a in the format given by ext.
func RenderArticle(a Article, ext string) ([]byte, error) {
	switch ext {
	case ".txt":
		return []byte(a.Title + "\n\n" + a.Text), nil
	case ".md":
		return []byte("# " + a.Title + "\n\n**" + a.Text + "**\n"), nil
	case ".html":
		return []byte(fmt.Sprintf("<html><head><title>%s</title></head><body><p>%s</p></body></html>",
			html.EscapeString(a.Title), html.EscapeString(a.Text))), nil
	case ".xlsx":
		return spreadsheet(a.Title, a.Text)
	default:
		return nil, fmt.Errorf("unsupported fixture extension %q", ext)
	}
}

// WriteArticle writes a under dir, at its path plus ext, and returns the path
// relative to dir.
func WriteArticle(dir string, a Article, ext string) (string, error) {
	content, err := RenderArticle(a, ext)
	if err != nil {
		return "", err
	}
	rel := filepath.FromSlash(a.Path) + ext
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func spreadsheet(title, text string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetCellValue("Sheet1", "A1", title); err != nil {
		return nil, err
	}
	if err := f.SetCellValue("Sheet1", "A2", text); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
