// Package extract turns knowledge-base files and page bodies into plain text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported lists the file extensions with a dedicated extractor.
var Supported = []string{".txt", ".md", ".markdown", ".html", ".htm", ".pdf", ".xlsx"}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text from content based on ext, which includes the leading dot.
// Unknown extensions are read as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".xlsx":
		return extractExcel(content)
	case ".md", ".markdown":
		text, err := extractPlain(content)
		if err != nil {
			return "", err
		}
		return StripMarkdown(text), nil
	case ".html", ".htm":
		text, err := extractPlain(content)
		if err != nil {
			return "", err
		}
		return StripHTML(text), nil
	default:
		return extractPlain(content)
	}
}
