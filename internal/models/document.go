// Package models defines core data structures for documents, queries, and search results.
package models

import "time"

// Document is the indexed record for one published source document. It is
// created and replaced by the indexer and read-only to query components.
type Document struct {
	ID             int64     `json:"page_id" db:"page_id"`
	Title          string    `json:"title" db:"title"`
	Path           string    `json:"path,omitempty" db:"path"`
	ContentPreview string    `json:"content_preview" db:"content_preview"`
	Vector         []float32 `json:"-" db:"embedding"`
	// LexicalText is the searchable form handed to the lexical index.
	LexicalText string    `json:"-" db:"lexical_text"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// SourceDocument is an already-extracted document as delivered by a document source.
type SourceDocument struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path,omitempty"`
	Text  string `json:"text"`
}
