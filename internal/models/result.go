package models

import "time"

// ScoredDocument is a single ranked hit. Score is rounded for display;
// ranking happens on full-precision values before rounding.
type ScoredDocument struct {
	DocumentID   int64   `json:"page_id"`
	Title        string  `json:"title"`
	Path         string  `json:"path,omitempty"`
	Snippet      string  `json:"snippet"`
	Score        float64 `json:"score"`
	LexicalScore float64 `json:"lexical_score,omitempty"`
	VectorScore  float64 `json:"vector_score,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query     string            `json:"query"`
	Mode      SearchMode        `json:"mode"`
	Results   []*ScoredDocument `json:"results"`
	QueryTime int64             `json:"query_time_ms"`
}

// SimilarResponse lists the nearest neighbours of a document.
type SimilarResponse struct {
	PageID  int64             `json:"page_id"`
	Similar []*ScoredDocument `json:"similar"`
}

// DocumentPair is an unordered near-duplicate pair in canonical form (LeftID < RightID).
type DocumentPair struct {
	LeftID     int64   `json:"page_id_1"`
	RightID    int64   `json:"page_id_2"`
	LeftTitle  string  `json:"title_1,omitempty"`
	RightTitle string  `json:"title_2,omitempty"`
	Score      float64 `json:"score"`
}

// DuplicatesResponse echoes the threshold together with the matching pairs.
type DuplicatesResponse struct {
	Threshold  float64         `json:"threshold"`
	Count      int             `json:"count"`
	Duplicates []*DocumentPair `json:"duplicates"`
}

// ReindexResult summarizes one reindex run.
type ReindexResult struct {
	RunID    string `json:"run_id"`
	Indexed  int    `json:"indexed"`
	Pruned   int    `json:"pruned,omitempty"`
	Duration int64  `json:"duration_ms"`
}

// Stats describes the current index contents.
type Stats struct {
	IndexedPages     int64      `json:"indexed_pages"`
	LastIndexedAt    *time.Time `json:"last_indexed_at"`
	VectorIndexSize  int        `json:"vector_index_size"`
	LexicalIndexSize uint64     `json:"lexical_index_size"`
	DiskUsageBytes   int64      `json:"disk_usage_bytes,omitempty"`
}
