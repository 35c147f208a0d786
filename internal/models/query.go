package models

import (
	"fmt"
	"strings"
)

// Bounds for the number of results a search may request.
const (
	MinTopK = 1
	MaxTopK = 20
)

// SearchQuery represents a search request.
type SearchQuery struct {
	Query string     `json:"query"`
	TopK  int        `json:"top_k,omitempty"`
	Mode  SearchMode `json:"mode,omitempty"`
}

// Validate trims the query, applies defaults and rejects invalid input.
// A zero TopK takes defaultTopK; an empty Mode becomes hybrid.
func (q *SearchQuery) Validate(defaultTopK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	if q.TopK == 0 {
		q.TopK = defaultTopK
	}
	if q.TopK < MinTopK || q.TopK > MaxTopK {
		return fmt.Errorf("%w: top_k must be between %d and %d, got %d", ErrInvalidQuery, MinTopK, MaxTopK, q.TopK)
	}
	mode, err := ParseMode(string(q.Mode))
	if err != nil {
		return err
	}
	q.Mode = mode
	return nil
}

// ValidateThreshold checks a duplicate-detection threshold is in (0, 1].
func ValidateThreshold(threshold float64) error {
	if !(threshold > 0 && threshold <= 1) {
		return fmt.Errorf("%w: threshold must be in (0, 1], got %v", ErrInvalidThreshold, threshold)
	}
	return nil
}
