package models

import (
	"fmt"
	"strings"
)

// SearchMode selects which relevance signals participate in a search.
type SearchMode string

// Search modes. ModeLexical keeps the "fts" wire name used by existing clients.
const (
	ModeLexical SearchMode = "fts"
	ModeVector  SearchMode = "vector"
	ModeHybrid  SearchMode = "hybrid"
)

// IsValid reports whether m is one of the supported modes.
func (m SearchMode) IsValid() bool {
	return m == ModeLexical || m == ModeVector || m == ModeHybrid
}

// ParseMode converts a user-supplied mode string. Empty input selects hybrid;
// "lexical" and "keyword" are accepted as aliases for fts.
func ParseMode(s string) (SearchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeHybrid):
		return ModeHybrid, nil
	case string(ModeVector), "semantic":
		return ModeVector, nil
	case string(ModeLexical), "lexical", "keyword":
		return ModeLexical, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: hybrid, vector, fts)", ErrUnsupportedMode, s)
	}
}
