// Package cli renders API responses for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/coskb/internal/health"
	"github.com/hyperjump/coskb/internal/models"
	"github.com/hyperjump/coskb/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

const snippetWidth = 200

const separator = "─────────────────────────────────────────────────────────\n"

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results for %q in %dms (mode: %s)\n\n",
		len(response.Results), response.Query, response.QueryTime, response.Mode)
	for i, result := range response.Results {
		writeOneResult(w, i+1, result)
	}
	return nil
}

func writeOneResult(w io.Writer, rank int, result *models.ScoredDocument) {
	fmt.Fprint(w, separator)
	fmt.Fprintf(w, "Rank: %d | Score: %.4f", rank, result.Score)
	if result.LexicalScore != 0 || result.VectorScore != 0 {
		fmt.Fprintf(w, " (Lexical: %.4f, Vector: %.4f)", result.LexicalScore, result.VectorScore)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "ID: %d\n", result.DocumentID)
	if result.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", result.Title)
	}
	if result.Path != "" {
		fmt.Fprintf(w, "Path: %s\n", result.Path)
	}
	if result.Snippet != "" {
		fmt.Fprintf(w, "\n%s\n", Truncate(result.Snippet, snippetWidth))
	}
	fmt.Fprintln(w)
}

// WriteSimilar writes the neighbours of a document.
func WriteSimilar(w io.Writer, response *models.SimilarResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	if len(response.Similar) == 0 {
		fmt.Fprintf(w, "No similar documents for %d\n", response.PageID)
		return nil
	}
	fmt.Fprintf(w, "\nDocuments similar to %d:\n\n", response.PageID)
	for i, result := range response.Similar {
		writeOneResult(w, i+1, result)
	}
	return nil
}

// WriteDuplicates writes near-duplicate pairs.
func WriteDuplicates(w io.Writer, response *models.DuplicatesResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "Found %d pairs with score >= %.2f\n", response.Count, response.Threshold)
	for _, p := range response.Duplicates {
		fmt.Fprintf(w, "%.4f  %d %s  <->  %d %s\n", p.Score, p.LeftID, p.LeftTitle, p.RightID, p.RightTitle)
	}
	return nil
}

// WriteReindex writes the outcome of a reindex run.
func WriteReindex(w io.Writer, result *models.ReindexResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, result)
	}
	fmt.Fprintf(w, "Indexed %d documents in %dms", result.Indexed, result.Duration)
	if result.Pruned > 0 {
		fmt.Fprintf(w, ", pruned %d", result.Pruned)
	}
	fmt.Fprintf(w, " (run %s)\n", result.RunID)
	return nil
}

// WriteStats writes index statistics.
func WriteStats(w io.Writer, stats *models.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, stats)
	}
	fmt.Fprintf(w, "Indexed pages:      %d\n", stats.IndexedPages)
	if stats.LastIndexedAt != nil {
		fmt.Fprintf(w, "Last indexed at:    %s\n", stats.LastIndexedAt.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Fprintln(w, "Last indexed at:    never")
	}
	fmt.Fprintf(w, "Vector index size:  %d\n", stats.VectorIndexSize)
	fmt.Fprintf(w, "Lexical index size: %d\n", stats.LexicalIndexSize)
	if stats.DiskUsageBytes > 0 {
		fmt.Fprintf(w, "Disk usage:         %s\n", FormatBytes(stats.DiskUsageBytes))
	}
	return nil
}

// WriteHealth writes a health report.
func WriteHealth(w io.Writer, report *health.Report, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, report)
	}
	fmt.Fprintf(w, "Status:   %s\n", report.Status)
	fmt.Fprintf(w, "Model:    %s", report.ModelState)
	if report.ModelLoaded && !report.ModelReachable {
		fmt.Fprint(w, ", unreachable")
	}
	if report.ModelError != "" {
		fmt.Fprintf(w, " (%s)", report.ModelError)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Database: %s\n", okOr(report.DBConnected, report.DBError))
	fmt.Fprintf(w, "Index:    %s\n", okOr(report.IndexConsistent, report.IndexError))
	fmt.Fprintf(w, "Documents: %d\n", report.Documents)
	return nil
}

func okOr(ok bool, msg string) string {
	if ok {
		return "ok"
	}
	if msg == "" {
		return "unavailable"
	}
	return msg
}

// Truncate shortens s to maxRunes runes and appends "..." if it was cut.
func Truncate(s string, maxRunes int) string {
	t := utils.Truncate(s, maxRunes)
	if maxRunes <= 0 || t == s {
		return s
	}
	return t + "..."
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
