package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/coskb/internal/health"
	"github.com/hyperjump/coskb/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "vpn",
		Mode:      models.ModeHybrid,
		QueryTime: 42,
		Results: []*models.ScoredDocument{
			{DocumentID: 7, Title: "VPN", Path: "it/vpn", Snippet: "How to connect", Score: 0.97, LexicalScore: 1, VectorScore: 0.95},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	response := sampleResponse()
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != "vpn" || decoded.QueryTime != 42 || decoded.Mode != models.ModeHybrid {
		t.Errorf("decoded: got %+v", decoded)
	}
	if len(decoded.Results) != 1 || decoded.Results[0].DocumentID != 7 {
		t.Errorf("decoded results: got %+v", decoded.Results)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`Found 1 results for "vpn"`, "mode: hybrid", "Rank: 1 | Score: 0.9700", "ID: 7", "Title: VPN", "Path: it/vpn", "How to connect"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_TextEmpty(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.SearchResponse{Query: "zzz", Mode: models.ModeVector, Results: []*models.ScoredDocument{}}
	if err := WriteSearchResults(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Found 0 results") {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteSimilar(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.SimilarResponse{PageID: 3, Similar: []*models.ScoredDocument{{DocumentID: 4, Title: "Printer setup", Score: 0.91}}}
	if err := WriteSimilar(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "similar to 3") || !strings.Contains(buf.String(), "Printer setup") {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	_ = WriteSimilar(&buf, &models.SimilarResponse{PageID: 3}, OutputText)
	if !strings.Contains(buf.String(), "No similar documents") {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteDuplicates(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.DuplicatesResponse{
		Threshold: 0.9,
		Count:     1,
		Duplicates: []*models.DocumentPair{
			{LeftID: 1, RightID: 4, LeftTitle: "VPN", RightTitle: "VPN (old)", Score: 0.95},
		},
	}
	if err := WriteDuplicates(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Found 1 pairs with score >= 0.90") || !strings.Contains(out, "0.9500  1 VPN  <->  4 VPN (old)") {
		t.Errorf("got %q", out)
	}
}

func TestWriteStats(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStats(&buf, &models.Stats{}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "never") {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_ = WriteStats(&buf, &models.Stats{IndexedPages: 12, LastIndexedAt: &at, DiskUsageBytes: 2048}, OutputText)
	out := buf.String()
	if !strings.Contains(out, "12") || !strings.Contains(out, "2026-01-02 03:04:05 UTC") || !strings.Contains(out, "2.0 KiB") {
		t.Errorf("got %q", out)
	}
}

func TestWriteStats_JSONNullTimestamp(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStats(&buf, &models.Stats{}, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"last_indexed_at": null`) {
		t.Errorf("got %s", buf.String())
	}
}

func TestWriteHealth(t *testing.T) {
	var buf bytes.Buffer
	report := &health.Report{Status: health.StatusDegraded, ModelState: "failed", ModelError: "model file missing", DBConnected: true, IndexConsistent: false}
	if err := WriteHealth(&buf, report, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"degraded", "failed (model file missing)", "Database: ok", "Index:    unavailable"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestWriteHealth_unreachableModel(t *testing.T) {
	var buf bytes.Buffer
	report := &health.Report{Status: health.StatusDegraded, ModelState: "ready", ModelLoaded: true, ModelError: "connection refused", DBConnected: true, IndexConsistent: true}
	if err := WriteHealth(&buf, report, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Model:    ready, unreachable (connection refused)") {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteReindex(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteReindex(&buf, &models.ReindexResult{RunID: "abc", Indexed: 3, Pruned: 1, Duration: 12}, OutputText)
	if got := buf.String(); got != "Indexed 3 documents in 12ms, pruned 1 (run abc)\n" {
		t.Errorf("got %q", got)
	}
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": OutputText, "text": OutputText, "JSON": OutputJSON} {
		got, err := ParseOutputFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("expected error for yaml")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated text", 9, "truncated..."},
		{"Подключение", 4, "Подк..."},
		{"any", 0, "any"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{0: "0 B", 1023: "1023 B", 1024: "1.0 KiB", 1536: "1.5 KiB", 5 << 20: "5.0 MiB"}
	for n, want := range tests {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
