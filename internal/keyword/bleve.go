package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/lang/ru"
	"github.com/blevesearch/bleve/v2/mapping"
)

const textField = "text"

type bleveDoc struct {
	Text string `json:"text"`
}

// BleveIndex implements LexicalIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

var _ LexicalIndex = (*BleveIndex)(nil)

// AnalyzerFor maps a language selector to a Bleve analyzer name. "simple" (the
// default) lowercases and tokenizes without stemming; "english" and "russian" stem.
func AnalyzerFor(language string) (string, error) {
	switch strings.ToLower(language) {
	case "", "simple", "standard":
		return standard.Name, nil
	case "english", "en":
		return en.AnalyzerName, nil
	case "russian", "ru":
		return ru.AnalyzerName, nil
	default:
		return "", fmt.Errorf("unsupported lexical language %q (supported: simple, english, russian)", language)
	}
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index keeps the
// analyzer it was created with; remove the directory to change language.
func NewBleveIndex(path, language string) (*BleveIndex, error) {
	analyzer, err := AnalyzerFor(language)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping(analyzer))
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemBleveIndex creates an in-memory Bleve index.
func NewMemBleveIndex(language string) (*BleveIndex, error) {
	analyzer, err := AnalyzerFor(language)
	if err != nil {
		return nil, err
	}
	index, err := bleve.NewMemOnly(newMapping(analyzer))
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func newMapping(analyzer string) *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = analyzer
	textFieldMapping.Store = false
	textFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt(textField, textFieldMapping)
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = analyzer
	return im
}

// Index indexes text under id.
func (b *BleveIndex) Index(ctx context.Context, id int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.index.Index(docID(id), bleveDoc{Text: text})
}

// IndexBatch indexes many documents in one batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, texts map[int64]string) error {
	batch := b.index.NewBatch()
	for id, text := range texts {
		if err := batch.Index(docID(id), bleveDoc{Text: text}); err != nil {
			return fmt.Errorf("batch index %d: %w", id, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.index.Batch(batch)
}

// Search runs a match query (any term may match) over the text field. Hits with
// equal scores are ordered by ascending id.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]KeywordResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := bleve.NewMatchQuery(query)
	q.SetField(textField)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}
	out := make([]KeywordResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := parseID(hit.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, KeywordResult{ID: id, Score: hit.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id int64) error {
	return b.index.Delete(docID(id))
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// IDs returns every indexed document id in ascending order.
func (b *BleveIndex) IDs(ctx context.Context) ([]int64, error) {
	n, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("doc count: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(n)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve list ids: %w", err)
	}
	ids := make([]int64, 0, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := parseID(hit.ID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bleve index holds non-numeric id %q: %w", s, err)
	}
	return id, nil
}
