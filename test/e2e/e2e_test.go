package e2e

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/coskb/internal/config"
	"github.com/hyperjump/coskb/internal/docindex"
	"github.com/hyperjump/coskb/internal/embedding"
	"github.com/hyperjump/coskb/internal/extract"
	"github.com/hyperjump/coskb/internal/indexer"
	"github.com/hyperjump/coskb/internal/keyword"
	"github.com/hyperjump/coskb/internal/models"
	"github.com/hyperjump/coskb/internal/search"
	"github.com/hyperjump/coskb/internal/source"
	"github.com/hyperjump/coskb/internal/storage"
	"github.com/hyperjump/coskb/internal/vector"
)

const (
	e2eDimensions = 256
	e2eTopK       = 10
)

type pipeline struct {
	cfg     *config.Config
	index   *docindex.DocumentIndex
	engine  *search.Engine
	indexer *indexer.Indexer
}

// openPipeline opens (or reopens) the index stored under dir with every minimum
// score disabled, so tests see the raw ranking.
func openPipeline(t *testing.T, dir string) *pipeline {
	t.Helper()
	return openPipelineWith(t, dir, func(cfg *config.Config) {
		cfg.Search.MinScoreHybrid = 0
		cfg.Search.MinScoreVector = 0
		cfg.Search.MinScoreLexical = 0
	})
}

// openPipelineWith opens the index under dir with the shipped defaults, adjusted by tune.
func openPipelineWith(t *testing.T, dir string, tune ...func(*config.Config)) *pipeline {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "kb.db")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "lexical.bleve")
	cfg.Indexer = config.IndexerConfig{Workers: 4, BatchSize: 8}
	for _, fn := range tune {
		fn(cfg)
	}

	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	vectors, err := vector.NewMemoryIndex(e2eDimensions)
	if err != nil {
		t.Fatal(err)
	}
	lexical, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath, cfg.Search.Language)
	if err != nil {
		t.Fatal(err)
	}
	index, err := docindex.Open(ctx, store, vectors, lexical, docindex.WithLexicalPath(cfg.Storage.BleveIndexPath))
	if err != nil {
		t.Fatal(err)
	}

	gateway := embedding.NewGateway(embedding.NewHashEmbedder(e2eDimensions),
		embedding.WithPrefixes(cfg.Embedding.QueryPrefix, cfg.Embedding.PassagePrefix))
	if err := gateway.Start(ctx); err != nil {
		t.Fatal(err)
	}
	idx, err := indexer.NewIndexer(index, gateway, &cfg.Indexer)
	if err != nil {
		t.Fatal(err)
	}
	p := &pipeline{
		cfg:     cfg,
		index:   index,
		engine:  search.NewEngine(index, gateway, &cfg.Search),
		indexer: idx,
	}
	t.Cleanup(p.close)
	return p
}

func (p *pipeline) close() {
	if p.indexer != nil {
		p.indexer.Release()
		p.indexer = nil
	}
	if p.index != nil {
		_ = p.index.Close()
		p.index = nil
	}
}

func resultIDs(results []*models.ScoredDocument) []int64 {
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.DocumentID
	}
	return ids
}

func containsAny(got, expected []int64) bool {
	set := make(map[int64]bool, len(got))
	for _, id := range got {
		set[id] = true
	}
	for _, id := range expected {
		if set[id] {
			return true
		}
	}
	return false
}

func runCases(t *testing.T, engine *search.Engine, cases []QueryCase, mode models.SearchMode) int {
	t.Helper()
	hits := 0
	for _, tc := range cases {
		resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: tc.Query, TopK: e2eTopK, Mode: mode})
		if err != nil {
			t.Fatalf("%s search %q: %v", mode, tc.Query, err)
		}
		if containsAny(resultIDs(resp.Results), tc.ExpectedIDs) {
			hits++
		} else {
			t.Logf("%s: %s, got %v", mode, tc.Description, resultIDs(resp.Results))
		}
	}
	return hits
}

func TestE2E_SearchModes(t *testing.T) {
	p := openPipeline(t, t.TempDir())
	corpus := BuildCorpus()

	res, err := p.indexer.Reindex(context.Background(), corpus.SourceDocuments())
	if err != nil {
		t.Fatal(err)
	}
	if res.Indexed != len(corpus.Articles) {
		t.Fatalf("indexed %d, want %d", res.Indexed, len(corpus.Articles))
	}

	for _, mode := range []models.SearchMode{models.ModeLexical, models.ModeHybrid} {
		if hits := runCases(t, p.engine, corpus.Cases, mode); hits != len(corpus.Cases) {
			t.Errorf("%s: %d of %d cases found their page", mode, hits, len(corpus.Cases))
		}
	}

	// Hashed word vectors only approximate meaning, so vector mode gets some slack.
	hits := runCases(t, p.engine, corpus.Cases, models.ModeVector)
	if hits*10 < len(corpus.Cases)*9 {
		t.Errorf("vector: only %d of %d cases found their page", hits, len(corpus.Cases))
	}
}

// TestE2E_DefaultThresholds runs the query cases with the minimum scores a fresh
// configuration ships with for the hash provider.
func TestE2E_DefaultThresholds(t *testing.T) {
	p := openPipelineWith(t, t.TempDir())
	if p.cfg.Embedding.Provider != config.ProviderHash {
		t.Fatalf("default provider = %q", p.cfg.Embedding.Provider)
	}
	corpus := BuildCorpus()
	if _, err := p.indexer.Reindex(context.Background(), corpus.SourceDocuments()); err != nil {
		t.Fatal(err)
	}

	for _, mode := range []models.SearchMode{models.ModeLexical, models.ModeHybrid} {
		if hits := runCases(t, p.engine, corpus.Cases, mode); hits != len(corpus.Cases) {
			t.Errorf("%s at default thresholds: %d of %d cases found their page", mode, hits, len(corpus.Cases))
		}
	}
	hits := runCases(t, p.engine, corpus.Cases, models.ModeVector)
	if hits*10 < len(corpus.Cases)*9 {
		t.Errorf("vector at default thresholds: only %d of %d cases found their page", hits, len(corpus.Cases))
	}
}

// TestE2E_IdenticalPagesAtThresholdOne indexes two pages with the same text and
// expects them reported as duplicates at the strictest threshold.
func TestE2E_IdenticalPagesAtThresholdOne(t *testing.T) {
	p := openPipeline(t, t.TempDir())
	docs := []models.SourceDocument{
		{ID: 1, Title: "w0x0", Path: "a/w0x0", Text: "vpn"},
		{ID: 2, Title: "w0x0", Path: "b/w0x0", Text: "vpn"},
		{ID: 3, Title: "Printer", Path: "it/printer", Text: "printer driver"},
	}
	if _, err := p.indexer.Reindex(context.Background(), docs); err != nil {
		t.Fatal(err)
	}

	dups, err := p.engine.FindDuplicates(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if dups.Count != 1 || dups.Duplicates[0].LeftID != 1 || dups.Duplicates[0].RightID != 2 {
		t.Fatalf("duplicates at threshold 1 = %+v", dups.Duplicates)
	}
	if dups.Duplicates[0].Score != 1 {
		t.Errorf("score = %v, want 1", dups.Duplicates[0].Score)
	}
}

func TestE2E_SearchResultsAreRankedAndBounded(t *testing.T) {
	p := openPipeline(t, t.TempDir())
	if _, err := p.indexer.Reindex(context.Background(), BuildCorpus().SourceDocuments()); err != nil {
		t.Fatal(err)
	}

	resp, err := p.engine.Search(context.Background(), &models.SearchQuery{Query: "the", TopK: 3, Mode: models.ModeVector})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) > 3 {
		t.Errorf("expected at most 3 results, got %d", len(resp.Results))
	}
	for i := 1; i < len(resp.Results); i++ {
		prev, cur := resp.Results[i-1], resp.Results[i]
		if prev.Score < cur.Score || (prev.Score == cur.Score && prev.DocumentID > cur.DocumentID) {
			t.Errorf("results out of order at %d: %+v before %+v", i, prev, cur)
		}
	}
}

func TestE2E_SimilarAndDuplicates(t *testing.T) {
	p := openPipeline(t, t.TempDir())
	corpus := BuildCorpus()
	if _, err := p.indexer.Reindex(context.Background(), corpus.SourceDocuments()); err != nil {
		t.Fatal(err)
	}

	for _, pair := range corpus.Duplicates {
		resp, err := p.engine.Similar(context.Background(), pair[0])
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Similar) == 0 || resp.Similar[0].DocumentID != pair[1] {
			t.Errorf("similar(%d): expected %d first, got %v", pair[0], pair[1], resultIDs(resp.Similar))
		}
		for _, s := range resp.Similar {
			if s.DocumentID == pair[0] {
				t.Errorf("similar(%d) lists the page itself", pair[0])
			}
		}
	}

	dups, err := p.engine.FindDuplicates(context.Background(), 0.99)
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[[2]int64]bool)
	for _, d := range dups.Duplicates {
		if d.LeftID >= d.RightID {
			t.Errorf("pair not canonical: %+v", d)
		}
		got[[2]int64{d.LeftID, d.RightID}] = true
	}
	for _, pair := range corpus.Duplicates {
		if !got[pair] {
			t.Errorf("missing duplicate pair %v in %+v", pair, dups.Duplicates)
		}
	}
	if dups.Count != len(dups.Duplicates) || dups.Threshold != 0.99 {
		t.Errorf("response header: count %d threshold %v", dups.Count, dups.Threshold)
	}

	if _, err := p.engine.Similar(context.Background(), 9999); err == nil {
		t.Error("expected not found for an unknown page")
	}
}

func TestE2E_ReopenRebuildsFromStorage(t *testing.T) {
	dir := t.TempDir()
	corpus := BuildCorpus()

	p := openPipeline(t, dir)
	if _, err := p.indexer.Reindex(context.Background(), corpus.SourceDocuments()); err != nil {
		t.Fatal(err)
	}
	p.close()

	reopened := openPipeline(t, dir)
	stats, err := reopened.index.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.IndexedPages != int64(len(corpus.Articles)) || stats.VectorIndexSize != len(corpus.Articles) {
		t.Errorf("stats after reopen: %+v", stats)
	}
	if hits := runCases(t, reopened.engine, corpus.Cases, models.ModeHybrid); hits != len(corpus.Cases) {
		t.Errorf("hybrid after reopen: %d of %d cases", hits, len(corpus.Cases))
	}
}

// TestE2E_DirectorySource writes the articles as files of every supported format
// and indexes them through the directory source.
func TestE2E_DirectorySource(t *testing.T) {
	root := t.TempDir()
	corpus := BuildCorpus()

	pageIDs := make(map[int64]int64)
	for i, a := range corpus.Articles {
		rel, err := WriteArticle(root, a, FileExtensions[i%len(FileExtensions)])
		if err != nil {
			t.Fatal(err)
		}
		pageIDs[a.ID] = source.DocumentID(rel)
	}

	src, err := source.NewDirectorySource(&config.DirectoryConfig{Path: root, Extensions: FileExtensions}, extract.NewExtractor(), nil)
	if err != nil {
		t.Fatal(err)
	}
	p := openPipeline(t, t.TempDir())
	res, err := p.indexer.ReindexSource(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if res.Indexed != len(corpus.Articles) {
		t.Fatalf("indexed %d files, want %d", res.Indexed, len(corpus.Articles))
	}

	cases := make([]QueryCase, len(corpus.Cases))
	for i, tc := range corpus.Cases {
		ids := make([]int64, len(tc.ExpectedIDs))
		for j, id := range tc.ExpectedIDs {
			ids[j] = pageIDs[id]
		}
		cases[i] = QueryCase{Query: tc.Query, ExpectedIDs: ids, Description: tc.Description}
	}
	if hits := runCases(t, p.engine, cases, models.ModeLexical); hits != len(cases) {
		t.Errorf("fts over files: %d of %d cases", hits, len(cases))
	}

	again, err := p.indexer.ReindexSource(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if again.Indexed != res.Indexed || p.index.Size() != len(corpus.Articles) {
		t.Errorf("second reindex: %+v, size %d", again, p.index.Size())
	}
}
