package docindex

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/coskb/internal/keyword"
	"github.com/hyperjump/coskb/internal/models"
	"github.com/hyperjump/coskb/internal/storage"
	"github.com/hyperjump/coskb/internal/vector"
)

type fixture struct {
	dir     string
	store   *storage.SQLiteStorage
	vectors *vector.MemoryIndex
	lexical keyword.LexicalIndex
}

func newFixture(t *testing.T, dir string) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "kb.db"))
	require.NoError(t, err)
	vectors, err := vector.NewMemoryIndex(2)
	require.NoError(t, err)
	lexical, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"), "simple")
	require.NoError(t, err)
	return &fixture{dir: dir, store: store, vectors: vectors, lexical: lexical}
}

func (f *fixture) open(t *testing.T) *DocumentIndex {
	t.Helper()
	idx, err := Open(context.Background(), f.store, f.vectors, f.lexical, WithLexicalPath(filepath.Join(f.dir, "bleve")))
	require.NoError(t, err)
	return idx
}

func doc(id int64, title, text string, vec ...float32) *models.Document {
	return &models.Document{
		ID: id, Title: title, ContentPreview: text,
		LexicalText: title + " " + text, Vector: vec,
	}
}

func TestDocumentIndex_UpsertAndRead(t *testing.T) {
	f := newFixture(t, t.TempDir())
	idx := f.open(t)
	defer idx.Close()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, doc(1, "VPN", "how to connect to the vpn", 1, 0)))
	require.NoError(t, idx.Upsert(ctx, doc(2, "Vacation", "how to request vacation", 0, 1)))

	err := idx.Read(ctx, func(r Reader) error {
		assert.Equal(t, 2, r.Size())

		hits, err := r.Lexical(ctx, "vpn", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, int64(1), hits[0].ID)

		near, err := r.Nearest(ctx, []float32{0, 1}, 1)
		require.NoError(t, err)
		require.Len(t, near, 1)
		assert.Equal(t, int64(2), near[0].ID)

		docs, err := r.Documents(ctx, []int64{1, 2})
		require.NoError(t, err)
		assert.Equal(t, "Vacation", docs[2].Title)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, idx.Verify(ctx))
}

func TestDocumentIndex_UpsertReplaces(t *testing.T) {
	f := newFixture(t, t.TempDir())
	idx := f.open(t)
	defer idx.Close()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, doc(1, "Old", "printer setup", 1, 0)))
	require.NoError(t, idx.Upsert(ctx, doc(1, "New", "scanner setup", 0, 1)))

	_ = idx.Read(ctx, func(r Reader) error {
		hits, err := r.Lexical(ctx, "printer", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
		vec, ok := r.Vector(1)
		require.True(t, ok)
		assert.Equal(t, []float32{0, 1}, vec)
		return nil
	})
	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.IndexedPages)
	assert.Equal(t, 1, stats.VectorIndexSize)
	assert.Equal(t, uint64(1), stats.LexicalIndexSize)
	assert.NotNil(t, stats.LastIndexedAt)
	assert.Positive(t, stats.DiskUsageBytes)
}

func TestDocumentIndex_Delete(t *testing.T) {
	f := newFixture(t, t.TempDir())
	idx := f.open(t)
	defer idx.Close()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, doc(1, "A", "alpha", 1, 0)))
	require.NoError(t, idx.Delete(ctx, 1))
	require.NoError(t, idx.Delete(ctx, 99))

	ids, err := idx.IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 0, idx.Size())
	require.NoError(t, idx.Verify(ctx))
}

func TestDocumentIndex_RejectsWrongDimensions(t *testing.T) {
	f := newFixture(t, t.TempDir())
	idx := f.open(t)
	defer idx.Close()

	err := idx.Upsert(context.Background(), doc(1, "A", "alpha", 1, 0, 0))
	require.Error(t, err)
	assert.Equal(t, 0, idx.Size())
}

type failingLexical struct {
	keyword.LexicalIndex
}

func (failingLexical) Index(context.Context, int64, string) error {
	return errors.New("disk full")
}

func TestDocumentIndex_LexicalFailureLeavesNoPartialWrite(t *testing.T) {
	f := newFixture(t, t.TempDir())
	idx, err := Open(context.Background(), f.store, f.vectors, failingLexical{f.lexical})
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()

	err = idx.Upsert(ctx, doc(7, "A", "alpha", 1, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstreamUnavailable))

	_, err = f.store.GetDocument(ctx, 7)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Equal(t, 0, idx.Size())
}

func TestDocumentIndex_ReopenRebuildsVectorsAndLexical(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, dir)
	idx := f.open(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, doc(1, "VPN", "connect", 1, 0)))
	require.NoError(t, idx.Upsert(ctx, doc(2, "Mail", "outlook", 0, 1)))
	require.NoError(t, idx.Close())

	// fresh derived indexes: Open has to rebuild both from the store
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "kb.db"))
	require.NoError(t, err)
	vectors, err := vector.NewMemoryIndex(2)
	require.NoError(t, err)
	lexical, err := keyword.NewMemBleveIndex("simple")
	require.NoError(t, err)
	reopened, err := Open(ctx, store, vectors, lexical)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Size())
	require.NoError(t, reopened.Verify(ctx))
	_ = reopened.Read(ctx, func(r Reader) error {
		hits, err := r.Lexical(ctx, "outlook", 5)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, int64(2), hits[0].ID)
		return nil
	})
}

func TestDocumentIndex_VerifyDetectsDivergence(t *testing.T) {
	f := newFixture(t, t.TempDir())
	idx := f.open(t)
	defer idx.Close()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, doc(1, "A", "alpha", 1, 0)))
	require.NoError(t, f.lexical.Index(ctx, 5, "orphan entry"))

	err := idx.Verify(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDataIntegrity))
}

func TestDocumentIndex_OpenRejectsStoredDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, dir)
	idx := f.open(t)
	require.NoError(t, idx.Upsert(context.Background(), doc(1, "A", "alpha", 1, 0)))

	wide, err := vector.NewMemoryIndex(3)
	require.NoError(t, err)
	_, err = Open(context.Background(), f.store, wide, f.lexical)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDataIntegrity))
	require.NoError(t, idx.Close())
}

func TestDocumentIndex_ReadHonoursCancellation(t *testing.T) {
	f := newFixture(t, t.TempDir())
	idx := f.open(t)
	defer idx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := idx.Read(ctx, func(Reader) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestDifference(t *testing.T) {
	assert.Equal(t, []int64{1, 4}, difference([]int64{1, 2, 3, 4}, []int64{2, 3, 5}))
	assert.Nil(t, difference([]int64{2}, []int64{1, 2}))
}
