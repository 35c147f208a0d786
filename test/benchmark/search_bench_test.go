package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/coskb/internal/embedding"
	"github.com/hyperjump/coskb/internal/indexer"
	"github.com/hyperjump/coskb/internal/search"
	"github.com/hyperjump/coskb/internal/vector"
)

const benchDims = 384

func BenchmarkFuse(b *testing.B) {
	lexical := make(map[int64]float64)
	vectors := make(map[int64]float64)
	for i := int64(0); i < 100; i++ {
		lexical[i] = float64(i) / 100
		vectors[i] = float64(100-i) / 100
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = search.Fuse(lexical, vectors, 0.4, 0.6)
	}
}

func filledIndex(b *testing.B, n int) *vector.MemoryIndex {
	b.Helper()
	idx, err := vector.NewMemoryIndex(benchDims)
	if err != nil {
		b.Fatal(err)
	}
	e := embedding.NewHashEmbedder(benchDims)
	for i := 0; i < n; i++ {
		vec, err := e.Embed(context.Background(), fmt.Sprintf("knowledge base page %d about topic %d", i, i%37))
		if err != nil {
			b.Fatal(err)
		}
		if err := idx.Upsert(int64(i), vec); err != nil {
			b.Fatal(err)
		}
	}
	return idx
}

func BenchmarkMemoryIndexSearch(b *testing.B) {
	idx := filledIndex(b, 1000)
	query, _ := embedding.NewHashEmbedder(benchDims).Embed(context.Background(), "topic 12")
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 10)
	}
}

func BenchmarkMemoryIndexPairs(b *testing.B) {
	idx := filledIndex(b, 500)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Pairs(ctx, 0.9)
	}
}

func BenchmarkHashEmbedder_Embed(b *testing.B) {
	e := embedding.NewHashEmbedder(benchDims)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "how do I connect to the corporate vpn from home")
	}
}

func BenchmarkPreprocess(b *testing.B) {
	text := "  Как подключить   VPN\r\n\tиз дома?  \x00 Install the client and sign in.  "
	for i := 0; i < b.N; i++ {
		_ = indexer.Preprocess(text)
	}
}
