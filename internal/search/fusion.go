// Package search provides the hybrid ranking engine, the similarity engine and
// the duplicate detector.
package search

import (
	"sort"

	"github.com/hyperjump/coskb/internal/keyword"
	"github.com/hyperjump/coskb/internal/vector"
)

// FusedResult holds a document id with its final and per-index scores.
type FusedResult struct {
	DocumentID   int64
	Score        float64
	LexicalScore float64
	VectorScore  float64
}

// NormalizeLexicalScores scales lexical scores to [0,1] by the best hit.
func NormalizeLexicalScores(results []keyword.KeywordResult) map[int64]float64 {
	normalized := make(map[int64]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// VectorScores maps vector hits by document id.
func VectorScores(results []vector.VectorResult) map[int64]float64 {
	scores := make(map[int64]float64, len(results))
	for _, r := range results {
		scores[r.ID] = r.Score
	}
	return scores
}

// Fuse combines per-document scores as lexicalWeight*lexical + vectorWeight*vector.
// Every document with a vector score takes part; a missing lexical score counts as 0.
// Lexical ids without a vector score are returned as orphans. The result is ranked.
func Fuse(lexicalScores, vectorScores map[int64]float64, lexicalWeight, vectorWeight float64) (results []*FusedResult, orphans []int64) {
	results = make([]*FusedResult, 0, len(vectorScores))
	for id, vs := range vectorScores {
		ls := lexicalScores[id]
		results = append(results, &FusedResult{
			DocumentID:   id,
			Score:        lexicalWeight*ls + vectorWeight*vs,
			LexicalScore: ls,
			VectorScore:  vs,
		})
	}
	for id := range lexicalScores {
		if _, ok := vectorScores[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })
	Rank(results)
	return results, orphans
}

// Rank orders results by descending score, ties broken by ascending document id.
func Rank(results []*FusedResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocumentID < results[j].DocumentID
	})
}

// FilterByMinScore drops results scoring below minScore, keeping order.
func FilterByMinScore(results []*FusedResult, minScore float64) []*FusedResult {
	if minScore <= 0 {
		return results
	}
	filtered := results[:0]
	for _, r := range results {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Truncate keeps at most n results.
func Truncate(results []*FusedResult, n int) []*FusedResult {
	if n >= 0 && len(results) > n {
		return results[:n]
	}
	return results
}

func fromLexical(hits []keyword.KeywordResult) []*FusedResult {
	out := make([]*FusedResult, len(hits))
	for i, h := range hits {
		out[i] = &FusedResult{DocumentID: h.ID, Score: h.Score, LexicalScore: h.Score}
	}
	Rank(out)
	return out
}

func fromVector(hits []vector.VectorResult) []*FusedResult {
	out := make([]*FusedResult, len(hits))
	for i, h := range hits {
		out[i] = &FusedResult{DocumentID: h.ID, Score: h.Score, VectorScore: h.Score}
	}
	Rank(out)
	return out
}
