package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ctxCheckEvery is how many vectors are scored between cancellation checks.
const ctxCheckEvery = 1024

// MemoryIndex is an in-memory vector index using brute-force inner product search.
// Vectors are expected to be L2-normalized so inner product equals cosine similarity.
type MemoryIndex struct {
	dimensions int
	ids        []int64
	vectors    [][]float32
	pos        map[int64]int
	mu         sync.RWMutex
}

var _ VectorIndex = (*MemoryIndex)(nil)

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		pos:        make(map[int64]int),
	}, nil
}

// Upsert stores a copy of vec under id.
func (m *MemoryIndex) Upsert(id int64, vec []float32) error {
	if len(vec) != m.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), m.dimensions)
	}
	cp := make([]float32, m.dimensions)
	copy(cp, vec)

	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.pos[id]; ok {
		m.vectors[i] = cp
		return nil
	}
	m.pos[id] = len(m.ids)
	m.ids = append(m.ids, id)
	m.vectors = append(m.vectors, cp)
	return nil
}

// Get returns the stored vector for id. The returned slice must not be modified.
func (m *MemoryIndex) Get(id int64) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.pos[id]
	if !ok {
		return nil, false
	}
	return m.vectors[i], true
}

// Delete removes vectors by id. Unknown ids are ignored.
func (m *MemoryIndex) Delete(ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		i, ok := m.pos[id]
		if !ok {
			continue
		}
		last := len(m.ids) - 1
		if i != last {
			m.ids[i] = m.ids[last]
			m.vectors[i] = m.vectors[last]
			m.pos[m.ids[i]] = i
		}
		m.ids = m.ids[:last]
		m.vectors = m.vectors[:last]
		delete(m.pos, id)
	}
}

// Search returns the top-k vectors by inner product, ties broken by ascending id.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	scores := make([]VectorResult, len(m.ids))
	for i, vec := range m.vectors {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		scores[i] = VectorResult{ID: m.ids[i], Score: Cosine(query, vec)}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ID < scores[j].ID
	})
	if k < len(scores) {
		scores = scores[:k]
	}
	return scores, nil
}

// Pairs compares every stored vector with every other one. The cost is quadratic in Size.
// Results are sorted by descending score, then ascending Left and Right.
func (m *MemoryIndex) Pairs(ctx context.Context, threshold float64) ([]Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pairs []Pair
	for i := 0; i < len(m.ids); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(m.ids); j++ {
			score := Cosine(m.vectors[i], m.vectors[j])
			if !Reaches(score, threshold) {
				continue
			}
			left, right := m.ids[i], m.ids[j]
			if left > right {
				left, right = right, left
			}
			pairs = append(pairs, Pair{Left: left, Right: right, Score: score})
		}
	}
	SortPairs(pairs)
	return pairs, nil
}

// IDs returns the stored ids in ascending order.
func (m *MemoryIndex) IDs() []int64 {
	m.mu.RLock()
	ids := append([]int64(nil), m.ids...)
	m.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Reset removes all vectors.
func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = nil
	m.vectors = nil
	m.pos = make(map[int64]int)
}

// SortPairs orders pairs by descending score, then ascending Left and Right.
func SortPairs(pairs []Pair) {
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Left != b.Left {
			return a.Left < b.Left
		}
		return a.Right < b.Right
	})
}
