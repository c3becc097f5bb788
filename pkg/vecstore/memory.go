package vecstore

import (
	"math"
	"sort"
	"sync"
)

// Memory is an in-memory Index using brute-force cosine similarity.
// It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMemory creates a new in-memory vector index.
func NewMemory() *Memory {
	return &Memory{vectors: make(map[string][]float32)}
}

func (m *Memory) Upsert(id string, vector []float32) error {
	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.mu.Lock()
	m.vectors[id] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Search(query []float32, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.vectors) == 0 || topK <= 0 {
		return nil, nil
	}

	results := make([]Match, 0, len(m.vectors))
	for id, vec := range m.vectors {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			return nil, err
		}
		results = append(results, Match{ID: id, Similarity: sim})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *Memory) Delete(id string) error {
	m.mu.Lock()
	delete(m.vectors, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

func (m *Memory) Close() error {
	return nil
}

// CosineSimilarity computes the cosine similarity between two vectors,
// clamped to [0, 1]. Negative correlation is reported as 0: for speaker
// embeddings anything at or below orthogonal means "not the same voice",
// and the extra resolution below zero carries no signal. Returns 0 if
// either vector has zero norm, and ErrDimension if the lengths differ.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimension
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return float32(sim), nil
}
