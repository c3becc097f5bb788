// Package vecstore provides similarity search over dense float32 vectors.
//
// The [Index] interface is the contract used by the speaker matcher: voice
// profile centroids are inserted under their profile ID and candidate
// embeddings are scored against all of them. The in-memory brute-force
// implementation ([NewMemory]) covers the expected scale: a profile store
// holds tens of speakers, not millions of vectors.
package vecstore

import "errors"

// ErrDimension is returned when two vectors of different lengths are
// compared. A dimension mismatch indicates a model/version mismatch and is
// a programming error, not a runtime condition to recover from.
var ErrDimension = errors.New("vecstore: vector dimension mismatch")

// Index is the interface for similarity search over float32 vectors.
//
// All implementations must be safe for concurrent use.
type Index interface {
	// Upsert adds or replaces the vector stored under id.
	Upsert(id string, vector []float32) error

	// Search returns the top-k most similar vectors to the query, ordered
	// by descending similarity. Returns ErrDimension if the query dimension
	// differs from any stored vector.
	Search(query []float32, topK int) ([]Match, error)

	// Delete removes a vector by ID. No error if the ID does not exist.
	Delete(id string) error

	// Len returns the number of vectors in the index.
	Len() int

	// Close releases resources held by the index.
	Close() error
}

// Match is a single result from a similarity search.
type Match struct {
	// ID is the identifier of the matched vector.
	ID string

	// Similarity is the cosine similarity in [0, 1] between the query and
	// the matched vector. Higher values indicate higher similarity.
	Similarity float32
}
