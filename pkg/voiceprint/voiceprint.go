// Package voiceprint provides speaker identification via audio embeddings.
//
// # Architecture
//
// The pipeline processes audio in three stages:
//
//  1. Model.Extract: PCM16 16kHz mono audio → 512-dimensional embedding
//  2. Matcher.Best: embedding → best stored profile above threshold
//  3. Engine.Identify: utterance list → display label per raw speaker
//
// Embeddings are compared via cosine similarity against per-profile
// centroids. A speaker without a match above threshold stays anonymous
// ("Sprecher A", "Sprecher B", ...), never misattributed.
package voiceprint

import (
	"errors"
	"fmt"

	"github.com/medvox/medvox/pkg/vecstore"
)

// ErrDimensionMismatch reports embeddings of different lengths. This is a
// model/version mismatch, a programming error, and is never recovered.
var ErrDimensionMismatch = errors.New("voiceprint: embedding dimension mismatch")

// CosineSimilarity returns the similarity of two embeddings in [0, 1].
// Either vector having zero norm yields 0.
func CosineSimilarity(a, b []float32) (float32, error) {
	sim, err := vecstore.CosineSimilarity(a, b)
	if err != nil {
		if errors.Is(err, vecstore.ErrDimension) {
			return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
		}
		return 0, err
	}
	return sim, nil
}

// Match is a scored profile candidate returned by a Matcher.
type Match struct {
	// ProfileID identifies the stored profile.
	ProfileID string

	// Name and Role come from the profile record.
	Name string
	Role string

	// Similarity is the cosine similarity against the profile centroid.
	Similarity float32
}

// Matcher scores an embedding against stored speaker profiles. The second
// return is false when no profile scores above the acceptance threshold.
type Matcher interface {
	Best(vec []float32) (Match, bool, error)
}
