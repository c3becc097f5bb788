// Package profile persists speaker voice profiles and implements the
// embedding promotion state machine.
//
// A profile carries two embedding pools: confirmed embeddings contribute
// to the matching centroid, pending embeddings are provisional samples
// collected during sessions. Pending samples are promoted to confirmed in
// bulk once the pool holds enough audio and its samples agree with the
// profile's reference; a noisy pool is discarded before it can corrupt an
// established profile.
package profile

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNotFound reports an unknown profile ID.
	ErrNotFound = errors.New("profile: not found")

	// ErrEnrollmentTooShort reports enrollment audio below the minimum.
	ErrEnrollmentTooShort = errors.New("profile: enrollment audio too short")

	// ErrReservedRole rejects the patient role. Patients are never
	// enrolled or identified; their speech stays anonymous.
	ErrReservedRole = errors.New(`profile: role "Patient" is reserved`)
)

const (
	// MinEnrollment is the least net speech an enrollment must contain.
	MinEnrollment = 30 * time.Second

	// promotionDuration is the pending pool audio total that opens the
	// promotion decision.
	promotionDuration = 30 * time.Second

	// promotionSimilarity is the mean pending similarity required for
	// promotion once the duration gate passes.
	promotionSimilarity = 0.65

	// MatchThreshold is the least centroid similarity accepted as an
	// identification.
	MatchThreshold = 0.70
)

// SourceType records how an embedding entered a profile.
type SourceType string

const (
	// SourceEnrollment marks embeddings from an explicit enrollment take.
	SourceEnrollment SourceType = "enrollment"

	// SourceOptimization marks embeddings harvested from identified
	// session audio.
	SourceOptimization SourceType = "optimization"
)

// Embedding is one vector sample with its provenance.
type Embedding struct {
	Vector         []float32     `msgpack:"vector"`
	SourceDuration time.Duration `msgpack:"source_duration"`
	Source         SourceType    `msgpack:"source"`

	// Similarity is the cosine similarity against the profile reference
	// at the time the sample was added. Zero for enrollment samples.
	Similarity float32 `msgpack:"similarity"`

	AddedAt time.Time `msgpack:"added_at"`
}

// Profile is one speaker's stored identity.
type Profile struct {
	ID   string `msgpack:"id"`
	Name string `msgpack:"name"`
	Role string `msgpack:"role"`

	Confirmed []Embedding `msgpack:"confirmed"`
	Pending   []Embedding `msgpack:"pending"`

	// Centroid is the unit-normalized mean of all confirmed vectors,
	// empty while the profile has no confirmed embeddings.
	Centroid []float32 `msgpack:"centroid"`

	CreatedAt time.Time `msgpack:"created_at"`
	UpdatedAt time.Time `msgpack:"updated_at"`
}

// HasCentroid reports whether the profile can be matched against.
func (p *Profile) HasCentroid() bool {
	return len(p.Centroid) > 0
}

// pendingDuration sums the pending pool's audio.
func (p *Profile) pendingDuration() time.Duration {
	var total time.Duration
	for _, e := range p.Pending {
		total += e.SourceDuration
	}
	return total
}

// recomputeCentroid rebuilds the centroid from the confirmed pool.
func (p *Profile) recomputeCentroid() error {
	if len(p.Confirmed) == 0 {
		p.Centroid = nil
		return nil
	}
	dim := len(p.Confirmed[0].Vector)
	sum := make([]float64, dim)
	for _, e := range p.Confirmed {
		if len(e.Vector) != dim {
			return fmt.Errorf("profile %s: confirmed embedding dimension %d, want %d",
				p.ID, len(e.Vector), dim)
		}
		for i, v := range e.Vector {
			sum[i] += float64(v)
		}
	}

	n := float64(len(p.Confirmed))
	var norm float64
	centroid := make([]float32, dim)
	for i := range sum {
		mean := sum[i] / n
		centroid[i] = float32(mean)
		norm += mean * mean
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range centroid {
			centroid[i] *= inv
		}
	}
	p.Centroid = centroid
	return nil
}
