package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/medvox/medvox/pkg/kv"
	"github.com/medvox/medvox/pkg/vecstore"
	"github.com/medvox/medvox/pkg/voiceprint"
)

// keyPrefix is the store namespace: profile:<id>.
var keyPrefix = kv.Key{"profile"}

func profileKey(id string) kv.Key {
	return kv.Key{"profile", id}
}

// Store persists profiles in a key-value store and keeps their centroids
// in a vector index for matching. It implements voiceprint.Matcher.
//
// Store is safe for concurrent use; the promotion state machine runs
// under a single lock so two sessions can never race a profile update.
type Store struct {
	mu    sync.Mutex
	kv    kv.Store
	index vecstore.Index
	log   *slog.Logger
}

// NewStore creates a Store and seeds the vector index with the centroids
// of all persisted profiles.
func NewStore(ctx context.Context, store kv.Store, index vecstore.Index, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{kv: store, index: index, log: logger}

	for entry, err := range store.List(ctx, keyPrefix) {
		if err != nil {
			return nil, fmt.Errorf("profile: load profiles: %w", err)
		}
		var p Profile
		if err := msgpack.Unmarshal(entry.Value, &p); err != nil {
			return nil, fmt.Errorf("profile: decode %s: %w", entry.Key, err)
		}
		if p.HasCentroid() {
			if err := index.Upsert(p.ID, p.Centroid); err != nil {
				return nil, fmt.Errorf("profile: index %s: %w", p.ID, err)
			}
		}
	}
	return s, nil
}

// Enroll creates a profile from one enrollment embedding. The audio
// behind the embedding must contain at least MinEnrollment of net speech,
// and the patient role is rejected.
func (s *Store) Enroll(ctx context.Context, name, role string, vector []float32, audioDuration time.Duration) (*Profile, error) {
	if strings.EqualFold(role, "patient") {
		return nil, ErrReservedRole
	}
	if audioDuration < MinEnrollment {
		return nil, fmt.Errorf("%w: %v < %v", ErrEnrollmentTooShort, audioDuration, MinEnrollment)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	p := &Profile{
		ID:   uuid.NewString(),
		Name: name,
		Role: role,
		Confirmed: []Embedding{{
			Vector:         vector,
			SourceDuration: audioDuration,
			Source:         SourceEnrollment,
			AddedAt:        now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.recomputeCentroid(); err != nil {
		return nil, err
	}
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("profile enrolled", "id", p.ID, "name", name, "role", role)
	return p, nil
}

// CreateProvisional creates a profile with no confirmed embeddings and no
// centroid. This is the cold-start path for a speaker first sighted during
// optimization: samples accumulate in the pending pool via AddPending
// until the pool passes both promotion gates, at which point the profile
// gains a centroid and becomes matchable.
func (s *Store) CreateProvisional(ctx context.Context, name string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	p := &Profile{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("provisional profile created", "id", p.ID, "name", name)
	return p, nil
}

// AddPending appends a provisional embedding to the profile's pending
// pool and runs the promotion state machine:
//
//   - The sample is stored with its similarity to the current reference,
//     the centroid if one exists, else the mean of the pending pool.
//   - Below 30 s of total pending audio no decision is made.
//   - At or above 30 s, a mean pending similarity of at least 0.65
//     promotes the whole pool to confirmed and rebuilds the centroid.
//   - A failing pool is discarded when confirmed embeddings exist, but
//     retained when the profile has no trusted reference yet.
func (s *Store) AddPending(ctx context.Context, id string, vector []float32, audioDuration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	sim, err := referenceSimilarity(p, vector)
	if err != nil {
		return err
	}
	p.Pending = append(p.Pending, Embedding{
		Vector:         vector,
		SourceDuration: audioDuration,
		Source:         SourceOptimization,
		Similarity:     sim,
		AddedAt:        time.Now(),
	})

	if p.pendingDuration() < promotionDuration {
		s.log.Debug("pending sample stored, below duration gate",
			"id", id, "pending", p.pendingDuration(), "similarity", sim)
		return s.save(ctx, p)
	}

	var mean float64
	for _, e := range p.Pending {
		mean += float64(e.Similarity)
	}
	mean /= float64(len(p.Pending))

	switch {
	case mean >= promotionSimilarity:
		p.Confirmed = append(p.Confirmed, p.Pending...)
		p.Pending = nil
		if err := p.recomputeCentroid(); err != nil {
			return err
		}
		s.log.Info("pending pool promoted",
			"id", id, "confirmed", len(p.Confirmed), "mean_similarity", mean)
	case len(p.Confirmed) > 0:
		// An established profile is protected from a noisy session; the
		// whole pool is treated as drift and dropped.
		s.log.Warn("pending pool discarded",
			"id", id, "samples", len(p.Pending), "mean_similarity", mean)
		p.Pending = nil
	default:
		// No trusted reference exists to judge the pool against, so it
		// keeps accumulating.
		s.log.Debug("pending pool retained, no confirmed reference",
			"id", id, "samples", len(p.Pending), "mean_similarity", mean)
	}
	return s.save(ctx, p)
}

// referenceSimilarity scores vector against the profile's current
// reference. A profile with neither centroid nor pending samples has no
// reference; the first sample scores 1 against itself.
func referenceSimilarity(p *Profile, vector []float32) (float32, error) {
	ref := p.Centroid
	if len(ref) == 0 && len(p.Pending) > 0 {
		dim := len(p.Pending[0].Vector)
		mean := make([]float32, dim)
		for _, e := range p.Pending {
			if len(e.Vector) != dim {
				return 0, voiceprint.ErrDimensionMismatch
			}
			for i, v := range e.Vector {
				mean[i] += v
			}
		}
		ref = mean
	}
	if len(ref) == 0 {
		return 1, nil
	}
	return voiceprint.CosineSimilarity(ref, vector)
}

// Best implements voiceprint.Matcher: the stored profile whose centroid
// is most similar to vec, accepted only at or above MatchThreshold.
// Profiles without a centroid are absent from the index and can never
// match.
func (s *Store) Best(vec []float32) (voiceprint.Match, bool, error) {
	matches, err := s.index.Search(vec, 1)
	if err != nil {
		if errors.Is(err, vecstore.ErrDimension) {
			return voiceprint.Match{}, false, voiceprint.ErrDimensionMismatch
		}
		return voiceprint.Match{}, false, err
	}
	if len(matches) == 0 || matches[0].Similarity < MatchThreshold {
		return voiceprint.Match{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.load(context.Background(), matches[0].ID)
	if err != nil {
		return voiceprint.Match{}, false, err
	}
	return voiceprint.Match{
		ProfileID:  p.ID,
		Name:       p.Name,
		Role:       p.Role,
		Similarity: matches[0].Similarity,
	}, true, nil
}

// Get returns one profile by ID.
func (s *Store) Get(ctx context.Context, id string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, id)
}

// List returns all profiles ordered by store key.
func (s *Store) List(ctx context.Context) ([]*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Profile
	for entry, err := range s.kv.List(ctx, keyPrefix) {
		if err != nil {
			return nil, err
		}
		var p Profile
		if err := msgpack.Unmarshal(entry.Value, &p); err != nil {
			return nil, fmt.Errorf("profile: decode %s: %w", entry.Key, err)
		}
		out = append(out, &p)
	}
	return out, nil
}

// Rename updates a profile's display name.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	p.Name = name
	return s.save(ctx, p)
}

// Delete removes a profile and its index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, profileKey(id)); err != nil {
		return err
	}
	if err := s.index.Delete(id); err != nil {
		return err
	}
	s.log.Info("profile deleted", "id", id)
	return nil
}

func (s *Store) load(ctx context.Context, id string) (*Profile, error) {
	raw, err := s.kv.Get(ctx, profileKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	var p Profile
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("profile: decode %s: %w", id, err)
	}
	return &p, nil
}

// save persists the profile and synchronizes its index entry.
func (s *Store) save(ctx context.Context, p *Profile) error {
	p.UpdatedAt = time.Now()
	raw, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("profile: encode %s: %w", p.ID, err)
	}
	if err := s.kv.Set(ctx, profileKey(p.ID), raw); err != nil {
		return err
	}
	if p.HasCentroid() {
		return s.index.Upsert(p.ID, p.Centroid)
	}
	return nil
}
