package profile

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/medvox/medvox/pkg/kv"
	"github.com/medvox/medvox/pkg/vecstore"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), kv.NewMemory(), vecstore.NewMemory(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func unitVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		v[i] = float32(r.NormFloat64())
		norm += float64(v[i]) * float64(v[i])
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// nearby returns a unit vector at a controlled similarity to base.
func nearby(base []float32, sim float32) []float32 {
	// Mix base with an orthogonalized random direction.
	r := rand.New(rand.NewSource(7))
	other := unitVector(r, len(base))
	var dot float64
	for i := range base {
		dot += float64(base[i]) * float64(other[i])
	}
	var norm float64
	orth := make([]float32, len(base))
	for i := range base {
		orth[i] = other[i] - float32(dot)*base[i]
		norm += float64(orth[i]) * float64(orth[i])
	}
	inv := 1 / math.Sqrt(norm)
	out := make([]float32, len(base))
	w := math.Sqrt(float64(1 - sim*sim))
	for i := range base {
		out[i] = sim*base[i] + float32(w*inv)*orth[i]
	}
	return out
}

func TestEnroll(t *testing.T) {
	s := testStore(t)
	vec := unitVector(rand.New(rand.NewSource(1)), 8)

	p, err := s.Enroll(context.Background(), "Dr. Weber", "Arzt", vec, 35*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Dr. Weber" || p.Role != "Arzt" {
		t.Errorf("profile = %+v", p)
	}
	if len(p.Confirmed) != 1 || len(p.Pending) != 0 {
		t.Errorf("pools: confirmed=%d pending=%d", len(p.Confirmed), len(p.Pending))
	}
	if !p.HasCentroid() {
		t.Error("enrolled profile has no centroid")
	}

	got, err := s.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Dr. Weber" {
		t.Errorf("persisted name = %q", got.Name)
	}
}

func TestEnrollTooShort(t *testing.T) {
	s := testStore(t)
	vec := unitVector(rand.New(rand.NewSource(1)), 8)
	if _, err := s.Enroll(context.Background(), "X", "", vec, 29999*time.Millisecond); !errors.Is(err, ErrEnrollmentTooShort) {
		t.Fatalf("err = %v, want ErrEnrollmentTooShort", err)
	}
}

func TestEnrollRejectsPatientRole(t *testing.T) {
	s := testStore(t)
	vec := unitVector(rand.New(rand.NewSource(1)), 8)
	for _, role := range []string{"Patient", "patient", "PATIENT"} {
		if _, err := s.Enroll(context.Background(), "X", role, vec, time.Minute); !errors.Is(err, ErrReservedRole) {
			t.Errorf("role %q: err = %v, want ErrReservedRole", role, err)
		}
	}
}

func TestCentroidIsNormalizedMean(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		r := rand.New(rand.NewSource(int64(n)))
		p := &Profile{ID: "x"}
		vecs := make([][]float32, n)
		for i := range vecs {
			vecs[i] = unitVector(r, 16)
			p.Confirmed = append(p.Confirmed, Embedding{Vector: vecs[i]})
		}
		if err := p.recomputeCentroid(); err != nil {
			t.Fatal(err)
		}

		mean := make([]float64, 16)
		for _, v := range vecs {
			for i := range v {
				mean[i] += float64(v[i]) / float64(n)
			}
		}
		var norm float64
		for _, m := range mean {
			norm += m * m
		}
		norm = math.Sqrt(norm)

		var centroidNorm float64
		for i, c := range p.Centroid {
			want := mean[i] / norm
			if math.Abs(float64(c)-want) > 1e-5 {
				t.Errorf("n=%d: centroid[%d] = %v, want %v", n, i, c, want)
			}
			centroidNorm += float64(c) * float64(c)
		}
		if math.Abs(centroidNorm-1) > 1e-5 {
			t.Errorf("n=%d: centroid norm = %v", n, math.Sqrt(centroidNorm))
		}
	}
}

func addPendingSeconds(t *testing.T, s *Store, id string, vec []float32, secs int) {
	t.Helper()
	if err := s.AddPending(context.Background(), id, vec, time.Duration(secs)*time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestPromotionDurationGate(t *testing.T) {
	s := testStore(t)
	base := unitVector(rand.New(rand.NewSource(2)), 16)
	p, err := s.Enroll(context.Background(), "A", "", base, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	// 29,999 ms of perfectly similar audio never promotes.
	if err := s.AddPending(context.Background(), p.ID, base, 29999*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(context.Background(), p.ID)
	if len(got.Pending) != 1 || len(got.Confirmed) != 1 {
		t.Fatalf("below gate: confirmed=%d pending=%d", len(got.Confirmed), len(got.Pending))
	}

	// One more millisecond makes 30,000 and promotes.
	if err := s.AddPending(context.Background(), p.ID, base, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(context.Background(), p.ID)
	if len(got.Pending) != 0 || len(got.Confirmed) != 3 {
		t.Fatalf("at gate: confirmed=%d pending=%d", len(got.Confirmed), len(got.Pending))
	}
}

func TestPromotionStabilityGate(t *testing.T) {
	s := testStore(t)
	base := unitVector(rand.New(rand.NewSource(3)), 64)

	p, err := s.Enroll(context.Background(), "A", "", base, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	// Mean similarity just above the threshold promotes.
	addPendingSeconds(t, s, p.ID, nearby(base, 0.651), 30)
	got, _ := s.Get(context.Background(), p.ID)
	if len(got.Confirmed) != 2 || len(got.Pending) != 0 {
		t.Fatalf("at 0.651: confirmed=%d pending=%d", len(got.Confirmed), len(got.Pending))
	}
}

func TestPromotionDiscardsNoisyPool(t *testing.T) {
	s := testStore(t)
	base := unitVector(rand.New(rand.NewSource(4)), 64)

	p, err := s.Enroll(context.Background(), "A", "", base, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	// Similarity just below threshold with a confirmed reference: the
	// pool is dropped, the profile untouched.
	addPendingSeconds(t, s, p.ID, nearby(base, 0.649), 30)
	got, _ := s.Get(context.Background(), p.ID)
	if len(got.Confirmed) != 1 || len(got.Pending) != 0 {
		t.Fatalf("confirmed=%d pending=%d", len(got.Confirmed), len(got.Pending))
	}
}

func TestCreateProvisional(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p, err := s.CreateProvisional(ctx, "Sprecher A")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Confirmed) != 0 || len(p.Pending) != 0 {
		t.Errorf("pools: confirmed=%d pending=%d", len(p.Confirmed), len(p.Pending))
	}
	if p.HasCentroid() {
		t.Error("provisional profile has a centroid")
	}

	got, err := s.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Sprecher A" {
		t.Errorf("persisted name = %q", got.Name)
	}

	// Without a centroid the profile is absent from the index.
	if _, ok, err := s.Best(unitVector(rand.New(rand.NewSource(11)), 8)); err != nil || ok {
		t.Fatalf("ok = %v err = %v, want no match", ok, err)
	}
}

func TestPromotionAsymmetry(t *testing.T) {
	// A profile without confirmed embeddings retains a failing pool.
	s := testStore(t)
	ctx := context.Background()

	p, err := s.CreateProvisional(ctx, "Unbekannt")
	if err != nil {
		t.Fatal(err)
	}

	// Orthogonal samples: the first sets the reference, the second scores
	// zero against it, dragging the mean below the gate.
	v1 := make([]float32, 64)
	v1[0] = 1
	v2 := make([]float32, 64)
	v2[1] = 1
	addPendingSeconds(t, s, p.ID, v1, 20)
	addPendingSeconds(t, s, p.ID, v2, 15)

	got, err := s.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Confirmed) != 0 {
		t.Errorf("confirmed=%d, want 0", len(got.Confirmed))
	}
	if len(got.Pending) != 2 {
		t.Errorf("pending=%d, want pool retained", len(got.Pending))
	}
}

func TestProvisionalPromotesToMatchable(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := unitVector(rand.New(rand.NewSource(12)), 64)

	p, err := s.CreateProvisional(ctx, "Sprecher B")
	if err != nil {
		t.Fatal(err)
	}

	// Consistent samples past the duration gate promote the whole pool;
	// the profile gains a centroid and starts matching.
	addPendingSeconds(t, s, p.ID, base, 20)
	addPendingSeconds(t, s, p.ID, base, 10)

	got, err := s.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Confirmed) != 2 || len(got.Pending) != 0 {
		t.Fatalf("confirmed=%d pending=%d", len(got.Confirmed), len(got.Pending))
	}
	if !got.HasCentroid() {
		t.Fatal("promoted profile has no centroid")
	}

	match, ok, err := s.Best(base)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || match.ProfileID != p.ID {
		t.Fatalf("match = %+v ok = %v", match, ok)
	}
}

func TestBestMatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := unitVector(rand.New(rand.NewSource(6)), 64)

	p, err := s.Enroll(ctx, "Dr. Weber", "Arzt", base, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	match, ok, err := s.Best(nearby(base, 0.9))
	if err != nil {
		t.Fatal(err)
	}
	if !ok || match.ProfileID != p.ID || match.Name != "Dr. Weber" {
		t.Fatalf("match = %+v ok = %v", match, ok)
	}

	// Below threshold: no match.
	if _, ok, err := s.Best(nearby(base, 0.5)); err != nil || ok {
		t.Fatalf("ok = %v err = %v, want no match", ok, err)
	}
}

func TestBestIgnoresCentroidlessProfiles(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p, err := s.CreateProvisional(ctx, "X")
	if err != nil {
		t.Fatal(err)
	}
	addPendingSeconds(t, s, p.ID, []float32{1, 0}, 5)

	if _, ok, err := s.Best([]float32{1, 0}); err != nil || ok {
		t.Fatalf("ok = %v err = %v, want no match", ok, err)
	}
}

func TestDeleteAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	r := rand.New(rand.NewSource(8))

	a, _ := s.Enroll(ctx, "A", "", unitVector(r, 8), time.Minute)
	b, _ := s.Enroll(ctx, "B", "", unitVector(r, 8), time.Minute)

	profiles, err := s.List(ctx)
	if err != nil || len(profiles) != 2 {
		t.Fatalf("len = %d err = %v", len(profiles), err)
	}

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRename(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p, _ := s.Enroll(ctx, "A", "", unitVector(rand.New(rand.NewSource(9)), 8), time.Minute)

	if err := s.Rename(ctx, p.ID, "Dr. Brandt"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, p.ID)
	if got.Name != "Dr. Brandt" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestStoreReloadSeedsIndex(t *testing.T) {
	ctx := context.Background()
	kvStore := kv.NewMemory()
	base := unitVector(rand.New(rand.NewSource(10)), 32)

	s1, err := NewStore(ctx, kvStore, vecstore.NewMemory(), nil)
	if err != nil {
		t.Fatal(err)
	}
	p, err := s1.Enroll(ctx, "A", "", base, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	// A fresh Store over the same kv must match immediately.
	s2, err := NewStore(ctx, kvStore, vecstore.NewMemory(), nil)
	if err != nil {
		t.Fatal(err)
	}
	match, ok, err := s2.Best(base)
	if err != nil || !ok || match.ProfileID != p.ID {
		t.Fatalf("match = %+v ok = %v err = %v", match, ok, err)
	}
}
