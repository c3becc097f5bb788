package voiceprint

import (
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/medvox/medvox/pkg/audio/wav"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"scaled", []float32{2, 0}, []float32{5, 0}, 1},
		{"zero norm", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineSimilarity(tc.a, tc.b)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(float64(got-tc.want)) > 1e-6 {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

// fakeModel derives a deterministic unit vector from the audio length and
// records how many bytes each Extract saw.
type fakeModel struct {
	extracts []int
}

func (m *fakeModel) Extract(audio []byte) ([]float32, error) {
	m.extracts = append(m.extracts, len(audio))
	if len(audio) == 0 {
		return nil, errors.New("empty audio")
	}
	// First byte of the audio picks the direction.
	if audio[0] == 0 {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (m *fakeModel) Dimension() int { return 2 }
func (m *fakeModel) Close() error   { return nil }

// fakeMatcher accepts only vectors pointing along the second axis.
type fakeMatcher struct{}

func (fakeMatcher) Best(vec []float32) (Match, bool, error) {
	if vec[1] > 0.9 {
		return Match{ProfileID: "p1", Name: "Dr. Weber", Role: "Arzt", Similarity: 0.88}, true, nil
	}
	return Match{}, false, nil
}

// writeSpeechFile writes a WAV whose sample bytes encode sec markers: all
// samples within second s have value s+1, so the first byte of any range
// read identifies its origin (nonzero everywhere).
func writeSpeechFile(t *testing.T, seconds int) string {
	t.Helper()
	data := make([]byte, seconds*32000)
	for s := 0; s < seconds; s++ {
		for i := 0; i < 32000; i += 2 {
			binary.LittleEndian.PutUint16(data[s*32000+i:], uint16(s+1))
		}
	}
	path := filepath.Join(t.TempDir(), "speech.wav")
	if err := wav.WriteFile(path, 16000, 1, data); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIdentify(t *testing.T) {
	path := writeSpeechFile(t, 10)
	model := &fakeModel{}
	engine := NewEngine(model, nil)

	utterances := []Utterance{
		{Speaker: "A", Start: 0, End: 2 * time.Second, Text: "guten Tag"},
		{Speaker: "B", Start: 2 * time.Second, End: 4 * time.Second, Text: "hallo"},
		{Speaker: "A", Start: 4 * time.Second, End: 5 * time.Second, Text: "bitte"},
	}

	got, err := engine.Identify(path, utterances, fakeMatcher{})
	if err != nil {
		t.Fatal(err)
	}
	if got["A"] != "Arzt - Dr. Weber" {
		t.Errorf(`got["A"] = %q, want "Arzt - Dr. Weber"`, got["A"])
	}
	if got["B"] != "Arzt - Dr. Weber" {
		t.Errorf(`got["B"] = %q`, got["B"])
	}

	// Label A's audio is its own utterances concatenated: 2 s + 1 s.
	if model.extracts[0] != 3*32000 {
		t.Errorf("label A embedded %d bytes, want %d", model.extracts[0], 3*32000)
	}
}

func TestIdentifyAnonymousFallback(t *testing.T) {
	path := writeSpeechFile(t, 4)
	engine := NewEngine(&fakeModel{}, nil)

	// Zero-length utterances leave no audio to embed; the label stays
	// anonymous instead of failing.
	got, err := engine.Identify(path, []Utterance{
		{Speaker: "B", Start: time.Second, End: time.Second},
	}, fakeMatcher{})
	if err != nil {
		t.Fatal(err)
	}
	if got["B"] != "Sprecher B" {
		t.Errorf(`got["B"] = %q, want "Sprecher B"`, got["B"])
	}
}

func TestIdentifyCapsPerSpeakerAudio(t *testing.T) {
	path := writeSpeechFile(t, 40)
	model := &fakeModel{}
	engine := NewEngine(model, nil)

	// One label with 40 s of utterances; only 30 s may be embedded.
	if _, err := engine.Identify(path, []Utterance{
		{Speaker: "A", Start: 0, End: 25 * time.Second},
		{Speaker: "A", Start: 26 * time.Second, End: 39 * time.Second},
	}, fakeMatcher{}); err != nil {
		t.Fatal(err)
	}
	if want := 30 * 32000; model.extracts[0] != want {
		t.Errorf("embedded %d bytes, want %d", model.extracts[0], want)
	}
}

func TestEmbedReadsOnlyRange(t *testing.T) {
	path := writeSpeechFile(t, 10)
	model := &fakeModel{}
	engine := NewEngine(model, nil)

	if _, err := engine.Embed(path, 3*time.Second, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	if model.extracts[0] != 2*32000 {
		t.Errorf("embedded %d bytes, want %d", model.extracts[0], 2*32000)
	}
}

func TestTrimSilence(t *testing.T) {
	loud := make([]byte, 32000)
	for i := 0; i < len(loud); i += 2 {
		binary.LittleEndian.PutUint16(loud[i:], 8000)
	}
	quiet := make([]byte, 32000)

	var data []byte
	data = append(data, quiet...)
	data = append(data, loud...)
	data = append(data, quiet...)

	trimmed := trimSilence(data)
	if len(trimmed) != len(loud) {
		t.Errorf("trimmed to %d bytes, want %d", len(trimmed), len(loud))
	}

	// All-silence input is returned unchanged rather than emptied.
	if got := trimSilence(quiet); len(got) != len(quiet) {
		t.Errorf("all-silence trim returned %d bytes", len(got))
	}
}
