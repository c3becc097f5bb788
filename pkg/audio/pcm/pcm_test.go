package pcm

import (
	"math"
	"testing"
	"time"
)

func TestFormatConversions(t *testing.T) {
	f := L16Mono16K

	if got := f.BytesRate(); got != 32000 {
		t.Errorf("BytesRate() = %d, want 32000", got)
	}
	if got := f.SamplesInDuration(20 * time.Millisecond); got != 320 {
		t.Errorf("SamplesInDuration(20ms) = %d, want 320", got)
	}
	if got := f.BytesInDuration(20 * time.Millisecond); got != 640 {
		t.Errorf("BytesInDuration(20ms) = %d, want 640", got)
	}
	if got := f.Duration(32000); got != time.Second {
		t.Errorf("Duration(32000) = %v, want 1s", got)
	}
	if got := f.SampleDuration(16000); got != time.Second {
		t.Errorf("SampleDuration(16000) = %v, want 1s", got)
	}
	if got := f.Samples(640); got != 320 {
		t.Errorf("Samples(640) = %d, want 320", got)
	}
}

func TestFloat32(t *testing.T) {
	// samples: 0, 16384 (0.5), -32768 (-1.0)
	b := []byte{0x00, 0x00, 0x00, 0x40, 0x00, 0x80}
	got := Float32(b)
	want := []float32{0, 0.5, -1.0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestFloat32OddTrailingByte(t *testing.T) {
	b := []byte{0x00, 0x40, 0xFF}
	if got := Float32(b); len(got) != 1 {
		t.Errorf("expected trailing byte ignored, got %d samples", len(got))
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}

	// Constant full-scale signal: RMS should be ~1.0.
	b := make([]byte, 640)
	for i := 0; i < len(b); i += 2 {
		b[i] = 0x00
		b[i+1] = 0x80 // -32768
	}
	if got := RMS(b); math.Abs(got-1.0) > 1e-6 {
		t.Errorf("RMS(full scale) = %f, want 1.0", got)
	}

	// Silence.
	if got := RMS(make([]byte, 640)); got != 0 {
		t.Errorf("RMS(silence) = %f, want 0", got)
	}
}
