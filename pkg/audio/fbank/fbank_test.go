package fbank

import (
	"math"
	"testing"
)

func TestExtractFrameCount(t *testing.T) {
	e := New(DefaultConfig())

	tests := []struct {
		samples int
		frames  int
	}{
		{399, 0},  // below one window
		{400, 1},  // exactly one window
		{560, 2},  // one window + one hop
		{16000, 98},
	}
	for _, tt := range tests {
		pcm := make([]float32, tt.samples)
		got := e.Extract(pcm)
		if len(got) != tt.frames {
			t.Errorf("Extract(%d samples): %d frames, want %d", tt.samples, len(got), tt.frames)
		}
	}
}

func TestExtractDimensions(t *testing.T) {
	e := New(DefaultConfig())
	pcm := make([]float32, 16000)
	for i := range pcm {
		pcm[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 16000))
	}
	features := e.Extract(pcm)
	if len(features) == 0 {
		t.Fatal("no frames extracted")
	}
	for _, row := range features {
		if len(row) != 80 {
			t.Fatalf("mel dimension = %d, want 80", len(row))
		}
	}
}

func TestExtractToneHasEnergyNearFrequency(t *testing.T) {
	e := New(DefaultConfig())

	// 1 kHz tone: the mel bin with maximum energy should be well below the
	// bin for a 4 kHz tone.
	binOfPeak := func(freq float64) int {
		pcm := make([]float32, 8000)
		for i := range pcm {
			pcm[i] = 0.5 * float32(math.Sin(2*math.Pi*freq*float64(i)/16000))
		}
		features := e.Extract(pcm)
		mid := features[len(features)/2]
		best := 0
		for m, v := range mid {
			if v > mid[best] {
				best = m
			}
		}
		return best
	}

	low := binOfPeak(1000)
	high := binOfPeak(4000)
	if low >= high {
		t.Errorf("peak bins not ordered by frequency: 1kHz→%d, 4kHz→%d", low, high)
	}
}

func TestExtractFromInt16(t *testing.T) {
	e := New(DefaultConfig())
	pcm := make([]byte, 32000) // 1s of silence
	features := e.ExtractFromInt16(pcm)
	if len(features) != 98 {
		t.Errorf("frames = %d, want 98", len(features))
	}
}

func TestCMVN(t *testing.T) {
	features := [][]float32{
		{1, 10},
		{2, 20},
		{3, 30},
	}
	CMVN(features)

	for m := 0; m < 2; m++ {
		sum := 0.0
		sumSq := 0.0
		for _, f := range features {
			sum += float64(f[m])
			sumSq += float64(f[m]) * float64(f[m])
		}
		mean := sum / 3
		variance := sumSq/3 - mean*mean
		if math.Abs(mean) > 1e-5 {
			t.Errorf("dim %d: mean = %f, want 0", m, mean)
		}
		if math.Abs(variance-1) > 1e-4 {
			t.Errorf("dim %d: variance = %f, want 1", m, variance)
		}
	}
}

func TestCMVNEmpty(t *testing.T) {
	CMVN(nil) // must not panic
}

func TestFlatten(t *testing.T) {
	features := [][]float32{{1, 2}, {3, 4}, {5, 6}}
	flat := Flatten(features)
	want := []float32{1, 2, 3, 4, 5, 6}
	if len(flat) != len(want) {
		t.Fatalf("len = %d, want %d", len(flat), len(want))
	}
	for i := range want {
		if flat[i] != want[i] {
			t.Errorf("flat[%d] = %f, want %f", i, flat[i], want[i])
		}
	}
	if Flatten(nil) != nil {
		t.Error("Flatten(nil) should be nil")
	}
}

func TestFFTImpulse(t *testing.T) {
	// FFT of a unit impulse is flat: all bins have magnitude 1.
	n := 512
	re := make([]float64, n)
	im := make([]float64, n)
	re[0] = 1
	fft(re, im)
	for i := 0; i < n; i++ {
		mag := math.Hypot(re[i], im[i])
		if math.Abs(mag-1) > 1e-9 {
			t.Fatalf("bin %d: magnitude = %f, want 1", i, mag)
		}
	}
}

func TestFFTSingleTone(t *testing.T) {
	// A pure tone at bin 8 should concentrate energy at bins 8 and n-8.
	n := 512
	re := make([]float64, n)
	im := make([]float64, n)
	for i := 0; i < n; i++ {
		re[i] = math.Cos(2 * math.Pi * 8 * float64(i) / float64(n))
	}
	fft(re, im)

	peak := 0
	for i := 1; i < n/2; i++ {
		if math.Hypot(re[i], im[i]) > math.Hypot(re[peak], im[peak]) {
			peak = i
		}
	}
	if peak != 8 {
		t.Errorf("peak bin = %d, want 8", peak)
	}
}
