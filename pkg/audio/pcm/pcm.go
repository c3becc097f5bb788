// Package pcm provides arithmetic over raw PCM audio: conversions between
// byte counts, sample counts and wall-clock durations, plus sample-level
// helpers shared by the capture and analysis paths.
//
// The whole pipeline runs on a single format, [L16Mono16K]: signed 16-bit
// little-endian samples, 16 kHz, one channel. The Format type exists so the
// conversion math is written once and named, not so other rates are expected.
package pcm

import (
	"math"
	"time"
)

// Format represents an audio format configuration.
type Format int

const (
	// L16Mono16K represents audio/L16; rate=16000; channels=1.
	L16Mono16K Format = iota
)

// SampleRate returns the sample rate in Hz for this format.
func (f Format) SampleRate() int {
	return 16000
}

// Channels returns the number of audio channels for this format.
func (f Format) Channels() int {
	return 1
}

// Depth returns the bit depth for this format.
func (f Format) Depth() int {
	return 16
}

// BytesRate returns the number of bytes per second of audio.
func (f Format) BytesRate() int {
	return f.SampleRate() * f.Channels() * f.Depth() / 8
}

// Samples returns the number of samples in the given number of bytes.
func (f Format) Samples(bytes int64) int64 {
	return bytes * 8 / int64(f.Channels()) / int64(f.Depth())
}

// SamplesInDuration returns the number of samples in the given duration.
func (f Format) SamplesInDuration(d time.Duration) int64 {
	return int64(time.Duration(f.SampleRate()) * d / time.Second)
}

// BytesInDuration returns the number of bytes in the given duration.
func (f Format) BytesInDuration(d time.Duration) int64 {
	return f.SamplesInDuration(d) * int64(f.Channels()) * int64(f.Depth()) / 8
}

// Duration returns the duration of the given number of bytes.
func (f Format) Duration(bytes int64) time.Duration {
	return time.Duration(f.Samples(bytes)) * time.Second / time.Duration(f.SampleRate())
}

// SampleDuration returns the duration of the given number of samples.
func (f Format) SampleDuration(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate())
}

// String returns a human-readable string representation of the format.
func (f Format) String() string {
	return "audio/L16; rate=16000; channels=1"
}

// Float32 converts int16 little-endian PCM bytes to normalized float32
// samples in [-1, 1). A trailing odd byte is ignored.
func Float32(b []byte) []float32 {
	n := len(b) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(b[i*2]) | int16(b[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

// RMS computes the root-mean-square level of int16 little-endian PCM bytes,
// normalized to [0, 1]. Returns 0 for empty input.
func RMS(b []byte) float64 {
	n := len(b) / 2
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		s := float64(int16(b[i*2]) | int16(b[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768.0
}
