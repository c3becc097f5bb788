// Package fbank computes log mel filterbank features from PCM audio.
//
// This is the front-end for the speaker embedding model: raw 16 kHz mono
// PCM goes in, a [T, numMels] float32 matrix comes out, ready to be fed to
// ONNX inference. Default parameters follow the Kaldi convention used by
// 3D-Speaker models:
//
//	SampleRate:  16000
//	WindowSize:  400 (25 ms)
//	HopSize:     160 (10 ms)
//	FFTSize:     512
//	NumMels:     80
//	LowFreq:     20
//	HighFreq:    7600
//	PreEmphasis: 0.97
package fbank

import "math"

// Config controls mel filterbank extraction parameters.
type Config struct {
	SampleRate  int     // audio sample rate in Hz
	WindowSize  int     // analysis window in samples
	HopSize     int     // hop between windows in samples
	FFTSize     int     // FFT size, power of two, >= WindowSize
	NumMels     int     // number of mel bins
	LowFreq     float64 // lowest mel frequency in Hz
	HighFreq    float64 // highest mel frequency in Hz
	PreEmphasis float64 // pre-emphasis coefficient
}

// DefaultConfig returns the standard 16 kHz / 80 mel configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:  16000,
		WindowSize:  400,
		HopSize:     160,
		FFTSize:     512,
		NumMels:     80,
		LowFreq:     20,
		HighFreq:    7600,
		PreEmphasis: 0.97,
	}
}

// Extractor computes mel filterbank features from PCM samples.
type Extractor struct {
	cfg     Config
	window  []float64 // Hamming window
	melBank [][]float64
}

// New creates an Extractor with the given config.
func New(cfg Config) *Extractor {
	return &Extractor{
		cfg:     cfg,
		window:  hammingWindow(cfg.WindowSize),
		melBank: melFilterBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.LowFreq, cfg.HighFreq),
	}
}

// Extract computes log mel filterbank features from normalized float32
// samples in [-1, 1]. The result is a [T][numMels] matrix with
// T = (len(pcm) - WindowSize) / HopSize + 1; nil if the input is shorter
// than one window.
func (e *Extractor) Extract(pcm []float32) [][]float32 {
	cfg := e.cfg
	if len(pcm) < cfg.WindowSize {
		return nil
	}

	numFrames := (len(pcm)-cfg.WindowSize)/cfg.HopSize + 1
	nfft := cfg.FFTSize
	halfFFT := nfft/2 + 1

	features := make([][]float32, numFrames)

	frame := make([]float64, nfft)
	re := make([]float64, nfft)
	im := make([]float64, nfft)
	power := make([]float64, halfFFT)

	for t := 0; t < numFrames; t++ {
		start := t * cfg.HopSize

		// Pre-emphasis and windowing.
		for i := 0; i < cfg.WindowSize; i++ {
			s := float64(pcm[start+i])
			if i > 0 {
				s -= cfg.PreEmphasis * float64(pcm[start+i-1])
			}
			frame[i] = s * e.window[i]
		}
		for i := cfg.WindowSize; i < nfft; i++ {
			frame[i] = 0
		}

		copy(re, frame)
		for i := range im {
			im[i] = 0
		}
		fft(re, im)

		for i := 0; i < halfFFT; i++ {
			power[i] = re[i]*re[i] + im[i]*im[i]
		}

		mel := make([]float32, cfg.NumMels)
		for m := 0; m < cfg.NumMels; m++ {
			sum := 0.0
			for k, w := range e.melBank[m] {
				sum += w * power[k]
			}
			// Floor before log to avoid -inf on silence.
			if sum < 1e-10 {
				sum = 1e-10
			}
			mel[m] = float32(math.Log(sum))
		}
		features[t] = mel
	}
	return features
}

// ExtractFromInt16 converts raw int16 little-endian PCM bytes to float32
// and extracts features.
func (e *Extractor) ExtractFromInt16(pcm []byte) [][]float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float32(s) / 32768.0
	}
	return e.Extract(samples)
}

// CMVN applies cepstral mean and variance normalization in place: each mel
// dimension is shifted to zero mean and scaled to unit variance across all
// frames. This removes channel and room effects before embedding extraction.
func CMVN(features [][]float32) {
	if len(features) == 0 {
		return
	}
	numMels := len(features[0])
	n := float64(len(features))

	for m := 0; m < numMels; m++ {
		sum := 0.0
		for _, f := range features {
			sum += float64(f[m])
		}
		mean := sum / n

		varSum := 0.0
		for _, f := range features {
			d := float64(f[m]) - mean
			varSum += d * d
		}
		std := math.Sqrt(varSum / n)
		if std < 1e-10 {
			std = 1e-10
		}

		for _, f := range features {
			f[m] = float32((float64(f[m]) - mean) / std)
		}
	}
}

// Flatten converts [T][numMels] to a flat row-major [T*numMels] slice for
// tensor construction.
func Flatten(features [][]float32) []float32 {
	if len(features) == 0 {
		return nil
	}
	cols := len(features[0])
	flat := make([]float32, len(features)*cols)
	for t, row := range features {
		copy(flat[t*cols:], row)
	}
	return flat
}
