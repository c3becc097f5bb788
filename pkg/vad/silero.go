package vad

import (
	"fmt"
	"time"

	"github.com/streamer45/silero-vad-go/speech"
)

const (
	sampleRate = 16000

	// The Silero network consumes fixed 512 sample windows at 16 kHz.
	windowSamples = 512
)

// Silero is a Model over the Silero voice activity network. It buffers
// incoming samples into the network's fixed window size; trailing samples
// shorter than a window stay buffered until the next Process call.
type Silero struct {
	detector *speech.Detector
	buf      []float32
}

// NewSilero loads the Silero network from an ONNX file.
func NewSilero(modelPath string) (*Silero, error) {
	detector, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  modelPath,
		SampleRate: sampleRate,
		Threshold:  0.5,
	})
	if err != nil {
		return nil, fmt.Errorf("vad: load silero model: %w", err)
	}
	return &Silero{detector: detector}, nil
}

func (s *Silero) Process(samples []float32) ([]Event, error) {
	s.buf = append(s.buf, samples...)

	var events []Event
	for len(s.buf) >= windowSamples {
		window := s.buf[:windowSamples]
		event, err := s.detector.DetectStreamFrame(window)
		s.buf = s.buf[windowSamples:]
		if err != nil {
			// The detector reports a speech end it cannot place when its
			// state desynchronizes; recover by resetting and move on.
			if err.Error() == "unexpected speech end" {
				s.detector.Reset()
				continue
			}
			return events, fmt.Errorf("vad: detect frame: %w", err)
		}
		if event == nil {
			continue
		}
		if event.IsStart {
			events = append(events, Event{Start: true, Offset: sampleOffset(int(event.StartSample))})
		}
		if event.IsEnd {
			events = append(events, Event{Start: false, Offset: sampleOffset(int(event.EndSample))})
		}
	}
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return events, nil
}

func (s *Silero) Reset() error {
	s.buf = nil
	return s.detector.Reset()
}

func (s *Silero) Close() error {
	s.buf = nil
	return s.detector.Destroy()
}

func sampleOffset(sample int) time.Duration {
	return time.Duration(sample) * time.Second / sampleRate
}
