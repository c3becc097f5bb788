// Package vad streams captured audio through a voice activity model and
// turns the model's boundary events into speech markers on the session
// timeline.
//
// The package splits into three layers. Model is the detector abstraction;
// Silero implements it over an ONNX Silero network with its fixed 512
// sample window. Worker is the streaming side: it consumes the capture
// batch channel, feeds normalized samples to the model and folds the
// start/end events into raw markers, closing a dangling open region when
// the stream ends. Process is the pure post-pass that filters, merges and
// pads the raw markers into the final segments.
package vad

import (
	"cmp"
	"slices"
	"time"
)

// Event is a speech boundary on the session timeline.
type Event struct {
	// Start is true for a speech onset, false for a speech end.
	Start bool

	// Offset is the boundary position from the beginning of the session.
	Offset time.Duration
}

// Model detects speech boundaries in a mono 16 kHz sample stream.
type Model interface {
	// Process consumes normalized samples and returns the boundary events
	// they complete, in order. Sample position is tracked across calls.
	Process(samples []float32) ([]Event, error)

	// Reset discards buffered samples and internal detector state.
	Reset() error

	Close() error
}

// Marker is a detected speech region on the original session timeline.
type Marker struct {
	Start time.Duration
	End   time.Duration
}

// Duration returns the marker's length.
func (m Marker) Duration() time.Duration {
	return m.End - m.Start
}

const (
	// minSpeech is the shortest marker kept by filtering. Anything below
	// is treated as a spurious detection.
	minSpeech = 300 * time.Millisecond

	// mergeGap is the largest silence bridged between two markers, so a
	// brief pause inside a sentence does not split it.
	mergeGap = 500 * time.Millisecond

	// Padding is asymmetric: speech onset is harder for the model to
	// catch than offset.
	padBefore = 800 * time.Millisecond
	padAfter  = 500 * time.Millisecond
)

// Process turns raw detector markers into final speech segments: filter
// out markers shorter than 300 ms, merge neighbors separated by less than
// 500 ms, then pad each survivor by 800 ms before and 500 ms after,
// clamped to the session bounds and to the neighboring marker. The
// ordering matters: filtering before merging avoids bridging through
// noise blips, and padding last keeps pads from inflating markers that
// merging would have absorbed. The result is sorted and non-overlapping.
func Process(markers []Marker, sessionDuration time.Duration) []Marker {
	kept := make([]Marker, 0, len(markers))
	for _, m := range markers {
		if m.Duration() >= minSpeech {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return nil
	}

	slices.SortFunc(kept, func(a, b Marker) int {
		return cmp.Compare(a.Start, b.Start)
	})

	merged := kept[:1]
	for _, m := range kept[1:] {
		last := &merged[len(merged)-1]
		if m.Start-last.End < mergeGap {
			if m.End > last.End {
				last.End = m.End
			}
			continue
		}
		merged = append(merged, m)
	}

	out := make([]Marker, len(merged))
	for i, m := range merged {
		start := m.Start - padBefore
		if start < 0 {
			start = 0
		}
		if i > 0 && start < out[i-1].End {
			start = out[i-1].End
		}
		end := m.End + padAfter
		if end > sessionDuration {
			end = sessionDuration
		}
		out[i] = Marker{Start: start, End: end}
	}
	return out
}
