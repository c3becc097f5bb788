package vad

import (
	"log/slog"
	"sync"
	"time"

	"github.com/medvox/medvox/pkg/audio/pcm"
	"github.com/medvox/medvox/pkg/capture"
)

// Worker runs a Model over a capture batch stream and accumulates raw
// speech markers. Start it once per session; when the batch channel
// closes, a still-open speech region is closed at the end of the consumed
// audio and the worker becomes done.
type Worker struct {
	model Model
	log   *slog.Logger

	once sync.Once
	done chan struct{}

	mu       sync.Mutex
	markers  []Marker
	open     time.Duration
	speaking bool
	consumed time.Duration
	err      error
}

// NewWorker creates a Worker around model. Logger defaults to
// slog.Default.
func NewWorker(model Model, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		model: model,
		log:   logger,
		done:  make(chan struct{}),
	}
}

// Start launches the consuming goroutine. Subsequent calls are no-ops.
func (w *Worker) Start(batches <-chan capture.Batch) {
	w.once.Do(func() {
		go w.run(batches)
	})
}

// Done is closed when the batch stream has been fully consumed.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Markers returns the raw session markers accumulated so far, plus any
// detector error. After Done the result is final.
func (w *Worker) Markers() ([]Marker, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Marker, len(w.markers))
	copy(out, w.markers)
	return out, w.err
}

// Speaking reports whether the detector currently sees an open speech
// region. Meant for live UI level/state readouts.
func (w *Worker) Speaking() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.speaking
}

func (w *Worker) run(batches <-chan capture.Batch) {
	defer close(w.done)

	// The model places events on its own timeline of audio actually fed to
	// it. Batches dropped under backpressure open a gap between that
	// timeline and the session timeline; drift tracks the accumulated gap
	// so markers stay anchored to batch offsets.
	var fed, drift time.Duration

	for batch := range batches {
		if gap := batch.Offset - (fed + drift); gap > 0 {
			drift += gap
			w.log.Warn("audio gap in batch stream, resynchronizing markers",
				"gap", gap, "offset", batch.Offset)
		}
		events, err := w.model.Process(pcm.Float32(batch.Data))
		fed += pcm.L16Mono16K.Duration(int64(len(batch.Data)))

		w.mu.Lock()
		w.consumed = batch.Offset + pcm.L16Mono16K.Duration(int64(len(batch.Data)))
		for _, ev := range events {
			ev.Offset += drift
			w.fold(ev)
		}
		if err != nil && w.err == nil {
			w.err = err
		}
		w.mu.Unlock()

		if err != nil {
			w.log.Error("voice activity detection failed", "error", err)
			// Keep draining so the capture loop is never blocked.
		}
	}

	w.mu.Lock()
	if w.speaking {
		// The session ended mid-speech; close the region at the end of
		// the audio actually consumed.
		w.markers = append(w.markers, Marker{Start: w.open, End: w.consumed})
		w.speaking = false
	}
	w.mu.Unlock()
}

// fold applies a boundary event idempotently: a start while speech is open
// or an end while it is closed is dropped rather than corrupting the
// marker list.
func (w *Worker) fold(ev Event) {
	if ev.Start {
		if w.speaking {
			return
		}
		w.speaking = true
		w.open = ev.Offset
		return
	}
	if !w.speaking {
		return
	}
	end := ev.Offset
	if end < w.open {
		end = w.open
	}
	w.markers = append(w.markers, Marker{Start: w.open, End: end})
	w.speaking = false
}
