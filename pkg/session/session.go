// Package session orchestrates one dictation session: the capture
// recorder, the streaming voice activity worker and the speech-only
// render run as one unit with a single owner of the recording state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/medvox/medvox/pkg/audio/wav"
	"github.com/medvox/medvox/pkg/capture"
	"github.com/medvox/medvox/pkg/render"
	"github.com/medvox/medvox/pkg/vad"
)

// ErrNoSpeech reports a session in which no speech survived marker
// processing. The recording file is deleted before this is returned.
var ErrNoSpeech = errors.New("session: no speech detected")

// Result is a finished session.
type Result struct {
	// OriginalPath is the continuous session recording.
	OriginalPath string

	// SpeechPath is the rendered speech-only file.
	SpeechPath string

	// Map translates between the two timelines.
	Map *render.Map

	// Markers are the final speech segments on the original timeline.
	Markers []vad.Marker

	// Duration is the original recording's length.
	Duration time.Duration
}

// Recorder is the capture surface the controller drives. Satisfied by
// *capture.Recorder.
type Recorder interface {
	Start(ctx context.Context, opts capture.StartOptions) (string, error)
	Stop(ctx context.Context) (string, error)
	ForceStop()
	IsRecording() bool
	State() capture.State
	Batches() <-chan capture.Batch
	Levels() <-chan float32
}

// Renderer produces the speech-only file. Satisfied by *render.Renderer.
type Renderer interface {
	Render(source string, markers []vad.Marker, outPath string) (*render.Map, error)
}

// Options configures a Controller.
type Options struct {
	Recorder Recorder

	// Model is the voice activity model; a fresh worker wraps it per
	// session.
	Model vad.Model

	Renderer Renderer

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Controller drives a session end to end. It is the only writer of the
// recorder's state and must not be shared across concurrent sessions.
type Controller struct {
	recorder Recorder
	model    vad.Model
	renderer Renderer
	log      *slog.Logger

	worker *vad.Worker
	path   string
}

// NewController builds a Controller from opts.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		recorder: opts.Recorder,
		model:    opts.Model,
		renderer: opts.Renderer,
		log:      logger,
	}
}

// Start begins recording and attaches the voice activity worker to the
// live audio stream. The recorder is spawned before the worker so no
// batch is ever produced without a consumer attached.
func (c *Controller) Start(ctx context.Context, opts capture.StartOptions) (string, error) {
	if err := c.model.Reset(); err != nil {
		return "", fmt.Errorf("session: reset vad model: %w", err)
	}

	path, err := c.recorder.Start(ctx, opts)
	if err != nil {
		return "", err
	}
	c.path = path

	c.worker = vad.NewWorker(c.model, c.log)
	c.worker.Start(c.recorder.Batches())

	c.log.Info("session started", "path", path)
	return path, nil
}

// Levels exposes the live amplitude channel for UI display. Lossy; reads
// may miss batches and must never be relied on for completeness.
func (c *Controller) Levels() <-chan float32 {
	return c.recorder.Levels()
}

// IsRecording reports whether a session is active.
func (c *Controller) IsRecording() bool {
	return c.recorder.IsRecording()
}

// State returns the recorder's lifecycle state.
func (c *Controller) State() capture.State {
	return c.recorder.State()
}

// Stop ends the recording, waits for the voice activity worker to finish
// the stream, processes markers and renders the speech-only file next to
// the original. A session without surviving speech deletes the recording
// and returns ErrNoSpeech.
func (c *Controller) Stop(ctx context.Context) (*Result, error) {
	// Without a session there is no worker to drain, even if the shared
	// recorder would accept the stop as a duplicate.
	if c.worker == nil {
		return nil, capture.ErrNotRecording
	}

	path, err := c.recorder.Stop(ctx)
	if err != nil {
		return nil, err
	}

	// The encoder has exited, so the batch stream is closed and the
	// worker drains what is left.
	select {
	case <-c.worker.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	raw, workerErr := c.worker.Markers()
	if workerErr != nil {
		c.log.Warn("voice activity detection was degraded", "error", workerErr)
	}

	duration, err := recordingDuration(path)
	if err != nil {
		return nil, err
	}

	markers := vad.Process(raw, duration)
	if len(markers) == 0 {
		c.log.Info("no speech in session, deleting recording", "path", path)
		os.Remove(path)
		return nil, ErrNoSpeech
	}

	speechPath := speechPath(path)
	speechMap, err := c.renderer.Render(path, markers, speechPath)
	if err != nil {
		return nil, err
	}

	c.log.Info("session finished",
		"path", path,
		"speech", speechPath,
		"segments", len(markers),
		"duration", duration,
		"speech_duration", speechMap.Duration())
	return &Result{
		OriginalPath: path,
		SpeechPath:   speechPath,
		Map:          speechMap,
		Markers:      markers,
		Duration:     duration,
	}, nil
}

// Cancel stops an in-flight session and discards its recording. The stop
// still runs through the full escalation so the encoder is never
// orphaned.
func (c *Controller) Cancel(ctx context.Context) error {
	if c.worker == nil {
		return capture.ErrNotRecording
	}

	path, err := c.recorder.Stop(ctx)
	if err != nil {
		return err
	}
	select {
	case <-c.worker.Done():
	case <-ctx.Done():
	}
	os.Remove(path)
	c.log.Info("session canceled", "path", path)
	return nil
}

// ForceStop is the emergency shutdown path.
func (c *Controller) ForceStop() {
	c.recorder.ForceStop()
}

func recordingDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h, err := wav.ReadHeader(f)
	if err != nil {
		return 0, fmt.Errorf("session: read recording header: %w", err)
	}
	return h.Duration(), nil
}

// speechPath derives the speech-only file name from the recording path.
func speechPath(recording string) string {
	base := strings.TrimSuffix(recording, ".wav")
	return base + "_speech.wav"
}
