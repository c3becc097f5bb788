// Package capture records a continuous audio stream from a microphone
// device by driving an external ffmpeg encoder process.
//
// The encoder writes two outputs at once: the full-session 16 kHz mono WAV
// file on disk, and the same PCM stream on its stdout. The stdout stream is
// cut into fixed 20 ms frames, batched, and published on a channel for the
// voice-activity worker; per-batch RMS levels go out on a second, lossy
// channel for UI display.
//
// A [Recorder] owns the encoder's lifecycle behind a strict state machine
// (Idle → Starting → Recording → Stopping → Idle). ffmpeg has no reliable
// single-shot stop primitive across device backends, so Stop escalates:
// a "q" on stdin, then SIGTERM, then SIGKILL.
package capture

import (
	"errors"
	"time"
)

// Errors returned by the capture package. Callers are expected to branch on
// these: ErrDeviceNotFound and ErrEncoderStart are recoverable (reselect the
// device, retry), ErrEmptyRecording is user-facing, and the state guard
// errors indicate a contract violation by the caller.
var (
	ErrDeviceNotFound   = errors.New("capture: audio device not found")
	ErrEncoderStart     = errors.New("capture: encoder failed to start")
	ErrEmptyRecording   = errors.New("capture: recording is empty")
	ErrAlreadyRecording = errors.New("capture: recording already active")
	ErrNotRecording     = errors.New("capture: no active recording")
)

// State is the recording lifecycle state. There is exactly one State value
// per Recorder and the Recorder is its only writer.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

const (
	// frameDuration is the length of one audio frame on the VAD path.
	frameDuration = 20 * time.Millisecond
	// framesPerBatch is the number of frames forwarded per batch (~100 ms).
	framesPerBatch = 5
)

// Batch is a copied slice of captured PCM forwarded to the VAD worker.
// Data is 16-bit little-endian mono at 16 kHz and is owned by the receiver.
type Batch struct {
	// Offset is the position of the first sample relative to session start.
	Offset time.Duration
	Data   []byte
}

// SessionInfo describes the capture session currently in flight.
type SessionInfo struct {
	Path    string
	Started time.Time
	Device  Device
}
