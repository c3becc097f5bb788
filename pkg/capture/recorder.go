package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/medvox/medvox/pkg/audio/pcm"
)

// Options configures a Recorder.
type Options struct {
	// FFmpegPath is the encoder binary. Defaults to "ffmpeg".
	FFmpegPath string

	// Dir is the directory recording files are written to. Required.
	Dir string

	// Enumerator resolves capture devices. A zero-value Enumerator is used
	// when nil.
	Enumerator *Enumerator

	// Logger receives lifecycle and encoder diagnostics. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// StartOptions are the per-session start parameters.
type StartOptions struct {
	// DeviceHint selects a device by exact name. Empty means the first
	// enumerated device.
	DeviceHint string

	// DeleteOld removes previous recording files before starting.
	DeleteOld bool
}

// Recorder drives the encoder process through the recording state machine.
// All methods are safe for concurrent use; the Recorder is the only writer
// of its State.
type Recorder struct {
	ffmpeg string
	dir    string
	enum   *Enumerator
	log    *slog.Logger

	// Escalation and start-commit timing, overridable in tests.
	startTimeout time.Duration
	gracePeriod  time.Duration
	killPeriod   time.Duration

	// newCommand builds the encoder invocation; tests substitute a stub.
	newCommand func(dev Device, outPath string) *exec.Cmd

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	waitCh  chan error
	batches chan Batch
	levels  chan float32
	session *SessionInfo
	lastOut string

	droppedBatches atomic.Int64
}

// New creates a Recorder. The recordings directory is created if missing.
func New(opts Options) (*Recorder, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("capture: Options.Dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: create recordings dir: %w", err)
	}
	r := &Recorder{
		ffmpeg:       "ffmpeg",
		dir:          opts.Dir,
		enum:         opts.Enumerator,
		log:          slog.Default(),
		startTimeout: 2 * time.Second,
		gracePeriod:  3 * time.Second,
		killPeriod:   2 * time.Second,
	}
	if opts.FFmpegPath != "" {
		r.ffmpeg = opts.FFmpegPath
	}
	if r.enum == nil {
		r.enum = &Enumerator{FFmpegPath: r.ffmpeg}
	}
	if opts.Logger != nil {
		r.log = opts.Logger
	}
	r.newCommand = r.encoderCommand
	return r, nil
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsRecording reports whether a recording is active.
func (r *Recorder) IsRecording() bool {
	return r.State() == StateRecording
}

// Session returns the in-flight session info, or nil when idle.
func (r *Recorder) Session() *SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	s := *r.session
	return &s
}

// Batches returns the audio batch channel of the current session. The
// channel is closed when the encoder's PCM stream ends. Nil when idle.
func (r *Recorder) Batches() <-chan Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches
}

// Levels returns the lossy per-batch RMS level channel of the current
// session. Readings are dropped rather than ever blocking the capture loop.
func (r *Recorder) Levels() <-chan float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels
}

// Start resolves a device, spawns the encoder and waits for the Recording
// transition. It returns the destination file path as soon as the session
// is committed, either on the first progress indication in the encoder's
// diagnostic stream or after a startup timeout, whichever comes first, so
// the caller can begin downstream work while the encoder keeps running.
//
// Rejected with ErrAlreadyRecording unless the state is Idle.
func (r *Recorder) Start(ctx context.Context, opts StartOptions) (string, error) {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return "", ErrAlreadyRecording
	}
	r.state = StateStarting
	r.mu.Unlock()

	path, err := r.start(ctx, opts)
	if err != nil {
		r.mu.Lock()
		r.state = StateIdle
		r.mu.Unlock()
		return "", err
	}
	return path, nil
}

func (r *Recorder) start(ctx context.Context, opts StartOptions) (string, error) {
	// Stale files may be purged here: the state is Starting, so no in-flight
	// file can be destroyed.
	if opts.DeleteOld {
		if err := r.CleanupOldRecordings(); err != nil {
			return "", err
		}
	}

	dev, err := r.enum.Resolve(ctx, opts.DeviceHint)
	if err != nil {
		return "", err
	}

	outPath := filepath.Join(r.dir, "recording_"+uuid.NewString()+".wav")
	cmd := r.newCommand(dev, outPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("%w: stdin: %v", ErrEncoderStart, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("%w: stdout: %v", ErrEncoderStart, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("%w: stderr: %v", ErrEncoderStart, err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoderStart, err)
	}
	r.log.Info("encoder spawned", "device", dev.Name, "backend", dev.Backend, "path", outPath)

	progress := make(chan struct{}, 1)
	go r.scanStderr(stderr, progress)

	batches := make(chan Batch, 64)
	levels := make(chan float32, 16)
	go r.readPCM(stdout, batches, levels)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	r.mu.Lock()
	r.cmd = cmd
	r.stdin = stdin
	r.waitCh = waitCh
	r.batches = batches
	r.levels = levels
	r.session = &SessionInfo{Path: outPath, Started: time.Now(), Device: dev}
	r.mu.Unlock()

	// Commit on the first progress line or on timeout, whichever comes
	// first. The encoder's progress reporting is not dependable across
	// device backends, so the timeout bounds start latency either way.
	select {
	case <-progress:
		r.log.Debug("encoder reported progress")
	case <-time.After(r.startTimeout):
		r.log.Debug("assuming encoder started", "after", r.startTimeout)
	case err := <-waitCh:
		r.teardown()
		return "", fmt.Errorf("%w: encoder exited during startup: %v", ErrEncoderStart, err)
	case <-ctx.Done():
		// A cancel during Starting must not race the start commit: the
		// process has already been spawned, so tear it down fully before
		// reporting the cancellation.
		cmd.Process.Kill()
		<-waitCh
		r.teardown()
		return "", ctx.Err()
	}

	r.mu.Lock()
	r.state = StateRecording
	r.mu.Unlock()
	return outPath, nil
}

// teardown clears process bookkeeping after a failed start.
func (r *Recorder) teardown() {
	r.mu.Lock()
	r.cmd = nil
	r.stdin = nil
	r.waitCh = nil
	r.session = nil
	r.mu.Unlock()
}

// Stop drives the session to completion and returns the recording path.
//
// Rejected with ErrNotRecording unless the state is Recording. The one
// exception: a non-empty output file from the previous session satisfies a
// duplicate stop, which happens when stop signals arrive twice.
//
// The encoder is asked to quit gracefully ("q" on stdin); if it has not
// exited after 3 s it is sent SIGTERM, and after a further 2 s SIGKILL.
// After exit the output file must exist and be non-empty, else
// ErrEmptyRecording.
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		if r.lastOut != "" {
			if fi, err := os.Stat(r.lastOut); err == nil && fi.Size() > 0 {
				path := r.lastOut
				r.mu.Unlock()
				r.log.Warn("duplicate stop, returning previous recording", "path", path)
				return path, nil
			}
		}
		r.mu.Unlock()
		return "", ErrNotRecording
	}
	r.state = StateStopping
	cmd := r.cmd
	stdin := r.stdin
	waitCh := r.waitCh
	outPath := r.session.Path
	r.mu.Unlock()

	if stdin != nil {
		stdin.Write([]byte("q"))
		stdin.Close()
	}

	exited := false
	select {
	case <-waitCh:
		exited = true
	case <-ctx.Done():
	case <-time.After(r.gracePeriod):
	}
	if !exited {
		r.log.Warn("encoder ignored quit, sending SIGTERM")
		cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-waitCh:
			exited = true
		case <-time.After(r.killPeriod):
		}
	}
	if !exited {
		r.log.Warn("encoder ignored SIGTERM, killing")
		cmd.Process.Kill()
		<-waitCh
	}

	r.mu.Lock()
	r.state = StateIdle
	r.cmd = nil
	r.stdin = nil
	r.waitCh = nil
	r.session = nil
	r.lastOut = outPath
	r.mu.Unlock()

	fi, err := os.Stat(outPath)
	if err != nil || fi.Size() == 0 {
		return "", ErrEmptyRecording
	}
	r.log.Info("recording stopped", "path", outPath, "size", fi.Size())
	return outPath, nil
}

// ForceStop bypasses the state machine for emergency cleanup (application
// shutdown). It always drives the recorder to Idle. Never called by normal
// control flow.
func (r *Recorder) ForceStop() {
	r.mu.Lock()
	cmd := r.cmd
	waitCh := r.waitCh
	r.cmd = nil
	r.stdin = nil
	r.waitCh = nil
	r.session = nil
	r.state = StateIdle
	r.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
		if waitCh != nil {
			<-waitCh
		}
	}
}

// CleanupOldRecordings deletes recording files from the recordings
// directory. Refused while a recording is active or stopping, so an
// in-flight file is never destroyed.
func (r *Recorder) CleanupOldRecordings() error {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()
	if state == StateRecording || state == StateStopping {
		return fmt.Errorf("capture: refusing cleanup while %s", state)
	}

	matches, err := filepath.Glob(filepath.Join(r.dir, "recording_*.wav"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			r.log.Warn("cleanup: cannot remove recording", "path", m, "error", err)
		}
	}
	return nil
}

// encoderCommand builds the ffmpeg invocation: one encoder process, two
// outputs, the WAV session file and raw s16le PCM on stdout for the VAD
// path.
func (r *Recorder) encoderCommand(dev Device, outPath string) *exec.Cmd {
	input := dev.ID
	if dev.Backend == BackendDShow {
		input = "audio=" + input
	}
	return exec.Command(r.ffmpeg,
		"-hide_banner",
		"-f", string(dev.Backend),
		"-i", input,
		"-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le", "-y", outPath,
		"-ar", "16000", "-ac", "1", "-f", "s16le", "pipe:1",
	)
}

// scanStderr watches the encoder's diagnostic stream and signals the first
// progress indication. ffmpeg terminates progress lines with \r, so the
// scanner splits on both \r and \n.
func (r *Recorder) scanStderr(stderr io.Reader, progress chan<- struct{}) {
	sc := bufio.NewScanner(stderr)
	sc.Split(scanDiagLines)
	signaled := false
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if !signaled && (bytes.Contains([]byte(line), []byte("size=")) || bytes.Contains([]byte(line), []byte("time="))) {
			signaled = true
			select {
			case progress <- struct{}{}:
			default:
			}
		}
		r.log.Debug("encoder", "line", line)
	}
}

// scanDiagLines is a bufio.SplitFunc splitting on \n or \r.
func scanDiagLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// readPCM consumes the encoder's stdout PCM stream, accumulates 20 ms
// frames into batches and publishes them. Publishing is fire-and-forget:
// the capture loop never blocks on a slow consumer. The batch channel is
// closed when the stream ends, which is the VAD worker's end-of-session
// signal.
func (r *Recorder) readPCM(stdout io.Reader, batches chan<- Batch, levels chan<- float32) {
	defer close(batches)
	defer close(levels)

	frameBytes := int(pcm.L16Mono16K.BytesInDuration(frameDuration))
	batchBytes := frameBytes * framesPerBatch

	buf := make([]byte, 0, batchBytes)
	frame := make([]byte, frameBytes)
	var consumed time.Duration
	batchStart := time.Duration(0)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		data := make([]byte, len(buf))
		copy(data, buf)

		select {
		case levels <- float32(pcm.RMS(data)):
		default:
		}
		select {
		case batches <- Batch{Offset: batchStart, Data: data}:
		default:
			if n := r.droppedBatches.Add(1); n%100 == 1 {
				r.log.Warn("VAD consumer lagging, dropping audio batches", "dropped", n)
			}
		}
		batchStart = consumed
		buf = buf[:0]
	}

	for {
		if _, err := io.ReadFull(stdout, frame); err != nil {
			break
		}
		buf = append(buf, frame...)
		consumed += frameDuration
		if len(buf) >= batchBytes {
			flush()
		}
	}
	flush()
}
