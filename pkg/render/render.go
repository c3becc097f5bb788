// Package render extracts detected speech segments from a continuous
// session recording and stitches them into a single speech-only file,
// producing a Map between the two timelines.
//
// Extraction and concatenation are lossless: the encoder is invoked in
// stream-copy mode with time-based seek, never re-encoding. Rendering is
// all or nothing; a failed stitch leaves no partial output behind.
package render

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/medvox/medvox/pkg/vad"
)

// ErrStitchFailed reports that segment extraction or concatenation did not
// complete. No output file exists when it is returned.
var ErrStitchFailed = errors.New("render: stitch failed")

// Renderer drives the external encoder for extraction and concatenation.
type Renderer struct {
	// FFmpegPath is the encoder binary. Defaults to "ffmpeg".
	FFmpegPath string

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// newCommand overrides the encoder invocation in tests.
	newCommand func(args ...string) *exec.Cmd
}

func (r *Renderer) ffmpeg() string {
	if r.FFmpegPath != "" {
		return r.FFmpegPath
	}
	return "ffmpeg"
}

func (r *Renderer) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Renderer) command(args ...string) *exec.Cmd {
	if r.newCommand != nil {
		return r.newCommand(args...)
	}
	return exec.Command(r.ffmpeg(), args...)
}

// Render extracts each marker's range from source and concatenates them
// into outPath, returning the timeline Map. A single segment is extracted
// straight to outPath; multiple segments go through per-segment temporary
// files and the encoder's concat list, swept on every path out.
func (r *Renderer) Render(source string, markers []vad.Marker, outPath string) (*Map, error) {
	if len(markers) == 0 {
		return nil, fmt.Errorf("%w: no segments", ErrStitchFailed)
	}

	m := buildMap(markers)

	if len(markers) == 1 {
		if err := r.extract(source, markers[0], outPath); err != nil {
			os.Remove(outPath)
			return nil, err
		}
		return m, nil
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(outPath), "render_*")
	if err != nil {
		return nil, fmt.Errorf("%w: temp dir: %v", ErrStitchFailed, err)
	}
	defer os.RemoveAll(tmpDir)

	var list strings.Builder
	for i, marker := range markers {
		segPath := filepath.Join(tmpDir, fmt.Sprintf("seg_%03d.wav", i))
		if err := r.extract(source, marker, segPath); err != nil {
			return nil, err
		}
		fmt.Fprintf(&list, "file '%s'\n", segPath)
	}

	listPath := filepath.Join(tmpDir, "concat.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return nil, fmt.Errorf("%w: concat list: %v", ErrStitchFailed, err)
	}

	cmd := r.command(
		"-hide_banner",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y", outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outPath)
		r.log().Error("concat failed", "error", err, "output", string(out))
		return nil, fmt.Errorf("%w: concat: %v", ErrStitchFailed, err)
	}

	r.log().Info("rendered speech-only file",
		"segments", len(markers), "duration", m.Duration(), "path", outPath)
	return m, nil
}

// extract stream-copies one time range of source into dest.
func (r *Renderer) extract(source string, marker vad.Marker, dest string) error {
	cmd := r.command(
		"-hide_banner",
		"-ss", ffmpegTime(marker.Start),
		"-t", ffmpegTime(marker.Duration()),
		"-i", source,
		"-c", "copy",
		"-y", dest,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		r.log().Error("segment extraction failed",
			"start", marker.Start, "end", marker.End, "error", err, "output", string(out))
		return fmt.Errorf("%w: extract %v..%v: %v", ErrStitchFailed, marker.Start, marker.End, err)
	}
	return nil
}

// buildMap lays the markers end to end on the speech timeline.
func buildMap(markers []vad.Marker) *Map {
	m := &Map{Spans: make([]Span, len(markers))}
	var cursor time.Duration
	for i, marker := range markers {
		d := marker.Duration()
		m.Spans[i] = Span{
			OriginalStart: marker.Start,
			OriginalEnd:   marker.End,
			SpeechStart:   cursor,
			SpeechEnd:     cursor + d,
		}
		cursor += d
	}
	return m
}

func ffmpegTime(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
