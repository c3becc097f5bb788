package render

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/medvox/medvox/pkg/vad"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestBuildMapContiguous(t *testing.T) {
	markers := []vad.Marker{
		{Start: ms(1000), End: ms(2500)},
		{Start: ms(4000), End: ms(4800)},
		{Start: ms(7000), End: ms(9000)},
	}
	m := buildMap(markers)

	if m.Duration() != ms(1500+800+2000) {
		t.Errorf("duration = %v", m.Duration())
	}
	for i := 1; i < len(m.Spans); i++ {
		if m.Spans[i].SpeechStart != m.Spans[i-1].SpeechEnd {
			t.Errorf("span %d not contiguous: %+v", i, m.Spans)
		}
	}
}

func TestMapRoundTrip(t *testing.T) {
	m := buildMap([]vad.Marker{
		{Start: ms(1000), End: ms(2500)},
		{Start: ms(4000), End: ms(4800)},
	})

	// Any original position inside a marker round-trips exactly.
	for _, orig := range []time.Duration{ms(1000), ms(1750), ms(2499), ms(4000), ms(4500)} {
		speech, ok := m.ToSpeech(orig)
		if !ok {
			t.Fatalf("ToSpeech(%v) not found", orig)
		}
		back, ok := m.ToOriginal(speech)
		if !ok || back != orig {
			t.Errorf("round trip %v -> %v -> %v", orig, speech, back)
		}
	}
}

func TestMapSilenceGapNotFound(t *testing.T) {
	m := buildMap([]vad.Marker{
		{Start: ms(1000), End: ms(2000)},
		{Start: ms(5000), End: ms(6000)},
	})

	for _, orig := range []time.Duration{0, ms(999), ms(3000), ms(6000)} {
		if _, ok := m.ToSpeech(orig); ok {
			t.Errorf("ToSpeech(%v) found a position inside a silence gap", orig)
		}
	}
	if _, ok := m.ToOriginal(ms(2000)); ok {
		t.Error("ToOriginal past the speech end reported found")
	}
}

// stubRenderer records encoder invocations and materializes their output
// files with a shell true.
func stubRenderer(t *testing.T, fail bool) (*Renderer, *[][]string) {
	t.Helper()
	var calls [][]string
	r := &Renderer{}
	r.newCommand = func(args ...string) *exec.Cmd {
		calls = append(calls, args)
		out := args[len(args)-1]
		if fail {
			return exec.Command("/bin/sh", "-c", ": > '"+out+"'; exit 1")
		}
		return exec.Command("/bin/sh", "-c", "echo data > '"+out+"'")
	}
	return r, &calls
}

func TestRenderSingleSegment(t *testing.T) {
	r, calls := stubRenderer(t, false)
	out := filepath.Join(t.TempDir(), "speech.wav")

	m, err := r.Render("session.wav", []vad.Marker{{Start: ms(1500), End: ms(4000)}}, out)
	if err != nil {
		t.Fatal(err)
	}
	if m.Duration() != ms(2500) {
		t.Errorf("duration = %v", m.Duration())
	}
	if len(*calls) != 1 {
		t.Fatalf("encoder invoked %d times, want 1", len(*calls))
	}
	args := strings.Join((*calls)[0], " ")
	for _, want := range []string{"-ss 1.500", "-t 2.500", "-c copy", "-i session.wav", "-y " + out} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output file not written: %v", err)
	}
}

func TestRenderMultiSegmentConcat(t *testing.T) {
	r, calls := stubRenderer(t, false)
	dir := t.TempDir()
	out := filepath.Join(dir, "speech.wav")

	markers := []vad.Marker{
		{Start: ms(0), End: ms(1000)},
		{Start: ms(3000), End: ms(5000)},
	}
	m, err := r.Render("session.wav", markers, out)
	if err != nil {
		t.Fatal(err)
	}
	if m.Duration() != ms(3000) {
		t.Errorf("duration = %v", m.Duration())
	}
	// Two extractions plus one concat.
	if len(*calls) != 3 {
		t.Fatalf("encoder invoked %d times, want 3", len(*calls))
	}
	concat := strings.Join((*calls)[2], " ")
	for _, want := range []string{"-f concat", "-safe 0", "-c copy"} {
		if !strings.Contains(concat, want) {
			t.Errorf("concat args %q missing %q", concat, want)
		}
	}

	// Temporaries are swept.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "render_") {
			t.Errorf("temp dir %s survived", e.Name())
		}
	}
}

func TestRenderFailureLeavesNoOutput(t *testing.T) {
	r, _ := stubRenderer(t, true)
	dir := t.TempDir()
	out := filepath.Join(dir, "speech.wav")

	markers := []vad.Marker{
		{Start: ms(0), End: ms(1000)},
		{Start: ms(3000), End: ms(5000)},
	}
	if _, err := r.Render("session.wav", markers, out); !errors.Is(err, ErrStitchFailed) {
		t.Fatalf("err = %v, want ErrStitchFailed", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("partial output survived a failed render")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("leftovers after failed render: %v", entries)
	}
}

func TestRenderNoSegments(t *testing.T) {
	r, _ := stubRenderer(t, false)
	if _, err := r.Render("session.wav", nil, "out.wav"); !errors.Is(err, ErrStitchFailed) {
		t.Fatalf("err = %v, want ErrStitchFailed", err)
	}
}
