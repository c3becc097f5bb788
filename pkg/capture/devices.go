package capture

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Backend identifies the ffmpeg capture input a device is reachable through.
type Backend string

const (
	// BackendWASAPI is the modern low-latency capture path.
	BackendWASAPI Backend = "wasapi"
	// BackendDShow is the legacy DirectShow capture path.
	BackendDShow Backend = "dshow"
)

// Device is an enumerated audio input device. ID is the encoder-level
// address (the DirectShow alternative name when the encoder reports one,
// otherwise the display name); Name is what users select by.
type Device struct {
	ID      string
	Name    string
	Backend Backend
}

// Enumerator discovers audio input devices by parsing the encoder's
// device-listing diagnostic output. The modern backend is probed first and
// the legacy backend only when the modern one yields no devices; the backend
// that produced a device travels with it, so the choice is per-device, not
// global.
type Enumerator struct {
	// FFmpegPath is the encoder binary. Defaults to "ffmpeg".
	FFmpegPath string

	// Backends is the probe order. Defaults to wasapi, then dshow.
	Backends []Backend

	// probe overrides the encoder invocation in tests.
	probe func(ctx context.Context, backend Backend) (string, error)
}

func (e *Enumerator) ffmpeg() string {
	if e.FFmpegPath != "" {
		return e.FFmpegPath
	}
	return "ffmpeg"
}

func (e *Enumerator) backends() []Backend {
	if len(e.Backends) > 0 {
		return e.Backends
	}
	return []Backend{BackendWASAPI, BackendDShow}
}

// ListDevices enumerates audio input devices, falling back from the modern
// to the legacy backend when the former reports none.
func (e *Enumerator) ListDevices(ctx context.Context) ([]Device, error) {
	var lastErr error
	for _, backend := range e.backends() {
		out, err := e.list(ctx, backend)
		if err != nil {
			lastErr = err
			continue
		}
		names := parseDeviceList(out)
		if len(names) == 0 {
			continue
		}
		devices := make([]Device, 0, len(names))
		for _, n := range names {
			devices = append(devices, Device{ID: n.id, Name: n.name, Backend: backend})
		}
		return devices, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("capture: list devices: %w", lastErr)
	}
	return nil, nil
}

// Resolve picks the capture device for a session. A non-empty hint must
// match a device name case-sensitively and exactly; on no match the first
// enumerated device becomes the default, adopting its backend.
func (e *Enumerator) Resolve(ctx context.Context, hint string) (Device, error) {
	devices, err := e.ListDevices(ctx)
	if err != nil {
		return Device{}, err
	}
	if len(devices) == 0 {
		return Device{}, ErrDeviceNotFound
	}
	if hint != "" {
		for _, d := range devices {
			if d.Name == hint {
				return d, nil
			}
		}
	}
	return devices[0], nil
}

func (e *Enumerator) list(ctx context.Context, backend Backend) (string, error) {
	if e.probe != nil {
		return e.probe(ctx, backend)
	}
	cmd := exec.CommandContext(ctx, e.ffmpeg(),
		"-hide_banner", "-list_devices", "true", "-f", string(backend), "-i", "dummy")
	// ffmpeg exits nonzero after listing; the listing itself lands on stderr.
	out, err := cmd.CombinedOutput()
	if len(out) == 0 && err != nil {
		return "", err
	}
	return string(out), nil
}

type deviceName struct {
	id   string
	name string
}

var (
	taggedAudioRe = regexp.MustCompile(`"([^"]+)"\s*\(audio\)`)
	quotedNameRe  = regexp.MustCompile(`"([^"]+)"`)
	indexedNameRe = regexp.MustCompile(`\[\d+\]\s+(.+)$`)
	altNameRe     = regexp.MustCompile(`Alternative name\s+"([^"]+)"`)
)

// parseDeviceList extracts audio device names from the encoder's listing
// output. Two independent rules tolerate formatting differences across
// encoder versions: devices explicitly tagged "(audio)" on their own line,
// and devices appearing below an "audio devices" section header (until the
// next section). Results are deduplicated by name, keeping first occurrence.
func parseDeviceList(out string) []deviceName {
	var devices []deviceName
	seen := make(map[string]int)

	add := func(name string) {
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = len(devices)
		devices = append(devices, deviceName{id: name, name: name})
	}

	inAudioSection := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		lower := strings.ToLower(line)

		// Alternative names belong to the most recently listed device.
		if m := altNameRe.FindStringSubmatch(line); m != nil && len(devices) > 0 {
			devices[len(devices)-1].id = m[1]
			continue
		}

		// Rule 1: explicit "(audio)" tag.
		if m := taggedAudioRe.FindStringSubmatch(line); m != nil {
			add(m[1])
			continue
		}

		// Rule 2: section headers.
		if strings.Contains(lower, "audio devices") {
			inAudioSection = true
			continue
		}
		if strings.Contains(lower, "video devices") {
			inAudioSection = false
			continue
		}
		if !inAudioSection {
			continue
		}
		if m := quotedNameRe.FindStringSubmatch(line); m != nil {
			add(m[1])
			continue
		}
		if m := indexedNameRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			add(strings.TrimSpace(m[1]))
		}
	}
	return devices
}
