package capture

import (
	"context"
	"errors"
	"testing"
)

const dshowListing = `[dshow @ 0000020f3a2b4c80] DirectShow video devices (some may be both video and audio devices)
[dshow @ 0000020f3a2b4c80]  "Integrated Camera"
[dshow @ 0000020f3a2b4c80]     Alternative name "@device_pnp_\\?\usb#vid_04f2"
[dshow @ 0000020f3a2b4c80] DirectShow audio devices
[dshow @ 0000020f3a2b4c80]  "Microphone Array (Realtek Audio)"
[dshow @ 0000020f3a2b4c80]     Alternative name "@device_cm_{33D9A762}\wave_{C5845}"
[dshow @ 0000020f3a2b4c80]  "Headset Microphone (USB Audio)"
dummy: Immediate exit requested
`

const taggedListing = `[dshow @ 0000020f3a2b4c80] "Integrated Camera" (video)
[dshow @ 0000020f3a2b4c80] "Microphone Array (Realtek Audio)" (audio)
[dshow @ 0000020f3a2b4c80]     Alternative name "@device_cm_{33D9A762}\wave_{C5845}"
[dshow @ 0000020f3a2b4c80] "Headset Microphone (USB Audio)" (audio)
dummy: Immediate exit requested
`

const indexedListing = `[AVFoundation indev @ 0x7f8a1c004d00] AVFoundation video devices:
[AVFoundation indev @ 0x7f8a1c004d00] [0] FaceTime HD Camera
[AVFoundation indev @ 0x7f8a1c004d00] AVFoundation audio devices:
[AVFoundation indev @ 0x7f8a1c004d00] [0] MacBook Pro Microphone
[AVFoundation indev @ 0x7f8a1c004d00] [1] External USB Microphone
`

func TestParseDeviceListSections(t *testing.T) {
	devices := parseDeviceList(dshowListing)
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2: %+v", len(devices), devices)
	}
	if devices[0].name != "Microphone Array (Realtek Audio)" {
		t.Errorf("devices[0].name = %q", devices[0].name)
	}
	if devices[0].id != `@device_cm_{33D9A762}\wave_{C5845}` {
		t.Errorf("devices[0].id = %q, want alternative name", devices[0].id)
	}
	if devices[1].name != "Headset Microphone (USB Audio)" {
		t.Errorf("devices[1].name = %q", devices[1].name)
	}
	if devices[1].id != devices[1].name {
		t.Errorf("devices[1].id = %q, want display name", devices[1].id)
	}
}

func TestParseDeviceListTagged(t *testing.T) {
	devices := parseDeviceList(taggedListing)
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2: %+v", len(devices), devices)
	}
	if devices[0].name != "Microphone Array (Realtek Audio)" || devices[1].name != "Headset Microphone (USB Audio)" {
		t.Errorf("unexpected names: %+v", devices)
	}
	if devices[0].id != `@device_cm_{33D9A762}\wave_{C5845}` {
		t.Errorf("devices[0].id = %q", devices[0].id)
	}
}

func TestParseDeviceListIndexed(t *testing.T) {
	devices := parseDeviceList(indexedListing)
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2: %+v", len(devices), devices)
	}
	if devices[0].name != "MacBook Pro Microphone" || devices[1].name != "External USB Microphone" {
		t.Errorf("unexpected names: %+v", devices)
	}
}

func TestParseDeviceListDedup(t *testing.T) {
	out := taggedListing + dshowListing
	devices := parseDeviceList(out)
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2 after dedup: %+v", len(devices), devices)
	}
}

func TestParseDeviceListEmpty(t *testing.T) {
	if devices := parseDeviceList("dummy: Immediate exit requested\n"); len(devices) != 0 {
		t.Fatalf("got %d devices, want 0", len(devices))
	}
}

func TestListDevicesBackendFallback(t *testing.T) {
	var probed []Backend
	e := &Enumerator{
		probe: func(_ context.Context, backend Backend) (string, error) {
			probed = append(probed, backend)
			if backend == BackendWASAPI {
				return "no devices here\n", nil
			}
			return dshowListing, nil
		},
	}
	devices, err := e.ListDevices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[0].Backend != BackendDShow {
		t.Errorf("backend = %s, want dshow", devices[0].Backend)
	}
	if len(probed) != 2 || probed[0] != BackendWASAPI || probed[1] != BackendDShow {
		t.Errorf("probe order = %v", probed)
	}
}

func TestListDevicesFirstBackendWins(t *testing.T) {
	e := &Enumerator{
		probe: func(_ context.Context, backend Backend) (string, error) {
			if backend == BackendWASAPI {
				return taggedListing, nil
			}
			t.Error("legacy backend probed despite modern devices")
			return "", nil
		},
	}
	devices, err := e.ListDevices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 || devices[0].Backend != BackendWASAPI {
		t.Fatalf("unexpected devices: %+v", devices)
	}
}

func TestResolveHint(t *testing.T) {
	e := &Enumerator{
		probe: func(_ context.Context, backend Backend) (string, error) {
			if backend != BackendWASAPI {
				return "", nil
			}
			return dshowListing, nil
		},
	}

	dev, err := e.Resolve(context.Background(), "Headset Microphone (USB Audio)")
	if err != nil {
		t.Fatal(err)
	}
	if dev.Name != "Headset Microphone (USB Audio)" {
		t.Errorf("resolved %q", dev.Name)
	}

	// No match falls back to the first device, not an error.
	dev, err = e.Resolve(context.Background(), "headset microphone (usb audio)")
	if err != nil {
		t.Fatal(err)
	}
	if dev.Name != "Microphone Array (Realtek Audio)" {
		t.Errorf("case-insensitive hint matched, resolved %q", dev.Name)
	}

	dev, err = e.Resolve(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if dev.Name != "Microphone Array (Realtek Audio)" {
		t.Errorf("empty hint resolved %q", dev.Name)
	}
}

func TestResolveNoDevices(t *testing.T) {
	e := &Enumerator{
		probe: func(context.Context, Backend) (string, error) { return "", nil },
	}
	if _, err := e.Resolve(context.Background(), ""); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("err = %v, want ErrDeviceNotFound", err)
	}
}
