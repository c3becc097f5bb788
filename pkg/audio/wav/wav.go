// Package wav reads and writes RIFF/WAVE containers holding raw PCM.
//
// The reader walks the chunk list rather than assuming the canonical 44-byte
// layout, so files with LIST/INFO chunks (as written by some encoders) parse
// correctly. Audio data is addressed by time: [Header.ByteRange] converts a
// start offset and duration into an absolute byte range inside the data
// chunk, which lets callers read a window of samples without loading the
// whole file.
package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

const pcmFormatTag = 1

// Header describes the PCM stream inside a WAVE file.
type Header struct {
	SampleRate    int
	Channels      int
	BitsPerSample int

	// DataOffset is the absolute file offset of the first audio byte.
	DataOffset int64
	// DataSize is the size of the audio data in bytes.
	DataSize int64
}

// BytesPerSecond returns the byte rate of the audio stream.
func (h Header) BytesPerSecond() int64 {
	return int64(h.SampleRate) * int64(h.Channels) * int64(h.BitsPerSample) / 8
}

// Duration returns the total duration of the audio data.
func (h Header) Duration() time.Duration {
	br := h.BytesPerSecond()
	if br == 0 {
		return 0
	}
	return time.Duration(h.DataSize) * time.Second / time.Duration(br)
}

// ByteRange converts a time window into an absolute byte range within the
// data chunk. The range is aligned to whole sample frames and clamped to the
// available data; the returned length is zero when start lies at or past the
// end of the stream.
func (h Header) ByteRange(start, dur time.Duration) (offset, length int64) {
	frame := int64(h.Channels) * int64(h.BitsPerSample) / 8
	if frame == 0 {
		return h.DataOffset, 0
	}
	br := h.BytesPerSecond()

	from := int64(start) * br / int64(time.Second)
	from -= from % frame
	if from < 0 {
		from = 0
	}
	if from >= h.DataSize {
		return h.DataOffset + h.DataSize, 0
	}

	n := int64(dur) * br / int64(time.Second)
	n -= n % frame
	if from+n > h.DataSize {
		n = h.DataSize - from
	}
	return h.DataOffset + from, n
}

// ReadHeader parses the RIFF structure of r and returns the PCM header.
// Only uncompressed PCM (format tag 1) is accepted.
func ReadHeader(r io.ReadSeeker) (Header, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Header{}, fmt.Errorf("wav: read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Header{}, fmt.Errorf("wav: not a RIFF/WAVE file")
	}

	var h Header
	haveFmt := false
	pos := int64(12)

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return Header{}, fmt.Errorf("wav: read chunk header: %w", err)
		}
		pos += 8
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			var f [16]byte
			if _, err := io.ReadFull(r, f[:]); err != nil {
				return Header{}, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			if tag := binary.LittleEndian.Uint16(f[0:2]); tag != pcmFormatTag {
				return Header{}, fmt.Errorf("wav: unsupported format tag %d", tag)
			}
			h.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			h.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			h.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			haveFmt = true
			// Skip any fmt extension bytes.
			if size > 16 {
				if _, err := r.Seek(size-16, io.SeekCurrent); err != nil {
					return Header{}, err
				}
			}
			pos += size

		case "data":
			if !haveFmt {
				return Header{}, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			h.DataOffset = pos
			h.DataSize = size
			// A streaming encoder that was killed may have written a size of
			// 0 or 0xFFFFFFFF; fall back to the remaining file length.
			if size == 0 || size == 0xFFFFFFFF {
				end, err := r.Seek(0, io.SeekEnd)
				if err != nil {
					return Header{}, err
				}
				h.DataSize = end - pos
			}
			return h, nil

		default:
			if _, err := r.Seek(size, io.SeekCurrent); err != nil {
				return Header{}, fmt.Errorf("wav: skip chunk %q: %w", id, err)
			}
			pos += size
		}

		// Chunks are word-aligned.
		if size%2 == 1 {
			if _, err := r.Seek(1, io.SeekCurrent); err != nil {
				return Header{}, err
			}
			pos++
		}
	}
	return Header{}, fmt.Errorf("wav: no data chunk found")
}

// ReadRange opens the file at path and reads dur of audio starting at start.
// The returned bytes are raw PCM without any container framing.
func ReadRange(path string, start, dur time.Duration) ([]byte, Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, err
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return nil, Header{}, err
	}
	offset, length := h.ByteRange(start, dur)
	if length == 0 {
		return nil, h, nil
	}
	buf := make([]byte, length)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, Header{}, err
	}
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, Header{}, fmt.Errorf("wav: read range: %w", err)
	}
	return buf, h, nil
}

// Write writes a canonical 16-bit PCM WAVE file containing data.
func Write(w io.Writer, sampleRate, channels int, data []byte) error {
	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+len(data)))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], pcmFormatTag)
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	byteRate := sampleRate * channels * 2
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(hdr[34:36], 16)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(len(data)))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// WriteFile writes a 16-bit PCM WAVE file to path.
func WriteFile(path string, sampleRate, channels int, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, sampleRate, channels, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
