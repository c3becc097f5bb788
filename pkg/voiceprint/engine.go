package voiceprint

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/medvox/medvox/pkg/audio/pcm"
	"github.com/medvox/medvox/pkg/audio/wav"
)

// Utterance is one diarized transcript entry as delivered by the
// transcription backend. Speaker is the backend's raw label ("A", "B", ...),
// Start and End are positions on the speech-only timeline.
type Utterance struct {
	Speaker string        `json:"speaker"`
	Start   time.Duration `json:"start"`
	End     time.Duration `json:"end"`
	Text    string        `json:"text"`
}

// maxIdentifyAudio caps how much of a speaker's own audio is embedded for
// identification. More adds latency without improving the embedding.
const maxIdentifyAudio = 30 * time.Second

// Engine embeds audio ranges from WAV files and resolves raw speaker
// labels to profile names.
type Engine struct {
	model Model
	log   *slog.Logger
}

// NewEngine creates an Engine around model. Logger defaults to
// slog.Default.
func NewEngine(model Model, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{model: model, log: logger}
}

// Embed reads only the requested byte range of a 16 kHz mono PCM WAV file,
// computed from its header fields, and embeds it. The whole file is never
// loaded.
func (e *Engine) Embed(audioPath string, start, duration time.Duration) ([]float32, error) {
	data, _, err := wav.ReadRange(audioPath, start, duration)
	if err != nil {
		return nil, fmt.Errorf("voiceprint: read audio range: %w", err)
	}
	return e.model.Extract(data)
}

// EmbedEnrollment embeds a complete enrollment file with leading and
// trailing silence trimmed, returning the embedded audio's net duration
// alongside the vector.
func (e *Engine) EmbedEnrollment(audioPath string) ([]float32, time.Duration, error) {
	hdr, err := readHeader(audioPath)
	if err != nil {
		return nil, 0, err
	}
	data, _, err := wav.ReadRange(audioPath, 0, hdr.Duration())
	if err != nil {
		return nil, 0, fmt.Errorf("voiceprint: read audio: %w", err)
	}
	data = trimSilence(data)
	vec, err := e.model.Extract(data)
	if err != nil {
		return nil, 0, err
	}
	return vec, pcm.L16Mono16K.Duration(int64(len(data))), nil
}

// Identify resolves each raw speaker label in utterances to a display
// name. For every label it concatenates up to 30 s of that label's own
// utterance audio from the speech-only file, embeds the concatenation and
// asks the matcher for the best profile. A match yields "Role - Name"
// (or just the name without a role); anything else gets an anonymous
// "Sprecher <label>".
func (e *Engine) Identify(audioPath string, utterances []Utterance, matcher Matcher) (map[string]string, error) {
	byLabel := make(map[string][]Utterance)
	for _, u := range utterances {
		byLabel[u.Speaker] = append(byLabel[u.Speaker], u)
	}

	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	result := make(map[string]string, len(labels))
	for _, label := range labels {
		name, err := e.identifyLabel(audioPath, label, byLabel[label], matcher)
		if err != nil {
			return nil, err
		}
		result[label] = name
	}
	return result, nil
}

func (e *Engine) identifyLabel(audioPath, label string, utterances []Utterance, matcher Matcher) (string, error) {
	var audio []byte
	var collected time.Duration
	for _, u := range utterances {
		if collected >= maxIdentifyAudio {
			break
		}
		d := u.End - u.Start
		if d <= 0 {
			continue
		}
		if collected+d > maxIdentifyAudio {
			d = maxIdentifyAudio - collected
		}
		data, _, err := wav.ReadRange(audioPath, u.Start, d)
		if err != nil {
			return "", fmt.Errorf("voiceprint: read utterance audio: %w", err)
		}
		audio = append(audio, data...)
		collected += d
	}

	anonymous := "Sprecher " + label
	vec, err := e.model.Extract(audio)
	if err != nil {
		e.log.Warn("cannot embed speaker audio, keeping anonymous label",
			"speaker", label, "collected", collected, "error", err)
		return anonymous, nil
	}

	match, ok, err := matcher.Best(vec)
	if err != nil {
		return "", err
	}
	if !ok {
		e.log.Debug("no profile above threshold", "speaker", label)
		return anonymous, nil
	}
	e.log.Info("speaker identified",
		"speaker", label, "profile", match.ProfileID, "similarity", match.Similarity)
	if match.Role != "" {
		return match.Role + " - " + match.Name, nil
	}
	return match.Name, nil
}

func readHeader(path string) (wav.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return wav.Header{}, err
	}
	defer f.Close()
	hdr, err := wav.ReadHeader(f)
	if err != nil {
		return wav.Header{}, fmt.Errorf("voiceprint: read header: %w", err)
	}
	return hdr, nil
}

// trimSilence drops leading and trailing low-energy audio so an
// enrollment embedding is not diluted by the quiet seconds around the
// spoken phrase. Energy is judged per 20 ms frame against a fixed RMS
// floor.
func trimSilence(data []byte) []byte {
	const rmsFloor = 0.01
	frameBytes := int(pcm.L16Mono16K.BytesInDuration(20 * time.Millisecond))
	if len(data) < frameBytes {
		return data
	}

	frames := len(data) / frameBytes
	first, last := -1, -1
	for i := 0; i < frames; i++ {
		frame := data[i*frameBytes : (i+1)*frameBytes]
		if pcm.RMS(frame) >= rmsFloor {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return data
	}
	return data[first*frameBytes : (last+1)*frameBytes]
}
