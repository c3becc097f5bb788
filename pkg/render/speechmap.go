package render

import "time"

// Span links one extracted segment's position on the original recording
// timeline to its position on the speech-only timeline.
type Span struct {
	OriginalStart time.Duration
	OriginalEnd   time.Duration
	SpeechStart   time.Duration
	SpeechEnd     time.Duration
}

// Map translates between the original session timeline and the contiguous
// timeline of the rendered speech-only file. Spans are ordered and the
// speech side is gapless: span i starts where span i-1 ended.
type Map struct {
	Spans []Span
}

// ToSpeech maps an original-timeline position into the speech-only
// timeline. A position inside a silence gap has no speech counterpart and
// reports false; callers treat that as expected, not as an error.
func (m *Map) ToSpeech(t time.Duration) (time.Duration, bool) {
	for _, s := range m.Spans {
		if t >= s.OriginalStart && t < s.OriginalEnd {
			return s.SpeechStart + (t - s.OriginalStart), true
		}
	}
	return 0, false
}

// ToOriginal maps a speech-timeline position back onto the original
// recording. Positions past the end of the speech file report false.
func (m *Map) ToOriginal(t time.Duration) (time.Duration, bool) {
	for _, s := range m.Spans {
		if t >= s.SpeechStart && t < s.SpeechEnd {
			return s.OriginalStart + (t - s.SpeechStart), true
		}
	}
	return 0, false
}

// Duration returns the total length of the speech-only timeline.
func (m *Map) Duration() time.Duration {
	if len(m.Spans) == 0 {
		return 0
	}
	return m.Spans[len(m.Spans)-1].SpeechEnd
}
