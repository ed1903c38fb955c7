package playback

import "github.com/zhouzirui/chobits/backend/internal/analysis/emotion"

// EventKind names what changed.
type EventKind string

const (
	EventEmotion  EventKind = "emotion"
	EventReveal   EventKind = "reveal"
	EventSpeaking EventKind = "speaking"
)

// Event is one observable side effect of playback.
type Event struct {
	Kind       EventKind    `json:"kind"`
	Segment    int          `json:"segment"`
	Emotion    emotion.Code `json:"emotion,omitempty"`
	Asset      string       `json:"asset,omitempty"`
	Persistent bool         `json:"persistent,omitempty"`
	Text       string       `json:"text,omitempty"`
	Speaking   bool         `json:"speaking,omitempty"`
}

// Observer receives events in playback order. It must not block for long:
// the sequencer waits for it.
type Observer func(Event)

func emotionEvent(segment int, code emotion.Code, persistent bool) Event {
	return Event{
		Kind:       EventEmotion,
		Segment:    segment,
		Emotion:    code,
		Asset:      emotion.AssetPath(code),
		Persistent: persistent,
	}
}
