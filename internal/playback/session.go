package playback

import (
	"errors"
	"strings"
	"sync"

	"github.com/zhouzirui/chobits/backend/internal/analysis/emotion"
)

// ErrStreaming is returned when something other than the active playback
// tries to touch a streaming session.
var ErrStreaming = errors.New("playback already streaming")

// State of a session's playback.
type State uint8

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	if s == Streaming {
		return "streaming"
	}
	return "idle"
}

// Session is the per-conversation turn context: the avatar's current emotion,
// whether a reply is playing, and the text revealed so far for that reply.
// It outlives turns; the orchestration layer owns one per chat session.
type Session struct {
	mu      sync.RWMutex
	emotion emotion.Code
	state   State
	display strings.Builder
}

// NewSession starts with the default emotion.
func NewSession() *Session {
	return &Session{emotion: emotion.Default}
}

// Emotion returns the current avatar emotion.
func (s *Session) Emotion() emotion.Code {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emotion
}

// State returns the playback state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Display returns the text revealed by the current or last playback.
func (s *Session) Display() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display.String()
}

// SetEmotion changes the emotion outside of playback, e.g. thinking while the
// model answers or an explicit user action.
func (s *Session) SetEmotion(code emotion.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Streaming {
		return ErrStreaming
	}
	s.emotion = code
	return nil
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Streaming {
		return ErrStreaming
	}
	s.state = Streaming
	s.display.Reset()
	return nil
}

func (s *Session) apply(code emotion.Code) {
	s.mu.Lock()
	s.emotion = code
	s.mu.Unlock()
}

func (s *Session) reveal(text string) {
	s.mu.Lock()
	s.display.WriteString(text)
	s.mu.Unlock()
}

// finish leaves Streaming. A zero code keeps the current emotion.
func (s *Session) finish(code emotion.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code != "" {
		s.emotion = code
	}
	s.state = Idle
}
