package playback

import (
	"context"

	"github.com/zhouzirui/chobits/backend/internal/analysis/emotion"
)

// Utterance is one piece of text handed to speech synthesis.
type Utterance struct {
	Text    string
	Locale  string
	Emotion emotion.Code
	// Started is called once when audio begins. It may be nil and may be
	// called from another goroutine.
	Started func()
}

// Speaker synthesizes an utterance and returns once it has finished playing.
// A non-nil error means the utterance failed and is skipped.
type Speaker interface {
	Speak(ctx context.Context, u Utterance) error
}

// SpeakerFunc adapts a function to Speaker.
type SpeakerFunc func(ctx context.Context, u Utterance) error

func (f SpeakerFunc) Speak(ctx context.Context, u Utterance) error {
	return f(ctx, u)
}
