// Package playback replays a parsed reply: emotion tags switch the avatar,
// text is spoken or revealed character by character, and the most frequent
// emotion becomes the resting expression once the reply is done.
package playback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/analysis/emotion"
	"github.com/zhouzirui/chobits/backend/internal/analysis/reply"
)

const (
	DefaultRevealDelay = 30 * time.Millisecond
	DefaultLocale      = "zh-CN"
)

// Sequencer plays segment timelines. It keeps no per-playback state and may
// be shared between sessions.
type Sequencer struct {
	speaker Speaker
	delay   time.Duration
	locale  string
	logger  zerolog.Logger
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithSpeaker sets the speech backend used when voice is enabled.
func WithSpeaker(s Speaker) Option {
	return func(q *Sequencer) { q.speaker = s }
}

// WithRevealDelay sets the pause after each revealed character in silent mode.
func WithRevealDelay(d time.Duration) Option {
	return func(q *Sequencer) {
		if d >= 0 {
			q.delay = d
		}
	}
}

// WithLocale sets the locale tag attached to utterances.
func WithLocale(locale string) Option {
	return func(q *Sequencer) {
		if locale = strings.TrimSpace(locale); locale != "" {
			q.locale = locale
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(q *Sequencer) { q.logger = l }
}

// New returns a Sequencer with a 30ms reveal pace and no speaker.
func New(opts ...Option) *Sequencer {
	q := &Sequencer{
		delay:  DefaultRevealDelay,
		locale: DefaultLocale,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Outcome summarizes a finished playback.
type Outcome struct {
	Persistent emotion.Code    `json:"persistent"`
	Tally      []emotion.Count `json:"tally,omitempty"`
	Revealed   string          `json:"revealed"`
}

// Play consumes segments strictly in order. Each segment's effect is complete
// before the next begins. When ctx ends the playback is abandoned, the session
// goes back to Idle without a persistent emotion and ctx.Err() is returned.
func (q *Sequencer) Play(ctx context.Context, sess *Session, segments []reply.Segment, voice bool, observe Observer) (Outcome, error) {
	if err := sess.begin(); err != nil {
		return Outcome{}, err
	}
	if observe == nil {
		observe = func(Event) {}
	}
	if voice && q.speaker == nil {
		q.logger.Debug().Msg("voice requested without a speaker, revealing silently")
		voice = false
	}

	tally := emotion.NewTally()
	current := sess.Emotion()

	abandon := func(err error) (Outcome, error) {
		sess.finish("")
		return Outcome{Tally: tally.Counts(), Revealed: sess.Display()}, err
	}

	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return abandon(err)
		}

		switch seg.Kind {
		case reply.SegmentEmotion:
			current = seg.Code
			sess.apply(current)
			tally.Add(current)
			observe(emotionEvent(i, current, false))

		case reply.SegmentText:
			text := reply.StripDirections(seg.Text)
			if strings.TrimSpace(text) == "" {
				continue
			}

			var err error
			if voice {
				err = q.speak(ctx, sess, i, text, current, observe)
			} else {
				err = q.reveal(ctx, sess, i, text, observe)
			}
			if err != nil {
				return abandon(err)
			}

		default:
			panic(fmt.Sprintf("playback: unknown segment kind %v", seg.Kind))
		}
	}

	persistent := tally.Persistent()
	sess.finish(persistent)
	observe(emotionEvent(len(segments), persistent, true))

	return Outcome{
		Persistent: persistent,
		Tally:      tally.Counts(),
		Revealed:   sess.Display(),
	}, nil
}

// speak hands text to the speaker as one utterance. The whole text is
// revealed when audio starts, or after the speaker returns if it never did.
func (q *Sequencer) speak(ctx context.Context, sess *Session, idx int, text string, current emotion.Code, observe Observer) error {
	show := func() {
		sess.reveal(text)
		observe(Event{Kind: EventReveal, Segment: idx, Text: text})
	}

	var (
		once    sync.Once
		started bool
	)
	err := q.speaker.Speak(ctx, Utterance{
		Text:    text,
		Locale:  q.locale,
		Emotion: current,
		Started: func() {
			once.Do(func() {
				started = true
				show()
				observe(Event{Kind: EventSpeaking, Segment: idx, Speaking: true})
			})
		},
	})
	once.Do(show)
	if started {
		observe(Event{Kind: EventSpeaking, Segment: idx, Speaking: false})
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		q.logger.Warn().Err(err).Int("segment", idx).Msg("speech failed, skipping utterance")
	}
	return nil
}

// reveal shows text one rune per tick.
func (q *Sequencer) reveal(ctx context.Context, sess *Session, idx int, text string, observe Observer) error {
	for _, r := range text {
		ch := string(r)
		sess.reveal(ch)
		observe(Event{Kind: EventReveal, Segment: idx, Text: ch})
		if err := wait(ctx, q.delay); err != nil {
			return err
		}
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
