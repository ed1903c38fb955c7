// Package companion runs one conversational turn end to end: context
// gathering, the model call, reply parsing, playback and persistence.
package companion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/analysis/emotion"
	"github.com/zhouzirui/chobits/backend/internal/analysis/reply"
	"github.com/zhouzirui/chobits/backend/internal/model/chat"
	"github.com/zhouzirui/chobits/backend/internal/model/persona"
	speechmodel "github.com/zhouzirui/chobits/backend/internal/model/speech"
	"github.com/zhouzirui/chobits/backend/internal/playback"
	"github.com/zhouzirui/chobits/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/chobits/backend/internal/service/chat"
)

var (
	ErrEmptyMessage    = errors.New("message text is required")
	ErrTurnInProgress  = errors.New("a turn is already running for this session")
	ErrPersonaNotFound = errors.New("persona not found")
	ErrUnknownEmotion  = errors.New("unknown emotion code")
	ErrNotReplayable   = errors.New("only assistant messages can be replayed")
)

// LLM produces the raw reply for a turn.
type LLM interface {
	Call(ctx context.Context, req ai.CallRequest) (string, error)
}

// Memory supplies and records long-term context.
type Memory interface {
	CoreMemory(ctx context.Context, a persona.Persona) (string, error)
	ResourceContext(ctx context.Context, a persona.Persona, userText string) (string, []string, error)
	Append(ctx context.Context, a persona.Persona, userText, reply string) error
}

// VoiceFactory builds the speaker for one turn. Audio is handed to sink.
type VoiceFactory func(sessionID, voice string, sink func(speechmodel.AudioChunk) error) playback.Speaker

// Hooks receive what a turn produces while it runs. Either may be nil.
type Hooks struct {
	Event func(playback.Event)
	Audio func(speechmodel.AudioChunk) error
}

// TurnRequest is one user message.
type TurnRequest struct {
	SessionID   string
	Text        string
	Voice       bool
	VoiceID     string // 为空时使用助手配置的音色
	UserName    string // 只进入提示词，替换称呼用助手的 UserAddress
	Attachments []chat.Attachment
}

// TurnResult is what a finished turn stored and played.
type TurnResult struct {
	User    chat.Message     `json:"user"`
	Reply   chat.Message     `json:"reply"`
	Parsed  reply.Result     `json:"parsed"`
	Outcome playback.Outcome `json:"outcome"`
}

// Option configures a Service.
type Option func(*Service)

// WithVoice enables spoken playback.
func WithVoice(f VoiceFactory) Option {
	return func(s *Service) { s.voice = f }
}

// WithPlayback sets the reveal pace and utterance locale.
func WithPlayback(delay time.Duration, locale string) Option {
	return func(s *Service) {
		s.playOpts = append(s.playOpts, playback.WithRevealDelay(delay), playback.WithLocale(locale))
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service orchestrates turns. Turns are serialized per session.
type Service struct {
	chats    *chatservice.Service
	personas persona.Store
	llm      LLM
	memory   Memory
	voice    VoiceFactory
	playOpts []playback.Option
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	play *playback.Session
	busy bool
}

// NewService wires the turn pipeline. memory may be nil.
func NewService(chats *chatservice.Service, personas persona.Store, llm LLM, memory Memory, opts ...Option) *Service {
	s := &Service{
		chats:    chats,
		personas: personas,
		llm:      llm,
		memory:   memory,
		logger:   zerolog.Nop(),
		sessions: make(map[string]*sessionState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VoiceEnabled reports whether spoken playback is available.
func (s *Service) VoiceEnabled() bool {
	return s.voice != nil
}

func (s *Service) state(sessionID string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{play: playback.NewSession()}
		s.sessions[sessionID] = st
	}
	return st
}

func (s *Service) acquire(sessionID string) (*sessionState, error) {
	st := s.state(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.busy {
		return nil, ErrTurnInProgress
	}
	st.busy = true
	return st, nil
}

func (s *Service) release(st *sessionState) {
	s.mu.Lock()
	st.busy = false
	s.mu.Unlock()
}

func (s *Service) assistant(ctx context.Context, sessionID string) (persona.Persona, error) {
	session, err := s.chats.GetSession(ctx, sessionID)
	if err != nil {
		return persona.Persona{}, err
	}
	a, ok := s.personas.FindByID(session.PersonaID)
	if !ok {
		return persona.Persona{}, fmt.Errorf("%w: %s", ErrPersonaNotFound, session.PersonaID)
	}
	return a, nil
}

func (s *Service) sequencer(sessionID, voice string, voiced bool, hooks Hooks) *playback.Sequencer {
	opts := append([]playback.Option{playback.WithLogger(s.logger)}, s.playOpts...)
	if voiced && s.voice != nil {
		sink := hooks.Audio
		if sink == nil {
			sink = func(speechmodel.AudioChunk) error { return nil }
		}
		opts = append(opts, playback.WithSpeaker(s.voice(sessionID, voice, sink)))
	}
	return playback.New(opts...)
}

// HandleTurn runs one turn. On a model failure the avatar turns sad, an
// "Error: ..." system message is stored and the error is returned.
func (s *Service) HandleTurn(ctx context.Context, req TurnRequest, hooks Hooks) (TurnResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && len(req.Attachments) == 0 {
		return TurnResult{}, ErrEmptyMessage
	}

	a, err := s.assistant(ctx, req.SessionID)
	if err != nil {
		return TurnResult{}, err
	}

	st, err := s.acquire(req.SessionID)
	if err != nil {
		return TurnResult{}, err
	}
	defer s.release(st)

	emit := hooks.Event
	if emit == nil {
		emit = func(playback.Event) {}
	}
	s.setEmotion(st, emotion.Thinking, emit)

	log := s.logger.With().Str("session", req.SessionID).Str("assistant", a.ID).Logger()

	history, err := s.chats.Recent(ctx, req.SessionID, ai.HistoryLimit)
	if err != nil {
		return TurnResult{}, err
	}

	userMsg, err := s.chats.SaveMessage(ctx, chat.Message{
		SessionID:   req.SessionID,
		Role:        chat.RoleUser,
		Content:     text,
		Attachments: req.Attachments,
	})
	if err != nil {
		return TurnResult{}, err
	}
	result := TurnResult{User: userMsg}

	userName := firstNonEmpty(req.UserName, a.UserAddress, reply.DefaultAddress)

	var memCtx, resCtx string
	var referenced []string
	if s.memory != nil {
		if memCtx, err = s.memory.CoreMemory(ctx, a); err != nil {
			return result, s.fail(ctx, st, req.SessionID, err, emit)
		}
		if resCtx, referenced, err = s.memory.ResourceContext(ctx, a, text); err != nil {
			return result, s.fail(ctx, st, req.SessionID, err, emit)
		}
	}

	raw, err := s.llm.Call(ctx, ai.CallRequest{
		Assistant:       a,
		Prompt:          text,
		History:         history,
		MemoryContext:   memCtx,
		ResourceContext: resCtx,
		UserName:        userName,
	})
	if err != nil {
		return result, s.fail(ctx, st, req.SessionID, err, emit)
	}

	parsed := reply.Parse(raw, reply.DefaultSubstitutions(firstNonEmpty(a.UserAddress, reply.DefaultAddress)))
	result.Parsed = parsed

	outcome, playErr := s.sequencer(req.SessionID, firstNonEmpty(req.VoiceID, a.VoiceID), req.Voice, hooks).Play(ctx, st.play, parsed.Segments, req.Voice, emit)
	result.Outcome = outcome

	// 播放被取消时回复也已生成，照常保存。
	saveCtx := context.WithoutCancel(ctx)
	replyMsg, err := s.chats.SaveMessage(saveCtx, chat.Message{
		SessionID:           req.SessionID,
		Role:                chat.RoleAssistant,
		Content:             parsed.CleanText,
		Thought:             parsed.Thought,
		Trace:               parsed.Trace,
		RawContent:          parsed.DialogueText,
		Emotion:             string(outcome.Persistent),
		ReferencedResources: referenced,
	})
	if err != nil {
		return result, err
	}
	result.Reply = replyMsg

	if s.memory != nil {
		if err := s.memory.Append(saveCtx, a, text, parsed.CleanText); err != nil {
			log.Warn().Err(err).Msg("core memory append failed")
		}
	}

	if playErr != nil {
		return result, playErr
	}

	log.Info().
		Str("emotion", string(outcome.Persistent)).
		Int("segments", len(parsed.Segments)).
		Bool("voice", req.Voice).
		Msg("turn complete")
	return result, nil
}

func (s *Service) fail(ctx context.Context, st *sessionState, sessionID string, cause error, emit func(playback.Event)) error {
	s.setEmotion(st, emotion.Sad, emit)
	if _, err := s.chats.SaveMessage(context.WithoutCancel(ctx), chat.Message{
		SessionID: sessionID,
		Role:      chat.RoleSystem,
		Content:   "Error: " + cause.Error(),
	}); err != nil {
		s.logger.Error().Err(err).Str("session", sessionID).Msg("failed to store error message")
	}
	s.logger.Warn().Err(cause).Str("session", sessionID).Msg("turn failed")
	return cause
}

func (s *Service) setEmotion(st *sessionState, code emotion.Code, emit func(playback.Event)) {
	if err := st.play.SetEmotion(code); err != nil {
		return
	}
	emit(playback.Event{
		Kind:    playback.EventEmotion,
		Segment: -1,
		Emotion: code,
		Asset:   emotion.AssetPath(code),
	})
}

// Replay re-plays a stored assistant message: its emotion, then its clean
// text as one unit.
func (s *Service) Replay(ctx context.Context, sessionID, messageID string, voice bool, hooks Hooks) (playback.Outcome, error) {
	a, err := s.assistant(ctx, sessionID)
	if err != nil {
		return playback.Outcome{}, err
	}
	msg, err := s.chats.FindMessage(ctx, sessionID, messageID)
	if err != nil {
		return playback.Outcome{}, err
	}
	if msg.Role != chat.RoleAssistant {
		return playback.Outcome{}, ErrNotReplayable
	}

	st, err := s.acquire(sessionID)
	if err != nil {
		return playback.Outcome{}, err
	}
	defer s.release(st)

	var segments []reply.Segment
	if code := emotion.Normalize(msg.Emotion); code != "" {
		segments = append(segments, reply.EmotionTag(code))
	}
	segments = append(segments, reply.Text(msg.Content))

	return s.sequencer(sessionID, a.VoiceID, voice, hooks).Play(ctx, st.play, segments, voice, hooks.Event)
}

// SetEmotion is an explicit emotion change requested by the user.
func (s *Service) SetEmotion(ctx context.Context, sessionID string, code emotion.Code) error {
	if _, err := s.chats.GetSession(ctx, sessionID); err != nil {
		return err
	}
	code = emotion.Normalize(string(code))
	if !code.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownEmotion, code)
	}
	return s.state(sessionID).play.SetEmotion(code)
}

// Emotion returns the session's current avatar emotion.
func (s *Service) Emotion(ctx context.Context, sessionID string) (emotion.Code, error) {
	if _, err := s.chats.GetSession(ctx, sessionID); err != nil {
		return "", err
	}
	return s.state(sessionID).play.Emotion(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
