package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/model/chat"
	"github.com/zhouzirui/chobits/backend/internal/storage"
)

var (
	ErrPersonaRequired = errors.New("persona id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRole     = errors.New("message role must be user, assistant or system")
	ErrMessageNotFound = errors.New("message not found")
)

// Persister 会话记录的持久化后端，通常是 *storage.DB。
type Persister interface {
	Get(ctx context.Context, store storage.Store, key string, v any) error
	Put(ctx context.Context, store storage.Store, key string, v any) error
}

// Option 配置 Service。
type Option func(*Service)

// WithPersister 每次写入后把整个会话写回存储。
func WithPersister(p Persister) Option {
	return func(s *Service) { s.persister = p }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service encapsulates conversation state management.
type Service struct {
	mu        sync.RWMutex
	sessions  map[string]chat.Session
	messages  map[string][]chat.Message
	persister Persister
	logger    zerolog.Logger
}

// NewService bootstraps the chat service. Without a persister it only keeps
// sessions in memory.
func NewService(opts ...Option) *Service {
	s := &Service{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession provisions a session bound to a persona.
func (s *Service) CreateSession(ctx context.Context, personaID string) (chat.Session, error) {
	if personaID == "" {
		return chat.Session{}, ErrPersonaRequired
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		PersonaID: personaID,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	if err := s.persistLocked(ctx, session.ID); err != nil {
		delete(s.sessions, session.ID)
		delete(s.messages, session.ID)
		return chat.Session{}, err
	}

	return session, nil
}

// SaveMessage appends a message to the session history and returns the
// stored copy with its id and timestamp.
func (s *Service) SaveMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	if message.SessionID == "" {
		return chat.Message{}, ErrSessionNotFound
	}
	switch message.Role {
	case chat.RoleUser, chat.RoleAssistant, chat.RoleSystem:
	default:
		return chat.Message{}, ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, message.SessionID); err != nil {
		return chat.Message{}, err
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	prev := s.messages[message.SessionID]
	s.messages[message.SessionID] = append(prev, message)
	if err := s.persistLocked(ctx, message.SessionID); err != nil {
		s.messages[message.SessionID] = prev
		return chat.Message{}, err
	}
	return message, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	if session, ok := s.cached(sessionID); ok {
		return session, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx, sessionID); err != nil {
		return chat.Session{}, err
	}
	return s.sessions[sessionID], nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	return s.Recent(ctx, sessionID, 0)
}

// Recent returns the last n messages of a session, oldest first. n <= 0
// returns the whole transcript.
func (s *Service) Recent(ctx context.Context, sessionID string, n int) ([]chat.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.messages[sessionID]
	if n > 0 && len(messages) > n {
		messages = messages[len(messages)-n:]
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// FindMessage looks up one message by id within a session.
func (s *Service) FindMessage(ctx context.Context, sessionID, messageID string) (chat.Message, error) {
	messages, err := s.LoadTranscript(ctx, sessionID)
	if err != nil {
		return chat.Message{}, err
	}
	for _, m := range messages {
		if m.ID == messageID {
			return m, nil
		}
	}
	return chat.Message{}, fmt.Errorf("message %q: %w", messageID, ErrMessageNotFound)
}

func (s *Service) cached(sessionID string) (chat.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

// loadLocked 在内存中找不到会话时从存储加载。
func (s *Service) loadLocked(ctx context.Context, sessionID string) error {
	if _, ok := s.sessions[sessionID]; ok {
		return nil
	}
	if s.persister == nil || sessionID == "" {
		return ErrSessionNotFound
	}

	var transcript chat.Transcript
	if err := s.persister.Get(ctx, storage.Chats, sessionID, &transcript); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}

	s.sessions[sessionID] = transcript.Session
	s.messages[sessionID] = transcript.Messages
	s.logger.Debug().Str("session", sessionID).Int("messages", len(transcript.Messages)).Msg("session loaded")
	return nil
}

func (s *Service) persistLocked(ctx context.Context, sessionID string) error {
	if s.persister == nil {
		return nil
	}
	transcript := chat.Transcript{
		Session:  s.sessions[sessionID],
		Messages: s.messages[sessionID],
	}
	if err := s.persister.Put(ctx, storage.Chats, sessionID, transcript); err != nil {
		return fmt.Errorf("persist session %s: %w", sessionID, err)
	}
	return nil
}

// Invalidate 丢弃内存中的会话，下次访问时从存储重新加载。
// 没有持久化后端时不做任何事。
func (s *Service) Invalidate() {
	if s.persister == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]chat.Session)
	s.messages = make(map[string][]chat.Message)
}
