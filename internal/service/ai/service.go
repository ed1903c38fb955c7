// Package ai 负责按助手配置调用对应的大模型服务商。
package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/config"
	"github.com/zhouzirui/chobits/backend/internal/model/chat"
	"github.com/zhouzirui/chobits/backend/internal/model/persona"
)

const (
	// HistoryLimit 发送给模型的历史消息条数
	HistoryLimit = 10
	// FallbackReply 模型返回空文本时的回复
	FallbackReply = "ちぃ...?"
)

var (
	ErrMissingAPIKey   = errors.New("未配置 API Key")
	ErrMissingEndpoint = errors.New("需填 Endpoint ID")
)

// CallRequest 一轮对话需要的全部上下文。
type CallRequest struct {
	Assistant       persona.Persona
	Prompt          string
	History         []chat.Message
	MemoryContext   string
	ResourceContext string
	UserName        string
}

// BackendFactory 根据助手配置创建 Backend，apiKey 已经按兜底规则解析。
type BackendFactory func(ctx context.Context, a persona.Persona, apiKey string) (Backend, error)

// Option 配置 Service。
type Option func(*Service)

// WithBackendFactory 替换默认的服务商实现。
func WithBackendFactory(f BackendFactory) Option {
	return func(s *Service) { s.factory = f }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service encapsulates AI-powered chat functionality.
type Service struct {
	cfg     config.AIConfig
	factory BackendFactory
	logger  zerolog.Logger

	mu       sync.Mutex
	backends map[string]Backend
}

// NewService creates a new AI service instance.
func NewService(cfg config.AIConfig, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		logger:   zerolog.Nop(),
		backends: make(map[string]Backend),
	}
	s.factory = s.defaultBackend
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Call 构建核心提示词并调用助手配置的服务商，返回模型原文。
func (s *Service) Call(ctx context.Context, req CallRequest) (string, error) {
	a := req.Assistant
	provider := persona.ParseProvider(string(a.Provider))

	apiKey := s.resolveAPIKey(a, provider)
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}

	backend, err := s.backend(ctx, a, apiKey)
	if err != nil {
		return "", err
	}

	history := req.History
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}

	system := BuildCorePrompt(PromptInput{
		Name:            a.Name,
		UserName:        req.UserName,
		ResourceContext: req.ResourceContext,
		MemoryContext:   req.MemoryContext,
		Extra:           a.SystemPrompt,
	})

	text, err := backend.Generate(ctx, Request{System: system, History: history, Prompt: req.Prompt})
	if err != nil {
		return "", fmt.Errorf("%s: %w", provider, err)
	}
	if strings.TrimSpace(text) == "" {
		text = FallbackReply
	}

	s.logger.Debug().
		Str("assistant", a.ID).
		Str("provider", string(provider)).
		Int("history", len(history)).
		Int("length", len(text)).
		Msg("generated reply")
	return text, nil
}

func (s *Service) resolveAPIKey(a persona.Persona, provider persona.Provider) string {
	if key := strings.TrimSpace(a.APIKey); key != "" {
		return key
	}
	switch provider {
	case persona.ProviderGemini:
		return s.cfg.GeminiAPIKey
	case persona.ProviderDeepSeek:
		return s.cfg.DeepSeekAPIKey
	case persona.ProviderDoubao:
		return s.cfg.APIKey
	default:
		return s.cfg.OpenAIAPIKey
	}
}

// backend 按助手配置缓存 Backend，配置变化时重新创建。
func (s *Service) backend(ctx context.Context, a persona.Persona, apiKey string) (Backend, error) {
	key := cacheKey(a, apiKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.backends[key]; ok {
		return b, nil
	}
	b, err := s.factory(ctx, a, apiKey)
	if err != nil {
		return nil, err
	}
	s.backends[key] = b
	return b, nil
}

func cacheKey(a persona.Persona, apiKey string) string {
	h := sha256.New()
	for _, part := range []string{a.ID, string(a.Provider), a.Model, a.BaseURL, apiKey, fmt.Sprint(a.EnableSearch)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Service) defaultBackend(ctx context.Context, a persona.Persona, apiKey string) (Backend, error) {
	model := strings.TrimSpace(a.Model)

	switch persona.ParseProvider(string(a.Provider)) {
	case persona.ProviderGemini:
		return newGeminiBackend(ctx, apiKey, model, a.EnableSearch)

	case persona.ProviderDeepSeek:
		if model == "" {
			model = DefaultDeepSeekModel
		}
		return newOpenAIBackend(DeepSeekBaseURL, apiKey, model), nil

	case persona.ProviderDoubao:
		if model == "" {
			model = s.cfg.Model
		}
		if model == "" {
			return nil, ErrMissingEndpoint
		}
		cfg := s.cfg
		if cfg.Temperature == nil {
			t := 0.8
			cfg.Temperature = &t
		}
		chatModel, err := cfg.NewChatModel(ctx, model, apiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return newArkBackend(ctx, chatModel)

	default:
		if model == "" {
			model = DefaultOpenAIModel
		}
		baseURL := a.BaseURL
		if baseURL == "" {
			baseURL = s.cfg.OpenAIBaseURL
		}
		return newOpenAIBackend(baseURL, apiKey, model), nil
	}
}
