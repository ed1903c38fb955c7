// Package notify 是推送中继：设备 token 登记、主动消息生成与多播投递。
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/storage"
)

const (
	DefaultTitle = "Chobits"
	DefaultBody  = "有新的消息"

	memoryPreviewRunes = 30
)

var (
	// ErrMissingToken 请求没有带 token
	ErrMissingToken = errors.New("missing token")
	// ErrNotificationNotFound 通知不存在
	ErrNotificationNotFound = errors.New("notification not found")
)

// KV 中继依赖的存储接口，*storage.DB 实现了它。
type KV interface {
	Get(ctx context.Context, store storage.Store, key string, v any) error
	Put(ctx context.Context, store storage.Store, key string, v any) error
	Delete(ctx context.Context, store storage.Store, key string) error
	All(ctx context.Context, store storage.Store) (map[string]json.RawMessage, error)
}

// Notification 一条待客户端拉取的主动消息。
type Notification struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	Read      bool   `json:"read"`
	Memory    string `json:"memory"`
}

type registration struct {
	Token        string `json:"token"`
	RegisteredAt int64  `json:"registeredAt"`
}

// Option 配置 Service。
type Option func(*Service)

// WithSender 设置推送通道。
func WithSender(s Sender) Option {
	return func(svc *Service) { svc.sender = s }
}

// WithClock 替换时钟，测试用。
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// WithRand 替换随机源，测试用。
func WithRand(r *rand.Rand) Option {
	return func(svc *Service) { svc.rand = r }
}

// WithLogger 设置日志。
func WithLogger(l zerolog.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// Service 推送中继
type Service struct {
	kv     KV
	sender Sender
	now    func() time.Time
	logger zerolog.Logger

	mu   sync.Mutex // 保护 rand 与通知 ID 分配
	rand *rand.Rand
}

// NewService 创建中继服务。
func NewService(kv KV, opts ...Option) *Service {
	s := &Service{
		kv:     kv,
		now:    time.Now,
		logger: zerolog.Nop(),
		rand:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x63686969)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanSend 报告是否配置了推送通道。
func (s *Service) CanSend() bool {
	return s.sender != nil
}

// RegisterToken 登记设备，重复登记不产生新记录。返回当前设备数。
func (s *Service) RegisterToken(ctx context.Context, token string) (int, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, ErrMissingToken
	}

	var existing registration
	err := s.kv.Get(ctx, storage.Tokens, token, &existing)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		reg := registration{Token: token, RegisteredAt: s.now().UnixMilli()}
		if err := s.kv.Put(ctx, storage.Tokens, token, reg); err != nil {
			return 0, fmt.Errorf("save token: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("load token: %w", err)
	}

	tokens, err := s.Tokens(ctx)
	if err != nil {
		return 0, err
	}
	return len(tokens), nil
}

// UnregisterToken 移除设备，不存在时也算成功。
func (s *Service) UnregisterToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}
	return s.kv.Delete(ctx, storage.Tokens, token)
}

// Tokens 按登记顺序返回全部设备 token。
func (s *Service) Tokens(ctx context.Context) ([]string, error) {
	raw, err := s.kv.All(ctx, storage.Tokens)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	regs := make([]registration, 0, len(raw))
	for key, value := range raw {
		var reg registration
		if err := json.Unmarshal(value, &reg); err != nil {
			s.logger.Warn().Err(err).Str("token", key).Msg("skip malformed token record")
			continue
		}
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].RegisteredAt != regs[j].RegisteredAt {
			return regs[i].RegisteredAt < regs[j].RegisteredAt
		}
		return regs[i].Token < regs[j].Token
	})

	tokens := make([]string, len(regs))
	for i, reg := range regs {
		tokens[i] = reg.Token
	}
	return tokens, nil
}

// Notify 向全部设备多播。没有通道时返回 ErrNoSender；没有设备时
// delivered 为 false，不调用通道。
func (s *Service) Notify(ctx context.Context, p Push) (report Report, delivered bool, err error) {
	if s.sender == nil {
		return Report{}, false, ErrNoSender
	}
	tokens, err := s.Tokens(ctx)
	if err != nil {
		return Report{}, false, err
	}
	if len(tokens) == 0 {
		return Report{}, false, nil
	}

	if strings.TrimSpace(p.Title) == "" {
		p.Title = DefaultTitle
	}
	if strings.TrimSpace(p.Body) == "" {
		p.Body = DefaultBody
	}

	report, err = s.sender.Send(ctx, tokens, p)
	if err != nil {
		return Report{}, false, err
	}
	s.logger.Info().
		Int("success", report.SuccessCount).
		Int("failure", report.FailureCount).
		Msg("push delivered")
	return report, true, nil
}

// Generate 按类别随机挑选文案生成一条通知并保存，有设备时顺带推送。
// 推送失败只记日志。
func (s *Service) Generate(ctx context.Context, t Type, coreMemory string) (Notification, error) {
	if strings.TrimSpace(string(t)) == "" {
		t = Greeting
	}

	n, err := s.newNotification(ctx, t, coreMemory)
	if err != nil {
		return Notification{}, err
	}
	if err := s.kv.Put(ctx, storage.Notifications, n.ID, n); err != nil {
		return Notification{}, fmt.Errorf("save notification: %w", err)
	}
	s.logger.Info().Str("type", string(t)).Str("id", n.ID).Msg("notification generated")

	if s.sender != nil {
		tokens, err := s.Tokens(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skip push, tokens unavailable")
		} else if len(tokens) > 0 {
			if _, err := s.sender.Send(ctx, tokens, Push{Title: n.Title, Body: n.Body}); err != nil {
				s.logger.Warn().Err(err).Str("id", n.ID).Msg("push send error")
			}
		}
	}
	return n, nil
}

func (s *Service) newNotification(ctx context.Context, t Type, coreMemory string) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UnixMilli()
	// ID 是毫秒时间戳，同一毫秒内顺延。
	id := ts
	for {
		var existing Notification
		err := s.kv.Get(ctx, storage.Notifications, strconv.FormatInt(id, 10), &existing)
		if errors.Is(err, storage.ErrNotFound) {
			break
		}
		if err != nil {
			return Notification{}, fmt.Errorf("load notification: %w", err)
		}
		id++
	}

	return Notification{
		ID:        strconv.FormatInt(id, 10),
		Type:      t,
		Title:     DefaultTitle,
		Body:      pickTemplate(s.rand, t),
		Timestamp: ts,
		Memory:    memoryPreview(coreMemory),
	}, nil
}

func memoryPreview(coreMemory string) string {
	if coreMemory == "" {
		return ""
	}
	r := []rune(coreMemory)
	if len(r) > memoryPreviewRunes {
		r = r[:memoryPreviewRunes]
	}
	return "(来自: " + string(r) + "...)"
}

// Pending 按生成顺序返回通知，unreadOnly 时只保留未读。
func (s *Service) Pending(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	raw, err := s.kv.All(ctx, storage.Notifications)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]Notification, 0, len(raw))
	for key, value := range raw {
		var n Notification
		if err := json.Unmarshal(value, &n); err != nil {
			s.logger.Warn().Err(err).Str("id", key).Msg("skip malformed notification")
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return idLess(out[i].ID, out[j].ID)
	})
	return out, nil
}

// idLess 比较数字字符串 ID。
func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// MarkRead 标记已读。
func (s *Service) MarkRead(ctx context.Context, id string) error {
	var n Notification
	if err := s.kv.Get(ctx, storage.Notifications, id, &n); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	if n.Read {
		return nil
	}
	n.Read = true
	return s.kv.Put(ctx, storage.Notifications, id, n)
}

func (s *Service) randomType() Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pickType(s.rand)
}
