package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/analysis/emotion"
	speechmodel "github.com/zhouzirui/chobits/backend/internal/model/speech"
	"github.com/zhouzirui/chobits/backend/internal/playback"
	chatservice "github.com/zhouzirui/chobits/backend/internal/service/chat"
	"github.com/zhouzirui/chobits/backend/internal/service/companion"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocketHandler 双向对话通道：收文本、回放与表情指令，推送播放事件。
type WebSocketHandler struct {
	turns    *companion.Service
	chatSvc  *chatservice.Service
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(turns *companion.Service, chatSvc *chatservice.Service, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		turns:   turns,
		chatSvc: chatSvc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage 用户发言
type TextMessage struct {
	Text     string `json:"text"`
	UserName string `json:"userName,omitempty"`
	Voice    *bool  `json:"voice,omitempty"`
}

// ConfigMessage 连接级配置
type ConfigMessage struct {
	Language   string `json:"language"`
	Voice      string `json:"voice"`
	UserName   string `json:"userName"`
	TTSEnabled *bool  `json:"ttsEnabled,omitempty"`
}

// ReplayMessage 重放一条助手消息
type ReplayMessage struct {
	MessageID string `json:"messageId"`
}

// EmotionMessage 手动切换表情
type EmotionMessage struct {
	Emotion string `json:"emotion"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type connectionState struct {
	sessionID  string
	language   string
	voice      string
	userName   string
	ttsEnabled bool
}

func newConnectionState(sessionID string, voiceAvailable bool) *connectionState {
	return &connectionState{
		sessionID:  sessionID,
		language:   "zh-CN",
		ttsEnabled: voiceAvailable,
	}
}

// wsConn 串行化写入，gorilla 的连接只允许一个并发写者。
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// connection 一个连接的运行状态，同一时间最多一个后台任务（回复或重放）。
type connection struct {
	h     *WebSocketHandler
	ws    *wsConn
	state *connectionState
	log   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &connection{
		h:     h,
		ws:    &wsConn{conn: conn},
		state: newConnectionState(sessionID, h.turns.VoiceEnabled()),
		log:   h.logger.With().Str("session", sessionID).Logger(),
	}
	c.log.Info().Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		c.wg.Wait()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		pingLoop(ctx, conn)
	}()

	c.send("connected", map[string]any{
		"persona":  session.PersonaID,
		"language": c.state.language,
		"tts":      c.state.ttsEnabled,
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			c.sendError("session mismatch")
			continue
		}

		c.handleMessage(ctx, &msg)
	}
}

func (c *connection) handleMessage(ctx context.Context, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		c.handleText(ctx, msg.Data)
	case "replay":
		c.handleReplay(ctx, msg.Data)
	case "emotion":
		c.handleEmotion(ctx, msg.Data)
	case "config":
		c.handleConfig(msg.Data)
	case "cancel":
		c.cancelRunning()
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

func (c *connection) handleText(ctx context.Context, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		c.sendError("invalid text payload")
		return
	}

	voice := c.state.ttsEnabled
	if text.Voice != nil {
		voice = *text.Voice
	}
	req := companion.TurnRequest{
		SessionID: c.state.sessionID,
		Text:      text.Text,
		Voice:     voice,
		VoiceID:   c.state.voice,
		UserName:  firstNonEmpty(text.UserName, c.state.userName),
	}

	c.run(ctx, func(ctx context.Context) {
		result, err := c.h.turns.HandleTurn(ctx, req, c.hooks())
		if result.Reply.ID != "" {
			c.send("message", map[string]any{"message": result.Reply, "outcome": result.Outcome})
		}
		c.finish(err)
	})
}

func (c *connection) handleReplay(ctx context.Context, raw json.RawMessage) {
	var replay ReplayMessage
	if err := json.Unmarshal(raw, &replay); err != nil || replay.MessageID == "" {
		c.sendError("invalid replay payload")
		return
	}

	voice := c.state.ttsEnabled
	c.run(ctx, func(ctx context.Context) {
		_, err := c.h.turns.Replay(ctx, c.state.sessionID, replay.MessageID, voice, c.hooks())
		c.finish(err)
	})
}

func (c *connection) handleEmotion(ctx context.Context, raw json.RawMessage) {
	var payload EmotionMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.sendError("invalid emotion payload")
		return
	}
	if err := c.h.turns.SetEmotion(ctx, c.state.sessionID, emotion.Code(payload.Emotion)); err != nil {
		c.sendError(err.Error())
		return
	}
	code, _ := c.h.turns.Emotion(ctx, c.state.sessionID)
	c.send("emotion", playback.Event{
		Kind:       playback.EventEmotion,
		Segment:    -1,
		Emotion:    code,
		Asset:      emotion.AssetPath(code),
		Persistent: true,
	})
}

func (c *connection) handleConfig(raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		c.sendError("invalid config payload")
		return
	}

	c.mu.Lock()
	applyConfig(c.state, cfg, c.h.turns.VoiceEnabled())
	snapshot := *c.state
	c.mu.Unlock()

	c.log.Debug().Str("voice", snapshot.voice).Str("language", snapshot.language).Msg("config applied")
	c.send("config", map[string]any{
		"language": snapshot.language,
		"voice":    snapshot.voice,
		"userName": snapshot.userName,
		"tts":      snapshot.ttsEnabled,
	})
}

func applyConfig(state *connectionState, cfg ConfigMessage, voiceAvailable bool) {
	if cfg.Language != "" {
		state.language = cfg.Language
	}
	if cfg.Voice != "" {
		state.voice = cfg.Voice
	}
	if cfg.UserName != "" {
		state.userName = cfg.UserName
	}
	if cfg.TTSEnabled != nil {
		state.ttsEnabled = *cfg.TTSEnabled && voiceAvailable
	}
}

// run 在后台执行任务，读循环继续处理 ping 与 cancel。
func (c *connection) run(ctx context.Context, task func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.sendError(companion.ErrTurnInProgress.Error())
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.cancel = nil
			c.mu.Unlock()
			cancel()
		}()
		task(taskCtx)
	}()
}

func (c *connection) cancelRunning() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *connection) hooks() companion.Hooks {
	return companion.Hooks{
		Event: func(e playback.Event) { c.send(string(e.Kind), e) },
		Audio: func(chunk speechmodel.AudioChunk) error {
			return c.ws.send(outgoingMessage{
				Type:      "audio",
				SessionID: c.state.sessionID,
				Data:      chunk,
				Timestamp: time.Now().Unix(),
			})
		},
	}
}

func (c *connection) finish(err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn().Err(err).Msg("websocket task failed")
		c.sendError(err.Error())
	}
	c.send("end", map[string]any{"finished": true, "cancelled": errors.Is(err, context.Canceled)})
}

func (c *connection) send(kind string, data any) {
	msg := outgoingMessage{
		Type:      kind,
		SessionID: c.state.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.ws.send(msg); err != nil {
		c.log.Debug().Err(err).Str("type", kind).Msg("websocket write failed")
	}
}

func (c *connection) sendError(message string) {
	c.send("error", map[string]string{"message": message})
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
