package stream

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	speechmodel "github.com/zhouzirui/chobits/backend/internal/model/speech"
	"github.com/zhouzirui/chobits/backend/internal/playback"
	chatService "github.com/zhouzirui/chobits/backend/internal/service/chat"
	"github.com/zhouzirui/chobits/backend/internal/service/companion"
	"github.com/zhouzirui/chobits/backend/pkg/utils"
)

// Handler 通过 Server-Sent Events 推送一轮对话的播放过程。
type Handler struct {
	turns  *companion.Service
	logger zerolog.Logger
}

// New creates a new stream handler
func New(turns *companion.Service, logger zerolog.Logger) *Handler {
	return &Handler{turns: turns, logger: logger}
}

// RegisterRoutes 注册 SSE 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// StreamResponse start / end / error 事件的数据
type StreamResponse struct {
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleStream 接收 message / voice / user 查询参数，按播放顺序推送
// emotion、reveal、speaking、audio 事件，最后是 message 和 end。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	query := r.URL.Query()
	userMessage := query.Get("message")

	if strings.TrimSpace(userMessage) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	voice, _ := strconv.ParseBool(query.Get("voice"))
	log := h.logger.With().Str("session", sessionID).Bool("voice", voice).Logger()

	utils.SetupSSEHeaders(w)

	// 语音回调可能来自其他 goroutine
	var mu sync.Mutex
	send := func(event string, data any) {
		mu.Lock()
		defer mu.Unlock()
		if err := utils.SendSSEEvent(w, flusher, event, data); err != nil {
			log.Debug().Err(err).Str("event", event).Msg("sse write failed")
		}
	}

	send("start", StreamResponse{SessionID: sessionID})

	result, err := h.turns.HandleTurn(r.Context(), companion.TurnRequest{
		SessionID: sessionID,
		Text:      userMessage,
		Voice:     voice,
		UserName:  query.Get("user"),
	}, companion.Hooks{
		Event: func(e playback.Event) { send(string(e.Kind), e) },
		Audio: func(chunk speechmodel.AudioChunk) error {
			send("audio", chunk)
			return nil
		},
	})

	if result.Reply.ID != "" {
		send("message", map[string]any{
			"message": result.Reply,
			"outcome": result.Outcome,
		})
	}
	if err != nil {
		if r.Context().Err() == nil {
			log.Warn().Err(err).Msg("stream turn failed")
		}
		send("error", StreamResponse{SessionID: sessionID, Error: errorMessage(err)})
	}

	send("end", StreamResponse{SessionID: sessionID, Finished: true})
	log.Debug().Msg("stream closed")
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, companion.ErrTurnInProgress):
		return "a reply is already playing"
	default:
		return err.Error()
	}
}
