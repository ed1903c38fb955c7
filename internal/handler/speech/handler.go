package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/model/persona"
	"github.com/zhouzirui/chobits/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/chobits/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/chobits/backend/internal/service/speech"
	"github.com/zhouzirui/chobits/backend/pkg/utils"
)

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	Enabled() bool
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc    SpeechService
	chatSvc      *chatservice.Service
	personaStore persona.Store
	logger       zerolog.Logger
}

// New 创建语音处理器
func New(speechSvc SpeechService, chatSvc *chatservice.Service, personaStore persona.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		speechSvc:    speechSvc,
		chatSvc:      chatSvc,
		personaStore: personaStore,
		logger:       logger,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Post("/synthesize/{sessionID}", h.handleSynthesizeWithSession)

		// 健康检查
		speechRouter.Get("/health", h.handleHealth)
	})
}

// handleSynthesize 处理文本转语音请求
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	h.processSynthesize(w, r, "")
}

// handleSynthesizeWithSession 处理带会话ID的文本转语音请求
func (h *Handler) handleSynthesizeWithSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionID is required")
		return
	}

	h.processSynthesize(w, r, sessionID)
}

func (h *Handler) processSynthesize(w http.ResponseWriter, r *http.Request, overrideSessionID string) {
	if h.speechSvc == nil || !h.speechSvc.Enabled() {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech synthesis not configured")
		return
	}

	var req speech.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if overrideSessionID != "" {
		req.SessionID = overrideSessionID
	}

	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	if req.SessionID == "" {
		req.SessionID = "default"
	}

	if strings.TrimSpace(req.Voice) == "" {
		if resolved := h.resolveVoiceFromContext(r.Context(), req.SessionID); resolved != "" {
			req.Voice = resolved
		}
	}

	resp, err := h.speechSvc.Synthesize(r.Context(), &req)
	if err != nil {
		h.logger.Warn().Err(err).Str("session", req.SessionID).Msg("tts request failed")
		status := http.StatusInternalServerError
		if errors.Is(err, speechsvc.ErrEmptyText) {
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, "speech synthesis failed")
		return
	}

	if len(resp.AudioData) == 0 {
		utils.RespondJSON(w, http.StatusOK, resp)
		return
	}

	format := resp.Format
	if format == "" {
		format = "octet-stream"
	}
	w.Header().Set("Content-Type", "audio/"+format)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+format)
	if resp.Duration > 0 {
		w.Header().Set("X-Audio-Duration", strconv.FormatInt(resp.Duration, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		h.logger.Debug().Err(err).Msg("failed to write audio response")
	}
}

func (h *Handler) resolveVoiceFromContext(ctx context.Context, sessionID string) string {
	if h.chatSvc == nil || h.personaStore == nil {
		return ""
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ""
	}

	session, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		return ""
	}

	personaObj, ok := h.personaStore.FindByID(strings.TrimSpace(session.PersonaID))
	if !ok {
		return ""
	}

	return speechsvc.NormalizeVoiceAlias(personaObj.VoiceID)
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "disabled"
	if h.speechSvc != nil && h.speechSvc.Enabled() {
		status = "healthy"
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"service": "speech",
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
