package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chobits/backend/internal/analysis/emotion"
	"github.com/zhouzirui/chobits/backend/internal/analysis/reply"
	"github.com/zhouzirui/chobits/backend/internal/model/chat"
	"github.com/zhouzirui/chobits/backend/internal/model/persona"
	"github.com/zhouzirui/chobits/backend/internal/playback"
	chatService "github.com/zhouzirui/chobits/backend/internal/service/chat"
	"github.com/zhouzirui/chobits/backend/internal/service/companion"
	"github.com/zhouzirui/chobits/backend/pkg/utils"
)

// Emotions 读写会话头像表情，由 companion.Service 实现。
type Emotions interface {
	Emotion(ctx context.Context, sessionID string) (emotion.Code, error)
	SetEmotion(ctx context.Context, sessionID string, code emotion.Code) error
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc      *chatService.Service
	personaStore persona.Store
	emotions     Emotions
}

// New 创建聊天处理器，emotions 为 nil 时不注册表情接口。
func New(chatSvc *chatService.Service, personaStore persona.Store, emotions Emotions) *Handler {
	return &Handler{
		chatSvc:      chatSvc,
		personaStore: personaStore,
		emotions:     emotions,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Post("/messages", h.handleSaveMessage)
	r.Get("/session/{sessionID}/messages", h.handleListMessages)
	if h.emotions != nil {
		r.Get("/session/{sessionID}/emotion", h.handleGetEmotion)
		r.Put("/session/{sessionID}/emotion", h.handleSetEmotion)
	}
}

// handleCreateSession 创建会话，助手有开场白时作为第一条消息写入。
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}

	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.PersonaID == "" {
		utils.RespondError(w, http.StatusBadRequest, "personaId is required")
		return
	}

	p, ok := h.personaStore.FindByID(payload.PersonaID)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "persona not found")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.PersonaID)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if opening := strings.TrimSpace(p.OpeningLine); opening != "" {
		parsed := reply.Parse(opening, reply.DefaultSubstitutions(p.UserAddress))
		if _, err := h.chatSvc.SaveMessage(r.Context(), chat.Message{
			SessionID:  session.ID,
			Role:       chat.RoleAssistant,
			Content:    parsed.CleanText,
			RawContent: parsed.DialogueText,
		}); err != nil {
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleSaveMessage 直接写入一条消息，不触发回复。
func (h *Handler) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID   string            `json:"sessionId"`
		Role        chat.Role         `json:"role"`
		Content     string            `json:"content"`
		Emotion     string            `json:"emotion"`
		Attachments []chat.Attachment `json:"attachments"`
	}

	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.chatSvc.SaveMessage(r.Context(), chat.Message{
		SessionID:   payload.SessionID,
		Role:        payload.Role,
		Content:     payload.Content,
		Emotion:     payload.Emotion,
		Attachments: payload.Attachments,
	})
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, saved)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.LoadTranscript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type emotionPayload struct {
	Emotion emotion.Code `json:"emotion"`
	Asset   string       `json:"asset,omitempty"`
}

func (h *Handler) handleGetEmotion(w http.ResponseWriter, r *http.Request) {
	code, err := h.emotions.Emotion(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, emotionPayload{Emotion: code, Asset: emotion.AssetPath(code)})
}

func (h *Handler) handleSetEmotion(w http.ResponseWriter, r *http.Request) {
	var payload emotionPayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if err := h.emotions.SetEmotion(r.Context(), sessionID, payload.Emotion); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	code, err := h.emotions.Emotion(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, emotionPayload{Emotion: code, Asset: emotion.AssetPath(code)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrInvalidRole), errors.Is(err, companion.ErrUnknownEmotion):
		return http.StatusBadRequest
	case errors.Is(err, playback.ErrStreaming), errors.Is(err, companion.ErrTurnInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
