package notify

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	notifysvc "github.com/zhouzirui/chobits/backend/internal/service/notify"
	"github.com/zhouzirui/chobits/backend/pkg/utils"
)

// Handler 推送中继的HTTP接口，挂在根路径下。
type Handler struct {
	svc    *notifysvc.Service
	logger zerolog.Logger
}

// New 创建中继处理器
func New(svc *notifysvc.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes 注册中继路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/register-token", h.handleRegister)
	r.Post("/unregister-token", h.handleUnregister)
	r.Post("/notify", h.handleNotify)
	r.Get("/tokens", h.handleTokens)
	r.Get("/pending-notifications", h.handlePending)
	r.Post("/generate-notification", h.handleGenerate)
	r.Post("/mark-notification-read", h.handleMarkRead)
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	count, err := h.svc.RegisterToken(r.Context(), req.Token)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"ok": true, "tokens": count})
}

func (h *Handler) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.UnregisterToken(r.Context(), req.Token); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifysvc.Push
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, delivered, err := h.svc.Notify(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("send error")
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	if !delivered {
		utils.RespondJSON(w, http.StatusOK, map[string]any{"ok": true, "delivered": 0})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"successCount": report.SuccessCount,
		"failureCount": report.FailureCount,
		"responses":    report.Responses,
	})
}

func (h *Handler) handleTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.svc.Tokens(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	notifications, err := h.svc.Pending(r.Context(), unread)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CoreMemory  string `json:"coreMemory"`
		MessageType string `json:"messageType"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := h.svc.Generate(r.Context(), notifysvc.Type(req.MessageType), req.CoreMemory)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"ok": true, "notification": n})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NotificationID string `json:"notificationId"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// 未知 ID 与原有客户端约定一致，按成功处理。
	if err := h.svc.MarkRead(r.Context(), req.NotificationID); err != nil && !errors.Is(err, notifysvc.ErrNotificationNotFound) {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, notifysvc.ErrMissingToken):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
