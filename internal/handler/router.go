package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/handler/backup"
	"github.com/zhouzirui/chobits/backend/internal/handler/chat"
	"github.com/zhouzirui/chobits/backend/internal/handler/notify"
	"github.com/zhouzirui/chobits/backend/internal/handler/persona"
	"github.com/zhouzirui/chobits/backend/internal/handler/speech"
	"github.com/zhouzirui/chobits/backend/internal/handler/stream"
	"github.com/zhouzirui/chobits/backend/internal/logging"
	middlewarePkg "github.com/zhouzirui/chobits/backend/internal/middleware"
	personaModel "github.com/zhouzirui/chobits/backend/internal/model/persona"
	chatService "github.com/zhouzirui/chobits/backend/internal/service/chat"
	"github.com/zhouzirui/chobits/backend/internal/service/companion"
	notifyService "github.com/zhouzirui/chobits/backend/internal/service/notify"
	"github.com/zhouzirui/chobits/backend/pkg/utils"
)

// Deps 路由依赖的服务。Speech 与 Backup 可以为空。
type Deps struct {
	Personas personaModel.Store
	Chats    *chatService.Service
	Turns    *companion.Service
	Speech   speech.SpeechService
	Backup   backup.Store
	Logger   zerolog.Logger
}

func baseRouter(logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// NewRouter wires HTTP routes to core services.
func NewRouter(d Deps) http.Handler {
	r := baseRouter(d.Logger)

	personaHandler := persona.New(d.Personas)
	chatHandler := chat.New(d.Chats, d.Personas, d.Turns)
	streamHandler := stream.New(d.Turns, logging.Component(d.Logger, "stream"))
	wsHandler := speech.NewWebSocketHandler(d.Turns, d.Chats, logging.Component(d.Logger, "websocket"))

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterWebSocketRoutes(api)

		if d.Speech != nil {
			speech.New(d.Speech, d.Chats, d.Personas, logging.Component(d.Logger, "speech")).RegisterRoutes(api)
		}

		if d.Backup != nil {
			backup.New(d.Backup, d.Chats.Invalidate, logging.Component(d.Logger, "backup")).RegisterRoutes(api)
		}
	})

	return r
}

// NewRelayRouter 推送中继的路由，接口挂在根路径。
func NewRelayRouter(svc *notifyService.Service, logger zerolog.Logger) http.Handler {
	r := baseRouter(logger)
	notify.New(svc, logging.Component(logger, "relay")).RegisterRoutes(r)
	return r
}
