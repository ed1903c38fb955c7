package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chobits/backend/internal/config"
	"github.com/zhouzirui/chobits/backend/internal/handler"
	"github.com/zhouzirui/chobits/backend/internal/logging"
	"github.com/zhouzirui/chobits/backend/internal/model/persona"
	speechModel "github.com/zhouzirui/chobits/backend/internal/model/speech"
	"github.com/zhouzirui/chobits/backend/internal/playback"
	"github.com/zhouzirui/chobits/backend/internal/service/ai"
	"github.com/zhouzirui/chobits/backend/internal/service/chat"
	"github.com/zhouzirui/chobits/backend/internal/service/companion"
	"github.com/zhouzirui/chobits/backend/internal/service/memory"
	"github.com/zhouzirui/chobits/backend/internal/service/speech"
	"github.com/zhouzirui/chobits/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Console: cfg.Log.Console, App: "chobits-api"})
	log.Logger = logger
	if envErr != nil {
		logger.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("failed to open storage")
	}
	defer db.Close()

	memorySvc := memory.NewService(db, logging.Component(logger, "memory"))
	personaStore, err := loadPersonas(ctx, cfg.AI.AssistantsFile, memorySvc, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load assistants")
	}

	chatService := chat.NewService(chat.WithPersister(db), chat.WithLogger(logging.Component(logger, "chat")))
	aiService := ai.NewService(cfg.AI, ai.WithLogger(logging.Component(logger, "ai")))

	opts := []companion.Option{
		companion.WithPlayback(cfg.Playback.RevealDelay, cfg.Playback.Locale),
		companion.WithLogger(logging.Component(logger, "companion")),
	}

	// Initialize Speech service
	var speechService *speech.Service
	if cfg.Speech.Enabled {
		speechService = speech.NewService(cfg.Speech.Model(), logging.Component(logger, "speech"))
		opts = append(opts, companion.WithVoice(func(sessionID, voice string, sink func(speechModel.AudioChunk) error) playback.Speaker {
			return speech.NewVoice(speechService, sessionID, voice, sink)
		}))
		logger.Info().Msg("speech service initialized")
	} else {
		logger.Info().Msg("语音服务凭证未配置，回复将以文字逐字显示")
	}

	turns := companion.NewService(chatService, personaStore, aiService, memorySvc, opts...)

	deps := handler.Deps{
		Personas: personaStore,
		Chats:    chatService,
		Turns:    turns,
		Backup:   db,
		Logger:   logger,
	}
	if speechService != nil {
		deps.Speech = speechService
	}

	startServer(ctx, cfg.Server, handler.NewRouter(deps), logger)
}

// loadPersonas 读取助手配置文件，没有配置时使用内置的小叽，并为每个助手准备记忆文件夹。
func loadPersonas(ctx context.Context, path string, mem *memory.Service, logger zerolog.Logger) (persona.Store, error) {
	assistants := persona.Seed()
	if path != "" {
		loaded, err := persona.LoadFile(path)
		if err != nil {
			return nil, err
		}
		assistants = loaded
	}

	for i := range assistants {
		a := &assistants[i]
		if a.MemoryFolderID == "" {
			a.MemoryFolderID = a.ID + "-memory"
		}
		if _, err := mem.Provision(ctx, *a); err != nil {
			return nil, err
		}
		logger.Debug().Str("assistant", a.ID).Str("provider", string(a.Provider)).Msg("assistant ready")
	}
	logger.Info().Int("count", len(assistants)).Msg("assistants loaded")
	return persona.NewMemoryStore(assistants), nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("Chobits backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
