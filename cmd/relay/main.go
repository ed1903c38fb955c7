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
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/chobits/backend/internal/config"
	"github.com/zhouzirui/chobits/backend/internal/handler"
	"github.com/zhouzirui/chobits/backend/internal/logging"
	"github.com/zhouzirui/chobits/backend/internal/service/notify"
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

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Console: cfg.Log.Console, App: "chobits-relay"})
	log.Logger = logger
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file")
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("failed to open storage")
	}
	defer db.Close()

	opts := []notify.Option{notify.WithLogger(logging.Component(logger, "notify"))}
	if cfg.Relay.CredentialsFile != "" {
		sender, err := notify.NewFCMSender(ctx, cfg.Relay.CredentialsFile)
		if err != nil {
			logger.Warn().Err(err).Msg("firebase messaging not initialized, push sending will fail")
		} else {
			opts = append(opts, notify.WithSender(sender))
		}
	} else {
		logger.Warn().Msg("FIREBASE_CREDENTIALS not set, push sending will fail")
	}
	svc := notify.NewService(db, opts...)

	srv := &http.Server{
		Addr:              cfg.Relay.Server.Addr,
		Handler:           handler.NewRelayRouter(svc, logger),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("Chobits push server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Relay.EnableScheduler {
		scheduler := notify.NewScheduler(svc, cfg.Relay.Interval, logging.Component(logger, "scheduler"))
		g.Go(func() error { return scheduler.Run(gctx) })
	} else {
		logger.Info().Msg("Scheduler disabled. To enable, set ENABLE_SCHEDULER=1")
	}

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("relay stopped")
	}
}
