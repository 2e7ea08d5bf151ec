package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/sentinelhq/sentinel-sync/internal/command"
	"github.com/sentinelhq/sentinel-sync/internal/config"
	"github.com/sentinelhq/sentinel-sync/internal/dispatch"
	"github.com/sentinelhq/sentinel-sync/internal/httpapi"
	"github.com/sentinelhq/sentinel-sync/internal/observability"
	"github.com/sentinelhq/sentinel-sync/internal/review"
	"github.com/sentinelhq/sentinel-sync/internal/stream"
	"github.com/sentinelhq/sentinel-sync/internal/task"
)

func main() {
	bootLog := zerolog.New(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("config error")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("invalid SENTINEL_LOG_LEVEL")
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store := task.NewStore(log)
	commands := command.NewClient(cfg.CommandBaseURL, cfg.CommandTimeout, log)
	engine := review.New(store, commands, metrics, log)
	dispatcher := dispatch.New(store, metrics, log)

	client := stream.NewClient(cfg.EventStreamURL, dispatcher.HandleMessage, func(state stream.ConnState) {
		switch state {
		case stream.StateConnected:
			metrics.ConnectionUp.Set(1)
		case stream.StateConnecting:
			metrics.Reconnects.Inc()
			metrics.ConnectionUp.Set(0)
		default:
			metrics.ConnectionUp.Set(0)
		}
	}, log)
	defer client.Close()
	client.Start()

	api := httpapi.New(store, engine, commands, client, log)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.BindAddr).Msg("local API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	client.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	log.Info().Msg("shutdown complete")
}
