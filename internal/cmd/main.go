package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lbalbarani-maker/hockey-score/internal/dbconfig"
	"github.com/lbalbarani-maker/hockey-score/internal/engine"
	"github.com/lbalbarani-maker/hockey-score/internal/gateway"
	"github.com/lbalbarani-maker/hockey-score/internal/matchstore"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to build match store")
	}
	defer closeStore()

	log.Info().
		Str("backend", cfg.Store.Backend).
		Str("port", cfg.Server.Port).
		Msg("starting scoreboard gateway")

	engineConfig := engine.DefaultConfig()
	engineConfig.TickInterval = cfg.TickInterval()
	engineConfig.NoticeWindow = cfg.NoticeWindow()

	service := gateway.NewService(store, gateway.Config{
		ConnectionConfig: gateway.DefaultConnectionConfig(),
		EngineConfig:     engineConfig,
	})
	service.Start(ctx)
	defer service.Stop()

	server := newServer(cfg, service)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	log.Info().Msg("shutdown complete")
}

// buildStore selects and connects the configured match store backend.
func buildStore(ctx context.Context, cfg *Config) (matchstore.Store, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return matchstore.NewMemoryStore(), func() {}, nil

	case "nats":
		natsCfg := matchstore.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Bucket = cfg.NATS.Bucket
		store, err := matchstore.NewNATSStore(ctx, natsCfg)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case "postgres":
		store, err := matchstore.NewPostgresStore(ctx, dbconfig.NewConfigFromEnv().DSN())
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
