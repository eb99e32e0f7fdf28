package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/syncparty/go/internal/party"
	"github.com/mcdev12/syncparty/go/internal/relay"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	clock := clockwork.NewRealClock()

	registry := party.NewRegistry(clock)
	reaper := party.NewReaper(registry, clock, cfg.reapInterval(), cfg.idleThreshold())

	connCfg := relay.DefaultConnConfig()
	connCfg.PingInterval = cfg.pingInterval()
	connCfg.PongWait = cfg.pongWait()
	connCfg.WriteWait = cfg.writeWait()
	connCfg.MaxMessageSize = int64(cfg.Relay.MaxMessageBytes)
	connCfg.SendBufferSize = cfg.Relay.SendBufferFrames

	hub := relay.NewHub(registry, clock, connCfg)
	handler := relay.NewHandler(hub)

	server := setupServer(cfg, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	go reaper.Run(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	hub.CloseAll()
	cancel()

	log.Info().Msg("shutdown complete")
}
