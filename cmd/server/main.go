package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stagecast/stagecast/internal/adapters/directory"
	router "github.com/stagecast/stagecast/internal/adapters/http"
	"github.com/stagecast/stagecast/internal/adapters/sfu"
	signalws "github.com/stagecast/stagecast/internal/adapters/signal"
	"github.com/stagecast/stagecast/internal/config"
	"github.com/stagecast/stagecast/internal/core"
	"github.com/stagecast/stagecast/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	dir := directory.New()
	for token, name := range cfg.AuthTokens {
		dir.RegisterToken(token, domain.Identity{ID: uuid.NewString(), DisplayName: name})
	}

	engine := sfu.NewEngine(cfg.STUNURLs)
	events := core.NewEventBroadcaster()
	registry := core.NewStageRegistry(engine, events)
	gateway := signalws.NewGateway(registry, dir, events, cfg)

	r := router.SetupRouter(ctx, cfg, gateway, registry)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("stagecast server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
