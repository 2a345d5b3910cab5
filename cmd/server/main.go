package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dterekhov/roomcast/internal/adapters/http"
	wssignal "github.com/dterekhov/roomcast/internal/adapters/signal"
	"github.com/dterekhov/roomcast/internal/app"
	"github.com/dterekhov/roomcast/internal/config"
	"github.com/dterekhov/roomcast/internal/core"
	"github.com/dterekhov/roomcast/internal/media"
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

	engine, err := media.NewEngine(media.Options{
		MinPort:     cfg.Media.RTCMinPort,
		MaxPort:     cfg.Media.RTCMaxPort,
		AnnouncedIP: cfg.Media.AnnouncedIP,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media engine")
	}

	store := core.NewStore(engine, media.DefaultCodecs())
	rooms := app.NewRooms(store)
	ctl := wssignal.NewController(rooms, cfg)

	r := router.SetupRouter(ctx, cfg, rooms, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Roomcast server started")
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
