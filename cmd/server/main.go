package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Consult/internal/adapters/http"
	wssignal "github.com/dkeye/Consult/internal/adapters/signal"
	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/repository"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	store, err := repository.New(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open meeting store")
	}

	events := app.NewMeetingEvents()
	lifecycle := app.NewLifecycleSync(store, events, cfg.Store.Timeout)
	rooms := app.NewRoomRegistry()

	conns := app.NewRegistry()
	o := &orch.Orchestrator{
		Registry:  conns,
		Rooms:     rooms,
		Lifecycle: lifecycle,
		Policy:    app.SimplePolicy{},
	}
	ctl := wssignal.NewSignalWSController(o, wssignal.NewChatRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateWindow), wssignal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})

	r := router.SetupRouter(cfg, router.Deps{
		Signal:   ctl,
		Meetings: app.NewMeetingService(store, events),
		Events:   events,
		Rooms:    rooms,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Msg("Consult signaling server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Shutdown does not track hijacked websockets.
	if err := conns.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Int("remaining", conns.Count()).Msg("connections still open at shutdown")
	}
	lifecycle.Close()
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("close meeting store")
	}
	log.Info().Msg("Server exited gracefully")
}
