package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crisis-lab/sim-service/config"
	"github.com/crisis-lab/sim-service/internal/bus"
	"github.com/crisis-lab/sim-service/internal/postgres"
	"github.com/crisis-lab/sim-service/internal/scheduler"
	"github.com/crisis-lab/sim-service/internal/service"
	httpx "github.com/crisis-lab/sim-service/internal/transport/http"
	"github.com/crisis-lab/sim-service/internal/transport/ws"
	"github.com/crisis-lab/sim-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting sim-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	// --- repos ---
	roomRepo := postgres.NewRoomRepository(db.Pool)
	partRepo := postgres.NewParticipantRepository(db.Pool)
	chatRepo := postgres.NewChatRepository(db.Pool)
	eventRepo := postgres.NewEventRepository(db.Pool)

	// --- services ---
	roomSvc := service.NewRoomService(roomRepo)
	memberSvc := service.NewMemberService(partRepo)
	chatSvc := service.NewChatService(chatRepo)
	eventSvc := service.NewEventService(eventRepo)

	// --- hub & bus ---
	hub := ws.NewHub()

	var roomBus ws.Bus
	var natsBus *bus.NatsBus
	if cfg.NATS.URL != "" {
		natsBus, err = bus.NewNatsBus(cfg.NATS.URL, hub)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		roomBus = natsBus
		slog.Info("broadcast relay enabled", "url", cfg.NATS.URL)
	} else {
		roomBus = bus.NewLocalBus(hub)
	}

	// --- per-room event scheduler ---
	minIv, maxIv := cfg.Scheduler.Intervals()
	sched := scheduler.New(eventSvc, roomBus, hub, minIv, maxIv, cfg.Scheduler.Probability)

	// --- WS server ---
	wsServer := ws.NewServer(hub, roomSvc, memberSvc, chatSvc, eventSvc, roomBus, sched, cfg.Admin.Secret)

	// --- HTTP ---
	handler := httpx.NewHandler(roomSvc, chatSvc, eventSvc, roomBus)
	router := httpx.NewRouter(handler, wsServer, cfg.Admin.Secret)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sched.StopAll()
	if natsBus != nil {
		natsBus.Close()
	}
	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
