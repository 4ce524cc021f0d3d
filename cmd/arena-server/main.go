package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/gateway"
	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/profile"
	"github.com/park285/chess-arena/internal/record"
	"github.com/park285/chess-arena/internal/session"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	profiles, err := profile.NewStore(cfg.RedisURL, cfg.DefaultRating)
	if err != nil {
		log.Fatalf("profile store init error: %v", err)
	}

	// Archival is optional; without a database finished games only reach
	// the sockets and the rating store.
	var recorder session.Recorder
	var repo *record.Repository
	if cfg.DatabaseURL != "" {
		repo, err = record.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("game repository init error: %v", err)
		}
		recorder = repo
	} else {
		obslog.L().Warn("game archival disabled, no database configured")
	}

	srv := gateway.NewServer(cfg, profiles)
	registry := session.NewRegistry(cfg, srv, recorder, profiles)
	queue := matchmaking.NewManager(cfg, registry, srv, srv)
	srv.Attach(registry, queue)
	queue.StartSweep()

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		obslog.L().Info("listen", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	status := gateway.NewStatusServer(cfg.StatusAddr, srv)
	go func() {
		if err := status.ListenAndServe(); err != nil {
			obslog.L().Error("status_listen_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	obslog.L().Info("shutting down")
	queue.StopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	_ = status.Shutdown()
	_ = profiles.Close()
	if repo != nil {
		_ = repo.Close()
	}
}
