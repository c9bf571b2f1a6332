package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/raghavared/agent-maestro/internal/broadcast"
	"github.com/raghavared/agent-maestro/internal/config"
	"github.com/raghavared/agent-maestro/internal/httpapi"
	"github.com/raghavared/agent-maestro/internal/observability"
	"github.com/raghavared/agent-maestro/internal/orchestrator"
	"github.com/raghavared/agent-maestro/internal/store"
	"github.com/raghavared/agent-maestro/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, storeMode, err := store.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()
	log.Printf("task store: %s", storeMode)

	registry, err := strategy.Builtin()
	if err != nil {
		log.Fatalf("strategy registry init failed: %v", err)
	}
	log.Printf("strategies: %v", registry.IDs())

	hub := broadcast.NewHub(cfg.EventBuffer)
	hub.SetDropHook(func(t broadcast.Type) {
		metrics.BroadcastDropped.WithLabelValues(string(t)).Inc()
	})

	manager := orchestrator.NewManager(registry, st, hub, metrics, cfg.StoreTimeout)

	api := httpapi.New(cfg, manager, hub, metrics, storeMode)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	if cfg.SessionIdleTimeout > 0 {
		manager.StartJanitor(runCtx, cfg.JanitorInterval, cfg.SessionIdleTimeout)
		log.Printf("janitor enabled: idle timeout %s, sweep every %s", cfg.SessionIdleTimeout, cfg.JanitorInterval)
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
