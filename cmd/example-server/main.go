package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"persona-gateway/middleware/guard"
	"persona-gateway/middleware/guard/application"
	"persona-gateway/middleware/guard/domain"
	"persona-gateway/middleware/guard/infra"
)

func main() {
	// Exemplo: guard embutido direto no webserver do chat (sem proxy), stores em memória.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	policy := domain.DefaultPolicy()
	visitors := infra.NewMemoryVisitorStore()
	counters := infra.NewMemoryCounterStore()
	stats := infra.NewMemoryStatsStore()
	g := application.NewGuard(policy, counters, visitors, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				counters.Cleanup(now)
			}
		}
	}()

	identity := guard.Identity{}
	chat := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "Olá! Sou o assistente do portfólio."})
	})

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", guard.Middleware(guard.Options{
		Guard:     g,
		Operation: domain.OpMessage,
		Identity:  identity,
		Visitors:  visitors,
		Stats:     stats,
		Logger:    logger,
	})(chat))
	mux.Handle("GET /api/quota", guard.QuotaHandler(guard.QuotaOptions{Guard: g, Identity: identity, Logger: logger}))
	mux.Handle("POST /api/visitor/disclose", guard.DisclosureHandler(guard.DisclosureOptions{Visitors: visitors, Identity: identity, Logger: logger}))
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total":     stats.Total(),
			"by_reason": stats.ByReason(),
		})
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
