package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"persona-gateway/middleware/guard"
	"persona-gateway/middleware/guard/application"
	"persona-gateway/middleware/guard/domain"
	"persona-gateway/middleware/guard/infra"
)

// app reúne as dependências já montadas que as rotas usam.
type app struct {
	cfg      config
	guard    *application.Guard
	visitors domain.VisitorStore
	stats    domain.StatsStore
	throttle domain.LimiterStore
	slots    *infra.ChanPool
	upstream http.Handler
	registry *prometheus.Registry
	logger   *slog.Logger
}

func newRouter(a app) http.Handler {
	identity := guard.Identity{Secure: a.cfg.CookieSecure, MaxAge: a.cfg.CookieMaxAge}
	clientIP := guard.ClientIP(a.cfg.TrustXFF)

	protect := func(op domain.Operation) func(http.Handler) http.Handler {
		return guard.Middleware(guard.Options{
			Guard:     a.guard,
			Operation: op,
			Identity:  identity,
			KeyFn:     clientIP,
			Visitors:  a.visitors,
			Stats:     a.stats,
			Logger:    a.logger,
		})
	}
	copts := guard.ConcurrencyOptions{
		Max:            a.cfg.ConcurrencyMax,
		AcquireTimeout: a.cfg.ConcurrencyTimeout,
	}
	if a.slots != nil {
		copts.Pool = a.slots
	}
	busy := guard.ConcurrencyLimit(copts)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if a.registry != nil {
		r.Handle(a.cfg.MetricsPath, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}

	// lotação antes do guard: 503 não gasta cota.
	r.With(busy, protect(domain.OpMessage)).Post("/api/chat", a.upstream.ServeHTTP)
	r.With(busy, protect(domain.OpSite)).Post("/api/sites", a.upstream.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(guard.Throttle(guard.ThrottleOptions{Store: a.throttle, KeyFn: clientIP}))
		r.Method(http.MethodGet, "/api/quota", guard.QuotaHandler(guard.QuotaOptions{
			Guard:    a.guard,
			Identity: identity,
			KeyFn:    clientIP,
			Logger:   a.logger,
		}))
		r.Method(http.MethodPost, "/api/visitor/disclose", guard.DisclosureHandler(guard.DisclosureOptions{
			Visitors: a.visitors,
			Identity: identity,
			Logger:   a.logger,
		}))
	})

	admin := guard.Admin{
		Visitors: a.visitors,
		Token:    a.cfg.AdminToken,
		IDParam:  func(r *http.Request) string { return chi.URLParam(r, "id") },
		Logger:   a.logger,
	}
	r.Route("/admin/visitors/{id}", func(r chi.Router) {
		r.Use(admin.Authorize)
		r.Post("/contacted", admin.Contacted)
		r.Post("/block", admin.Block)
		r.Post("/unblock", admin.Unblock)
	})

	return r
}
