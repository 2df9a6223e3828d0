package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"persona-gateway/middleware/guard/application"
	"persona-gateway/middleware/guard/domain"
	"persona-gateway/middleware/guard/infra"
)

func main() {
	if err := loadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	logger := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	policy, err := buildPolicy(cfg)
	if err != nil {
		return err
	}
	if policy.DevBypass {
		logger.Warn("DEV_BYPASS is ON: every quota, bot and block check is disabled")
	}
	if policy.FailOpen {
		logger.Warn("FAIL_OPEN is ON: requests are allowed while the counter store is unreachable")
	}

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.FlushInterval = -1
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error", "path", r.URL.Path, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promStats, err := infra.NewPrometheusStatsStore(reg)
	if err != nil {
		return fmt.Errorf("prometheus stats: %w", err)
	}
	stats := infra.MultiStatsStore{promStats}

	var slots *infra.ChanPool
	if cfg.ConcurrencyMax > 0 {
		slots = infra.NewChanPool(cfg.ConcurrencyMax)
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "guard",
			Name:      "completions_in_flight",
			Help:      "Chamadas ao completion em andamento neste processo.",
		}, func() float64 { return float64(slots.InFlight()) }))
	}

	throttle := infra.NewThrottleStore(cfg.ThrottleRPS, cfg.ThrottleBurst)
	cleaners := []cleaner{func(time.Time) { throttle.Cleanup() }}

	var (
		counters domain.CounterStore
		visitors domain.VisitorStore
		health   *redisHealth
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// segue subindo: o guard nega com 503 até o Redis voltar.
			logger.Error("redis ping failed at startup", "addr", cfg.RedisAddr, "error", err)
		}

		counters = infra.NewRedisCounterStore(rdb, infra.WithCounterPrefix(cfg.RedisPrefix+":rl"))
		visitors = infra.NewRedisVisitorStore(rdb, infra.WithVisitorPrefix(cfg.RedisPrefix+":visitor"))
		if cfg.StatsEnabled {
			stats = append(stats, infra.NewRedisStatsStore(rdb,
				infra.WithStatsPrefix(cfg.RedisPrefix+":stats"),
				infra.WithStatsTTL(cfg.StatsTTL),
				infra.WithStatsBucket(cfg.StatsBucket),
				infra.WithStatsTrackKeys(cfg.StatsTrackKeys),
			))
		}
		health = &redisHealth{rdb: rdb, timeout: cfg.StoreTimeout, logger: logger}
	} else {
		logger.Warn("REDIS_ADDR not set: counters and visitors live in memory and are not shared between replicas")
		mem := infra.NewMemoryCounterStore()
		counters = mem
		visitors = infra.NewMemoryVisitorStore()
		cleaners = append(cleaners, mem.Cleanup)
	}

	g := application.NewGuard(policy, counters, visitors, logger)

	sched, err := startJobs(cfg, cleaners, health, logger)
	if err != nil {
		return fmt.Errorf("start jobs: %w", err)
	}
	defer func() { _ = sched.Shutdown() }()

	h := newRouter(app{
		cfg:      cfg,
		guard:    g,
		visitors: visitors,
		stats:    stats,
		throttle: throttle,
		slots:    slots,
		upstream: proxy,
		registry: reg,
		logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// completion em streaming pode demorar.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  90 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening", "addr", cfg.ListenAddr, "upstream", target.String())
	logger.Info("guard policy",
		"tier_period", policy.TierPeriod,
		"global", policy.GlobalBurst.Capacity,
		"ip_hourly", policy.IPHourly.Capacity,
		"ip_daily", policy.IPDaily.Capacity,
		"bot_block", policy.Bot.BlockThreshold,
		"store_timeout", policy.StoreTimeout,
		"redis", cfg.RedisAddr != "",
	)
	logger.Info("limits", "throttle_rps", cfg.ThrottleRPS, "throttle_burst", cfg.ThrottleBurst, "concurrency_max", cfg.ConcurrencyMax)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
