package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// config vem de flags ou variáveis de ambiente (.env é carregado antes).
type config struct {
	ListenAddr  string `name:"listen-addr" env:"LISTEN_ADDR" default:":8080" help:"Endereço HTTP do gateway."`
	UpstreamURL string `name:"upstream-url" env:"UPSTREAM_URL" help:"URL do serviço de completion (obrigatório)."`
	PolicyFile  string `name:"policy-file" env:"POLICY_FILE" help:"Arquivo YAML com cotas, janelas e limiares de bot."`

	DevBypass    bool          `name:"dev-bypass" env:"DEV_BYPASS" help:"Desliga todas as verificações. Nunca use em produção."`
	FailOpen     bool          `name:"fail-open" env:"FAIL_OPEN" help:"Permite requests quando o store de contadores falha."`
	StoreTimeout time.Duration `name:"store-timeout" env:"STORE_TIMEOUT" default:"500ms" help:"Timeout de cada chamada ao store."`

	TrustXFF     bool          `name:"trust-xff" env:"TRUST_XFF" help:"Usa o primeiro IP do X-Forwarded-For."`
	CookieSecure bool          `name:"cookie-secure" env:"COOKIE_SECURE" default:"true" help:"Marca o cookie do visitante como Secure."`
	CookieMaxAge time.Duration `name:"cookie-max-age" env:"COOKIE_MAX_AGE" default:"8760h" help:"Validade do cookie do visitante."`
	AdminToken   string        `name:"admin-token" env:"ADMIN_TOKEN" help:"Bearer token da área admin (vazio desliga)."`

	RedisAddr     string `name:"redis-addr" env:"REDIS_ADDR" help:"Redis compartilhado. Vazio usa stores em memória (um processo só)."`
	RedisPassword string `name:"redis-password" env:"REDIS_PASSWORD"`
	RedisDB       int    `name:"redis-db" env:"REDIS_DB" default:"0"`
	RedisPrefix   string `name:"redis-prefix" env:"REDIS_PREFIX" default:"guard"`

	StatsEnabled   bool          `name:"stats-enabled" env:"STATS_ENABLED" default:"true" help:"Grava estatísticas das decisões no Redis."`
	StatsBucket    string        `name:"stats-bucket" env:"STATS_BUCKET" default:"minute" enum:"minute,hour,none"`
	StatsTTL       time.Duration `name:"stats-ttl" env:"STATS_TTL" default:"24h"`
	StatsTrackKeys bool          `name:"stats-track-keys" env:"STATS_TRACK_KEYS"`
	MetricsPath    string        `name:"metrics-path" env:"METRICS_PATH" default:"/metrics"`

	ThrottleRPS   float64 `name:"throttle-rps" env:"THROTTLE_RPS" default:"2" help:"Token bucket por IP dos endpoints baratos."`
	ThrottleBurst int     `name:"throttle-burst" env:"THROTTLE_BURST" default:"10"`

	ConcurrencyMax     int           `name:"concurrency-max" env:"CONCURRENCY_MAX" default:"20" help:"Chamadas simultâneas ao completion (0 desliga)."`
	ConcurrencyTimeout time.Duration `name:"concurrency-timeout" env:"CONCURRENCY_TIMEOUT" default:"2s"`

	CleanupInterval time.Duration `name:"cleanup-interval" env:"CLEANUP_INTERVAL" default:"1m"`
	HealthInterval  time.Duration `name:"health-interval" env:"HEALTH_INTERVAL" default:"30s"`

	LogLevel  string `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error"`
	LogFormat string `name:"log-format" env:"LOG_FORMAT" default:"text" enum:"text,json"`
}

// Validate é chamado pelo kong depois do parse.
func (c *config) Validate() error {
	if strings.TrimSpace(c.UpstreamURL) == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if u, err := url.Parse(c.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid UPSTREAM_URL %q", c.UpstreamURL)
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be > 0")
	}
	if c.ThrottleRPS <= 0 {
		return errors.New("THROTTLE_RPS must be > 0")
	}
	if c.ThrottleBurst <= 0 {
		return errors.New("THROTTLE_BURST must be > 0")
	}
	if c.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if c.CleanupInterval <= 0 || c.HealthInterval <= 0 {
		return errors.New("CLEANUP_INTERVAL and HEALTH_INTERVAL must be > 0")
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return errors.New("METRICS_PATH must start with /")
	}
	return nil
}

// loadDotEnv carrega .env.local e .env sem sobrescrever o ambiente.
func loadDotEnv() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func parseConfig(args []string) (config, error) {
	var cfg config
	parser, err := kong.New(&cfg,
		kong.Name("gateway"),
		kong.Description("Gateway de acesso do chat e da geração de sites."),
		kong.UsageOnError(),
	)
	if err != nil {
		return config{}, err
	}
	if _, err := parser.Parse(args); err != nil {
		return config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}
