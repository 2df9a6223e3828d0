package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona-gateway/middleware/guard/domain"
)

func TestParseConfig_Defaults(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://127.0.0.1:9000")

	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.False(t, cfg.DevBypass)
	assert.False(t, cfg.FailOpen)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, 500*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, "minute", cfg.StatsBucket)
	assert.Equal(t, 20, cfg.ConcurrencyMax)
}

func TestParseConfig_EnvAndFlags(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://127.0.0.1:9000")
	t.Setenv("DEV_BYPASS", "true")
	t.Setenv("STORE_TIMEOUT", "250ms")

	cfg, err := parseConfig([]string{"--throttle-rps=0.5", "--log-format=json"})
	require.NoError(t, err)
	assert.True(t, cfg.DevBypass)
	assert.Equal(t, 250*time.Millisecond, cfg.StoreTimeout)
	assert.InDelta(t, 0.5, cfg.ThrottleRPS, 1e-9)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestParseConfig_RequiresUpstream(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "")
	_, err := parseConfig(nil)
	require.Error(t, err)

	t.Setenv("UPSTREAM_URL", "not a url")
	_, err = parseConfig(nil)
	require.Error(t, err)
}

func TestParseConfig_RejectsUnknownBucket(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://127.0.0.1:9000")
	_, err := parseConfig([]string{"--stats-bucket=week"})
	require.Error(t, err)
}

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestBuildPolicy_DefaultsAndFlags(t *testing.T) {
	p, err := buildPolicy(config{StoreTimeout: time.Second, FailOpen: true})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPolicy().Quotas, p.Quotas)
	assert.Equal(t, time.Second, p.StoreTimeout)
	assert.True(t, p.FailOpen)
	assert.False(t, p.DevBypass)
}

func TestBuildPolicy_FileOverridesDefaults(t *testing.T) {
	path := writePolicy(t, `
quotas:
  1: {messages: 5, sites: 1}
  2: {messages: 40, sites: 2}
global_burst:
  capacity: 120
ip_hourly:
  period: 30m
bot:
  block_threshold: 70
`)
	p, err := buildPolicy(config{PolicyFile: path, StoreTimeout: time.Second})
	require.NoError(t, err)

	assert.Equal(t, domain.Quota{Messages: 5, Sites: 1}, p.Quotas[domain.TierAnonymous])
	assert.Equal(t, domain.Quota{Messages: 40, Sites: 2}, p.Quotas[domain.TierNamed])
	assert.Equal(t, domain.Quota{Messages: 200, Sites: 10}, p.Quotas[domain.TierEmailed])
	assert.Equal(t, 120, p.GlobalBurst.Capacity)
	assert.Equal(t, time.Minute, p.GlobalBurst.Period)
	assert.Equal(t, 30*time.Minute, p.IPHourly.Period)
	assert.Equal(t, 200, p.IPHourly.Capacity)
	assert.Equal(t, 70, p.Bot.BlockThreshold)
	assert.Equal(t, 50, p.Bot.ClassifyThreshold)
}

func TestBuildPolicy_RejectsNonMonotonicFile(t *testing.T) {
	path := writePolicy(t, `
quotas:
  2: {messages: 5, sites: 3}
`)
	_, err := buildPolicy(config{PolicyFile: path, StoreTimeout: time.Second})
	require.Error(t, err)
}

func TestBuildPolicy_RejectsUnknownTier(t *testing.T) {
	path := writePolicy(t, `
quotas:
  7: {messages: 5}
`)
	_, err := buildPolicy(config{PolicyFile: path, StoreTimeout: time.Second})
	var pe *domain.PolicyError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "quotas.7", pe.Field)
}

func TestNewLogger_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn", "json")
	l.Info("hidden")
	l.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"k":"v"`)
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
