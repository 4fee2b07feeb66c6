package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_DefaultsAndIncludes(t *testing.T) {
	t.Setenv("TEST_GROQ_KEY", "sk-123")
	dir := t.TempDir()
	writeFile(t, dir, "predictors.yaml", `
predictors:
  presets:
    groq:
      api_url: https://api.groq.com/openai/v1/chat/completions
      api_key: ${TEST_GROQ_KEY}
  models:
    - id: groq-llama
      preset: groq
      model: llama-3.1-8b-instant
      enabled: true
      requests_per_minute: 30
    - model: mistral-small
      api_url: https://api.mistral.ai/v1/chat/completions
      enabled: false
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - predictors.yaml
app:
  log_level: DEBUG
evaluation:
  mode: strict
  maturation_seconds: 0
retention:
  raw_retention_hours: 48
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":9991", cfg.App.HTTPAddr)
	assert.Equal(t, "ETHUSDT", cfg.Market.Symbol)
	assert.True(t, cfg.Market.AlignPoll)
	assert.Equal(t, 12*time.Hour, cfg.Market.SentimentRefresh())
	assert.Equal(t, "strict", cfg.Evaluation.Mode)
	assert.Zero(t, cfg.Evaluation.Maturation(), "explicit 0 is kept")
	assert.Equal(t, 24, cfg.Evaluation.VolatilityWindow)
	assert.Equal(t, 48*time.Hour, cfg.Retention.RawRetention())
	assert.Equal(t, 7, cfg.Retention.RollupRetentionDays)
	assert.Equal(t, 30*time.Second, cfg.Cache.StatsMaxAge())
	assert.Equal(t, 256, cfg.Cache.StatsMaxEntries)
	assert.Equal(t, 3, cfg.Predictors.BreakerThreshold)
	assert.Equal(t, 15*time.Minute, cfg.Predictors.BreakerCooldown())

	preds := cfg.Predictors.ResolvePredictors()
	require.Len(t, preds, 2)
	assert.Equal(t, "groq-llama", preds[0].ID)
	assert.Equal(t, "sk-123", preds[0].APIKey)
	assert.Contains(t, preds[0].APIURL, "api.groq.com")
	assert.Equal(t, 30*time.Second, preds[0].Timeout)
	assert.Equal(t, "mistral-small", preds[1].ID)
	assert.False(t, preds[1].Enabled)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"bad mode":          "evaluation:\n  mode: lenient\n",
		"bad interval":      "market:\n  poll_interval: soon\n",
		"zero retention":    "retention:\n  raw_retention_hours: 0\n",
		"bad log format":    "app:\n  log_format: xml\n",
		"unknown preset":    "predictors:\n  models:\n    - id: a\n      model: m\n      preset: nope\n      enabled: true\n",
		"missing api url":   "predictors:\n  models:\n    - id: a\n      model: m\n      enabled: true\n",
		"duplicate ids":     "predictors:\n  models:\n    - {id: a, model: m, api_url: http://x}\n    - {id: a, model: n, api_url: http://y}\n",
		"small vol window":  "evaluation:\n  volatility_window: 1\n",
		"proxy without url": "market:\n  proxy:\n    enabled: true\n",
		"negative breaker":  "predictors:\n  breaker_threshold: -1\n",
		"zero stats cache":  "cache:\n  stats_max_entries: 0\n",
	}
	for name, body := range cases {
		body := body
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, DefaultPath, ResolvePath(""))
	t.Setenv(EnvConfigPath, "/etc/ethpulse.yaml")
	assert.Equal(t, "/etc/ethpulse.yaml", ResolvePath(""))
	assert.Equal(t, "x.yaml", ResolvePath(" x.yaml "))
}

func TestWatch_ReloadsLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "app:\n  log_level: info\n")

	var level atomic.Value
	require.NoError(t, Watch(path, func(c *Config) { level.Store(c.App.LogLevel) }))

	require.NoError(t, os.WriteFile(path, []byte("app:\n  log_level: debug\n"), 0o644))
	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "debug"
	}, 5*time.Second, 20*time.Millisecond)
}
