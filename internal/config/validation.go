package config

import (
	"fmt"
	"strings"

	"ethpulse/internal/scheduler"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Predictors.validate(); err != nil {
		return err
	}
	if err := c.Evaluation.validate(); err != nil {
		return err
	}
	if err := c.Retention.validate(); err != nil {
		return err
	}
	if c.Cache.StatsMaxAgeSeconds < 0 {
		return fmt.Errorf("cache.stats_max_age_seconds must be >= 0")
	}
	if c.Cache.StatsMaxEntries <= 0 {
		return fmt.Errorf("cache.stats_max_entries must be > 0")
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch a.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", a.LogLevel)
	}
	switch a.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", a.LogFormat)
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		return fmt.Errorf("app.http_addr cannot be empty")
	}
	return nil
}

func (s *StorageConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("storage.path cannot be empty")
	}
	if s.MaxOpenConns <= 0 {
		return fmt.Errorf("storage.max_open_conns must be > 0")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("market.symbol cannot be empty")
	}
	if strings.TrimSpace(m.BinanceRESTURL) == "" {
		return fmt.Errorf("market.binance_rest_url cannot be empty")
	}
	if m.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("market.http_timeout_seconds must be > 0")
	}
	if _, ok := scheduler.ParseIntervalDuration(m.PollInterval); !ok {
		return fmt.Errorf("market.poll_interval is invalid: %q", m.PollInterval)
	}
	if m.Proxy.Enabled && m.Proxy.RESTURL == "" {
		return fmt.Errorf("market.proxy.rest_url is required when proxy is enabled")
	}
	if m.SentimentRefreshHours <= 0 {
		return fmt.Errorf("market.sentiment_refresh_hours must be > 0")
	}
	return nil
}

func (p *PredictorsConfig) validate() error {
	if p.TimeoutSeconds <= 0 {
		return fmt.Errorf("predictors.timeout_seconds must be > 0")
	}
	if p.BreakerThreshold < 0 {
		return fmt.Errorf("predictors.breaker_threshold must be >= 0")
	}
	if p.BreakerThreshold > 0 && p.BreakerCooldownSeconds <= 0 {
		return fmt.Errorf("predictors.breaker_cooldown_seconds must be > 0 when breaker is enabled")
	}
	for _, m := range p.Models {
		preset := strings.TrimSpace(m.Preset)
		if preset == "" {
			continue
		}
		if _, ok := p.Presets[preset]; !ok {
			return fmt.Errorf("predictors.models.%s references unknown preset %q", m.ID, preset)
		}
	}
	seen := make(map[string]bool, len(p.Models))
	for _, m := range p.ResolvePredictors() {
		if m.ID == "" {
			return fmt.Errorf("predictors.models contains entry without id or model")
		}
		if seen[m.ID] {
			return fmt.Errorf("predictors.models has duplicate id %q", m.ID)
		}
		seen[m.ID] = true
		if !m.Enabled {
			continue
		}
		if m.Model == "" {
			return fmt.Errorf("predictors.models.%s missing model", m.ID)
		}
		if m.APIURL == "" {
			return fmt.Errorf("predictors.models.%s missing api_url (can inherit from preset)", m.ID)
		}
		if m.RequestsPerMinute < 0 {
			return fmt.Errorf("predictors.models.%s requests_per_minute must be >= 0", m.ID)
		}
	}
	return nil
}

func (e *EvaluationConfig) validate() error {
	switch e.Mode {
	case "adaptive", "strict":
	default:
		return fmt.Errorf("evaluation.mode must be adaptive or strict, got %q", e.Mode)
	}
	if _, ok := scheduler.ParseIntervalDuration(e.Interval); !ok {
		return fmt.Errorf("evaluation.interval is invalid: %q", e.Interval)
	}
	if e.BatchLimit < 0 {
		return fmt.Errorf("evaluation.batch_limit must be >= 0")
	}
	if e.MaturationSeconds < 0 {
		return fmt.Errorf("evaluation.maturation_seconds must be >= 0")
	}
	if e.VolatilityWindow < 2 {
		return fmt.Errorf("evaluation.volatility_window must be >= 2")
	}
	return nil
}

func (r *RetentionConfig) validate() error {
	if _, ok := scheduler.ParseIntervalDuration(r.Interval); !ok {
		return fmt.Errorf("retention.interval is invalid: %q", r.Interval)
	}
	if r.RawRetentionHours <= 0 {
		return fmt.Errorf("retention.raw_retention_hours must be > 0")
	}
	if r.RollupRetentionDays <= 0 {
		return fmt.Errorf("retention.rollup_retention_days must be > 0")
	}
	if r.CompactionIntervalHours <= 0 {
		return fmt.Errorf("retention.compaction_interval_hours must be > 0")
	}
	if r.OpportunisticMinIntervalSeconds < 0 {
		return fmt.Errorf("retention.opportunistic_min_interval_seconds must be >= 0")
	}
	return nil
}
