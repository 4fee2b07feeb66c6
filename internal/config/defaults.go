package config

import (
	"os"
	"strings"
)

// 默认值常量
const (
	defaultAppEnv               = "dev"
	defaultAppLogLevel          = "info"
	defaultAppLogFormat         = "text"
	defaultAppHTTPAddr          = ":9991"
	defaultStoragePath          = "data/ethpulse.db"
	defaultStorageMaxOpen       = 4
	defaultMarketSymbol         = "ETHUSDT"
	defaultMarketREST           = "https://fapi.binance.com"
	defaultMarketTimeout        = 10
	defaultMarketPoll           = "5m"
	defaultEtherscanURL         = "https://api.etherscan.io/api"
	defaultFearGreedURL         = "https://api.alternative.me/fng/?limit=1"
	defaultSentimentRefresh     = 12
	defaultPredictorTimeout     = 30
	defaultBreakerThreshold     = 3
	defaultBreakerCooldown      = 900
	defaultEvalMode             = "adaptive"
	defaultEvalInterval         = "5m"
	defaultEvalBatch            = 500
	defaultEvalMaturation       = 30
	defaultEvalVolWindow        = 24
	defaultRetentionInterval    = "1h"
	defaultRawRetentionHours    = 24
	defaultRollupRetentionDays  = 7
	defaultCompactionHours      = 24
	defaultOpportunisticSeconds = 300
	defaultStatsMaxAge          = 30
	defaultStatsMaxEntries      = 256
)

// applyDefaults 为所有子配置应用默认值；配置文件里显式写出的键保持原样。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Predictors.applyDefaults(keys)
	c.Evaluation.applyDefaults(keys)
	c.Retention.applyDefaults(keys)
	c.Cache.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
	a.LogLevel = strings.ToLower(strings.TrimSpace(a.LogLevel))
	a.LogFormat = strings.ToLower(strings.TrimSpace(a.LogFormat))
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("storage.path", &s.Path, defaultStoragePath),
		intFieldDefault("storage.max_open_conns", &s.MaxOpenConns, defaultStorageMaxOpen),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("market.symbol", &m.Symbol, defaultMarketSymbol),
		stringFieldDefault("market.binance_rest_url", &m.BinanceRESTURL, defaultMarketREST),
		intFieldDefault("market.http_timeout_seconds", &m.HTTPTimeoutSeconds, defaultMarketTimeout),
		stringFieldDefault("market.poll_interval", &m.PollInterval, defaultMarketPoll),
		boolFieldDefault("market.align_poll", &m.AlignPoll, true),
		stringFieldDefault("market.etherscan_url", &m.EtherscanURL, defaultEtherscanURL),
		stringFieldDefault("market.fear_greed_url", &m.FearGreedURL, defaultFearGreedURL),
		intFieldDefault("market.sentiment_refresh_hours", &m.SentimentRefreshHours, defaultSentimentRefresh),
	)
	m.Symbol = strings.ToUpper(strings.TrimSpace(m.Symbol))
	m.Proxy.RESTURL = strings.TrimSpace(m.Proxy.RESTURL)
	m.EtherscanAPIKey = strings.TrimSpace(os.ExpandEnv(m.EtherscanAPIKey))
}

func (p *PredictorsConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("predictors.timeout_seconds", &p.TimeoutSeconds, defaultPredictorTimeout),
		intFieldDefault("predictors.breaker_threshold", &p.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("predictors.breaker_cooldown_seconds", &p.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
}

func (e *EvaluationConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("evaluation.mode", &e.Mode, defaultEvalMode),
		stringFieldDefault("evaluation.interval", &e.Interval, defaultEvalInterval),
		intFieldDefault("evaluation.batch_limit", &e.BatchLimit, defaultEvalBatch),
		intFieldDefault("evaluation.maturation_seconds", &e.MaturationSeconds, defaultEvalMaturation),
		intFieldDefault("evaluation.volatility_window", &e.VolatilityWindow, defaultEvalVolWindow),
	)
	e.Mode = strings.ToLower(strings.TrimSpace(e.Mode))
}

func (r *RetentionConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("retention.interval", &r.Interval, defaultRetentionInterval),
		intFieldDefault("retention.raw_retention_hours", &r.RawRetentionHours, defaultRawRetentionHours),
		intFieldDefault("retention.rollup_retention_days", &r.RollupRetentionDays, defaultRollupRetentionDays),
		intFieldDefault("retention.compaction_interval_hours", &r.CompactionIntervalHours, defaultCompactionHours),
		intFieldDefault("retention.opportunistic_min_interval_seconds", &r.OpportunisticMinIntervalSeconds, defaultOpportunisticSeconds),
	)
}

func (c *CacheConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("cache.stats_max_age_seconds", &c.StatsMaxAgeSeconds, defaultStatsMaxAge),
		intFieldDefault("cache.stats_max_entries", &c.StatsMaxEntries, defaultStatsMaxEntries),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

// intFieldDefault 只在值 <= 0 时补默认值；显式写出的 0 保留，由 validate 判断是否合法。
func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}
