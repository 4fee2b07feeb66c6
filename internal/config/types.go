package config

import (
	"os"
	"strings"
	"time"
)

// Config 是 ethpulse 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Storage    StorageConfig    `toml:"storage"`
	Market     MarketConfig     `toml:"market"`
	Predictors PredictorsConfig `toml:"predictors"`
	Evaluation EvaluationConfig `toml:"evaluation"`
	Retention  RetentionConfig  `toml:"retention"`
	Cache      CacheConfig      `toml:"cache"`
}

type AppConfig struct {
	Env              string `toml:"env"`
	LogLevel         string `toml:"log_level"`
	LogFormat        string `toml:"log_format"`
	HTTPAddr         string `toml:"http_addr"`
	LogPath          string `toml:"log_path"`
	PredictorLogPath string `toml:"predictor_log_path"`
}

type StorageConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
}

type MarketConfig struct {
	Symbol                string      `toml:"symbol"`
	BinanceRESTURL        string      `toml:"binance_rest_url"`
	HTTPTimeoutSeconds    int         `toml:"http_timeout_seconds"`
	PollInterval          string      `toml:"poll_interval"`
	AlignPoll             bool        `toml:"align_poll"`
	Proxy                 ProxyConfig `toml:"proxy"`
	EtherscanURL          string      `toml:"etherscan_url"`
	EtherscanAPIKey       string      `toml:"etherscan_api_key"`
	FearGreedURL          string      `toml:"fear_greed_url"`
	SentimentRefreshHours int         `toml:"sentiment_refresh_hours"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

// PredictorsConfig 描述参与打分的模型；presets 复用连接信息。
type PredictorsConfig struct {
	TimeoutSeconds         int                        `toml:"timeout_seconds"`
	// 连续失败 breaker_threshold 次后跳过该模型 breaker_cooldown_seconds；0 表示不熔断
	BreakerThreshold       int                        `toml:"breaker_threshold"`
	BreakerCooldownSeconds int                        `toml:"breaker_cooldown_seconds"`
	Presets                map[string]PredictorPreset `toml:"presets"`
	Models                 []PredictorConfig          `toml:"models"`
}

func (p PredictorsConfig) BreakerCooldown() time.Duration {
	return time.Duration(p.BreakerCooldownSeconds) * time.Second
}

type PredictorPreset struct {
	APIURL  string            `toml:"api_url"`
	APIKey  string            `toml:"api_key"`
	Headers map[string]string `toml:"headers"`
}

type PredictorConfig struct {
	ID                string            `toml:"id"`
	Preset            string            `toml:"preset"`
	Enabled           bool              `toml:"enabled"`
	APIURL            string            `toml:"api_url"`
	APIKey            string            `toml:"api_key"`
	Model             string            `toml:"model"`
	Headers           map[string]string `toml:"headers"`
	TimeoutSeconds    int               `toml:"timeout_seconds"`
	RequestsPerMinute int               `toml:"requests_per_minute"`
}

// ResolvedPredictor 是合并预设并展开环境变量后的最终配置。
type ResolvedPredictor struct {
	ID                string
	Enabled           bool
	APIURL            string
	APIKey            string
	Model             string
	Headers           map[string]string
	Timeout           time.Duration
	RequestsPerMinute int
}

type EvaluationConfig struct {
	Mode              string `toml:"mode"`
	Interval          string `toml:"interval"`
	BatchLimit        int    `toml:"batch_limit"`
	MaturationSeconds int    `toml:"maturation_seconds"`
	VolatilityWindow  int    `toml:"volatility_window"`
}

type RetentionConfig struct {
	Interval                        string `toml:"interval"`
	RawRetentionHours               int    `toml:"raw_retention_hours"`
	RollupRetentionDays             int    `toml:"rollup_retention_days"`
	CompactionIntervalHours         int    `toml:"compaction_interval_hours"`
	OpportunisticMinIntervalSeconds int    `toml:"opportunistic_min_interval_seconds"`
}

type CacheConfig struct {
	StatsMaxAgeSeconds int `toml:"stats_max_age_seconds"`
	// StatsMaxEntries 限制按查询参数缓存的统计结果数量。
	StatsMaxEntries int `toml:"stats_max_entries"`
}

// ResolvePredictors merges presets into each model entry. api_key values go through
// os.ExpandEnv so secrets can stay in the environment (api_key: ${GROQ_API_KEY}).
func (p PredictorsConfig) ResolvePredictors() []ResolvedPredictor {
	out := make([]ResolvedPredictor, 0, len(p.Models))
	for _, m := range p.Models {
		r := ResolvedPredictor{
			ID:                strings.TrimSpace(m.ID),
			Enabled:           m.Enabled,
			APIURL:            strings.TrimSpace(m.APIURL),
			APIKey:            m.APIKey,
			Model:             strings.TrimSpace(m.Model),
			RequestsPerMinute: m.RequestsPerMinute,
		}
		if r.ID == "" {
			r.ID = r.Model
		}
		headers := map[string]string{}
		if preset, ok := p.Presets[strings.TrimSpace(m.Preset)]; ok {
			if r.APIURL == "" {
				r.APIURL = strings.TrimSpace(preset.APIURL)
			}
			if r.APIKey == "" {
				r.APIKey = preset.APIKey
			}
			for k, v := range preset.Headers {
				headers[k] = v
			}
		}
		for k, v := range m.Headers {
			headers[k] = v
		}
		if len(headers) > 0 {
			r.Headers = headers
		}
		r.APIKey = strings.TrimSpace(os.ExpandEnv(r.APIKey))
		secs := m.TimeoutSeconds
		if secs <= 0 {
			secs = p.TimeoutSeconds
		}
		r.Timeout = time.Duration(secs) * time.Second
		out = append(out, r)
	}
	return out
}

func (m MarketConfig) HTTPTimeout() time.Duration {
	return time.Duration(m.HTTPTimeoutSeconds) * time.Second
}

func (m MarketConfig) SentimentRefresh() time.Duration {
	return time.Duration(m.SentimentRefreshHours) * time.Hour
}

func (e EvaluationConfig) Maturation() time.Duration {
	return time.Duration(e.MaturationSeconds) * time.Second
}

func (r RetentionConfig) RawRetention() time.Duration {
	return time.Duration(r.RawRetentionHours) * time.Hour
}

func (r RetentionConfig) CompactionInterval() time.Duration {
	return time.Duration(r.CompactionIntervalHours) * time.Hour
}

func (r RetentionConfig) OpportunisticMinInterval() time.Duration {
	return time.Duration(r.OpportunisticMinIntervalSeconds) * time.Second
}

func (c CacheConfig) StatsMaxAge() time.Duration {
	return time.Duration(c.StatsMaxAgeSeconds) * time.Second
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
