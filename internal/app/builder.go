package app

import (
	"context"
	"fmt"
	"time"

	"ethpulse/internal/analytics"
	"ethpulse/internal/collector"
	"ethpulse/internal/config"
	"ethpulse/internal/gateway/provider"
	"ethpulse/internal/ingest"
	"ethpulse/internal/labeler"
	"ethpulse/internal/logger"
	"ethpulse/internal/market"
	"ethpulse/internal/metrics"
	"ethpulse/internal/retention"
	"ethpulse/internal/scheduler"
	"ethpulse/internal/store/gormstore"

	"github.com/prometheus/client_golang/prometheus"
)

type AppBuilder struct {
	cfg *config.Config

	marketSourcesFn func(*config.Config) (market.Sources, error)
	predictorsFn    func(config.PredictorsConfig, string) []provider.Predictor
	registerer      prometheus.Registerer
	gatherer        prometheus.Gatherer
	nowFn           func() time.Time
}

type AppBuilderOption func(*AppBuilder)

// WithRegistry routes metrics to reg instead of the process-wide default registry.
func WithRegistry(reg *prometheus.Registry) AppBuilderOption {
	return func(b *AppBuilder) {
		b.registerer = reg
		b.gatherer = reg
	}
}

// WithMarketSources replaces the live Binance/Etherscan/Fear&Greed wiring.
func WithMarketSources(fn func(*config.Config) (market.Sources, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.marketSourcesFn = fn }
}

func WithPredictors(fn func(config.PredictorsConfig, string) []provider.Predictor) AppBuilderOption {
	return func(b *AppBuilder) { b.predictorsFn = fn }
}

func WithClock(now func() time.Time) AppBuilderOption {
	return func(b *AppBuilder) { b.nowFn = now }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:             cfg,
		marketSourcesFn: buildMarketSources,
		predictorsFn:    buildPredictors,
		registerer:      prometheus.DefaultRegisterer,
		gatherer:        prometheus.DefaultGatherer,
		nowFn:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build 按依赖顺序组装：store → metrics → labeler → aggregator → retention → sources/predictors → collector → http。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)

	st, err := gormstore.Open(gormstore.Options{
		Path:         cfg.Storage.Path,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		Now:          b.nowFn,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Infof("✓ 存储已就绪: %s", cfg.Storage.Path)

	rec := metrics.New(b.registerer)

	policy, err := labeler.PolicyFor(cfg.Evaluation.Mode)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	lab := labeler.New(st, labeler.Config{
		Policy:           policy,
		Maturation:       cfg.Evaluation.Maturation(),
		VolatilityWindow: cfg.Evaluation.VolatilityWindow,
		BatchLimit:       cfg.Evaluation.BatchLimit,
	}, rec).WithClock(b.nowFn)

	agg := analytics.New(st).WithClock(b.nowFn)

	ret := retention.NewManager(st, retention.Config{
		RawRetention:        cfg.Retention.RawRetention(),
		RollupRetentionDays: cfg.Retention.RollupRetentionDays,
		CompactionInterval:  cfg.Retention.CompactionInterval(),
		MinInterval:         cfg.Retention.OpportunisticMinInterval(),
	}, rec).WithClock(b.nowFn)

	sources, err := b.marketSourcesFn(cfg)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("market sources: %w", err)
	}
	predictors := b.predictorsFn(cfg.Predictors, cfg.Market.Symbol)
	if len(predictors) == 0 {
		logger.Warnf("[app] no enabled predictors; cycles will record market snapshots only")
	}

	ing := ingest.NewService(st, rec)
	coll := collector.New(collector.Config{
		Sources:        sources,
		PredictTimeout: predictorTimeout(cfg.Predictors),
	}, st, ing, lab, predictors, rec).WithClock(b.nowFn)

	server, err := buildHTTPServer(cfg, st, ing, lab, agg, ret, coll, b.gatherer)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		store:     st,
		collector: coll,
		labeler:   lab,
		retention: ret,
		http:      server,
		Summary:   newStartupSummary(cfg, coll.Predictors()),
	}
	a.jobs = b.buildJobs(cfg, coll, lab, ret)
	return a, nil
}

func (b *AppBuilder) buildJobs(cfg *config.Config, coll *collector.Collector, lab *labeler.Labeler, ret *retention.Manager) []job {
	collect := scheduler.NewIntervalScheduler("collect", scheduler.IntervalOr(cfg.Market.PollInterval, 5*time.Minute))
	collect.Align = cfg.Market.AlignPoll
	collect.RunImmediately = true

	evaluate := scheduler.NewIntervalScheduler("evaluate", scheduler.IntervalOr(cfg.Evaluation.Interval, 5*time.Minute))
	maintain := scheduler.NewIntervalScheduler("retention", scheduler.IntervalOr(cfg.Retention.Interval, time.Hour))
	maintain.RunImmediately = true

	return []job{
		{sched: collect, task: func(ctx context.Context) error {
			_, err := coll.RunCycle(ctx)
			return err
		}},
		{sched: evaluate, task: func(ctx context.Context) error {
			_, err := lab.Evaluate(ctx, labeler.Options{})
			return err
		}},
		{sched: maintain, task: func(ctx context.Context) error {
			_, err := ret.Run(ctx)
			return err
		}},
	}
}

func predictorTimeout(p config.PredictorsConfig) time.Duration {
	// 单个 predictor 已有自身 HTTP 超时，这里只兜底重试叠加后的总时长
	var longest time.Duration
	for _, m := range p.ResolvePredictors() {
		if m.Enabled && m.Timeout > longest {
			longest = m.Timeout
		}
	}
	if longest <= 0 {
		return 0
	}
	return 3 * longest
}
