package app

import (
	"fmt"

	"ethpulse/internal/analytics"
	"ethpulse/internal/collector"
	"ethpulse/internal/config"
	"ethpulse/internal/ingest"
	"ethpulse/internal/labeler"
	"ethpulse/internal/logger"
	"ethpulse/internal/retention"
	"ethpulse/internal/store/gormstore"
	apihttp "ethpulse/internal/transport/http/api"

	"github.com/prometheus/client_golang/prometheus"
)

func buildHTTPServer(cfg *config.Config, st *gormstore.GormStore, ing *ingest.Service, lab *labeler.Labeler,
	agg *analytics.Aggregator, ret *retention.Manager, coll *collector.Collector, gatherer prometheus.Gatherer) (*apihttp.Server, error) {
	server, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:              cfg.App.HTTPAddr,
		Reader:            st,
		Ingest:            ing,
		Evaluator:         lab,
		Stats:             agg,
		Retention:         ret,
		Collector:         coll,
		Gatherer:          gatherer,
		StatsMaxAge:       cfg.Cache.StatsMaxAge(),
		StatsCacheEntries: cfg.Cache.StatsMaxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 失败: %w", err)
	}
	logger.Infof("✓ HTTP 接口监听 %s", server.Addr())
	return server, nil
}
