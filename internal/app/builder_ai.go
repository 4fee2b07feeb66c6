package app

import (
	"ethpulse/internal/config"
	"ethpulse/internal/gateway/provider"
	"ethpulse/internal/logger"
)

// buildPredictors 把配置里启用的模型包装成 ChatPredictor，按需套上熔断。
func buildPredictors(cfg config.PredictorsConfig, symbol string) []provider.Predictor {
	resolved := cfg.ResolvePredictors()
	models := make([]provider.ModelCfg, 0, len(resolved))
	for _, m := range resolved {
		models = append(models, provider.ModelCfg{
			ID:                m.ID,
			APIURL:            m.APIURL,
			APIKey:            m.APIKey,
			Model:             m.Model,
			Enabled:           m.Enabled,
			Headers:           m.Headers,
			Timeout:           m.Timeout,
			RequestsPerMinute: m.RequestsPerMinute,
		})
	}
	providers := provider.BuildProvidersFromConfig(models)
	out := make([]provider.Predictor, 0, len(providers))
	for _, p := range providers {
		var pred provider.Predictor = provider.NewChatPredictor(p, symbol)
		if cfg.BreakerThreshold > 0 {
			pred = provider.NewGuardedPredictor(pred, cfg.BreakerThreshold, cfg.BreakerCooldown())
		}
		out = append(out, pred)
		logger.Infof("✓ predictor %s 已启用", p.ID())
	}
	return out
}
