package app

import (
	"net/http"
	"strings"

	"ethpulse/internal/config"
	"ethpulse/internal/gateway/binance"
	"ethpulse/internal/gateway/etherscan"
	"ethpulse/internal/logger"
	"ethpulse/internal/market"
)

// buildMarketSources 组装价格、gas 费率与情绪三个数据源；后两者缺失只会让快照降级。
func buildMarketSources(cfg *config.Config) (market.Sources, error) {
	mc := cfg.Market
	price, err := binance.New(binance.Config{
		RESTBaseURL:  mc.BinanceRESTURL,
		HTTPTimeout:  mc.HTTPTimeout(),
		ProxyEnabled: mc.Proxy.Enabled,
		RESTProxyURL: mc.Proxy.RESTURL,
	})
	if err != nil {
		return market.Sources{}, err
	}
	src := market.Sources{Symbol: mc.Symbol, Price: price}
	logger.Infof("✓ 价格源: binance %s (%s)", mc.BinanceRESTURL, mc.Symbol)

	if url := strings.TrimSpace(mc.EtherscanURL); url != "" {
		src.Fees = etherscan.NewGasOracle(url, mc.EtherscanAPIKey, mc.HTTPTimeout())
		if mc.EtherscanAPIKey == "" {
			logger.Warnf("[app] etherscan_api_key is empty, gas oracle will be rate limited")
		}
	}
	if url := strings.TrimSpace(mc.FearGreedURL); url != "" {
		client := &http.Client{Timeout: mc.HTTPTimeout()}
		src.Sentiment = market.NewFearGreedService(url, client, mc.SentimentRefresh())
	}
	return src, nil
}
