package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ethpulse/internal/market"

	"github.com/adshao/go-binance/v2/futures"
)

// Source 基于 go-binance SDK 的 24h ticker 实现 market.PriceSource。
type Source struct {
	cfg    Config
	client *futures.Client
}

var _ market.PriceSource = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	final := cfg.normalized()
	httpClient, err := final.httpClient()
	if err != nil {
		return nil, err
	}
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client}, nil
}

// Ticker returns the rolling 24h statistics. Volume is the quote-asset volume.
func (s *Source) Ticker(ctx context.Context, symbol string) (market.Ticker, error) {
	if s == nil || s.client == nil {
		return market.Ticker{}, fmt.Errorf("binance source not initialized")
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return market.Ticker{}, fmt.Errorf("symbol is required")
	}
	res, err := s.client.NewListPriceChangeStatsService().Symbol(sym).Do(ctx)
	if err != nil {
		return market.Ticker{}, fmt.Errorf("24h ticker %s: %w", sym, err)
	}
	for _, item := range res {
		if item == nil || !strings.EqualFold(item.Symbol, sym) {
			continue
		}
		price := parseFloat(item.LastPrice)
		if price <= 0 {
			return market.Ticker{}, fmt.Errorf("24h ticker %s: invalid last price %q", sym, item.LastPrice)
		}
		at := time.Now().UTC()
		if item.CloseTime > 0 {
			at = time.UnixMilli(item.CloseTime).UTC()
		}
		return market.Ticker{
			Symbol:    sym,
			Price:     price,
			Volume24h: parseFloat(item.QuoteVolume),
			High24h:   positive(item.HighPrice),
			Low24h:    positive(item.LowPrice),
			At:        at,
		}, nil
	}
	return market.Ticker{}, fmt.Errorf("24h ticker not available for %s", sym)
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

// positive returns nil for missing or non-positive values so callers can tell them apart.
func positive(raw string) *float64 {
	v := parseFloat(raw)
	if v <= 0 {
		return nil
	}
	return &v
}
