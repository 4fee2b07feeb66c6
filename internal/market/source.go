package market

import (
	"context"
	"time"

	"ethpulse/internal/types"
)

// Ticker is a 24h rolling window for one symbol.
type Ticker struct {
	Symbol    string
	Price     float64
	Volume24h float64
	// High24h/Low24h are nil when the provider did not report them.
	High24h *float64
	Low24h  *float64
	At      time.Time
}

type Sentiment struct {
	Value          int
	Classification string
	Label          types.SentimentLabel
	Timestamp      time.Time
}

type PriceSource interface {
	Ticker(ctx context.Context, symbol string) (Ticker, error)
}

type FeeSource interface {
	FeeTiers(ctx context.Context) (types.FeeTiers, error)
}

type SentimentSource interface {
	Sentiment(ctx context.Context) (Sentiment, error)
}
