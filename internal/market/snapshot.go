package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ethpulse/internal/logger"
	"ethpulse/internal/types"

	"golang.org/x/sync/errgroup"
)

// Sources bundles the collaborators used to build one snapshot. Fees and Sentiment are optional.
type Sources struct {
	Symbol    string
	Price     PriceSource
	Fees      FeeSource
	Sentiment SentimentSource
	Now       func() time.Time
}

// AssembleSnapshot fetches price, fees and sentiment concurrently. A price failure fails
// the snapshot; fee or sentiment failures leave those fields unset and are returned as
// degraded notes alongside the snapshot.
func AssembleSnapshot(ctx context.Context, src Sources) (types.MarketSnapshot, []error, error) {
	if src.Price == nil {
		return types.MarketSnapshot{}, nil, fmt.Errorf("price source is required")
	}
	var (
		ticker    Ticker
		fees      types.FeeTiers
		feeErr    error
		sentiment Sentiment
		sentErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := src.Price.Ticker(gctx, src.Symbol)
		if err != nil {
			return fmt.Errorf("ticker %s: %w", src.Symbol, err)
		}
		if t.Price <= 0 {
			return types.Validationf("ticker %s returned non-positive price %.4f", src.Symbol, t.Price)
		}
		ticker = t
		return nil
	})
	if src.Fees != nil {
		g.Go(func() error {
			fees, feeErr = src.Fees.FeeTiers(gctx)
			return nil
		})
	} else {
		feeErr = errors.New("no fee source configured")
	}
	if src.Sentiment != nil {
		g.Go(func() error {
			sentiment, sentErr = src.Sentiment.Sentiment(gctx)
			return nil
		})
	} else {
		sentErr = errors.New("no sentiment source configured")
	}
	if err := g.Wait(); err != nil {
		return types.MarketSnapshot{}, nil, err
	}

	now := time.Now
	if src.Now != nil {
		now = src.Now
	}
	snap := types.MarketSnapshot{
		Timestamp: now().UTC(),
		Price:     ticker.Price,
		Volume24h: ticker.Volume24h,
		High24h:   ticker.High24h,
		Low24h:    ticker.Low24h,
		Sentiment: types.SentimentUnavailable,
	}
	var degraded []error
	if ticker.High24h == nil || ticker.Low24h == nil {
		degraded = append(degraded, types.Degradedf("24h high/low unavailable"))
	}
	if feeErr != nil {
		degraded = append(degraded, types.Degradedf("fee tiers: %v", feeErr))
	} else {
		snap.Fees = &fees
	}
	if sentErr != nil {
		degraded = append(degraded, types.Degradedf("sentiment: %v", sentErr))
	} else {
		v := sentiment.Value
		snap.SentimentValue = &v
		snap.Sentiment = sentiment.Label
	}
	for _, d := range degraded {
		logger.Warnf("[market] %s: %v", strings.ToUpper(src.Symbol), d)
	}
	return snap, degraded, nil
}
