package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ethpulse/internal/pkg/circuit"
	"ethpulse/internal/types"
)

// GuardedPredictor skips a predictor whose calls keep failing until its cooldown elapses.
// Replies that parse to no action count as failures too.
type GuardedPredictor struct {
	inner   Predictor
	breaker *circuit.Breaker
}

func NewGuardedPredictor(inner Predictor, threshold int, cooldown time.Duration) *GuardedPredictor {
	return &GuardedPredictor{
		inner:   inner,
		breaker: circuit.New(inner.Name(), threshold, cooldown),
	}
}

func (g *GuardedPredictor) WithClock(now func() time.Time) *GuardedPredictor {
	g.breaker.WithClock(now)
	return g
}

func (g *GuardedPredictor) Name() string { return g.inner.Name() }

func (g *GuardedPredictor) Breaker() *circuit.Breaker { return g.breaker }

func (g *GuardedPredictor) Predict(ctx context.Context, snap types.MarketSnapshot) (types.Action, error) {
	if err := g.breaker.Allow(); err != nil {
		return "", fmt.Errorf("%s skipped: %w", g.Name(), err)
	}
	action, err := g.inner.Predict(ctx, snap)
	switch {
	case err == nil:
		g.breaker.Success()
	case errors.Is(err, context.Canceled):
		// 进程退出导致的取消不算模型故障
	default:
		g.breaker.Failure()
	}
	return action, err
}
