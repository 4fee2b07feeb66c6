package labeler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"ethpulse/internal/logger"
	"ethpulse/internal/metrics"
	"ethpulse/internal/types"
)

// Store is the part of the time-series store the labeler needs.
type Store interface {
	RecentSnapshots(ctx context.Context, n int) ([]types.MarketSnapshot, error)
	PendingDecisions(ctx context.Context, filter types.PendingFilter) ([]types.Decision, error)
	RecordEvaluation(ctx context.Context, id int64, correct bool, profitLoss float64) error
}

type Config struct {
	Policy Policy
	// Maturation is the minimum decision age before it can be labeled.
	Maturation       time.Duration
	VolatilityWindow int
	// BatchLimit caps the pending decisions read per pass (0 = no cap).
	BatchLimit int
}

// Options scopes one evaluation pass.
type Options struct {
	Context    string
	ScopedOnly bool
	Limit      int
	// ReferencePrice overrides the latest snapshot price when > 0.
	ReferencePrice float64
}

// Result summarises one pass.
type Result struct {
	Reference  float64 `json:"reference_price"`
	Volatility float64 `json:"volatility"`
	Considered int     `json:"considered"`
	Evaluated  int     `json:"evaluated"`
	Correct    int     `json:"correct"`
	Skipped    int     `json:"skipped"`
	Conflicts  int     `json:"conflicts"`
	Failed     int     `json:"failed"`
}

type Labeler struct {
	store   Store
	cfg     Config
	metrics *metrics.Recorder
	nowFn   func() time.Time
}

func New(st Store, cfg Config, rec *metrics.Recorder) *Labeler {
	if cfg.Policy == nil {
		cfg.Policy = AdaptivePolicy{}
	}
	if cfg.VolatilityWindow <= 0 {
		cfg.VolatilityWindow = DefaultVolatilityWindow
	}
	if cfg.Maturation < 0 {
		cfg.Maturation = 0
	}
	return &Labeler{store: st, cfg: cfg, metrics: rec, nowFn: time.Now}
}

// WithClock overrides the clock used for decision age; used by tests.
func (l *Labeler) WithClock(now func() time.Time) *Labeler {
	if now != nil {
		l.nowFn = now
	}
	return l
}

func (l *Labeler) Policy() Policy { return l.cfg.Policy }

// Evaluate labels pending decisions against the reference price. Per-decision failures
// are logged and counted; only storage errors while loading the batch are returned.
// Without any snapshot (and no explicit reference) every decision stays pending.
func (l *Labeler) Evaluate(ctx context.Context, opts Options) (Result, error) {
	start := time.Now()
	defer func() { l.metrics.RecordCycle("labeler", time.Since(start).Seconds()) }()

	snaps, err := l.store.RecentSnapshots(ctx, l.cfg.VolatilityWindow)
	if err != nil {
		return Result{}, fmt.Errorf("load snapshots: %w", err)
	}
	ref := opts.ReferencePrice
	if ref <= 0 || math.IsNaN(ref) || math.IsInf(ref, 0) {
		if len(snaps) == 0 {
			logger.Debugf("[labeler] no market snapshot yet, decisions stay pending")
			return Result{}, nil
		}
		ref = snaps[0].Price
	}
	if ref <= 0 {
		logger.Warnf("[labeler] latest reference price %.4f is not usable, decisions stay pending", ref)
		l.metrics.RecordDegraded("reference_price")
		return Result{}, nil
	}
	vol, ok := Volatility(snaps)
	if !ok {
		logger.Debugf("[labeler] %v", types.Degradedf("fewer than 2 usable snapshots, volatility=0"))
		l.metrics.RecordDegraded("volatility")
	}

	now := l.nowFn()
	filter := types.PendingFilter{
		Context:    strings.TrimSpace(opts.Context),
		ScopedOnly: opts.ScopedOnly,
		Limit:      opts.Limit,
	}
	if filter.Limit <= 0 {
		filter.Limit = l.cfg.BatchLimit
	}
	if l.cfg.Maturation > 0 {
		filter.MaturedBefore = now.Add(-l.cfg.Maturation)
	}
	pending, err := l.store.PendingDecisions(ctx, filter)
	if err != nil {
		return Result{}, fmt.Errorf("load pending decisions: %w", err)
	}

	res := Result{Reference: ref, Volatility: vol, Considered: len(pending)}
	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch outcome, correct := l.evaluateOne(ctx, d, ref, vol, now); outcome {
		case outcomeEvaluated:
			res.Evaluated++
			if correct {
				res.Correct++
			}
		case outcomeSkipped:
			res.Skipped++
		case outcomeConflict:
			res.Conflicts++
		default:
			res.Failed++
		}
	}
	if res.Considered > 0 {
		logger.Infof("[labeler] policy=%s ref=%.2f vol=%.4f considered=%d evaluated=%d correct=%d skipped=%d conflicts=%d failed=%d",
			l.cfg.Policy.Name(), ref, vol, res.Considered, res.Evaluated, res.Correct, res.Skipped, res.Conflicts, res.Failed)
	}
	return res, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeEvaluated
	outcomeSkipped
	outcomeConflict
)

func (l *Labeler) evaluateOne(ctx context.Context, d types.Decision, ref, vol float64, now time.Time) (out outcome, correct bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[labeler] decision %d panicked: %v", d.ID, r)
			out, correct = outcomeFailed, false
		}
	}()
	if d.Price == ref {
		return outcomeSkipped, false
	}
	if d.Timestamp.IsZero() {
		logger.Warnf("[labeler] decision %d has no timestamp, left pending", d.ID)
		return outcomeFailed, false
	}
	action, err := types.ParseAction(string(d.Action))
	if err != nil {
		logger.Warnf("[labeler] decision %d: %v", d.ID, err)
		return outcomeFailed, false
	}
	pct := PercentChange(d.Price, ref)
	if d.Price <= 0 || math.IsNaN(d.Price) {
		logger.Warnf("[labeler] decision %d: %v", d.ID, types.Degradedf("price %.4f, pct=0", d.Price))
		l.metrics.RecordDegraded("decision_price")
	}
	age := now.Sub(d.Timestamp)
	if age < 0 {
		age = 0
	}
	threshold := l.cfg.Policy.Threshold(age, vol)
	correct = l.cfg.Policy.Judge(action, pct, threshold)

	err = l.store.RecordEvaluation(ctx, d.ID, correct, pct)
	switch {
	case err == nil:
		l.metrics.RecordEvaluation(d.Predictor, correct)
		logger.Debugf("[labeler] decision %d %s %s pct=%.3f thr=%.3f correct=%v",
			d.ID, d.Predictor, action, pct, threshold, correct)
		return outcomeEvaluated, correct
	case errors.Is(err, types.ErrConsistency):
		l.metrics.RecordConflict()
		logger.Warnf("[labeler] %v", err)
		return outcomeConflict, false
	default:
		logger.Warnf("[labeler] record decision %d: %v", d.ID, err)
		return outcomeFailed, false
	}
}

// PercentChange returns the move from price to ref in percent, 0 when price is not positive.
func PercentChange(price, ref float64) float64 {
	if price <= 0 || math.IsNaN(price) {
		return 0
	}
	return (ref - price) * 100 / price
}
