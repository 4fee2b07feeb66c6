package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ethpulse/internal/gateway/provider"
	"ethpulse/internal/ingest"
	"ethpulse/internal/labeler"
	"ethpulse/internal/logger"
	"ethpulse/internal/market"
	"ethpulse/internal/metrics"
	"ethpulse/internal/types"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SnapshotWriter persists the assembled market state.
type SnapshotWriter interface {
	AppendSnapshot(ctx context.Context, snap types.MarketSnapshot) (int64, error)
}

// DecisionRecorder validates and persists one predictor call.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, in ingest.DecisionInput) (int64, error)
}

// Evaluator is the labeler pass run at the end of each cycle.
type Evaluator interface {
	Evaluate(ctx context.Context, opts labeler.Options) (labeler.Result, error)
}

type Config struct {
	Sources market.Sources
	// PredictTimeout bounds each predictor call; 0 keeps the parent ctx deadline.
	PredictTimeout time.Duration
}

// Failure records why one predictor produced no decision in a cycle.
type Failure struct {
	Predictor string `json:"predictor"`
	Error     string `json:"error"`
}

// CycleReport summarises one collection cycle.
type CycleReport struct {
	TraceID     string           `json:"trace_id"`
	StartedAt   time.Time        `json:"started_at"`
	Price       float64          `json:"price"`
	SnapshotID  int64            `json:"snapshot_id"`
	DecisionIDs map[string]int64 `json:"decision_ids"`
	Degraded    []string         `json:"degraded,omitempty"`
	Failures    []Failure        `json:"failures,omitempty"`
	Evaluation  *labeler.Result  `json:"evaluation,omitempty"`
}

type Collector struct {
	cfg        Config
	snapshots  SnapshotWriter
	decisions  DecisionRecorder
	evaluator  Evaluator
	predictors []provider.Predictor
	metrics    *metrics.Recorder
	nowFn      func() time.Time

	mu   sync.Mutex
	last *CycleReport
}

func New(cfg Config, snaps SnapshotWriter, decs DecisionRecorder, eval Evaluator, predictors []provider.Predictor, rec *metrics.Recorder) *Collector {
	return &Collector{
		cfg:        cfg,
		snapshots:  snaps,
		decisions:  decs,
		evaluator:  eval,
		predictors: predictors,
		metrics:    rec,
		nowFn:      time.Now,
	}
}

func (c *Collector) WithClock(now func() time.Time) *Collector {
	if now != nil {
		c.nowFn = now
		c.cfg.Sources.Now = now
	}
	return c
}

// Predictors returns the configured predictor names in order.
func (c *Collector) Predictors() []string {
	names := make([]string, 0, len(c.predictors))
	for _, p := range c.predictors {
		names = append(names, p.Name())
	}
	return names
}

// LastCycle returns a copy of the most recent report.
func (c *Collector) LastCycle() (CycleReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return CycleReport{}, false
	}
	return *c.last, true
}

type prediction struct {
	action types.Action
	err    error
}

// RunCycle 采集一次行情、询问全部 predictor，然后落库并跑一次标注。
// 价格拿不到时整轮放弃，不写任何数据。
func (c *Collector) RunCycle(ctx context.Context) (CycleReport, error) {
	start := c.nowFn()
	report := CycleReport{
		TraceID:     uuid.NewString(),
		StartedAt:   start.UTC(),
		DecisionIDs: map[string]int64{},
	}
	defer func() {
		c.metrics.RecordCycle("collect", c.nowFn().Sub(start).Seconds())
	}()

	snap, degraded, err := market.AssembleSnapshot(ctx, c.cfg.Sources)
	if err != nil {
		logger.Errorf("[collector] trace=%s snapshot failed: %v", report.TraceID, err)
		return report, fmt.Errorf("assemble snapshot: %w", err)
	}
	report.Price = snap.Price
	for _, d := range degraded {
		report.Degraded = append(report.Degraded, d.Error())
	}
	c.metrics.RecordLastPrice(c.cfg.Sources.Symbol, snap.Price)

	// 先并发拿到全部结果，再统一写库
	results := make([]prediction, len(c.predictors))
	pctx := provider.WithTraceID(ctx, report.TraceID)
	g, gctx := errgroup.WithContext(pctx)
	for i, p := range c.predictors {
		i, p := i, p
		g.Go(func() error {
			results[i] = c.predict(gctx, p, snap)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return report, err
	}

	snapID, err := c.snapshots.AppendSnapshot(ctx, snap)
	if err != nil {
		return report, fmt.Errorf("append snapshot: %w", err)
	}
	report.SnapshotID = snapID

	for i, p := range c.predictors {
		res := results[i]
		if res.err != nil {
			report.Failures = append(report.Failures, Failure{Predictor: p.Name(), Error: res.err.Error()})
			logger.Warnf("[collector] trace=%s predictor %s produced no decision: %v", report.TraceID, p.Name(), res.err)
			continue
		}
		id, err := c.decisions.RecordDecision(ctx, ingest.DecisionInput{
			Timestamp: snap.Timestamp,
			Predictor: p.Name(),
			Action:    string(res.action),
			Price:     snap.Price,
		})
		if err != nil {
			report.Failures = append(report.Failures, Failure{Predictor: p.Name(), Error: err.Error()})
			logger.Errorf("[collector] trace=%s record %s decision failed: %v", report.TraceID, p.Name(), err)
			continue
		}
		report.DecisionIDs[p.Name()] = id
	}

	if c.evaluator != nil {
		res, err := c.evaluator.Evaluate(ctx, labeler.Options{ReferencePrice: snap.Price})
		if err != nil {
			logger.Warnf("[collector] trace=%s evaluation pass failed: %v", report.TraceID, err)
		} else {
			report.Evaluation = &res
		}
	}

	logger.Infof("[collector] trace=%s price=%.2f decisions=%d failures=%d degraded=%d",
		report.TraceID, snap.Price, len(report.DecisionIDs), len(report.Failures), len(report.Degraded))
	c.remember(report)
	return report, nil
}

func (c *Collector) predict(ctx context.Context, p provider.Predictor, snap types.MarketSnapshot) (out prediction) {
	defer func() {
		if r := recover(); r != nil {
			out = prediction{err: fmt.Errorf("predictor panic: %v", r)}
		}
	}()
	if c.cfg.PredictTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.PredictTimeout)
		defer cancel()
	}
	action, err := p.Predict(ctx, snap)
	if err != nil {
		return prediction{err: err}
	}
	if _, perr := types.ParseAction(string(action)); perr != nil {
		return prediction{err: fmt.Errorf("%s: %w", p.Name(), perr)}
	}
	return prediction{action: action}
}

func (c *Collector) remember(r CycleReport) {
	c.mu.Lock()
	c.last = &r
	c.mu.Unlock()
}
