package retention

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"ethpulse/internal/logger"
	"ethpulse/internal/metrics"
	"ethpulse/internal/types"
)

const (
	DefaultRawRetention       = 24 * time.Hour
	DefaultRollupRetention    = 7
	DefaultCompactionInterval = 24 * time.Hour

	vacuumTask = "vacuum"
)

// Store is the part of the time-series store used for rollup and retention.
type Store interface {
	RollupAndPurge(ctx context.Context, date string, cutoff time.Time, build types.RollupFunc) (types.RollupResult, error)
	PruneRollupsBefore(ctx context.Context, date string) (int64, error)
	LastMaintenance(ctx context.Context, key string) (time.Time, bool, error)
	MarkMaintenance(ctx context.Context, key string, at time.Time) error
	Vacuum(ctx context.Context) error
}

type Config struct {
	RawRetention        time.Duration
	RollupRetentionDays int
	CompactionInterval  time.Duration
	// MinInterval gates MaybeRun; 0 lets every call through.
	MinInterval time.Duration
}

type Report struct {
	Date          string            `json:"date"`
	RollupRows    int               `json:"rollup_rows"`
	Backfilled    int               `json:"backfilled"`
	Purged        types.PurgeResult `json:"purged"`
	PrunedRollups int64             `json:"pruned_rollups"`
	Vacuumed      bool              `json:"vacuumed"`
}

// Manager folds the trailing window into today's DailyRollup rows, folds decisions that
// would otherwise leave unsummarised into the rows of their own day, then drops raw rows
// past the retention window. Runs are serialised in-process; the store transaction keeps
// them safe across processes.
type Manager struct {
	store   Store
	cfg     Config
	metrics *metrics.Recorder
	nowFn   func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

func NewManager(st Store, cfg Config, rec *metrics.Recorder) *Manager {
	if cfg.RawRetention <= 0 {
		cfg.RawRetention = DefaultRawRetention
	}
	if cfg.RollupRetentionDays <= 0 {
		cfg.RollupRetentionDays = DefaultRollupRetention
	}
	if cfg.CompactionInterval <= 0 {
		cfg.CompactionInterval = DefaultCompactionInterval
	}
	return &Manager{store: st, cfg: cfg, metrics: rec, nowFn: time.Now}
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.nowFn = now
	}
	return m
}

// Run performs one full pass. Rollup and purge commit together or not at all; rollup
// pruning and compaction failures are logged and do not fail the pass.
func (m *Manager) Run(ctx context.Context) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRun = m.nowFn()
	return m.run(ctx)
}

// MaybeRun is the opportunistic entry point used before serving statistics. It returns
// ran=false when a pass started less than MinInterval ago or one is already in progress.
// Failed passes count as attempts, so a broken store is retried at most once per interval.
func (m *Manager) MaybeRun(ctx context.Context) (Report, bool, error) {
	if !m.mu.TryLock() {
		return Report{}, false, nil
	}
	defer m.mu.Unlock()
	now := m.nowFn()
	if m.cfg.MinInterval > 0 && !m.lastRun.IsZero() && now.Sub(m.lastRun) < m.cfg.MinInterval {
		return Report{}, false, nil
	}
	m.lastRun = now
	rep, err := m.run(ctx)
	return rep, true, err
}

func (m *Manager) run(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() { m.metrics.RecordCycle("retention", time.Since(start).Seconds()) }()

	now := m.nowFn().UTC()
	cutoff := now.Add(-m.cfg.RawRetention)
	rep := Report{Date: now.Format(types.RollupDateLayout)}

	res, err := m.store.RollupAndPurge(ctx, rep.Date, cutoff, BuildRollups)
	if err != nil {
		return rep, fmt.Errorf("rollup and purge: %w", err)
	}
	purged := res.Purged
	rep.RollupRows = res.Rows
	rep.Backfilled = res.Backfilled
	rep.Purged = purged
	m.metrics.RecordRollupRows(res.Rows)
	m.metrics.RecordPurged(purged.Snapshots, purged.Decisions)
	if res.Backfilled > 0 {
		logger.Warnf("[retention] %d decisions were never in a rollup window, folded into their own day before purge", res.Backfilled)
	}

	keepFrom := now.AddDate(0, 0, -m.cfg.RollupRetentionDays).Format(types.RollupDateLayout)
	if n, err := m.store.PruneRollupsBefore(ctx, keepFrom); err != nil {
		logger.Warnf("[retention] prune rollups before %s: %v", keepFrom, err)
	} else {
		rep.PrunedRollups = n
	}

	rep.Vacuumed = m.compact(ctx, now)
	logger.Infof("[retention] date=%s rollups=%d backfilled=%d purged_snapshots=%d purged_decisions=%d pruned_rollups=%d vacuum=%v",
		rep.Date, rep.RollupRows, rep.Backfilled, purged.Snapshots, purged.Decisions, rep.PrunedRollups, rep.Vacuumed)
	return rep, nil
}

func (m *Manager) compact(ctx context.Context, now time.Time) bool {
	last, ok, err := m.store.LastMaintenance(ctx, vacuumTask)
	if err != nil {
		logger.Warnf("[retention] load vacuum marker: %v", err)
		return false
	}
	if ok && now.Sub(last) < m.cfg.CompactionInterval {
		return false
	}
	if err := m.store.Vacuum(ctx); err != nil {
		logger.Warnf("[retention] vacuum: %v", err)
		return false
	}
	if err := m.store.MarkMaintenance(ctx, vacuumTask, now); err != nil {
		logger.Warnf("[retention] mark vacuum: %v", err)
	}
	return true
}

// BuildRollups summarises ds per predictor. Total and the action counts include every
// decision; Correct/Incorrect only evaluated ones; AvgProfit covers evaluated BUY/SELL.
// It satisfies types.RollupFunc.
func BuildRollups(ds []types.Decision) []types.DailyRollup {
	type acc struct {
		row       types.DailyRollup
		profitSum float64
		profitN   int
	}
	groups := make(map[string]*acc)
	for _, d := range ds {
		a, ok := groups[d.Predictor]
		if !ok {
			a = &acc{row: types.DailyRollup{Predictor: d.Predictor}}
			groups[d.Predictor] = a
		}
		a.row.Total++
		switch d.Action {
		case types.ActionBuy:
			a.row.Buy++
		case types.ActionSell:
			a.row.Sell++
		case types.ActionHold:
			a.row.Hold++
		}
		if !d.Evaluated() {
			continue
		}
		if *d.Correct {
			a.row.Correct++
		} else {
			a.row.Incorrect++
		}
		if d.Action.Directional() && d.ProfitLoss != nil && !math.IsNaN(*d.ProfitLoss) {
			a.profitSum += *d.ProfitLoss
			a.profitN++
		}
	}
	out := make([]types.DailyRollup, 0, len(groups))
	for _, a := range groups {
		if a.profitN > 0 {
			a.row.AvgProfit = a.profitSum / float64(a.profitN)
			a.row.ProfitSamples = a.profitN
		}
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Predictor < out[j].Predictor })
	return out
}
