package store

import (
	"context"
	"time"

	"ethpulse/internal/types"
)

// SnapshotRepository persists append-only market snapshots.
type SnapshotRepository interface {
	AppendSnapshot(ctx context.Context, snap types.MarketSnapshot) (int64, error)
	// RecentSnapshots returns up to n rows, newest first.
	RecentSnapshots(ctx context.Context, n int) ([]types.MarketSnapshot, error)
	// LatestSnapshot returns types.ErrNotFound when no snapshot exists.
	LatestSnapshot(ctx context.Context) (types.MarketSnapshot, error)
}

// DecisionRepository persists decisions and their single evaluation.
type DecisionRepository interface {
	AppendDecision(ctx context.Context, d types.NewDecision) (int64, error)
	RecentDecisions(ctx context.Context, n int) ([]types.Decision, error)
	PendingDecisions(ctx context.Context, filter types.PendingFilter) ([]types.Decision, error)
	// RecordEvaluation only applies to pending rows. A second call returns
	// types.ErrConsistency and leaves the stored verdict untouched.
	RecordEvaluation(ctx context.Context, id int64, correct bool, profitLoss float64) error
	ListDecisions(ctx context.Context, q types.DecisionQuery) ([]types.Decision, error)
	ListPredictors(ctx context.Context) ([]string, error)
}

// RollupRepository stores the per-day summaries.
type RollupRepository interface {
	// ReplaceDailyRollups deletes the window rows for date and inserts rows in one transaction.
	ReplaceDailyRollups(ctx context.Context, date string, rows []types.DailyRollup) error
	// RollupAndPurge summarises [cutoff, now) into the rows for date, folds decisions no
	// earlier run summarised into the rows of their own date, then purges raw rows older
	// than cutoff, all in one transaction. The purge never commits without the rollup.
	RollupAndPurge(ctx context.Context, date string, cutoff time.Time, build types.RollupFunc) (types.RollupResult, error)
	PruneRollupsBefore(ctx context.Context, date string) (int64, error)
	ListRollups(ctx context.Context, sinceDate string) ([]types.DailyRollup, error)
}

// MaintenanceRepository keeps last-run markers next to the data and reclaims space.
type MaintenanceRepository interface {
	LastMaintenance(ctx context.Context, key string) (time.Time, bool, error)
	MarkMaintenance(ctx context.Context, key string, at time.Time) error
	Vacuum(ctx context.Context) error
}

// Store is the entry point for database access.
type Store interface {
	SnapshotRepository
	DecisionRepository
	RollupRepository
	MaintenanceRepository

	PurgeBefore(ctx context.Context, cutoff time.Time) (types.PurgeResult, error)
	Close() error
}
