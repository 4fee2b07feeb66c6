package gormstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	storemodel "ethpulse/internal/store/model"
	"ethpulse/internal/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReplaceDailyRollups replaces the window rows for date. Backfill rows are left alone.
func (s *GormStore) ReplaceDailyRollups(ctx context.Context, date string, rows []types.DailyRollup) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return types.Validationf("rollup date is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteWindowRollups(tx, date); err != nil {
			return err
		}
		return insertRollups(tx, date, rows, s.now())
	})
}

// RollupAndPurge runs one retention step in a single transaction:
//  1. the window [cutoff, now) is read and summarised by build into the window rows for date;
//  2. window decisions are tagged with date, and decisions tagged by an earlier run of the
//     same date that fell out of the window lose their tag;
//  3. untagged decisions older than cutoff are summarised into backfill rows keyed by their
//     own UTC date, merged with whatever those rows already hold;
//  4. snapshots and decisions older than cutoff are deleted.
//
// Every purged decision is therefore counted in at least one rollup row, however long the
// gap since the previous run.
func (s *GormStore) RollupAndPurge(ctx context.Context, date string, cutoff time.Time, build types.RollupFunc) (types.RollupResult, error) {
	if s == nil || s.db == nil {
		return types.RollupResult{}, errNotInitialized
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return types.RollupResult{}, types.Validationf("rollup date is required")
	}
	if build == nil {
		return types.RollupResult{}, types.Validationf("rollup builder is required")
	}
	now := s.now()
	cutoffMs := cutoff.UnixMilli()
	var out types.RollupResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先写后读：SQLite 在第一条写语句处拿到写锁，之后的窗口读取不会被并发写入打断
		if err := deleteWindowRollups(tx, date); err != nil {
			return err
		}
		var window []storemodel.DecisionModel
		if err := tx.Where("ts_ms >= ?", cutoffMs).Order("ts_ms ASC, id ASC").Find(&window).Error; err != nil {
			return fmt.Errorf("load rollup window: %w", err)
		}
		rows := build(decisionModelsToTypes(window))
		if err := insertRollups(tx, date, rows, now); err != nil {
			return err
		}
		if err := tx.Model(&storemodel.DecisionModel{}).Where("rollup_date = ?", date).
			Update("rollup_date", "").Error; err != nil {
			return fmt.Errorf("untag decisions %s: %w", date, err)
		}
		if err := tx.Model(&storemodel.DecisionModel{}).Where("ts_ms >= ?", cutoffMs).
			Update("rollup_date", date).Error; err != nil {
			return fmt.Errorf("tag decisions %s: %w", date, err)
		}
		backfilled, err := backfillUntagged(tx, cutoffMs, build, now)
		if err != nil {
			return err
		}
		purged, err := purgeRaw(tx, cutoff)
		if err != nil {
			return err
		}
		out = types.RollupResult{Rows: len(rows), Backfilled: backfilled, Purged: purged}
		return nil
	})
	if err != nil {
		return types.RollupResult{}, err
	}
	return out, nil
}

func deleteWindowRollups(tx *gorm.DB, date string) error {
	err := tx.Where("date = ? AND origin = ?", date, storemodel.RollupOriginWindow).
		Delete(&storemodel.DailyRollupModel{}).Error
	if err != nil {
		return fmt.Errorf("delete rollups %s: %w", date, err)
	}
	return nil
}

func insertRollups(tx *gorm.DB, date string, rows []types.DailyRollup, now time.Time) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]storemodel.DailyRollupModel, 0, len(rows))
	for _, r := range rows {
		models = append(models, rollupToModel(date, storemodel.RollupOriginWindow, r, now))
	}
	if err := tx.Create(&models).Error; err != nil {
		return fmt.Errorf("insert rollups %s: %w", date, err)
	}
	return nil
}

func backfillUntagged(tx *gorm.DB, cutoffMs int64, build types.RollupFunc, now time.Time) (int, error) {
	var models []storemodel.DecisionModel
	err := tx.Where("ts_ms < ? AND rollup_date = ?", cutoffMs, "").
		Order("ts_ms ASC, id ASC").Find(&models).Error
	if err != nil {
		return 0, fmt.Errorf("load untagged decisions: %w", err)
	}
	if len(models) == 0 {
		return 0, nil
	}
	byDate := make(map[string][]types.Decision)
	for _, m := range models {
		d := decisionModelToType(m)
		day := d.Timestamp.UTC().Format(types.RollupDateLayout)
		byDate[day] = append(byDate[day], d)
	}
	days := make([]string, 0, len(byDate))
	for day := range byDate {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		for _, r := range build(byDate[day]) {
			if err := mergeBackfill(tx, day, r, now); err != nil {
				return 0, err
			}
		}
	}
	return len(models), nil
}

func mergeBackfill(tx *gorm.DB, date string, r types.DailyRollup, now time.Time) error {
	var existing storemodel.DailyRollupModel
	err := tx.Where("date = ? AND predictor = ? AND origin = ?", date, r.Predictor, storemodel.RollupOriginBackfill).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		m := rollupToModel(date, storemodel.RollupOriginBackfill, r, now)
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("insert backfill %s/%s: %w", date, r.Predictor, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("load backfill %s/%s: %w", date, r.Predictor, err)
	}
	m := rollupToModel(date, storemodel.RollupOriginBackfill, rollupFromModel(existing).Merge(r), now)
	m.ID = existing.ID
	if err := tx.Save(&m).Error; err != nil {
		return fmt.Errorf("update backfill %s/%s: %w", date, r.Predictor, err)
	}
	return nil
}

func rollupToModel(date, origin string, r types.DailyRollup, now time.Time) storemodel.DailyRollupModel {
	return storemodel.DailyRollupModel{
		Date:          date,
		Predictor:     r.Predictor,
		Origin:        origin,
		Total:         r.Total,
		Correct:       r.Correct,
		Incorrect:     r.Incorrect,
		Buy:           r.Buy,
		Sell:          r.Sell,
		Hold:          r.Hold,
		AvgProfit:     r.AvgProfit,
		ProfitSamples: r.ProfitSamples,
		UpdatedAtMs:   now.UnixMilli(),
	}
}

func rollupFromModel(m storemodel.DailyRollupModel) types.DailyRollup {
	return types.DailyRollup{
		Date:          m.Date,
		Predictor:     m.Predictor,
		Total:         m.Total,
		Correct:       m.Correct,
		Incorrect:     m.Incorrect,
		Buy:           m.Buy,
		Sell:          m.Sell,
		Hold:          m.Hold,
		AvgProfit:     m.AvgProfit,
		ProfitSamples: m.ProfitSamples,
		UpdatedAt:     time.UnixMilli(m.UpdatedAtMs).UTC(),
	}
}

func (s *GormStore) PruneRollupsBefore(ctx context.Context, date string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	res := s.db.WithContext(ctx).Where("date < ?", date).Delete(&storemodel.DailyRollupModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune rollups before %s: %w", date, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) ListRollups(ctx context.Context, sinceDate string) ([]types.DailyRollup, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	q := s.db.WithContext(ctx)
	if sinceDate != "" {
		q = q.Where("date >= ?", sinceDate)
	}
	var models []storemodel.DailyRollupModel
	if err := q.Order("date DESC, predictor ASC, origin DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list rollups: %w", err)
	}
	// window 与 backfill 行合并成一行返回
	out := make([]types.DailyRollup, 0, len(models))
	for _, m := range models {
		r := rollupFromModel(m)
		if n := len(out); n > 0 && out[n-1].Date == r.Date && out[n-1].Predictor == r.Predictor {
			merged := out[n-1].Merge(r)
			if r.UpdatedAt.After(merged.UpdatedAt) {
				merged.UpdatedAt = r.UpdatedAt
			}
			out[n-1] = merged
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *GormStore) LastMaintenance(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, errNotInitialized
	}
	var m storemodel.MaintenanceModel
	err := s.db.WithContext(ctx).Where("task = ?", key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load maintenance %s: %w", key, err)
	}
	return time.UnixMilli(m.LastRunAtMs).UTC(), true, nil
}

func (s *GormStore) MarkMaintenance(ctx context.Context, key string, at time.Time) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	m := storemodel.MaintenanceModel{Key: key, LastRunAtMs: at.UnixMilli()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_run_at"}),
		}).
		Create(&m).Error
}
