package gormstore

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	storemodel "ethpulse/internal/store/model"
	"ethpulse/internal/types"

	"gorm.io/gorm"
)

// AppendDecision validates and stores a pending decision.
// Price may be zero for legacy rows; negative or non-finite prices are rejected.
func (s *GormStore) AppendDecision(ctx context.Context, d types.NewDecision) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	predictor := strings.TrimSpace(d.Predictor)
	if predictor == "" {
		return 0, types.Validationf("predictor is required")
	}
	action, err := types.ParseAction(string(d.Action))
	if err != nil {
		return 0, err
	}
	if math.IsNaN(d.Price) || math.IsInf(d.Price, 0) || d.Price < 0 {
		return 0, types.Validationf("price must be a finite non-negative number (got %v)", d.Price)
	}
	now := s.now()
	ts := d.Timestamp
	if ts.IsZero() {
		ts = now
	}
	m := storemodel.DecisionModel{
		TimestampMs: ts.UnixMilli(),
		Predictor:   predictor,
		Action:      string(action),
		Price:       d.Price,
		Context:     types.NormalizeContext(d.Context),
		State:       string(types.EvalPending),
		CreatedAtMs: now.UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return 0, fmt.Errorf("append decision: %w", err)
	}
	return m.ID, nil
}

func (s *GormStore) RecentDecisions(ctx context.Context, n int) ([]types.Decision, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	if n <= 0 {
		return nil, nil
	}
	var models []storemodel.DecisionModel
	err := s.db.WithContext(ctx).
		Order("ts_ms DESC, id DESC").
		Limit(n).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("recent decisions: %w", err)
	}
	return decisionModelsToTypes(models), nil
}

func (s *GormStore) PendingDecisions(ctx context.Context, filter types.PendingFilter) ([]types.Decision, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	q := s.db.WithContext(ctx).Where("state = ?", types.EvalPending)
	if c := strings.TrimSpace(filter.Context); c != "" {
		q = q.Where("context = ?", c)
	} else if filter.ScopedOnly {
		q = q.Where("context <> ? AND context <> ''", types.GlobalContext)
	}
	if !filter.MaturedBefore.IsZero() {
		q = q.Where("ts_ms < ?", filter.MaturedBefore.UnixMilli())
	}
	q = q.Order("ts_ms DESC, id DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var models []storemodel.DecisionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("pending decisions: %w", err)
	}
	return decisionModelsToTypes(models), nil
}

// RecordEvaluation is a conditional update against the pending state, so concurrent
// evaluators of the same decision result in exactly one write.
func (s *GormStore) RecordEvaluation(ctx context.Context, id int64, correct bool, profitLoss float64) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if math.IsNaN(profitLoss) || math.IsInf(profitLoss, 0) {
		return types.Validationf("profit/loss must be finite for decision %d", id)
	}
	evaluatedAt := s.now().UnixMilli()
	res := s.db.WithContext(ctx).Model(&storemodel.DecisionModel{}).
		Where("id = ? AND state = ?", id, types.EvalPending).
		Updates(map[string]interface{}{
			"correct":      correct,
			"profit_loss":  profitLoss,
			"state":        string(types.EvalEvaluated),
			"evaluated_at": evaluatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("record evaluation %d: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&storemodel.DecisionModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("record evaluation %d: %w", id, err)
	}
	if count == 0 {
		return types.NotFoundf("decision %d", id)
	}
	return types.Consistencyf("decision %d already evaluated", id)
}

func (s *GormStore) ListDecisions(ctx context.Context, q types.DecisionQuery) ([]types.Decision, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	tx := applyDecisionQuery(s.db.WithContext(ctx), q).Order("ts_ms DESC, id DESC")
	var models []storemodel.DecisionModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	return decisionModelsToTypes(models), nil
}

func (s *GormStore) ListPredictors(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	var names []string
	err := s.db.WithContext(ctx).Model(&storemodel.DecisionModel{}).
		Distinct("predictor").
		Order("predictor ASC").
		Pluck("predictor", &names).Error
	if err != nil {
		return nil, fmt.Errorf("list predictors: %w", err)
	}
	return names, nil
}

func applyDecisionQuery(tx *gorm.DB, q types.DecisionQuery) *gorm.DB {
	if p := strings.TrimSpace(q.Predictor); p != "" {
		tx = tx.Where("predictor = ?", p)
	}
	if c := strings.TrimSpace(q.Context); c != "" {
		tx = tx.Where("context = ?", c)
	} else if q.ExcludeGlobal {
		tx = tx.Where("context <> ? AND context <> ''", types.GlobalContext)
	}
	if q.EvaluatedOnly {
		tx = tx.Where("state = ?", types.EvalEvaluated)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("ts_ms >= ?", q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		tx = tx.Where("ts_ms < ?", q.Until.UnixMilli())
	}
	return tx
}

func decisionModelsToTypes(models []storemodel.DecisionModel) []types.Decision {
	out := make([]types.Decision, 0, len(models))
	for _, m := range models {
		out = append(out, decisionModelToType(m))
	}
	return out
}

func decisionModelToType(m storemodel.DecisionModel) types.Decision {
	d := types.Decision{
		ID:         m.ID,
		Timestamp:  time.UnixMilli(m.TimestampMs).UTC(),
		Predictor:  m.Predictor,
		Action:     types.Action(m.Action),
		Price:      m.Price,
		Context:    m.Context,
		Correct:    m.Correct,
		ProfitLoss: m.ProfitLoss,
		State:      types.EvalState(m.State),
	}
	if m.EvaluatedAtMs != nil {
		t := time.UnixMilli(*m.EvaluatedAtMs).UTC()
		d.EvaluatedAt = &t
	}
	return d
}
