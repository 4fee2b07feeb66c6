package analytics

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"ethpulse/internal/store/gormstore"
	"ethpulse/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func evaluated(predictor string, action types.Action, age time.Duration, correct bool, pl float64) types.Decision {
	return types.Decision{
		Timestamp:  now.Add(-age),
		Predictor:  predictor,
		Action:     action,
		Context:    types.GlobalContext,
		State:      types.EvalEvaluated,
		Correct:    &correct,
		ProfitLoss: &pl,
	}
}

func pending(predictor string, action types.Action, age time.Duration) types.Decision {
	return types.Decision{
		Timestamp: now.Add(-age),
		Predictor: predictor,
		Action:    action,
		Context:   types.GlobalContext,
		State:     types.EvalPending,
	}
}

func TestCompute_AllBuyHalvesWeightedAccuracy(t *testing.T) {
	ds := []types.Decision{
		evaluated("groq", types.ActionBuy, time.Hour, true, 1.2),
		evaluated("groq", types.ActionBuy, 5*time.Hour, false, -0.4),
		evaluated("groq", types.ActionBuy, 20*time.Hour, true, 3.0),
		pending("groq", types.ActionBuy, time.Minute),
	}
	s := Compute(ds, now)
	assert.Equal(t, 0.0, s.Diversity)
	assert.Equal(t, 0.5*s.Weighted, s.Adjusted)
	assert.Equal(t, Distribution{Buy: 4}, s.Dist)
	assert.Equal(t, 3, s.Directional)
	assert.InDelta(t, 200.0/3, s.Raw, 1e-9)
}

func TestToStats_AdjustedMatchesPublishedFields(t *testing.T) {
	for _, sc := range []Score{
		{Weighted: 66.66, Diversity: 0, Adjusted: AdjustAccuracy(66.66, 0)},
		{Weighted: 83.349, Diversity: 0.6306, Adjusted: AdjustAccuracy(83.349, 0.6306)},
		{Weighted: 100, Diversity: 1, Adjusted: 100},
	} {
		st := toStats("groq", sc)
		assert.Equal(t, roundPct(AdjustAccuracy(st.WeightedAccuracy, st.DiversityFactor)), st.AdjustedAccuracy)
	}
	st := toStats("groq", Score{Weighted: 66.66, Adjusted: AdjustAccuracy(66.66, 0)})
	assert.Equal(t, 66.7, st.WeightedAccuracy)
	assert.InDelta(t, 0.5*st.WeightedAccuracy, st.AdjustedAccuracy, 0.05+1e-9)
}

func TestCompute_WeightsAndProfit(t *testing.T) {
	ds := []types.Decision{
		evaluated("gemini", types.ActionBuy, 0, true, 2),
		evaluated("gemini", types.ActionSell, 10*time.Hour, false, 1),
		evaluated("gemini", types.ActionHold, time.Hour, true, 0.1),
	}
	s := Compute(ds, now)

	w1 := 1 / math.Log(2)
	w2 := 1 / math.Log(12)
	assert.InDelta(t, w1/(w1+w2)*100, s.Weighted, 1e-9)
	assert.InDelta(t, 50, s.Raw, 1e-9)
	assert.Equal(t, 2, s.Profit.Samples, "HOLD is excluded from profit")
	assert.InDelta(t, 1.5, s.Profit.Avg, 1e-9)
	assert.InDelta(t, 1, s.Profit.Min, 1e-9)
	assert.InDelta(t, 2, s.Profit.Max, 1e-9)
	assert.InDelta(t, 1.0, s.Diversity, 1e-9, "one of each action is maximal entropy")
	assert.InDelta(t, s.Weighted, s.Adjusted, 1e-9)
}

func TestCompute_Empty(t *testing.T) {
	s := Compute(nil, now)
	assert.Zero(t, s.Raw)
	assert.Zero(t, s.Weighted)
	assert.Zero(t, s.Adjusted)
	assert.Zero(t, s.Diversity)
}

func TestAdjustAccuracy_Clamped(t *testing.T) {
	assert.Equal(t, 100.0, AdjustAccuracy(150, 1))
	assert.Equal(t, 0.0, AdjustAccuracy(-10, 1))
	assert.Equal(t, 40.0, AdjustAccuracy(80, 0))
}

func TestTimeframe_Key(t *testing.T) {
	ts := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-01 09", TimeframeHour.Key(ts))
	assert.Equal(t, "2026-01-01", TimeframeDay.Key(ts))
	assert.Equal(t, "2026-W01", TimeframeWeek.Key(ts))
	assert.Equal(t, "2026-01", TimeframeMonth.Key(ts))
	assert.Equal(t, "2025-W52", TimeframeWeek.Key(time.Date(2025, 12, 28, 0, 0, 0, 0, time.UTC)))

	_, err := ParseTimeframe("quarter")
	assert.ErrorIs(t, err, types.ErrValidation)
	tf, err := ParseTimeframe("")
	require.NoError(t, err)
	assert.Equal(t, TimeframeDay, tf)
}

type seeded struct {
	store *gormstore.GormStore
	agg   *Aggregator
}

func seed(t *testing.T) seeded {
	t.Helper()
	s, err := gormstore.Open(gormstore.Options{Path: filepath.Join(t.TempDir(), "analytics.db"), Now: clock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	add := func(predictor string, action types.Action, age time.Duration, ctxID string, correct *bool, pl float64) {
		id, err := s.AppendDecision(ctx, types.NewDecision{
			Timestamp: now.Add(-age),
			Predictor: predictor,
			Action:    action,
			Price:     2000,
			Context:   ctxID,
		})
		require.NoError(t, err)
		if correct != nil {
			require.NoError(t, s.RecordEvaluation(ctx, id, *correct, pl))
		}
	}
	yes, no := true, false
	add("groq", types.ActionBuy, 2*time.Hour, "", &yes, 1.5)
	add("groq", types.ActionSell, 3*time.Hour, "", &no, 0.8)
	add("groq", types.ActionHold, 4*time.Hour, "", &yes, 0.1)
	add("mistral", types.ActionBuy, 26*time.Hour, "", &yes, 2)
	add("mistral", types.ActionBuy, 9*24*time.Hour, "", &no, -1)
	add("groq", types.ActionBuy, time.Hour, "0xabc", &yes, 0.9)
	add("groq", types.ActionSell, time.Hour, "0xabc", &yes, -1.1)
	add("mistral", types.ActionSell, time.Hour, "0xabc", &no, 0.7)
	add("mistral", types.ActionHold, time.Minute, "0xabc", nil, 0)
	return seeded{store: s, agg: New(s).WithClock(clock)}
}

func TestAggregator_Accuracy(t *testing.T) {
	sd := seed(t)
	ctx := context.Background()

	t.Run("all contexts", func(t *testing.T) {
		rep, err := sd.agg.Accuracy(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, rep.Predictors, 2)
		groq := rep.Predictors[0]
		assert.Equal(t, "groq", groq.Predictor)
		assert.Equal(t, 5, groq.TotalDecisions)
		assert.Equal(t, 4, groq.EvaluatedDecisions)
		assert.Equal(t, 3, groq.CorrectDecisions)
		assert.Equal(t, 75.0, groq.Accuracy)
		assert.Equal(t, Distribution{Buy: 2, Sell: 2, Hold: 1}, groq.Distribution)
	})
	t.Run("global only", func(t *testing.T) {
		rep, err := sd.agg.Accuracy(ctx, Filter{Context: types.GlobalContext, Predictor: "groq"})
		require.NoError(t, err)
		require.Len(t, rep.Predictors, 1)
		assert.Equal(t, 3, rep.Predictors[0].TotalDecisions)
		assert.Equal(t, 50.0, rep.Predictors[0].Accuracy)
	})
	t.Run("scoped only", func(t *testing.T) {
		rep, err := sd.agg.Accuracy(ctx, Filter{ScopedOnly: true})
		require.NoError(t, err)
		require.Len(t, rep.Predictors, 2)
		assert.Equal(t, 2, rep.Predictors[1].TotalDecisions)
	})
}

func TestAggregator_ModelComparison(t *testing.T) {
	sd := seed(t)
	ctx := context.Background()

	cmp, err := sd.agg.ModelComparison(ctx, 7)
	require.NoError(t, err)
	require.Len(t, cmp.Models, 2)
	assert.Equal(t, "groq", cmp.Models[0].Predictor, "best adjusted accuracy first")
	var mistral AccuracyStats
	for _, m := range cmp.Models {
		if m.Predictor == "mistral" {
			mistral = m
		}
	}
	assert.Equal(t, 3, mistral.TotalDecisions, "the 9 day old decision is outside the window")

	_, err = sd.agg.ModelComparison(ctx, 0)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestAggregator_TimeframePerformance(t *testing.T) {
	sd := seed(t)
	perf, err := sd.agg.TimeframePerformance(context.Background(), "day")
	require.NoError(t, err)

	groq := perf.Predictors["groq"]
	require.Len(t, groq, 1)
	assert.Equal(t, "2026-06-10", groq[0].Period)
	assert.Equal(t, 4, groq[0].Decisions)
	assert.Equal(t, 75.0, groq[0].Accuracy)
	assert.Equal(t, 2.1, groq[0].TotalProfit)

	mistral := perf.Predictors["mistral"]
	require.Len(t, mistral, 3)
	assert.Equal(t, "2026-06-10", mistral[0].Period)
	assert.Equal(t, "2026-06-09", mistral[1].Period)
	assert.Equal(t, "2026-06-01", mistral[2].Period)

	_, err = sd.agg.TimeframePerformance(context.Background(), "fortnight")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestAggregator_WalletStats(t *testing.T) {
	sd := seed(t)
	ctx := context.Background()

	ws, err := sd.agg.WalletStats(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 4, ws.TotalDecisions)
	assert.Equal(t, 3, ws.EvaluatedDecisions)
	assert.Equal(t, 1, ws.PendingDecisions)
	assert.Equal(t, 2, ws.ProfitableActions)
	assert.Equal(t, Distribution{Buy: 1, Sell: 2, Hold: 1}, ws.Distribution)
	require.Len(t, ws.Predictors, 2)
	assert.Equal(t, 100.0, ws.Predictors[0].Accuracy)

	_, err = sd.agg.WalletStats(ctx, types.GlobalContext)
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = sd.agg.WalletStats(ctx, " ")
	assert.ErrorIs(t, err, types.ErrValidation)
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) ListDecisions(ctx context.Context, q types.DecisionQuery) ([]types.Decision, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]types.Decision), args.Error(1)
}

func (m *mockReader) ListRollups(ctx context.Context, since string) ([]types.DailyRollup, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]types.DailyRollup), args.Error(1)
}

func TestAggregator_RollupHistory(t *testing.T) {
	r := new(mockReader)
	ctx := context.Background()
	r.On("ListRollups", ctx, "2026-06-04").Return([]types.DailyRollup{
		{Date: "2026-06-10", Predictor: "groq", Total: 10, Correct: 6, Incorrect: 2, Buy: 5, Sell: 3, Hold: 2, AvgProfit: 0.456},
		{Date: "2026-06-09", Predictor: "groq", Total: 4, Correct: 1, Incorrect: 1, Buy: 2, Sell: 1, Hold: 1},
	}, nil)

	h, err := New(r).WithClock(clock).RollupHistory(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "2026-06-04", h.Since)
	require.Len(t, h.Rows, 2)
	assert.Equal(t, 0.46, h.Rows[0].AvgProfit)
	assert.Equal(t, RollupTotals{Total: 14, Correct: 7, Incorrect: 3, Accuracy: 70}, h.ByPredictor["groq"])
	r.AssertExpectations(t)
}
