package labeler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ethpulse/internal/store/gormstore"
	"ethpulse/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func newStore(t *testing.T) *gormstore.GormStore {
	t.Helper()
	s, err := gormstore.Open(gormstore.Options{Path: filepath.Join(t.TempDir(), "labeler.db"), Now: clock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addDecision(t *testing.T, s *gormstore.GormStore, action types.Action, price float64, age time.Duration, ctxID string) int64 {
	t.Helper()
	id, err := s.AppendDecision(context.Background(), types.NewDecision{
		Timestamp: now.Add(-age),
		Predictor: "groq",
		Action:    action,
		Price:     price,
		Context:   ctxID,
	})
	require.NoError(t, err)
	return id
}

func decisionByID(t *testing.T, s *gormstore.GormStore, id int64) types.Decision {
	t.Helper()
	all, err := s.ListDecisions(context.Background(), types.DecisionQuery{})
	require.NoError(t, err)
	for _, d := range all {
		if d.ID == id {
			return d
		}
	}
	t.Fatalf("decision %d not found", id)
	return types.Decision{}
}

func TestAdaptivePolicy_ThresholdByAge(t *testing.T) {
	p := AdaptivePolicy{}
	cases := []struct {
		age  time.Duration
		vol  float64
		want float64
	}{
		{0, 0, 0.5},
		{time.Hour, 0, 0.6},
		{2 * time.Hour, 0, 0.7},
		{15 * time.Hour, 0, 2.0},
		{20 * time.Hour, 0, 2.0},
		{-time.Hour, 0, 0.5},
		{0, 5, 1.5},
		{15 * time.Hour, 10, 3.0},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, p.Threshold(tc.age, tc.vol), 1e-9, "age=%s vol=%v", tc.age, tc.vol)
	}
}

func TestPolicies_Judge(t *testing.T) {
	a := AdaptivePolicy{}
	thr := a.Threshold(time.Hour, 0)
	assert.True(t, a.Judge(types.ActionHold, 0.5, thr))
	assert.False(t, a.Judge(types.ActionBuy, 0.5, thr))
	assert.False(t, a.Judge(types.ActionSell, 0.5, thr))
	assert.True(t, a.Judge(types.ActionSell, -0.61, thr))

	s := StrictPolicy{}
	sthr := s.Threshold(time.Hour, 100)
	assert.Equal(t, 0.5, sthr)
	assert.True(t, s.Judge(types.ActionBuy, 0.01, sthr))
	assert.True(t, s.Judge(types.ActionSell, -0.01, sthr))
	assert.False(t, s.Judge(types.ActionHold, 0.5, sthr))
	assert.True(t, s.Judge(types.ActionHold, 0.49, sthr))

	_, err := PolicyFor("fuzzy")
	assert.Error(t, err)
	p, err := PolicyFor("")
	require.NoError(t, err)
	assert.Equal(t, ModeAdaptive, p.Name())
}

func TestVolatility(t *testing.T) {
	snap := func(p float64) types.MarketSnapshot { return types.MarketSnapshot{Price: p} }

	v, ok := Volatility(nil)
	assert.False(t, ok)
	assert.Zero(t, v)

	v, ok = Volatility([]types.MarketSnapshot{snap(2000)})
	assert.False(t, ok)
	assert.Zero(t, v)

	// newest first: 2020 <- 2000 <- 2000
	v, ok = Volatility([]types.MarketSnapshot{snap(2020), snap(2000), snap(2000)})
	assert.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)

	v, ok = Volatility([]types.MarketSnapshot{snap(2020), snap(0), snap(2000)})
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestLabeler_ScenarioA(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.AppendSnapshot(ctx, types.MarketSnapshot{Timestamp: now, Price: 2050})
	require.NoError(t, err)
	id := addDecision(t, s, types.ActionBuy, 2000, 2*time.Hour, "")

	l := New(s, Config{}, nil).WithClock(clock)
	res, err := l.Evaluate(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 1, res.Correct)

	d := decisionByID(t, s, id)
	require.True(t, d.Evaluated())
	assert.True(t, *d.Correct)
	assert.InDelta(t, 2.5, *d.ProfitLoss, 1e-9)
}

func TestLabeler_ScenarioB(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.AppendSnapshot(ctx, types.MarketSnapshot{Timestamp: now, Price: 2010})
	require.NoError(t, err)
	hold := addDecision(t, s, types.ActionHold, 2000, time.Hour, "")
	buy := addDecision(t, s, types.ActionBuy, 2000, time.Hour, "")
	sell := addDecision(t, s, types.ActionSell, 2000, time.Hour, "")

	res, err := New(s, Config{}, nil).WithClock(clock).Evaluate(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Evaluated)

	assert.True(t, *decisionByID(t, s, hold).Correct)
	assert.False(t, *decisionByID(t, s, buy).Correct)
	assert.False(t, *decisionByID(t, s, sell).Correct)
	assert.InDelta(t, 0.5, *decisionByID(t, s, sell).ProfitLoss, 1e-9)
}

func TestLabeler_NoSnapshotLeavesPending(t *testing.T) {
	s := newStore(t)
	id := addDecision(t, s, types.ActionBuy, 2000, time.Hour, "")

	res, err := New(s, Config{}, nil).WithClock(clock).Evaluate(context.Background(), Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Evaluated)
	assert.Equal(t, types.EvalPending, decisionByID(t, s, id).State)
}

func TestLabeler_SkipsUnchangedPriceAndRespectsMaturation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.AppendSnapshot(ctx, types.MarketSnapshot{Timestamp: now, Price: 2000})
	require.NoError(t, err)
	same := addDecision(t, s, types.ActionHold, 2000, time.Hour, "")
	young := addDecision(t, s, types.ActionBuy, 1900, 10*time.Second, "")

	res, err := New(s, Config{Maturation: 30 * time.Second}, nil).WithClock(clock).Evaluate(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Considered)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, types.EvalPending, decisionByID(t, s, same).State)
	assert.Equal(t, types.EvalPending, decisionByID(t, s, young).State)
}

func TestLabeler_ZeroPriceDegradesToNeutral(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.AppendSnapshot(ctx, types.MarketSnapshot{Timestamp: now, Price: 2000})
	require.NoError(t, err)
	hold := addDecision(t, s, types.ActionHold, 0, time.Hour, "")
	buy := addDecision(t, s, types.ActionBuy, 0, time.Hour, "")

	res, err := New(s, Config{}, nil).WithClock(clock).Evaluate(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Evaluated)
	assert.True(t, *decisionByID(t, s, hold).Correct)
	assert.False(t, *decisionByID(t, s, buy).Correct)
	assert.Zero(t, *decisionByID(t, s, buy).ProfitLoss)
}

func TestLabeler_ContextScopesAndReferencePrice(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.AppendSnapshot(ctx, types.MarketSnapshot{Timestamp: now, Price: 2000})
	require.NoError(t, err)
	global := addDecision(t, s, types.ActionBuy, 1000, time.Hour, "")
	wallet := addDecision(t, s, types.ActionBuy, 1000, time.Hour, "0xabc")

	l := New(s, Config{}, nil).WithClock(clock)
	res, err := l.Evaluate(ctx, Options{ScopedOnly: true, ReferencePrice: 990})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 990.0, res.Reference)
	w := decisionByID(t, s, wallet)
	assert.False(t, *w.Correct)
	assert.InDelta(t, -1.0, *w.ProfitLoss, 1e-9)
	assert.Equal(t, types.EvalPending, decisionByID(t, s, global).State)

	// a second pass never rewrites the verdict
	res, err = l.Evaluate(ctx, Options{Context: "0xabc", ReferencePrice: 5000})
	require.NoError(t, err)
	assert.Zero(t, res.Considered)
	assert.False(t, *decisionByID(t, s, wallet).Correct)
}

func TestLabeler_StrictMode(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.AppendSnapshot(ctx, types.MarketSnapshot{Timestamp: now, Price: 2010})
	require.NoError(t, err)
	buy := addDecision(t, s, types.ActionBuy, 2000, time.Hour, "")

	_, err = New(s, Config{Policy: StrictPolicy{}}, nil).WithClock(clock).Evaluate(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, *decisionByID(t, s, buy).Correct)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) RecentSnapshots(ctx context.Context, n int) ([]types.MarketSnapshot, error) {
	args := m.Called(ctx, n)
	return args.Get(0).([]types.MarketSnapshot), args.Error(1)
}

func (m *mockStore) PendingDecisions(ctx context.Context, f types.PendingFilter) ([]types.Decision, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]types.Decision), args.Error(1)
}

func (m *mockStore) RecordEvaluation(ctx context.Context, id int64, correct bool, pl float64) error {
	return m.Called(ctx, id, correct, pl).Error(0)
}

func TestLabeler_PerItemFailuresDoNotAbortBatch(t *testing.T) {
	st := new(mockStore)
	ctx := context.Background()
	st.On("RecentSnapshots", ctx, DefaultVolatilityWindow).
		Return([]types.MarketSnapshot{{Price: 2050}}, nil)
	st.On("PendingDecisions", ctx, mock.AnythingOfType("types.PendingFilter")).
		Return([]types.Decision{
			{ID: 1, Timestamp: now.Add(-2 * time.Hour), Predictor: "a", Action: types.ActionBuy, Price: 2000},
			{ID: 2, Predictor: "a", Action: types.ActionBuy, Price: 2000},
			{ID: 3, Timestamp: now.Add(-2 * time.Hour), Predictor: "a", Action: "SHORT", Price: 2000},
			{ID: 4, Timestamp: now.Add(-2 * time.Hour), Predictor: "a", Action: types.ActionSell, Price: 2000},
			{ID: 5, Timestamp: now.Add(-2 * time.Hour), Predictor: "a", Action: types.ActionHold, Price: 2000},
		}, nil)
	st.On("RecordEvaluation", ctx, int64(1), true, mock.Anything).Return(nil)
	st.On("RecordEvaluation", ctx, int64(4), false, mock.Anything).Return(types.Consistencyf("decision 4 already evaluated"))
	st.On("RecordEvaluation", ctx, int64(5), false, mock.Anything).Return(errors.New("disk I/O error"))

	res, err := New(st, Config{}, nil).WithClock(clock).Evaluate(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, Result{Reference: 2050, Considered: 5, Evaluated: 1, Correct: 1, Conflicts: 1, Failed: 3}, res)
	st.AssertExpectations(t)
}
