package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ethpulse/internal/store/gormstore"
	"ethpulse/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *gormstore.GormStore) {
	t.Helper()
	s, err := gormstore.Open(gormstore.Options{Path: filepath.Join(t.TempDir(), "ingest.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewService(s, nil), s
}

func TestService_RecordDecision(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	id, err := svc.RecordDecision(ctx, DecisionInput{Predictor: " groq ", Action: "buy", Price: 2000})
	require.NoError(t, err)
	assert.Positive(t, id)

	bad := []DecisionInput{
		{Predictor: "groq", Action: "SHORT", Price: 2000},
		{Predictor: "groq", Price: 2000},
		{Action: "BUY", Price: 2000},
		{Predictor: "groq", Action: "BUY", Price: 0},
		{Predictor: "groq", Action: "BUY", Price: -5},
	}
	for _, in := range bad {
		_, err := svc.RecordDecision(ctx, in)
		assert.ErrorIs(t, err, types.ErrValidation, "%+v", in)
	}

	all, err := st.RecentDecisions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 1, "rejected input is never stored")
	assert.Equal(t, "groq", all[0].Predictor)
	assert.Equal(t, types.ActionBuy, all[0].Action)
}

func TestService_RecordWalletDecision(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	_, err := svc.RecordWalletDecision(ctx, "", DecisionInput{Predictor: "groq", Action: "SELL", Price: 2000})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = svc.RecordWalletDecision(ctx, types.GlobalContext, DecisionInput{Predictor: "groq", Action: "SELL", Price: 2000})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = svc.RecordWalletDecision(ctx, "0xabc", DecisionInput{Predictor: "groq", Action: "SELL", Price: 2000, Context: "ignored"})
	require.NoError(t, err)
	all, err := st.RecentDecisions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "0xabc", all[0].Context)
}

func TestService_RecordSnapshot(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	val := 40
	high, low := 2100.0, 1900.0

	_, err := svc.RecordSnapshot(ctx, MarketInput{
		Timestamp:      ts,
		Price:          2000,
		Volume24h:      5e8,
		High24h:        &high,
		Low24h:         &low,
		FeeTiers:       &FeeInput{Low: 1, Standard: 2, Fast: 3},
		SentimentValue: &val,
	})
	require.NoError(t, err)
	snap, err := st.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, ts, snap.Timestamp)
	assert.Equal(t, types.SentimentBearish, snap.Sentiment)
	require.NotNil(t, snap.Fees)
	assert.Equal(t, 3.0, snap.Fees.Fast)

	over := 101
	bad := []MarketInput{
		{Price: 0},
		{Price: 2000, SentimentValue: &over},
		{Price: 2000, SentimentLabel: "euphoric"},
		{Price: 2000, High24h: &low, Low24h: &high},
		{Price: 2000, FeeTiers: &FeeInput{Low: -1}},
	}
	for _, in := range bad {
		_, err := svc.RecordSnapshot(ctx, in)
		assert.ErrorIs(t, err, types.ErrValidation, "%+v", in)
	}
}

func TestService_ParseQueryDefaults(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var q ListQuery
	require.NoError(t, svc.ParseQuery(ctx, &q))
	assert.Equal(t, 100, q.Limit)

	d := DaysQuery{Days: 400}
	assert.ErrorIs(t, svc.ParseQuery(ctx, &d), types.ErrValidation)
}
