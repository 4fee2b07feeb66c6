package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ethpulse/internal/analytics"
	"ethpulse/internal/ingest"
	"ethpulse/internal/labeler"
	"ethpulse/internal/metrics"
	"ethpulse/internal/retention"
	"ethpulse/internal/store/gormstore"
	"ethpulse/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store   *gormstore.GormStore
	handler http.Handler
	now     time.Time
}

func (e *testEnv) clock() time.Time { return e.now }

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	st, err := gormstore.Open(gormstore.Options{Path: filepath.Join(t.TempDir(), "api.db"), Now: env.clock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	env.store = st

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	srv, err := NewServer(ServerConfig{
		Reader:    st,
		Ingest:    ingest.NewService(st, rec),
		Evaluator: labeler.New(st, labeler.Config{}, rec).WithClock(env.clock),
		Stats:     analytics.New(st).WithClock(env.clock),
		Retention: retention.NewManager(st, retention.Config{MinInterval: time.Hour}, rec).WithClock(env.clock),
		Gatherer:  reg,
	})
	require.NoError(t, err)
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	env := newEnv(t)
	w := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/decisions", `{"predictor":"groq","action":"BUY","price":2000}`).Code)
	w = env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ethpulse_decisions_ingested_total")
}

func TestRouter_IngestValidation(t *testing.T) {
	env := newEnv(t)

	cases := []struct {
		name string
		path string
		body string
		code int
	}{
		{"decision ok", "/api/decisions", `{"predictor":"groq","action":"sell","price":2000}`, http.StatusCreated},
		{"bad action", "/api/decisions", `{"predictor":"groq","action":"SHORT","price":2000}`, http.StatusBadRequest},
		{"zero price", "/api/decisions", `{"predictor":"groq","action":"BUY","price":0}`, http.StatusBadRequest},
		{"malformed json", "/api/decisions", `{"predictor":`, http.StatusBadRequest},
		{"wallet ok", "/api/wallets/0xabc/decisions", `{"predictor":"groq","action":"HOLD","price":2000}`, http.StatusCreated},
		{"wallet global", "/api/wallets/global/decisions", `{"predictor":"groq","action":"HOLD","price":2000}`, http.StatusBadRequest},
		{"snapshot ok", "/api/snapshots", `{"price":2000,"volume_24h":1e9,"sentiment_value":70}`, http.StatusCreated},
		{"snapshot bad sentiment", "/api/snapshots", `{"price":2000,"sentiment_value":140}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}

	var decs struct {
		Decisions []types.Decision `json:"decisions"`
		Count     int              `json:"count"`
	}
	w := env.do(t, http.MethodGet, "/api/decisions?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &decs)
	assert.Equal(t, 2, decs.Count)

	var snaps struct {
		Snapshots []types.MarketSnapshot `json:"snapshots"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/snapshots", ""), &snaps)
	require.Len(t, snaps.Snapshots, 1)
	assert.Equal(t, types.SentimentBullish, snaps.Snapshots[0].Sentiment)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/decisions?limit=5000", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/decisions?limit=abc", "").Code)
}

func TestRouter_EvaluateAndStats(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	start := env.now.Add(-2 * time.Hour)

	_, err := env.store.AppendSnapshot(ctx, types.MarketSnapshot{Timestamp: start, Price: 2000})
	require.NoError(t, err)
	for _, d := range []types.NewDecision{
		{Timestamp: start, Predictor: "groq", Action: types.ActionBuy, Price: 2000},
		{Timestamp: start, Predictor: "groq", Action: types.ActionSell, Price: 2000},
		{Timestamp: start, Predictor: "mistral", Action: types.ActionBuy, Price: 2000, Context: "0xabc"},
	} {
		_, err := env.store.AppendDecision(ctx, d)
		require.NoError(t, err)
	}
	_, err = env.store.AppendSnapshot(ctx, types.MarketSnapshot{Timestamp: env.now, Price: 2100})
	require.NoError(t, err)

	// 先取一次统计，确认写入后缓存会失效
	var before analytics.AccuracyReport
	decode(t, env.do(t, http.MethodGet, "/api/stats/accuracy", ""), &before)

	var res labeler.Result
	w := env.do(t, http.MethodPost, "/api/evaluate", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &res)
	assert.Equal(t, 3, res.Evaluated)
	assert.Equal(t, 2, res.Correct)

	var report analytics.AccuracyReport
	decode(t, env.do(t, http.MethodGet, "/api/stats/accuracy?predictor=groq", ""), &report)
	require.Len(t, report.Predictors, 1)
	assert.Equal(t, 2, report.Predictors[0].EvaluatedDecisions)
	assert.Equal(t, 50.0, report.Predictors[0].Accuracy)

	var all analytics.AccuracyReport
	decode(t, env.do(t, http.MethodGet, "/api/stats/accuracy", ""), &all)
	require.Len(t, all.Predictors, 2)

	var cmp analytics.ModelComparison
	w = env.do(t, http.MethodGet, "/api/stats/comparison", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cmp)
	assert.Equal(t, 7, cmp.Days)
	require.Len(t, cmp.Models, 2)
	assert.Equal(t, "mistral", cmp.Models[0].Predictor)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/stats/comparison?days=400", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/stats/performance?timeframe=year", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/stats/performance?timeframe=week", "").Code)

	var wallet analytics.WalletStats
	w = env.do(t, http.MethodGet, "/api/wallets/0xabc/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &wallet)
	assert.Equal(t, 1, wallet.TotalDecisions)
	assert.Equal(t, 1, wallet.ProfitableActions)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/wallets/global/stats", "").Code)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/wallets/global/evaluate", "").Code)
}

func TestRouter_CleanupAndRollups(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	old := env.now.Add(-30 * time.Hour)
	_, err := env.store.AppendSnapshot(ctx, types.MarketSnapshot{Timestamp: old, Price: 1900})
	require.NoError(t, err)
	_, err = env.store.AppendDecision(ctx, types.NewDecision{Timestamp: env.now.Add(-time.Hour), Predictor: "groq", Action: types.ActionHold, Price: 2000})
	require.NoError(t, err)

	var rep retention.Report
	w := env.do(t, http.MethodPost, "/api/maintenance/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &rep)
	assert.Equal(t, "2026-06-01", rep.Date)
	assert.EqualValues(t, 1, rep.Purged.Snapshots)
	assert.Equal(t, 1, rep.RollupRows)

	var hist analytics.RollupHistory
	w = env.do(t, http.MethodGet, "/api/rollups?days=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &hist)
	require.Len(t, hist.Rows, 1)
	assert.Equal(t, "groq", hist.Rows[0].Predictor)
}

func TestWriteError_StatusMapping(t *testing.T) {
	cases := map[error]int{
		types.Validationf("x"):        http.StatusBadRequest,
		types.NotFoundf("x"):          http.StatusNotFound,
		types.Consistencyf("x"):       http.StatusConflict,
		errors.New("disk on fire"):    http.StatusInternalServerError,
		types.Degradedf("no gas fee"): http.StatusInternalServerError,
	}
	for err, code := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/api/x", nil)
		writeError(c, err)
		assert.Equal(t, code, w.Code, err.Error())
	}
}
