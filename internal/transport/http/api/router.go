package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ethpulse/internal/analytics"
	"ethpulse/internal/collector"
	"ethpulse/internal/ingest"
	"ethpulse/internal/labeler"
	"ethpulse/internal/logger"
	"ethpulse/internal/retention"
	"ethpulse/internal/types"

	"github.com/gin-gonic/gin"
)

type Reader interface {
	RecentSnapshots(ctx context.Context, n int) ([]types.MarketSnapshot, error)
	RecentDecisions(ctx context.Context, n int) ([]types.Decision, error)
}

type Ingestor interface {
	RecordSnapshot(ctx context.Context, in ingest.MarketInput) (int64, error)
	RecordDecision(ctx context.Context, in ingest.DecisionInput) (int64, error)
	RecordWalletDecision(ctx context.Context, wallet string, in ingest.DecisionInput) (int64, error)
	ParseQuery(ctx context.Context, q any) error
}

type Evaluator interface {
	Evaluate(ctx context.Context, opts labeler.Options) (labeler.Result, error)
}

type Stats interface {
	Accuracy(ctx context.Context, f analytics.Filter) (analytics.AccuracyReport, error)
	ModelComparison(ctx context.Context, days int) (analytics.ModelComparison, error)
	TimeframePerformance(ctx context.Context, timeframe string) (analytics.TimeframePerformance, error)
	WalletStats(ctx context.Context, wallet string) (analytics.WalletStats, error)
	RollupHistory(ctx context.Context, days int) (analytics.RollupHistory, error)
}

type Maintainer interface {
	Run(ctx context.Context) (retention.Report, error)
	MaybeRun(ctx context.Context) (retention.Report, bool, error)
}

type CycleSource interface {
	LastCycle() (collector.CycleReport, bool)
	Predictors() []string
}

// Router 暴露 /api 下的全部接口。
type Router struct {
	reader    Reader
	ingest    Ingestor
	evaluator Evaluator
	stats     Stats
	retention Maintainer
	collector CycleSource
	cache     *statsCache
	maxAge    time.Duration
}

func NewRouter(cfg ServerConfig) *Router {
	return &Router{
		reader:    cfg.Reader,
		ingest:    cfg.Ingest,
		evaluator: cfg.Evaluator,
		stats:     cfg.Stats,
		retention: cfg.Retention,
		collector: cfg.Collector,
		cache:     newStatsCache(cfg.StatsCacheEntries),
		maxAge:    cfg.StatsMaxAge,
	}
}

// Register 将路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	group.GET("/status", r.handleStatus)
	group.GET("/snapshots", r.handleListSnapshots)
	group.POST("/snapshots", r.handleRecordSnapshot)
	group.GET("/decisions", r.handleListDecisions)
	group.POST("/decisions", r.handleRecordDecision)
	group.POST("/wallets/:wallet/decisions", r.handleRecordWalletDecision)
	group.GET("/wallets/:wallet/stats", r.handleWalletStats)
	group.POST("/wallets/:wallet/evaluate", r.handleEvaluateWallet)

	stats := group.Group("/stats", r.opportunisticRetention)
	stats.GET("/accuracy", r.handleAccuracy)
	stats.GET("/comparison", r.handleComparison)
	stats.GET("/performance", r.handlePerformance)
	group.GET("/rollups", r.opportunisticRetention, r.handleRollups)

	group.POST("/evaluate", r.handleEvaluate)
	group.POST("/maintenance/cleanup", r.handleCleanup)
}

// writeError maps domain errors onto status codes; anything unclassified is a 500.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrConsistency):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("[api] %s %s failed ip=%s err=%v", c.Request.Method, c.FullPath(), c.ClientIP(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// opportunisticRetention 在统计接口前顺带跑一次清理（受最小间隔限制），失败不影响查询。
func (r *Router) opportunisticRetention(c *gin.Context) {
	if r.retention != nil {
		rep, ran, err := r.retention.MaybeRun(c.Request.Context())
		switch {
		case err != nil:
			logger.Warnf("[api] opportunistic retention failed: %v", err)
		case ran:
			logger.Debugf("[api] opportunistic retention rollups=%d purged=%d/%d",
				rep.RollupRows, rep.Purged.Snapshots, rep.Purged.Decisions)
			r.cache.invalidate()
		}
	}
	c.Next()
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := gin.H{"time": time.Now().UTC()}
	if r.collector != nil {
		resp["predictors"] = r.collector.Predictors()
		if last, ok := r.collector.LastCycle(); ok {
			resp["last_cycle"] = last
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) bindList(c *gin.Context) (ingest.ListQuery, bool) {
	var q ingest.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return q, false
	}
	if err := r.ingest.ParseQuery(c.Request.Context(), &q); err != nil {
		writeError(c, err)
		return q, false
	}
	return q, true
}

func (r *Router) bindDays(c *gin.Context) (ingest.DaysQuery, bool) {
	var q ingest.DaysQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return q, false
	}
	if err := r.ingest.ParseQuery(c.Request.Context(), &q); err != nil {
		writeError(c, err)
		return q, false
	}
	return q, true
}

func (r *Router) handleListSnapshots(c *gin.Context) {
	q, ok := r.bindList(c)
	if !ok {
		return
	}
	snaps, err := r.reader.RecentSnapshots(c.Request.Context(), q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps, "count": len(snaps)})
}

func (r *Router) handleListDecisions(c *gin.Context) {
	q, ok := r.bindList(c)
	if !ok {
		return
	}
	decs, err := r.reader.RecentDecisions(c.Request.Context(), q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decs, "count": len(decs)})
}

func (r *Router) handleRecordSnapshot(c *gin.Context) {
	var in ingest.MarketInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	id, err := r.ingest.RecordSnapshot(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (r *Router) handleRecordDecision(c *gin.Context) {
	var in ingest.DecisionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	id, err := r.ingest.RecordDecision(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	r.cache.invalidate()
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (r *Router) handleRecordWalletDecision(c *gin.Context) {
	var in ingest.DecisionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	id, err := r.ingest.RecordWalletDecision(c.Request.Context(), c.Param("wallet"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	r.cache.invalidate()
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (r *Router) handleAccuracy(c *gin.Context) {
	f := analytics.Filter{
		Predictor:  strings.TrimSpace(c.Query("predictor")),
		Context:    strings.TrimSpace(c.Query("context")),
		ScopedOnly: parseBool(c.Query("scoped")),
	}
	r.serveCached(c, "accuracy|"+f.Predictor+"|"+f.Context+"|"+strconv.FormatBool(f.ScopedOnly), func(ctx context.Context) (any, error) {
		return r.stats.Accuracy(ctx, f)
	})
}

func (r *Router) handleComparison(c *gin.Context) {
	q, ok := r.bindDays(c)
	if !ok {
		return
	}
	r.serveCached(c, "comparison|"+strconv.Itoa(q.Days), func(ctx context.Context) (any, error) {
		return r.stats.ModelComparison(ctx, q.Days)
	})
}

func (r *Router) handlePerformance(c *gin.Context) {
	tf := strings.ToLower(strings.TrimSpace(c.DefaultQuery("timeframe", "day")))
	if _, err := analytics.ParseTimeframe(tf); err != nil {
		writeError(c, err)
		return
	}
	r.serveCached(c, "performance|"+tf, func(ctx context.Context) (any, error) {
		return r.stats.TimeframePerformance(ctx, tf)
	})
}

func (r *Router) handleWalletStats(c *gin.Context) {
	wallet := strings.TrimSpace(c.Param("wallet"))
	r.serveCached(c, "wallet|"+wallet, func(ctx context.Context) (any, error) {
		return r.stats.WalletStats(ctx, wallet)
	})
}

func (r *Router) handleRollups(c *gin.Context) {
	q, ok := r.bindDays(c)
	if !ok {
		return
	}
	r.serveCached(c, "rollups|"+strconv.Itoa(q.Days), func(ctx context.Context) (any, error) {
		return r.stats.RollupHistory(ctx, q.Days)
	})
}

func (r *Router) handleEvaluate(c *gin.Context) {
	r.evaluate(c, labeler.Options{
		Context:    strings.TrimSpace(c.Query("context")),
		ScopedOnly: parseBool(c.Query("scoped")),
	})
}

func (r *Router) handleEvaluateWallet(c *gin.Context) {
	wallet := strings.TrimSpace(c.Param("wallet"))
	if wallet == "" || wallet == types.GlobalContext {
		writeError(c, types.Validationf("wallet context is required"))
		return
	}
	r.evaluate(c, labeler.Options{Context: wallet})
}

func (r *Router) evaluate(c *gin.Context, opts labeler.Options) {
	if r.evaluator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "evaluation is not enabled"})
		return
	}
	res, err := r.evaluator.Evaluate(c.Request.Context(), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Evaluated > 0 {
		r.cache.invalidate()
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) handleCleanup(c *gin.Context) {
	if r.retention == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "retention is not enabled"})
		return
	}
	rep, err := r.retention.Run(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	r.cache.invalidate()
	c.JSON(http.StatusOK, rep)
}

func (r *Router) serveCached(c *gin.Context, key string, load func(ctx context.Context) (any, error)) {
	out, err := r.cache.get(key, load).GetOrRefresh(c.Request.Context(), r.maxAge)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
