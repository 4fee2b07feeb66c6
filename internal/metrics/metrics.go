package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder 汇总采集、评估与留存任务的 Prometheus 指标。
// nil *Recorder 可以安全调用，所有方法都是空操作。
type Recorder struct {
	decisionsIngested *prometheus.CounterVec
	evaluations       *prometheus.CounterVec
	conflicts         prometheus.Counter
	degraded          *prometheus.CounterVec
	cycleDuration     *prometheus.HistogramVec
	rollupRows        prometheus.Counter
	purgedRows        *prometheus.CounterVec
	lastPrice         *prometheus.GaugeVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		decisionsIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethpulse_decisions_ingested_total",
				Help: "Decisions accepted by the store",
			},
			[]string{"predictor", "action"},
		),
		evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethpulse_evaluations_total",
				Help: "Decisions labeled by the evaluator",
			},
			[]string{"predictor", "verdict"},
		),
		conflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "ethpulse_evaluation_conflicts_total",
			Help: "Evaluations rejected because the decision was already evaluated",
		}),
		degraded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethpulse_degraded_data_total",
				Help: "Inputs resolved to a neutral value",
			},
			[]string{"kind"},
		),
		cycleDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ethpulse_cycle_duration_seconds",
				Help:    "Duration of background cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		rollupRows: f.NewCounter(prometheus.CounterOpts{
			Name: "ethpulse_rollup_rows_written_total",
			Help: "Daily rollup rows written",
		}),
		purgedRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethpulse_rows_purged_total",
				Help: "Raw rows removed by retention",
			},
			[]string{"table"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ethpulse_last_price",
				Help: "Last observed price for a symbol",
			},
			[]string{"symbol"},
		),
	}
}

func (r *Recorder) RecordDecision(predictor, action string) {
	if r == nil {
		return
	}
	r.decisionsIngested.WithLabelValues(predictor, action).Inc()
}

func (r *Recorder) RecordEvaluation(predictor string, correct bool) {
	if r == nil {
		return
	}
	verdict := "incorrect"
	if correct {
		verdict = "correct"
	}
	r.evaluations.WithLabelValues(predictor, verdict).Inc()
}

func (r *Recorder) RecordConflict() {
	if r == nil {
		return
	}
	r.conflicts.Inc()
}

// RecordDegraded counts a degraded input, e.g. "zero_price", "volatility", "sentiment".
func (r *Recorder) RecordDegraded(kind string) {
	if r == nil {
		return
	}
	r.degraded.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordCycle(job string, seconds float64) {
	if r == nil {
		return
	}
	r.cycleDuration.WithLabelValues(job).Observe(seconds)
}

func (r *Recorder) RecordRollupRows(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.rollupRows.Add(float64(n))
}

func (r *Recorder) RecordPurged(snapshots, decisions int64) {
	if r == nil {
		return
	}
	r.purgedRows.WithLabelValues("snapshots").Add(float64(snapshots))
	r.purgedRows.WithLabelValues("decisions").Add(float64(decisions))
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	if r == nil {
		return
	}
	r.lastPrice.WithLabelValues(symbol).Set(price)
}
