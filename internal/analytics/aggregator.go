package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"ethpulse/internal/types"

	"github.com/shopspring/decimal"
)

// Reader is the read side of the store used for statistics.
type Reader interface {
	ListDecisions(ctx context.Context, q types.DecisionQuery) ([]types.Decision, error)
	ListRollups(ctx context.Context, sinceDate string) ([]types.DailyRollup, error)
}

// Aggregator computes statistics at query time; nothing is pushed or cached here.
type Aggregator struct {
	reader Reader
	nowFn  func() time.Time
}

func New(r Reader) *Aggregator {
	return &Aggregator{reader: r, nowFn: time.Now}
}

func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	if now != nil {
		a.nowFn = now
	}
	return a
}

// Filter scopes AccuracyStats.
//
// An empty Context covers every decision. Context = "global" selects only unscoped
// decisions, any other value selects that context. ScopedOnly drops the global sentinel.
type Filter struct {
	Predictor  string
	Context    string
	ScopedOnly bool
	Since      time.Time
}

// Accuracy returns per-predictor accuracy for the filter, sorted by predictor name.
func (a *Aggregator) Accuracy(ctx context.Context, f Filter) (AccuracyReport, error) {
	ds, err := a.reader.ListDecisions(ctx, types.DecisionQuery{
		Predictor:     f.Predictor,
		Context:       strings.TrimSpace(f.Context),
		ExcludeGlobal: f.ScopedOnly,
		Since:         f.Since,
	})
	if err != nil {
		return AccuracyReport{}, fmt.Errorf("accuracy: %w", err)
	}
	now := a.nowFn()
	return AccuracyReport{
		Context:     strings.TrimSpace(f.Context),
		GeneratedAt: now,
		Predictors:  byPredictor(ds, now),
	}, nil
}

// ModelComparison covers decisions from the last days days.
func (a *Aggregator) ModelComparison(ctx context.Context, days int) (ModelComparison, error) {
	if days <= 0 {
		return ModelComparison{}, types.Validationf("days must be positive (got %d)", days)
	}
	now := a.nowFn()
	since := now.Add(-time.Duration(days) * 24 * time.Hour)
	ds, err := a.reader.ListDecisions(ctx, types.DecisionQuery{Since: since})
	if err != nil {
		return ModelComparison{}, fmt.Errorf("model comparison: %w", err)
	}
	models := byPredictor(ds, now)
	sort.SliceStable(models, func(i, j int) bool {
		if models[i].AdjustedAccuracy != models[j].AdjustedAccuracy {
			return models[i].AdjustedAccuracy > models[j].AdjustedAccuracy
		}
		return models[i].Predictor < models[j].Predictor
	})
	return ModelComparison{Days: days, Since: since, Models: models}, nil
}

// TimeframePerformance buckets evaluated BUY/SELL decisions by hour, day, ISO week or month (UTC).
func (a *Aggregator) TimeframePerformance(ctx context.Context, timeframe string) (TimeframePerformance, error) {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return TimeframePerformance{}, err
	}
	ds, err := a.reader.ListDecisions(ctx, types.DecisionQuery{EvaluatedOnly: true})
	if err != nil {
		return TimeframePerformance{}, fmt.Errorf("timeframe performance: %w", err)
	}
	type bucket struct {
		decisions, correct int
		profit             float64
	}
	groups := make(map[string]map[string]*bucket)
	for _, d := range ds {
		if !d.Evaluated() || !d.Action.Directional() {
			continue
		}
		key := tf.Key(d.Timestamp)
		periods, ok := groups[d.Predictor]
		if !ok {
			periods = make(map[string]*bucket)
			groups[d.Predictor] = periods
		}
		b, ok := periods[key]
		if !ok {
			b = &bucket{}
			periods[key] = b
		}
		b.decisions++
		if *d.Correct {
			b.correct++
		}
		if d.ProfitLoss != nil && !math.IsNaN(*d.ProfitLoss) {
			b.profit += *d.ProfitLoss
		}
	}
	out := TimeframePerformance{Timeframe: tf, Predictors: make(map[string][]PeriodStats, len(groups))}
	for predictor, periods := range groups {
		rows := make([]PeriodStats, 0, len(periods))
		for key, b := range periods {
			rows = append(rows, PeriodStats{
				Period:      key,
				Decisions:   b.decisions,
				Correct:     b.correct,
				Accuracy:    roundPct(float64(b.correct) / float64(b.decisions) * 100),
				AvgProfit:   roundProfit(b.profit / float64(b.decisions)),
				TotalProfit: roundProfit(b.profit),
			})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Period > rows[j].Period })
		out.Predictors[predictor] = rows
	}
	return out, nil
}

// WalletStats is the scoped view for one wallet/context. The global sentinel is rejected.
func (a *Aggregator) WalletStats(ctx context.Context, wallet string) (WalletStats, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" || wallet == types.GlobalContext {
		return WalletStats{}, types.Validationf("wallet context is required")
	}
	ds, err := a.reader.ListDecisions(ctx, types.DecisionQuery{Context: wallet})
	if err != nil {
		return WalletStats{}, fmt.Errorf("wallet stats: %w", err)
	}
	now := a.nowFn()
	out := WalletStats{Wallet: wallet, TotalDecisions: len(ds)}
	for _, d := range ds {
		if !d.Evaluated() {
			out.PendingDecisions++
			continue
		}
		out.EvaluatedDecisions++
		if d.ProfitLoss == nil {
			continue
		}
		if (d.Action == types.ActionBuy && *d.ProfitLoss > 0) || (d.Action == types.ActionSell && *d.ProfitLoss < 0) {
			out.ProfitableActions++
		}
	}
	overall := Compute(ds, now)
	out.Distribution = overall.Dist
	out.Overall = toStats("", overall)
	out.Predictors = byPredictor(ds, now)
	return out, nil
}

// RollupHistory returns the stored daily rows for the last days calendar days, today included.
func (a *Aggregator) RollupHistory(ctx context.Context, days int) (RollupHistory, error) {
	if days <= 0 {
		return RollupHistory{}, types.Validationf("days must be positive (got %d)", days)
	}
	since := a.nowFn().UTC().AddDate(0, 0, -(days - 1)).Format(types.RollupDateLayout)
	rows, err := a.reader.ListRollups(ctx, since)
	if err != nil {
		return RollupHistory{}, fmt.Errorf("rollup history: %w", err)
	}
	out := RollupHistory{
		Days:        days,
		Since:       since,
		Rows:        make([]RollupRow, 0, len(rows)),
		ByPredictor: make(map[string]RollupTotals),
	}
	for _, r := range rows {
		out.Rows = append(out.Rows, RollupRow{
			Date:         r.Date,
			Predictor:    r.Predictor,
			Total:        r.Total,
			Correct:      r.Correct,
			Incorrect:    r.Incorrect,
			Distribution: Distribution{Buy: r.Buy, Sell: r.Sell, Hold: r.Hold},
			AvgProfit:    roundProfit(r.AvgProfit),
		})
		t := out.ByPredictor[r.Predictor]
		t.Total += r.Total
		t.Correct += r.Correct
		t.Incorrect += r.Incorrect
		out.ByPredictor[r.Predictor] = t
	}
	for name, t := range out.ByPredictor {
		if judged := t.Correct + t.Incorrect; judged > 0 {
			t.Accuracy = roundPct(float64(t.Correct) / float64(judged) * 100)
		}
		out.ByPredictor[name] = t
	}
	return out, nil
}

func byPredictor(ds []types.Decision, now time.Time) []AccuracyStats {
	groups := make(map[string][]types.Decision)
	for _, d := range ds {
		groups[d.Predictor] = append(groups[d.Predictor], d)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]AccuracyStats, 0, len(names))
	for _, name := range names {
		out = append(out, toStats(name, Compute(groups[name], now)))
	}
	return out
}

// toStats rounds s for publishing. Adjusted is recomputed from the rounded weighted
// accuracy and diversity so clients can reproduce it from the published fields.
func toStats(predictor string, s Score) AccuracyStats {
	weighted := roundPct(s.Weighted)
	diversity := round(s.Diversity, 3)
	return AccuracyStats{
		Predictor:          predictor,
		TotalDecisions:     s.Total,
		EvaluatedDecisions: s.Directional,
		CorrectDecisions:   s.Correct,
		Accuracy:           roundPct(s.Raw),
		WeightedAccuracy:   weighted,
		DiversityFactor:    diversity,
		AdjustedAccuracy:   roundPct(AdjustAccuracy(weighted, diversity)),
		Profit: ProfitStats{
			Avg:     roundProfit(s.Profit.Avg),
			Min:     roundProfit(s.Profit.Min),
			Max:     roundProfit(s.Profit.Max),
			Total:   roundProfit(s.Profit.Total),
			Samples: s.Profit.Samples,
		},
		Distribution: s.Dist,
	}
}

func roundPct(v float64) float64    { return round(v, 1) }
func roundProfit(v float64) float64 { return round(v, 2) }

func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
