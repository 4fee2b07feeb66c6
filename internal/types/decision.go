package types

import (
	"strings"
	"time"
)

// GlobalContext is the sentinel context for decisions that are not scoped to a wallet.
const GlobalContext = "global"

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Actions lists the allowed actions in distribution order.
var Actions = []Action{ActionBuy, ActionSell, ActionHold}

// ParseAction normalizes raw input into an Action.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(raw)))
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return a, nil
	default:
		return "", Validationf("action must be one of BUY, SELL, HOLD (got %q)", raw)
	}
}

func (a Action) Directional() bool {
	return a == ActionBuy || a == ActionSell
}

type EvalState string

const (
	EvalPending   EvalState = "pending"
	EvalEvaluated EvalState = "evaluated"
)

// Decision 是预测者给出的一次 BUY/SELL/HOLD 判断。
// Correct/ProfitLoss 仅在 State=evaluated 后有值，且之后不可变。
type Decision struct {
	ID          int64      `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Predictor   string     `json:"predictor"`
	Action      Action     `json:"action"`
	Price       float64    `json:"price"`
	Context     string     `json:"context"`
	Correct     *bool      `json:"correct,omitempty"`
	ProfitLoss  *float64   `json:"profit_loss,omitempty"`
	State       EvalState  `json:"state"`
	EvaluatedAt *time.Time `json:"evaluated_at,omitempty"`
}

func (d Decision) Evaluated() bool {
	return d.State == EvalEvaluated && d.Correct != nil
}

// Scoped reports whether the decision belongs to a concrete context.
func (d Decision) Scoped() bool {
	return d.Context != "" && d.Context != GlobalContext
}

// NormalizeContext maps empty input onto the global sentinel.
func NormalizeContext(ctx string) string {
	ctx = strings.TrimSpace(ctx)
	if ctx == "" {
		return GlobalContext
	}
	return ctx
}

// NewDecision carries a decision before it has an id.
type NewDecision struct {
	Timestamp time.Time
	Predictor string
	Action    Action
	Price     float64
	Context   string
}

// PendingFilter selects pending decisions for evaluation.
type PendingFilter struct {
	// Context restricts to one context when non-empty.
	Context string
	// ScopedOnly keeps every context except the global sentinel. Ignored when Context is set.
	ScopedOnly bool
	// MaturedBefore drops decisions newer than this instant (zero = no cutoff).
	MaturedBefore time.Time
	Limit         int
}

// DecisionQuery is the read filter used by analytics and rollups.
type DecisionQuery struct {
	Predictor     string
	Context       string
	ExcludeGlobal bool
	EvaluatedOnly bool
	Since         time.Time
	Until         time.Time
}

// DailyRollup 是每日每个预测者的汇总行，(Date, Predictor) 唯一。
type DailyRollup struct {
	Date      string    `json:"date"`
	Predictor string    `json:"predictor"`
	Total     int       `json:"total"`
	Correct   int       `json:"correct"`
	Incorrect int       `json:"incorrect"`
	Buy       int       `json:"buy"`
	Sell      int       `json:"sell"`
	Hold      int       `json:"hold"`
	AvgProfit float64   `json:"avg_profit"`
	// ProfitSamples is the number of evaluated BUY/SELL decisions behind AvgProfit.
	ProfitSamples int       `json:"profit_samples"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Merge adds o's counts to r; AvgProfit is re-weighted by ProfitSamples.
func (r DailyRollup) Merge(o DailyRollup) DailyRollup {
	samples := r.ProfitSamples + o.ProfitSamples
	if samples > 0 {
		r.AvgProfit = (r.AvgProfit*float64(r.ProfitSamples) + o.AvgProfit*float64(o.ProfitSamples)) / float64(samples)
	}
	r.ProfitSamples = samples
	r.Total += o.Total
	r.Correct += o.Correct
	r.Incorrect += o.Incorrect
	r.Buy += o.Buy
	r.Sell += o.Sell
	r.Hold += o.Hold
	return r
}

// RollupFunc summarises decisions per predictor. Date is set by the caller.
type RollupFunc func(ds []Decision) []DailyRollup

// RollupResult reports one rollup-and-purge transaction.
type RollupResult struct {
	// Rows is the number of rollup rows written for the pass date.
	Rows int `json:"rows"`
	// Backfilled counts purged decisions that no earlier pass had summarised; they are
	// folded into the row of their own UTC date before the delete.
	Backfilled int         `json:"backfilled"`
	Purged     PurgeResult `json:"purged"`
}

// RollupDateLayout is the calendar key for DailyRollup rows (UTC).
const RollupDateLayout = "2006-01-02"

// PurgeResult counts rows removed by a retention pass.
type PurgeResult struct {
	Snapshots int64 `json:"snapshots"`
	Decisions int64 `json:"decisions"`
}
