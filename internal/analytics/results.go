package analytics

import "time"

type Distribution struct {
	Buy  int `json:"buy"`
	Sell int `json:"sell"`
	Hold int `json:"hold"`
}

// ProfitStats covers evaluated BUY/SELL decisions only.
type ProfitStats struct {
	Avg     float64 `json:"avg_profit"`
	Min     float64 `json:"max_loss"`
	Max     float64 `json:"max_profit"`
	Total   float64 `json:"total_profit"`
	Samples int     `json:"samples"`
}

// AccuracyStats 是单个预测者在某个范围内的准确率汇总。
type AccuracyStats struct {
	Predictor          string       `json:"predictor"`
	TotalDecisions     int          `json:"total_decisions"`
	EvaluatedDecisions int          `json:"evaluated_decisions"`
	CorrectDecisions   int          `json:"correct_decisions"`
	Accuracy           float64      `json:"accuracy"`
	WeightedAccuracy   float64      `json:"weighted_accuracy"`
	DiversityFactor    float64      `json:"diversity_factor"`
	// AdjustedAccuracy = round1(AdjustAccuracy(WeightedAccuracy, DiversityFactor)).
	AdjustedAccuracy   float64      `json:"adjusted_accuracy"`
	Profit             ProfitStats  `json:"profit"`
	Distribution       Distribution `json:"distribution"`
}

// AccuracyReport is the per-predictor view for one scope.
type AccuracyReport struct {
	Context     string          `json:"context,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
	Predictors  []AccuracyStats `json:"predictors"`
}

// ModelComparison ranks predictors over a trailing window, best adjusted accuracy first.
type ModelComparison struct {
	Days   int             `json:"days"`
	Since  time.Time       `json:"since"`
	Models []AccuracyStats `json:"models"`
}

type PeriodStats struct {
	Period      string  `json:"period"`
	Decisions   int     `json:"decisions"`
	Correct     int     `json:"correct"`
	Accuracy    float64 `json:"accuracy"`
	AvgProfit   float64 `json:"avg_profit"`
	TotalProfit float64 `json:"total_profit"`
}

// TimeframePerformance groups evaluated BUY/SELL decisions by predictor and calendar bucket.
// Periods are newest first.
type TimeframePerformance struct {
	Timeframe  Timeframe                `json:"timeframe"`
	Predictors map[string][]PeriodStats `json:"predictors"`
}

// WalletStats is the per-context view.
type WalletStats struct {
	Wallet             string          `json:"wallet"`
	TotalDecisions     int             `json:"total_decisions"`
	EvaluatedDecisions int             `json:"evaluated_decisions"`
	PendingDecisions   int             `json:"pending_decisions"`
	ProfitableActions  int             `json:"profitable_actions"`
	Distribution       Distribution    `json:"distribution"`
	Overall            AccuracyStats   `json:"overall"`
	Predictors         []AccuracyStats `json:"predictors"`
}

type RollupTotals struct {
	Total     int     `json:"total"`
	Correct   int     `json:"correct"`
	Incorrect int     `json:"incorrect"`
	Accuracy  float64 `json:"accuracy"`
}

// RollupHistory is the stored daily summaries for a trailing day window.
type RollupHistory struct {
	Days        int                     `json:"days"`
	Since       string                  `json:"since"`
	Rows        []RollupRow             `json:"rows"`
	ByPredictor map[string]RollupTotals `json:"by_predictor"`
}

type RollupRow struct {
	Date         string       `json:"date"`
	Predictor    string       `json:"predictor"`
	Total        int          `json:"total"`
	Correct      int          `json:"correct"`
	Incorrect    int          `json:"incorrect"`
	Distribution Distribution `json:"distribution"`
	AvgProfit    float64      `json:"avg_profit"`
}
