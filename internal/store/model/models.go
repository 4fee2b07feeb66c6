package model

import (
	"gorm.io/datatypes"
)

// 时间字段统一以 Unix 毫秒存储，排序与区间查询都走整数索引。

type SnapshotModel struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement"`
	TimestampMs    int64          `gorm:"column:ts_ms;not null;index:idx_snapshots_ts"`
	Price          float64        `gorm:"column:price;not null"`
	Volume24h      float64        `gorm:"column:volume_24h"`
	High24h        *float64       `gorm:"column:high_24h"`
	Low24h         *float64       `gorm:"column:low_24h"`
	FeeTiers       datatypes.JSON `gorm:"column:fee_tiers;type:TEXT"`
	SentimentValue *int           `gorm:"column:sentiment_value"`
	SentimentLabel string         `gorm:"column:sentiment_label"`
	CreatedAtMs    int64          `gorm:"column:created_at"`
}

func (SnapshotModel) TableName() string { return "market_snapshots" }

type DecisionModel struct {
	ID            int64    `gorm:"column:id;primaryKey;autoIncrement"`
	TimestampMs   int64    `gorm:"column:ts_ms;not null;index:idx_decisions_ts;index:idx_decisions_state_ts,priority:2"`
	Predictor     string   `gorm:"column:predictor;not null;index:idx_decisions_predictor"`
	Action        string   `gorm:"column:action;not null"`
	Price         float64  `gorm:"column:price;not null"`
	Context       string   `gorm:"column:context;not null;index:idx_decisions_context"`
	State         string   `gorm:"column:state;not null;index:idx_decisions_state_ts,priority:1"`
	Correct       *bool    `gorm:"column:correct"`
	ProfitLoss    *float64 `gorm:"column:profit_loss"`
	EvaluatedAtMs *int64   `gorm:"column:evaluated_at"`
	// RollupDate 是最近一次把该行计入窗口汇总的日期，空串表示尚未被任何汇总覆盖。
	RollupDate  string `gorm:"column:rollup_date;not null;default:''"`
	CreatedAtMs int64  `gorm:"column:created_at"`
}

func (DecisionModel) TableName() string { return "decisions" }

const (
	RollupOriginWindow   = "window"
	RollupOriginBackfill = "backfill"
)

// DailyRollupModel 按 (date, predictor, origin) 唯一。window 行每次汇总整体替换；
// backfill 行只累加被清理前从未进入任何窗口的决策。
type DailyRollupModel struct {
	ID            int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Date          string  `gorm:"column:date;not null;uniqueIndex:idx_rollup_day_origin,priority:1"`
	Predictor     string  `gorm:"column:predictor;not null;uniqueIndex:idx_rollup_day_origin,priority:2"`
	Origin        string  `gorm:"column:origin;not null;default:'window';uniqueIndex:idx_rollup_day_origin,priority:3"`
	Total         int     `gorm:"column:total"`
	Correct       int     `gorm:"column:correct"`
	Incorrect     int     `gorm:"column:incorrect"`
	Buy           int     `gorm:"column:buy_count"`
	Sell          int     `gorm:"column:sell_count"`
	Hold          int     `gorm:"column:hold_count"`
	AvgProfit     float64 `gorm:"column:avg_profit"`
	ProfitSamples int     `gorm:"column:profit_samples"`
	UpdatedAtMs   int64   `gorm:"column:updated_at"`
}

func (DailyRollupModel) TableName() string { return "daily_rollups" }

// MaintenanceModel 记录各类维护任务（如 VACUUM）的最近执行时间。
type MaintenanceModel struct {
	Key         string `gorm:"column:task;primaryKey"`
	LastRunAtMs int64  `gorm:"column:last_run_at"`
}

func (MaintenanceModel) TableName() string { return "maintenance_state" }
