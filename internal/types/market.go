package types

import "time"

// FeeTiers 是一次采集时的网络费档位（gwei）。
type FeeTiers struct {
	Low      float64 `json:"low"`
	Standard float64 `json:"standard"`
	Fast     float64 `json:"fast"`
}

type SentimentLabel string

const (
	SentimentBullish     SentimentLabel = "bullish"
	SentimentBearish     SentimentLabel = "bearish"
	SentimentNeutral     SentimentLabel = "neutral"
	SentimentUnavailable SentimentLabel = "unavailable"
)

// SentimentFromValue maps a 0-100 fear & greed reading onto a label.
func SentimentFromValue(v int) SentimentLabel {
	switch {
	case v > 50:
		return SentimentBullish
	case v < 50:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

// MarketSnapshot 是一次轮询得到的市场观测，写入后不可修改。
// 可选字段为 nil 表示上游明确标记为不可用，而不是被填充的估算值。
type MarketSnapshot struct {
	ID             int64          `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Price          float64        `json:"price"`
	Volume24h      float64        `json:"volume_24h"`
	High24h        *float64       `json:"high_24h,omitempty"`
	Low24h         *float64       `json:"low_24h,omitempty"`
	Fees           *FeeTiers      `json:"fee_tiers,omitempty"`
	SentimentValue *int           `json:"sentiment_value,omitempty"`
	Sentiment      SentimentLabel `json:"sentiment_label"`
}
