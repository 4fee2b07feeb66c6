package app

import (
	"fmt"
	"strings"

	"ethpulse/internal/config"
)

// StartupSummary 是启动时打印的一屏配置摘要。
type StartupSummary struct {
	Symbol       string
	PollInterval string
	AlignPoll    bool
	Predictors   []string
	Storage      string
	Evaluation   config.EvaluationConfig
	Retention    config.RetentionConfig
	HTTPAddr     string
}

func newStartupSummary(cfg *config.Config, predictors []string) *StartupSummary {
	return &StartupSummary{
		Symbol:       cfg.Market.Symbol,
		PollInterval: cfg.Market.PollInterval,
		AlignPoll:    cfg.Market.AlignPoll,
		Predictors:   predictors,
		Storage:      cfg.Storage.Path,
		Evaluation:   cfg.Evaluation,
		Retention:    cfg.Retention,
		HTTPAddr:     cfg.App.HTTPAddr,
	}
}

func (s *StartupSummary) String() string {
	var b strings.Builder
	line := strings.Repeat("=", 80)
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(&b, line)

	fmt.Fprintln(&b, "[行情采集 (MARKET)]")
	fmt.Fprintf(&b, "  交易对: %s\n", s.Symbol)
	fmt.Fprintf(&b, "  采集周期: %s (对齐=%v)\n", s.PollInterval, s.AlignPoll)
	fmt.Fprintf(&b, "  Predictors: %s\n", formatList(s.Predictors))
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[标注 (EVALUATION)]")
	fmt.Fprintf(&b, "  模式: %s  周期: %s  成熟时间: %ds  波动窗口: %d\n",
		s.Evaluation.Mode, s.Evaluation.Interval, s.Evaluation.MaturationSeconds, s.Evaluation.VolatilityWindow)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[存储与保留 (STORAGE & RETENTION)]")
	fmt.Fprintf(&b, "  数据库: %s\n", s.Storage)
	fmt.Fprintf(&b, "  原始数据保留: %dh  汇总保留: %dd  周期: %s\n",
		s.Retention.RawRetentionHours, s.Retention.RollupRetentionDays, s.Retention.Interval)
	fmt.Fprintf(&b, "  HTTP: %s\n", s.HTTPAddr)
	fmt.Fprint(&b, line)
	return b.String()
}

func (s *StartupSummary) Print() {
	fmt.Println(s.String())
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
