package labeler

import (
	"fmt"
	"math"
	"strings"
	"time"

	"ethpulse/internal/types"
)

// Policy 决定一次评估使用的阈值以及判定规则。
type Policy interface {
	Name() string
	// Threshold returns the hold band in percent for a decision of the given age.
	Threshold(age time.Duration, volatility float64) float64
	// Judge reports whether action was correct for a move of pct percent.
	Judge(action types.Action, pct, threshold float64) bool
}

const (
	ModeAdaptive = "adaptive"
	ModeStrict   = "strict"
)

// PolicyFor maps evaluation.mode onto a Policy. Empty selects adaptive.
func PolicyFor(mode string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeAdaptive:
		return AdaptivePolicy{}, nil
	case ModeStrict:
		return StrictPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown evaluation mode %q", mode)
	}
}

// AdaptivePolicy widens the hold band with decision age (0.5% + 0.1%/h, capped at 2%)
// and never lets it fall below 30% of recent volatility.
type AdaptivePolicy struct{}

const (
	adaptiveBase      = 0.5
	adaptivePerHour   = 0.1
	adaptiveCap       = 2.0
	volatilityFactor  = 0.3
	strictHoldPercent = 0.5
)

func (AdaptivePolicy) Name() string { return ModeAdaptive }

func (AdaptivePolicy) Threshold(age time.Duration, volatility float64) float64 {
	hours := math.Max(age.Hours(), 0)
	ageThreshold := math.Min(adaptiveBase+hours*adaptivePerHour, adaptiveCap)
	if math.IsNaN(volatility) || volatility < 0 {
		volatility = 0
	}
	return math.Max(ageThreshold, volatility*volatilityFactor)
}

func (AdaptivePolicy) Judge(action types.Action, pct, threshold float64) bool {
	switch action {
	case types.ActionBuy:
		return pct > threshold
	case types.ActionSell:
		return pct < -threshold
	case types.ActionHold:
		return math.Abs(pct) <= threshold
	default:
		return false
	}
}

// StrictPolicy is the fixed rule: any rise makes BUY right, any fall makes SELL right,
// HOLD needs the move to stay inside 0.5%.
type StrictPolicy struct{}

func (StrictPolicy) Name() string { return ModeStrict }

func (StrictPolicy) Threshold(time.Duration, float64) float64 { return strictHoldPercent }

func (StrictPolicy) Judge(action types.Action, pct, threshold float64) bool {
	switch action {
	case types.ActionBuy:
		return pct > 0
	case types.ActionSell:
		return pct < 0
	case types.ActionHold:
		return math.Abs(pct) < threshold
	default:
		return false
	}
}
