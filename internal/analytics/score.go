package analytics

import (
	"math"
	"time"

	"ethpulse/internal/types"
)

// Score holds the unrounded metrics for one group of decisions.
type Score struct {
	Total       int
	Directional int
	Correct     int
	Raw         float64
	Weighted    float64
	Diversity   float64
	Adjusted    float64
	Profit      ProfitStats
	Dist        Distribution
}

// Compute scores ds as of now.
//
// Accuracy and profit only look at evaluated BUY/SELL decisions. The distribution and the
// diversity factor use every decision in ds, HOLD and pending ones included.
func Compute(ds []types.Decision, now time.Time) Score {
	var s Score
	var weightSum, weightedCorrect float64
	var profitSum float64
	for _, d := range ds {
		s.Total++
		s.Dist.add(d.Action)
		if !d.Evaluated() || !d.Action.Directional() {
			continue
		}
		s.Directional++
		w := AgeWeight(now.Sub(d.Timestamp))
		weightSum += w
		if *d.Correct {
			s.Correct++
			weightedCorrect += w
		}
		if d.ProfitLoss == nil || math.IsNaN(*d.ProfitLoss) {
			continue
		}
		pl := *d.ProfitLoss
		if s.Profit.Samples == 0 || pl < s.Profit.Min {
			s.Profit.Min = pl
		}
		if s.Profit.Samples == 0 || pl > s.Profit.Max {
			s.Profit.Max = pl
		}
		s.Profit.Samples++
		profitSum += pl
	}
	if s.Directional > 0 {
		s.Raw = float64(s.Correct) / float64(s.Directional) * 100
	}
	if weightSum > 0 {
		s.Weighted = weightedCorrect / weightSum * 100
	}
	if s.Profit.Samples > 0 {
		s.Profit.Avg = profitSum / float64(s.Profit.Samples)
		s.Profit.Total = profitSum
	}
	s.Diversity = s.Dist.Entropy()
	s.Adjusted = AdjustAccuracy(s.Weighted, s.Diversity)
	return s
}

// AgeWeight is 1/ln(age_h+2); negative ages count as 0.
func AgeWeight(age time.Duration) float64 {
	h := math.Max(age.Hours(), 0)
	return 1 / math.Log(h+2)
}

// AdjustAccuracy discounts weighted accuracy by up to half for a single-action predictor.
func AdjustAccuracy(weighted, diversity float64) float64 {
	v := weighted * (0.5 + 0.5*diversity)
	return math.Min(math.Max(v, 0), 100)
}

var ln3 = math.Log(3)

// Entropy is the base-3 Shannon entropy of the BUY/SELL/HOLD mix, in [0,1].
func (d Distribution) Entropy() float64 {
	total := d.Buy + d.Sell + d.Hold
	if total == 0 {
		return 0
	}
	var h float64
	for _, n := range []int{d.Buy, d.Sell, d.Hold} {
		if n == 0 {
			continue
		}
		p := float64(n) / float64(total)
		h -= p * math.Log(p) / ln3
	}
	return math.Min(math.Max(h, 0), 1)
}

func (d *Distribution) add(a types.Action) {
	switch a {
	case types.ActionBuy:
		d.Buy++
	case types.ActionSell:
		d.Sell++
	case types.ActionHold:
		d.Hold++
	}
}
