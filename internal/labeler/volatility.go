package labeler

import (
	"math"

	"ethpulse/internal/types"
)

// DefaultVolatilityWindow is the number of recent snapshots used for volatility.
const DefaultVolatilityWindow = 24

// Volatility returns the mean absolute step change in percent over snapshots ordered
// newest first. Pairs with a non-positive price are skipped. ok is false when no pair
// could be used, in which case the result is 0.
func Volatility(snaps []types.MarketSnapshot) (vol float64, ok bool) {
	var sum float64
	n := 0
	for i := 0; i+1 < len(snaps); i++ {
		cur, prev := snaps[i].Price, snaps[i+1].Price
		if prev <= 0 || cur <= 0 || math.IsNaN(cur) || math.IsNaN(prev) {
			continue
		}
		sum += math.Abs(cur-prev) / prev * 100
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
