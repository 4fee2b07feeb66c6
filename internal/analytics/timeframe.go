package analytics

import (
	"fmt"
	"strings"
	"time"

	"ethpulse/internal/types"
)

type Timeframe string

const (
	TimeframeHour  Timeframe = "hour"
	TimeframeDay   Timeframe = "day"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
)

func ParseTimeframe(raw string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(raw)))
	switch tf {
	case TimeframeHour, TimeframeDay, TimeframeWeek, TimeframeMonth:
		return tf, nil
	case "":
		return TimeframeDay, nil
	default:
		return "", types.Validationf("invalid timeframe %q, choose from hour, day, week, month", raw)
	}
}

// Key returns the bucket label of ts in UTC.
func (tf Timeframe) Key(ts time.Time) string {
	ts = ts.UTC()
	switch tf {
	case TimeframeHour:
		return ts.Format("2006-01-02 15")
	case TimeframeWeek:
		year, week := ts.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case TimeframeMonth:
		return ts.Format("2006-01")
	default:
		return ts.Format(types.RollupDateLayout)
	}
}
