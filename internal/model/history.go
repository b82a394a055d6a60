package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultChartPeriod is the window used when a caller does not pick one
const DefaultChartPeriod = 7

// ChartPeriods lists the display periods, in days, a History can be sliced to
var ChartPeriods = []int{7, 30, 90, 180, 365}

// IsChartPeriod reports whether days is one of ChartPeriods
func IsChartPeriod(days int) bool {
	for _, p := range ChartPeriods {
		if p == days {
			return true
		}
	}
	return false
}

// RawPoint is one upstream [epoch_ms, value] pair, kept as JSON number text
type RawPoint []json.Number

// RawHistory is the wire shape of GET /coins/{id}/market_chart
type RawHistory struct {
	Prices       []RawPoint `json:"prices"`
	MarketCaps   []RawPoint `json:"market_caps"`
	TotalVolumes []RawPoint `json:"total_volumes"`
}

// TimeSeriesPoint is a single dated value of a History series.
// ID only identifies the point in display lists; it plays no part in ordering.
type TimeSeriesPoint struct {
	ID        uuid.UUID       `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}

// History holds the three market chart series of a coin, each oldest-first
type History struct {
	Prices       []TimeSeriesPoint `json:"prices"`
	MarketCaps   []TimeSeriesPoint `json:"market_caps"`
	TotalVolumes []TimeSeriesPoint `json:"total_volumes"`
}

// Window returns a new History restricted to the last days of every series.
// The cut-off is measured from the newest point of each series independently.
func (h *History) Window(days int) *History {
	if h == nil {
		return nil
	}
	span := time.Duration(days) * 24 * time.Hour
	return &History{
		Prices:       windowSeries(h.Prices, span),
		MarketCaps:   windowSeries(h.MarketCaps, span),
		TotalVolumes: windowSeries(h.TotalVolumes, span),
	}
}

func windowSeries(points []TimeSeriesPoint, span time.Duration) []TimeSeriesPoint {
	if len(points) == 0 || span <= 0 {
		return []TimeSeriesPoint{}
	}
	cutoff := points[len(points)-1].Timestamp.Add(-span)

	start := len(points)
	for start > 0 && points[start-1].Timestamp.After(cutoff) {
		start--
	}

	out := make([]TimeSeriesPoint, len(points)-start)
	copy(out, points[start:])
	return out
}
