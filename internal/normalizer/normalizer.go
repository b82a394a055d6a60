// Package normalizer turns raw market chart pairs into ordered domain points.
package normalizer

import (
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/yourorg/coinscope/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// 0001-01-01T00:00:00Z and 9999-12-31T23:59:59.999Z in epoch milliseconds
	minEpochMillis = -62135596800000
	maxEpochMillis = 253402300799999
)

// Normalize converts upstream [epoch_ms, value] pairs, newest first, into
// points ordered oldest first. A single bad pair fails the whole series.
func Normalize(raw []model.RawPoint) ([]model.TimeSeriesPoint, error) {
	points := make([]model.TimeSeriesPoint, len(raw))

	for i, pair := range raw {
		point, err := toPoint(pair)
		if err != nil {
			return nil, err
		}
		points[len(raw)-1-i] = point
	}

	// Reversal alone is enough for well-behaved upstream data
	if !sort.SliceIsSorted(points, func(a, b int) bool {
		return points[a].Timestamp.Before(points[b].Timestamp)
	}) {
		sort.SliceStable(points, func(a, b int) bool {
			return points[a].Timestamp.Before(points[b].Timestamp)
		})
	}

	return points, nil
}

func toPoint(pair model.RawPoint) (model.TimeSeriesPoint, error) {
	if len(pair) != 2 {
		return model.TimeSeriesPoint{}, &model.MalformedPointError{
			Raw:    pair,
			Reason: "expected exactly two elements",
		}
	}

	ts, err := parseTimestamp(pair[0])
	if err != nil {
		return model.TimeSeriesPoint{}, err
	}

	value, err := decimal.NewFromString(pair[1].String())
	if err != nil {
		return model.TimeSeriesPoint{}, &model.MalformedPointError{
			Raw:    pair,
			Reason: "value is not a decimal number",
		}
	}

	return model.TimeSeriesPoint{
		ID:        uuid.New(),
		Timestamp: ts,
		Value:     value,
	}, nil
}

func parseTimestamp(n json.Number) (time.Time, error) {
	text := n.String()

	if ms, err := strconv.ParseInt(text, 10, 64); err == nil {
		if ms < minEpochMillis || ms > maxEpochMillis {
			return time.Time{}, &model.InvalidTimestampError{Value: text, Err: errOutOfRange}
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return time.Time{}, &model.InvalidTimestampError{Value: text, Err: err}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, &model.InvalidTimestampError{Value: text, Err: errNotFinite}
	}
	if f < minEpochMillis || f > maxEpochMillis {
		return time.Time{}, &model.InvalidTimestampError{Value: text, Err: errOutOfRange}
	}

	return time.UnixMilli(int64(f)).UTC(), nil
}

var (
	errNotFinite  = errors.New("timestamp is not finite")
	errOutOfRange = errors.New("timestamp out of range")
)
