package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/yourorg/coinscope/internal/model"
)

// ContentType of the documents written by WriteHistoryCSV
const ContentType = "text/csv; charset=utf-8"

var header = []string{"coin_id", "series", "timestamp", "value"}

// WriteHistoryCSV writes every point of history as one row, series by series,
// each in the oldest-first order the History holds them.
func WriteHistoryCSV(w io.Writer, coin model.Coin, history *model.History) error {
	if history == nil {
		return fmt.Errorf("no history to export for %s", coin.ID)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	series := []struct {
		name   string
		points []model.TimeSeriesPoint
	}{
		{"prices", history.Prices},
		{"market_caps", history.MarketCaps},
		{"total_volumes", history.TotalVolumes},
	}

	for _, s := range series {
		for _, p := range s.points {
			record := []string{
				coin.ID,
				s.name,
				p.Timestamp.UTC().Format(time.RFC3339Nano),
				p.Value.String(),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// ObjectKey names an export of coin's last days, taken at at
func ObjectKey(coin model.Coin, days int, at time.Time) string {
	id := url.PathEscape(coin.ID)
	return fmt.Sprintf("%s/%s-%dd-%s.csv", id, id, days, at.UTC().Format("20060102T150405Z"))
}
