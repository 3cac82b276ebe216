package bars

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"RegimeCast/internal/dbn"
	"RegimeCast/internal/domain/models"
	xutil "RegimeCast/pkg/util"
)

// Label classifies the close-to-close move of cur against prev. A flat close
// counts as up, matching the non-strict comparison used when bars are
// generated from ticks.
func Label(prev, cur models.Bar) string {
	if cur.Close >= prev.Close {
		return dbn.LabelUp
	}
	return dbn.LabelDown
}

// Observations converts a bar series into direction evidence for node. The
// first bar only seeds the baseline close and produces no record.
func Observations(node string, series []models.Bar) []models.ObservationRecord {
	if len(series) < 2 {
		return nil
	}
	out := make([]models.ObservationRecord, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		out = append(out, models.ObservationRecord{
			Symbol:    series[i].Symbol,
			Timestamp: series[i].Start,
			Values:    map[string]string{node: Label(series[i-1], series[i])},
		})
	}
	return out
}

// LoadCSV reads OHLCV bars from a CSV file with columns
// timestamp,open,high,low,close,volume. The timestamp is RFC3339 or unix
// seconds. A header row is detected and skipped. Rows must be in
// non-decreasing time order.
func LoadCSV(path, symbol string) ([]models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6
	r.TrimLeadingSpace = true

	var (
		out  []models.Bar
		last time.Time
		row  int
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read bars file: %w", err)
		}
		row++
		ts, ok := xutil.ParseTime(rec[0])
		if !ok {
			if row == 1 {
				// header
				continue
			}
			return nil, fmt.Errorf("row %d: bad timestamp %q", row, rec[0])
		}
		if !last.IsZero() && ts.Before(last) {
			return nil, fmt.Errorf("row %d: timestamp %s before previous %s", row, ts, last)
		}
		last = ts

		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad number %q", row, rec[i+1])
			}
			vals[i] = v
		}
		out = append(out, models.Bar{
			Start:  ts,
			Symbol: symbol,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return out, nil
}
