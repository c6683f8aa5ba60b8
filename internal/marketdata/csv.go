package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"backtest_go/internal/domain"
)

// LoadCSV reads a generic candle CSV with headers:
// time|timestamp, open, high, low, close, volume, and optionally
// signal, order_type, book_depth, volatility.
// Headers are case-insensitive, unknown columns are ignored, and rows are
// returned sorted by time. The result is validated before returning.
func LoadCSV(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []domain.Bar
	var headers []string
	rowIdx := 0

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}
		row := map[string]string{}
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[k] = strings.TrimSpace(rec[j])
			}
		}
		ts := first(row, "time", "timestamp")
		op := first(row, "open")
		cp := first(row, "close")
		if ts == "" || op == "" || cp == "" {
			continue
		}
		tt, err := parseTimeFlexible(ts)
		if err != nil {
			continue
		}
		o, _ := strconv.ParseFloat(op, 64)
		h, _ := strconv.ParseFloat(first(row, "high"), 64)
		l, _ := strconv.ParseFloat(first(row, "low"), 64)
		c, _ := strconv.ParseFloat(cp, 64)
		v, _ := strconv.ParseFloat(first(row, "volume", "vol"), 64)

		bar := domain.Bar{
			Timestamp: tt,
			Open:      o,
			High:      h,
			Low:       l,
			Close:     c,
			Volume:    v,
		}

		if sig := first(row, "signal"); sig != "" {
			if s, err := strconv.Atoi(sig); err == nil {
				bar.Signal = s
			}
		}
		if ot := first(row, "order_type"); ot != "" {
			bar.OrderType = strings.ToLower(ot)
		}
		if d := first(row, "book_depth", "depth"); d != "" {
			bar.BookDepth, _ = strconv.ParseFloat(d, 64)
		}
		if vol := first(row, "volatility"); vol != "" {
			bar.Volatility, _ = strconv.ParseFloat(vol, 64)
		}

		out = append(out, bar)
		rowIdx++
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	if err := domain.ValidateBars(out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseTimeFlexible supports RFC3339 or UNIX seconds.
func parseTimeFlexible(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %s", s)
}

// first returns the first non-empty value for keys in m.
func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
