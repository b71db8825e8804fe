// Package timeframe converts exchange timeframe strings such as "15m" or "1d"
// into durations and helps size candle requests.
package timeframe

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/evdnx/tradingcp/models"
)

const (
	// ChartCandles is the number of candles requested for a chart.
	ChartCandles = 96
	// MinChartCandles is the fewest candles worth charting.
	MinChartCandles = 10
)

// ErrNotEnoughData is returned when fewer than MinChartCandles candles came back.
var ErrNotEnoughData = errors.New("not enough data to show a full chart")

var timeframePattern = regexp.MustCompile(`(\d+)([a-zA-Z]+)$`)

// Seconds returns the length of a timeframe in seconds, or 0 when it cannot be parsed.
// Units are case sensitive where exchanges disagree: "m" is minutes, "M" is months.
func Seconds(tf string) int64 {
	tf = strings.TrimSpace(tf)
	if n, err := strconv.ParseFloat(tf, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
		return int64(n)
	}

	m := timeframePattern.FindStringSubmatch(tf)
	if m == nil {
		return 0
	}
	total, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}

	switch m[2] {
	case "s", "sec":
		return total
	case "m", "min":
		return total * 60
	case "h", "hour", "H":
		return total * 3600
	case "d", "day", "D":
		return total * 86400
	case "w", "week", "W":
		return total * 604800
	case "M", "month":
		return total * 2592000
	case "y", "year", "Y":
		return total * 31536000
	}
	return 0
}

// Duration is Seconds as a time.Duration
func Duration(tf string) time.Duration {
	return time.Duration(Seconds(tf)) * time.Second
}

// Since returns the start time that yields the given number of candles ending at now
func Since(now time.Time, tf string, candles int) time.Time {
	return now.Add(-Duration(tf) * time.Duration(candles))
}

// CloseSeries extracts close prices in candle order
func CloseSeries(candles []models.Candle) []float64 {
	series := make([]float64, len(candles))
	for i, c := range candles {
		series[i] = c.Close
	}
	return series
}

// Nice renders seconds in the largest unit below it, e.g. 5400 -> "2h".
func Nice(seconds int64) string {
	f := float64(seconds)
	switch {
	case seconds < 60:
		return strconv.FormatInt(seconds, 10) + "s"
	case seconds < 3600:
		return strconv.FormatInt(int64(math.Round(f/60)), 10) + "m"
	case seconds < 86400:
		return strconv.FormatInt(int64(math.Round(f/3600)), 10) + "h"
	case seconds < 604800:
		return strconv.FormatInt(int64(math.Round(f/86400)), 10) + "d"
	default:
		return strconv.FormatInt(int64(math.Round(f/604800)), 10) + "w"
	}
}
