package model

import (
	"fmt"
	"strings"
	"time"
)

// Bar represents a single OHLCV candlestick sample.
// Timestamp is epoch milliseconds; Time is the display label ("15:04").
type Bar struct {
	Time      string  `json:"time" parquet:"time"`
	Timestamp int64   `json:"timestamp" parquet:"timestamp"`
	Open      float64 `json:"open" parquet:"open"`
	High      float64 `json:"high" parquet:"high"`
	Low       float64 `json:"low" parquet:"low"`
	Close     float64 `json:"close" parquet:"close"`
	Volume    int64   `json:"volume" parquet:"volume"`
}

// Valid reports whether the bar satisfies low <= min(open,close) <= max(open,close) <= high
// with positive prices and non-negative volume.
func (b Bar) Valid() bool {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 || b.Volume < 0 {
		return false
	}
	lo, hi := b.Open, b.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	return b.Low <= lo && hi <= b.High
}

// At returns the bar's timestamp as a time.Time in loc.
func (b Bar) At(loc *time.Location) time.Time {
	return time.UnixMilli(b.Timestamp).In(loc)
}

// Timeframe is the bucket width a series is aggregated to.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe2m  Timeframe = "2m"
	Timeframe5m  Timeframe = "5m"
	Timeframe30m Timeframe = "30m"
)

// Timeframes lists the selectable timeframes in ascending order.
var Timeframes = []Timeframe{Timeframe1m, Timeframe2m, Timeframe5m, Timeframe30m}

// Minutes returns the bar width in minutes, or 0 for an unknown timeframe.
func (tf Timeframe) Minutes() int {
	switch tf {
	case Timeframe1m:
		return 1
	case Timeframe2m:
		return 2
	case Timeframe5m:
		return 5
	case Timeframe30m:
		return 30
	default:
		return 0
	}
}

// Duration returns the bar width as a time.Duration.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Minutes()) * time.Minute
}

// ParseTimeframe accepts "1m", "2m", "5m", "30m" (case-insensitive, surrounding spaces ignored).
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if tf.Minutes() == 0 {
		return "", fmt.Errorf("unknown timeframe %q (use 1m, 2m, 5m, 30m)", s)
	}
	return tf, nil
}

// SeriesStats summarizes the visible prefix of a replayed series.
type SeriesStats struct {
	Bars      int     `json:"bars"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Last      float64 `json:"last"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	Volume    int64   `json:"volume"`
	VWAP      float64 `json:"vwap"`
	SMA20     float64 `json:"sma20"`
	RSI14     float64 `json:"rsi14"`
	// RangePosition is where Last sits between Low (0) and High (1).
	RangePosition float64 `json:"range_position"`
}
