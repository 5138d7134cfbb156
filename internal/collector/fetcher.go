package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketReplay/internal/model"
)

var (
	// ErrDataUnavailable means the source returned nothing usable; callers fall back to synthetic data.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrRateLimited is a DataUnavailable condition raised by provider throttling.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrDataUnavailable)
)

// Interval is a provider-side bar width.
type Interval string

const (
	Interval1Min  Interval = "1min"
	Interval5Min  Interval = "5min"
	Interval15Min Interval = "15min"
	Interval30Min Interval = "30min"
)

// Minutes returns the interval width in minutes.
func (i Interval) Minutes() int {
	switch i {
	case Interval1Min:
		return 1
	case Interval5Min:
		return 5
	case Interval15Min:
		return 15
	case Interval30Min:
		return 30
	default:
		return 0
	}
}

// IntervalFor maps a chart timeframe to the provider interval to request and
// the number of provider bars folded into one chart bar.
func IntervalFor(tf model.Timeframe) (Interval, int) {
	switch tf {
	case model.Timeframe2m:
		return Interval1Min, 2
	case model.Timeframe5m:
		return Interval5Min, 1
	case model.Timeframe30m:
		return Interval30Min, 1
	default:
		return Interval1Min, 1
	}
}

// Request selects one symbol's intraday bars for a calendar month.
type Request struct {
	Symbol    string
	Interval  Interval
	YearMonth string // "2006-01"
}

// Quote is one raw provider row; numeric fields are still string-encoded.
type Quote struct {
	Timestamp time.Time
	Open      string
	High      string
	Low       string
	Close     string
	Volume    string
}

// Fetcher defines the interface for fetching intraday market data.
// Rows may come in any order; the Loader parses, filters and sorts them.
type Fetcher interface {
	FetchIntraday(ctx context.Context, req Request) ([]Quote, error)
	Name() string
}
