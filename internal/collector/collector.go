package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"MarketReplay/internal/calculator"
	"MarketReplay/internal/model"
)

// MockFetcher returns fixed quotes (or a fixed error) for development and testing.
type MockFetcher struct {
	Quotes []Quote
	Err    error
	Calls  int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchIntraday(_ context.Context, _ Request) ([]Quote, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Quotes, nil
}

// Result is a loaded series plus where it came from.
// Warning is non-nil when the loader fell back to synthetic data.
type Result struct {
	Symbol    string
	Timeframe model.Timeframe
	Bars      []model.Bar
	Source    string
	Warning   error
}

// Loader turns provider rows into a replayable series, falling back to the generator
// whenever the provider fails or has nothing for the day.
type Loader struct {
	Fetcher   Fetcher // nil means synthetic data only
	Generator *Generator
	Location  *time.Location
}

// NewLoader creates a new Loader.
func NewLoader(fetcher Fetcher, gen *Generator, loc *time.Location) *Loader {
	if loc == nil {
		loc = time.UTC
	}
	return &Loader{Fetcher: fetcher, Generator: gen, Location: loc}
}

// Load fetches symbol's bars for day and aggregates them to tf.
// Only context cancellation is returned as an error; provider failures become Result.Warning.
func (l *Loader) Load(ctx context.Context, symbol string, day time.Time, tf model.Timeframe) (*Result, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if tf.Minutes() == 0 {
		return nil, fmt.Errorf("load %s: unknown timeframe %q", symbol, tf)
	}
	day = DateIn(day, l.Location)
	res := &Result{Symbol: symbol, Timeframe: tf}

	if l.Fetcher != nil {
		bars, err := l.fetch(ctx, symbol, day, tf)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil {
			res.Bars = bars
			res.Source = l.Fetcher.Name()
			return res, nil
		}
		log.Printf("[WARN] %s %s %s via %s: %v, using synthetic data", symbol, day.Format("2006-01-02"), tf, l.Fetcher.Name(), err)
		res.Warning = err
	}

	res.Source = "synthetic"
	if l.Generator == nil {
		res.Bars = []model.Bar{}
		return res, nil
	}
	res.Bars = calculator.Aggregate(l.Generator.Generate(symbol, day, 1), tf.Minutes())
	return res, nil
}

func (l *Loader) fetch(ctx context.Context, symbol string, day time.Time, tf model.Timeframe) ([]model.Bar, error) {
	interval, bucket := IntervalFor(tf)
	quotes, err := l.Fetcher.FetchIntraday(ctx, Request{
		Symbol:    symbol,
		Interval:  interval,
		YearMonth: day.In(l.Location).Format("2006-01"),
	})
	if err != nil {
		if !errors.Is(err, ErrDataUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDataUnavailable, err)
		}
		return nil, err
	}
	bars := FilterDay(ParseQuotes(quotes, l.Location), day, l.Location)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no %s bars for %s", ErrDataUnavailable, interval, day.Format("2006-01-02"))
	}
	return calculator.Aggregate(bars, bucket), nil
}

// ParseQuotes converts provider rows to bars, sorted ascending by timestamp.
// Rows that fail to parse or break the OHLC invariant are dropped; duplicate timestamps keep the first row.
func ParseQuotes(quotes []Quote, loc *time.Location) []model.Bar {
	bars := make([]model.Bar, 0, len(quotes))
	skipped := 0
	for _, q := range quotes {
		b, err := parseQuote(q, loc)
		if err != nil || !b.Valid() {
			skipped++
			continue
		}
		bars = append(bars, b)
	}
	if skipped > 0 {
		log.Printf("[WARN] dropped %d malformed quote rows", skipped)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	out := bars[:0]
	for _, b := range bars {
		if len(out) > 0 && out[len(out)-1].Timestamp == b.Timestamp {
			continue
		}
		out = append(out, b)
	}
	return out
}

func parseQuote(q Quote, loc *time.Location) (model.Bar, error) {
	var b model.Bar
	var err error
	if b.Open, err = strconv.ParseFloat(strings.TrimSpace(q.Open), 64); err != nil {
		return b, fmt.Errorf("open: %w", err)
	}
	if b.High, err = strconv.ParseFloat(strings.TrimSpace(q.High), 64); err != nil {
		return b, fmt.Errorf("high: %w", err)
	}
	if b.Low, err = strconv.ParseFloat(strings.TrimSpace(q.Low), 64); err != nil {
		return b, fmt.Errorf("low: %w", err)
	}
	if b.Close, err = strconv.ParseFloat(strings.TrimSpace(q.Close), 64); err != nil {
		return b, fmt.Errorf("close: %w", err)
	}
	vol, err := strconv.ParseFloat(strings.TrimSpace(q.Volume), 64)
	if err != nil {
		return b, fmt.Errorf("volume: %w", err)
	}
	b.Volume = int64(vol)
	t := q.Timestamp.In(loc)
	b.Timestamp = t.UnixMilli()
	b.Time = t.Format("15:04")
	return b, nil
}

// DateIn returns midnight in loc of day's own calendar date.
func DateIn(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// FilterDay keeps the bars whose timestamp falls on day's calendar date in loc.
func FilterDay(bars []model.Bar, day time.Time, loc *time.Location) []model.Bar {
	want := day.In(loc).Format("2006-01-02")
	out := make([]model.Bar, 0, len(bars))
	for _, b := range bars {
		if b.At(loc).Format("2006-01-02") == want {
			out = append(out, b)
		}
	}
	return out
}
