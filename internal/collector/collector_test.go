package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketReplay/internal/model"
)

func quote(ts time.Time, o, h, l, c, v string) Quote {
	return Quote{Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func TestLoader_FiltersSortsAndAggregates(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	at := func(d, h, m int) time.Time { return time.Date(2024, 3, d, h, m, 0, 0, time.UTC) }
	fetcher := &MockFetcher{Quotes: []Quote{
		quote(at(5, 9, 33), "102", "103", "101.5", "102.5", "30"),
		quote(at(6, 9, 30), "200", "201", "199", "200", "99"), // other day
		quote(at(5, 9, 31), "100.5", "101", "100", "101", "20"),
		quote(at(5, 9, 30), "100", "100.8", "99.5", "100.5", "10"),
		quote(at(5, 9, 32), "101", "102.2", "100.7", "102", "25"),
		quote(at(5, 9, 34), "bad", "1", "1", "1", "1"),
	}}
	l := NewLoader(fetcher, NewGenerator(time.UTC, 1), time.UTC)

	res, err := l.Load(context.Background(), "aapl", day, model.Timeframe2m)
	require.NoError(t, err)
	assert.NoError(t, res.Warning)
	assert.Equal(t, "mock", res.Source)
	assert.Equal(t, "AAPL", res.Symbol)
	require.Len(t, res.Bars, 2)

	first := res.Bars[0]
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 101.0, first.Close)
	assert.Equal(t, 101.0, first.High)
	assert.Equal(t, 99.5, first.Low)
	assert.Equal(t, int64(30), first.Volume)
	assert.Equal(t, "09:30", first.Time)
	assert.Equal(t, "09:32", res.Bars[1].Time)
}

func TestLoader_FallsBackOnFailure(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	fetcher := &MockFetcher{Err: ErrRateLimited}
	l := NewLoader(fetcher, NewGenerator(time.UTC, 1), time.UTC)

	res, err := l.Load(context.Background(), "MSFT", day, model.Timeframe5m)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", res.Source)
	assert.ErrorIs(t, res.Warning, ErrRateLimited)
	assert.Len(t, res.Bars, RegularSession.Minutes()/5)
}

func TestLoader_FallsBackOnEmptyAndWrapsForeignErrors(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	l := NewLoader(&MockFetcher{}, NewGenerator(time.UTC, 1), time.UTC)
	res, err := l.Load(context.Background(), "MSFT", day, model.Timeframe1m)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Warning, ErrDataUnavailable)
	assert.Len(t, res.Bars, RegularSession.Minutes())

	l.Fetcher = &MockFetcher{Err: errors.New("connection refused")}
	res, err = l.Load(context.Background(), "MSFT", day, model.Timeframe30m)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Warning, ErrDataUnavailable)
	assert.Len(t, res.Bars, RegularSession.Minutes()/30)
}

func TestLoader_SyntheticOnlyHasNoWarning(t *testing.T) {
	l := NewLoader(nil, NewGenerator(time.UTC, 1), time.UTC)
	res, err := l.Load(context.Background(), "GOOGL", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), model.Timeframe1m)
	require.NoError(t, err)
	assert.NoError(t, res.Warning)
	assert.NotEmpty(t, res.Bars)
}

func TestLoader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := NewLoader(&MockFetcher{Err: context.Canceled}, NewGenerator(time.UTC, 1), time.UTC)
	_, err := l.Load(ctx, "AAPL", time.Now(), model.Timeframe1m)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_RejectsUnknownTimeframe(t *testing.T) {
	l := NewLoader(nil, NewGenerator(time.UTC, 1), time.UTC)
	_, err := l.Load(context.Background(), "AAPL", time.Now(), model.Timeframe("3m"))
	assert.Error(t, err)
}

func TestIntervalFor(t *testing.T) {
	i, k := IntervalFor(model.Timeframe2m)
	assert.Equal(t, Interval1Min, i)
	assert.Equal(t, 2, k)
	i, k = IntervalFor(model.Timeframe30m)
	assert.Equal(t, Interval30Min, i)
	assert.Equal(t, 1, k)
}
