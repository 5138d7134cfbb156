package collector

import (
	"context"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketReplay/internal/model"
)

func TestParquetFetcher_RoundTripsThroughLoader(t *testing.T) {
	dir := t.TempDir()
	f := NewParquetFetcher(dir, time.UTC)

	base := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	bars := []model.Bar{
		{Timestamp: base.UnixMilli(), Open: 10, High: 11, Low: 9.5, Close: 10.5, Volume: 100},
		{Timestamp: base.Add(5 * time.Minute).UnixMilli(), Open: 10.5, High: 12, Low: 10, Close: 11.5, Volume: 200},
		{Timestamp: base.AddDate(0, 1, 0).UnixMilli(), Open: 20, High: 21, Low: 19, Close: 20, Volume: 5},
	}
	require.NoError(t, parquet.WriteFile(f.Path("ibm", Interval5Min), bars))

	quotes, err := f.FetchIntraday(context.Background(), Request{Symbol: "IBM", Interval: Interval5Min, YearMonth: "2024-03"})
	require.NoError(t, err)
	assert.Len(t, quotes, 2, "rows outside the month are skipped")

	l := NewLoader(f, nil, time.UTC)
	res, err := l.Load(context.Background(), "IBM", base, model.Timeframe5m)
	require.NoError(t, err)
	assert.Equal(t, "parquet", res.Source)
	require.Len(t, res.Bars, 2)
	assert.Equal(t, 11.5, res.Bars[1].Close)
	assert.Equal(t, "14:35", res.Bars[1].Time)
}

func TestParquetFetcher_MissingFile(t *testing.T) {
	f := NewParquetFetcher(t.TempDir(), nil)
	_, err := f.FetchIntraday(context.Background(), Request{Symbol: "NONE", Interval: Interval1Min})
	assert.ErrorIs(t, err, ErrDataUnavailable)
}
