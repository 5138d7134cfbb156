package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const intradaySample = `{
  "Meta Data": {
    "1. Information": "Intraday (1min) open, high, low, close prices and volume",
    "2. Symbol": "IBM",
    "4. Interval": "1min",
    "6. Time Zone": "US/Eastern"
  },
  "Time Series (1min)": {
    "2024-03-05 09:32:00": {"1. open": "101.0", "2. high": "101.5", "3. low": "100.9", "4. close": "101.2", "5. volume": "1200"},
    "2024-03-05 09:31:00": {"1. open": "100.0", "2. high": "101.1", "3. low": "99.8", "4. close": "101.0", "5. volume": "900"}
  }
}`

func serve(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAlphaVantage_ParsesSeries(t *testing.T) {
	srv := serve(t, http.StatusOK, intradaySample, func(r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "TIME_SERIES_INTRADAY", q.Get("function"))
		assert.Equal(t, "IBM", q.Get("symbol"))
		assert.Equal(t, "1min", q.Get("interval"))
		assert.Equal(t, "2024-03", q.Get("month"))
		assert.Equal(t, "demo", q.Get("apikey"))
	})
	f := NewAlphaVantageFetcher(srv.URL, "demo", "", time.UTC)

	quotes, err := f.FetchIntraday(context.Background(), Request{Symbol: "IBM", Interval: Interval1Min, YearMonth: "2024-03"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	bars := ParseQuotes(quotes, time.UTC)
	require.Len(t, bars, 2)
	assert.Equal(t, 100.0, bars[0].Open, "sorted ascending")
	assert.Equal(t, int64(1200), bars[1].Volume)
	if eastern, err := time.LoadLocation("US/Eastern"); err == nil {
		assert.Equal(t, time.Date(2024, 3, 5, 9, 31, 0, 0, eastern).UnixMilli(), bars[0].Timestamp)
	}
}

func TestAlphaVantage_RateLimited(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`, nil)
	f := NewAlphaVantageFetcher(srv.URL, "demo", "", time.UTC)

	_, err := f.FetchIntraday(context.Background(), Request{Symbol: "IBM", Interval: Interval1Min})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.True(t, errors.Is(err, ErrDataUnavailable), "rate limiting is a data-unavailable condition")
}

func TestAlphaVantage_HTTP429(t *testing.T) {
	srv := serve(t, http.StatusTooManyRequests, `{}`, nil)
	_, err := NewAlphaVantageFetcher(srv.URL, "k", "", nil).FetchIntraday(context.Background(), Request{Symbol: "IBM", Interval: Interval5Min})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestAlphaVantage_ErrorMessage(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"Error Message": "Invalid API call."}`, nil)
	_, err := NewAlphaVantageFetcher(srv.URL, "k", "", nil).FetchIntraday(context.Background(), Request{Symbol: "ZZZ", Interval: Interval1Min})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "Invalid API call.")
}

func TestAlphaVantage_MissingSeries(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"Meta Data": {}}`, nil)
	_, err := NewAlphaVantageFetcher(srv.URL, "k", "", nil).FetchIntraday(context.Background(), Request{Symbol: "IBM", Interval: Interval1Min})
	assert.ErrorIs(t, err, ErrDataUnavailable)
}
