package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAlphaVantageURL = "https://www.alphavantage.co/query"

// AlphaVantageFetcher implements Fetcher using the Alpha Vantage TIME_SERIES_INTRADAY endpoint.
type AlphaVantageFetcher struct {
	BaseURL  string
	APIKey   string
	Location *time.Location // used when the response carries no usable time zone
	Client   *http.Client
}

// NewAlphaVantageFetcher creates a new fetcher with optional proxy support.
func NewAlphaVantageFetcher(baseURL, apiKey, proxyURL string, loc *time.Location) *AlphaVantageFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if baseURL == "" {
		baseURL = defaultAlphaVantageURL
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AlphaVantageFetcher{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Location: loc,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *AlphaVantageFetcher) Name() string { return "alphavantage" }

// avPoint is one entry of the "Time Series (…)" object.
type avPoint struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

type avMeta struct {
	TimeZone string `json:"6. Time Zone"`
}

func (f *AlphaVantageFetcher) FetchIntraday(ctx context.Context, req Request) ([]Quote, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_INTRADAY")
	params.Set("symbol", req.Symbol)
	params.Set("interval", string(req.Interval))
	params.Set("outputsize", "full")
	params.Set("adjusted", "false")
	params.Set("extended_hours", "false")
	params.Set("datatype", "json")
	params.Set("apikey", f.APIKey)
	if req.YearMonth != "" {
		params.Set("month", req.YearMonth)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("alphavantage fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("alphavantage read body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: alphavantage status %d, body: %s", ErrDataUnavailable, resp.StatusCode, string(body))
	}
	return f.decode(body)
}

func (f *AlphaVantageFetcher) decode(body []byte) ([]Quote, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("alphavantage decode: %w", err)
	}
	if msg, ok := raw["Error Message"]; ok {
		return nil, fmt.Errorf("%w: alphavantage error: %s", ErrDataUnavailable, unquote(msg))
	}
	for _, k := range []string{"Note", "Information"} {
		if msg, ok := raw[k]; ok {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, unquote(msg))
		}
	}

	loc := f.Location
	if m, ok := raw["Meta Data"]; ok {
		var meta avMeta
		if err := json.Unmarshal(m, &meta); err == nil && meta.TimeZone != "" {
			if l, err := time.LoadLocation(meta.TimeZone); err == nil {
				loc = l
			}
		}
	}

	var series map[string]avPoint
	for k, v := range raw {
		if strings.HasPrefix(k, "Time Series") {
			if err := json.Unmarshal(v, &series); err != nil {
				return nil, fmt.Errorf("alphavantage decode series: %w", err)
			}
			break
		}
	}
	if series == nil {
		return nil, fmt.Errorf("%w: no time series data found in response", ErrDataUnavailable)
	}

	quotes := make([]Quote, 0, len(series))
	for ts, p := range series {
		t, err := time.ParseInLocation("2006-01-02 15:04:05", ts, loc)
		if err != nil {
			continue
		}
		quotes = append(quotes, Quote{Timestamp: t, Open: p.Open, High: p.High, Low: p.Low, Close: p.Close, Volume: p.Volume})
	}
	return quotes, nil
}

func unquote(msg json.RawMessage) string {
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return s
	}
	return string(msg)
}
