package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// YahooFetcher implements Fetcher using the Yahoo Finance chart API.
// Yahoo serves 1-minute history only for recent sessions, so older months come back empty.
type YahooFetcher struct {
	BaseURL   string
	Location  *time.Location
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string, loc *time.Location) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &YahooFetcher{
		BaseURL:  "https://query1.finance.yahoo.com/v8/finance/chart",
		Location: loc,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		SymbolMap: map[string]string{
			"BTC": "BTC-USD",
			"ETH": "ETH-USD",
		},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func yahooInterval(i Interval) string {
	switch i {
	case Interval5Min:
		return "5m"
	case Interval15Min:
		return "15m"
	case Interval30Min:
		return "30m"
	default:
		return "1m"
	}
}

func (f *YahooFetcher) FetchIntraday(ctx context.Context, req Request) ([]Quote, error) {
	month, err := time.ParseInLocation("2006-01", req.YearMonth, f.Location)
	if err != nil {
		return nil, fmt.Errorf("yahoo: bad month %q: %w", req.YearMonth, err)
	}
	u := fmt.Sprintf("%s/%s?interval=%s&period1=%d&period2=%d",
		f.BaseURL, url.PathEscape(f.yahooSymbol(req.Symbol)), yahooInterval(req.Interval),
		month.Unix(), month.AddDate(0, 1, 0).Unix())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: yahoo status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: yahoo status %d, body: %s", ErrDataUnavailable, resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("%w: yahoo api error: %s", ErrDataUnavailable, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: yahoo returned no data", ErrDataUnavailable)
	}

	result := chart.Chart.Result[0]
	q := result.Indicators.Quote[0]
	quotes := make([]Quote, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(q.Open) || i >= len(q.High) || i >= len(q.Low) || i >= len(q.Close) || i >= len(q.Volume) {
			break
		}
		if q.Open[i] == nil || q.High[i] == nil || q.Low[i] == nil || q.Close[i] == nil {
			continue // null rows (halts, holidays)
		}
		vol := 0.0
		if q.Volume[i] != nil {
			vol = *q.Volume[i]
		}
		quotes = append(quotes, Quote{
			Timestamp: time.Unix(ts, 0).In(f.Location),
			Open:      formatFloat(*q.Open[i]),
			High:      formatFloat(*q.High[i]),
			Low:       formatFloat(*q.Low[i]),
			Close:     formatFloat(*q.Close[i]),
			Volume:    strconv.FormatInt(int64(vol), 10),
		})
	}
	return quotes, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
