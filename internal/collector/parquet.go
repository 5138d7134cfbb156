package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"MarketReplay/internal/model"
)

// ParquetFetcher serves bars previously exported to <Dir>/<SYMBOL>_<interval>.parquet.
// It lets a desk replay offline captures without touching the network.
type ParquetFetcher struct {
	Dir      string
	Location *time.Location
}

// NewParquetFetcher creates a fetcher reading from dir.
func NewParquetFetcher(dir string, loc *time.Location) *ParquetFetcher {
	if loc == nil {
		loc = time.UTC
	}
	return &ParquetFetcher{Dir: dir, Location: loc}
}

func (f *ParquetFetcher) Name() string { return "parquet" }

// Path returns the file consulted for symbol and interval.
func (f *ParquetFetcher) Path(symbol string, interval Interval) string {
	return filepath.Join(f.Dir, fmt.Sprintf("%s_%s.parquet", strings.ToUpper(symbol), interval))
}

func (f *ParquetFetcher) FetchIntraday(ctx context.Context, req Request) ([]Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := f.Path(req.Symbol, req.Interval)
	bars, err := parquet.ReadFile[model.Bar](path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no capture at %s", ErrDataUnavailable, path)
		}
		return nil, fmt.Errorf("parquet read %s: %w", path, err)
	}
	quotes := make([]Quote, 0, len(bars))
	for _, b := range bars {
		t := b.At(f.Location)
		if req.YearMonth != "" && t.Format("2006-01") != req.YearMonth {
			continue
		}
		quotes = append(quotes, Quote{
			Timestamp: t,
			Open:      formatFloat(b.Open),
			High:      formatFloat(b.High),
			Low:       formatFloat(b.Low),
			Close:     formatFloat(b.Close),
			Volume:    strconv.FormatInt(b.Volume, 10),
		})
	}
	return quotes, nil
}
