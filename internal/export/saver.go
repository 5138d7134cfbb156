package export

import (
	"strings"

	"MarketReplay/internal/model"
	"MarketReplay/internal/recorder"
)

// Saver writes bars or journaled fills to a file in one format.
type Saver interface {
	SaveBars(bars []model.Bar, path string) error
	SaveFills(fills []recorder.FillRecord, path string) error
	Extension() string
}

// NewSaver creates implementation by format (csv, parquet, json).
// Returns nil if format not supported.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "parquet":
		return ParquetSaver{}
	case "json":
		return JSONSaver{}
	default:
		return nil
	}
}
