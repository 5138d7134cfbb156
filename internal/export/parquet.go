package export

import (
	"github.com/parquet-go/parquet-go"

	"MarketReplay/internal/model"
	"MarketReplay/internal/recorder"
)

// ParquetSaver writes Parquet files readable by collector.ParquetFetcher.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) SaveBars(bars []model.Bar, path string) error {
	return parquet.WriteFile(path, bars)
}

func (ParquetSaver) SaveFills(fills []recorder.FillRecord, path string) error {
	return parquet.WriteFile(path, fills)
}
