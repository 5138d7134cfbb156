package export

import (
	"encoding/json"
	"os"

	"MarketReplay/internal/model"
	"MarketReplay/internal/recorder"
)

// JSONSaver writes an indented JSON array.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) SaveBars(bars []model.Bar, path string) error { return writeJSON(path, bars) }

func (JSONSaver) SaveFills(fills []recorder.FillRecord, path string) error {
	if fills == nil {
		fills = []recorder.FillRecord{}
	}
	return writeJSON(path, fills)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
