package export

import (
	"encoding/csv"
	"os"
	"strconv"

	"MarketReplay/internal/model"
	"MarketReplay/internal/recorder"
)

// CSVSaver writes CSV with a header row.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) SaveBars(bars []model.Bar, path string) error {
	rows := make([][]string, 0, len(bars)+1)
	rows = append(rows, []string{"t", "time", "o", "h", "l", "c", "v"})
	for _, b := range bars {
		rows = append(rows, []string{
			strconv.FormatInt(b.Timestamp, 10),
			b.Time,
			floatStr(b.Open),
			floatStr(b.High),
			floatStr(b.Low),
			floatStr(b.Close),
			strconv.FormatInt(b.Volume, 10),
		})
	}
	return writeCSV(path, rows)
}

func (CSVSaver) SaveFills(fills []recorder.FillRecord, path string) error {
	rows := make([][]string, 0, len(fills)+1)
	rows = append(rows, []string{"timestamp", "symbol", "chart_id", "trade_id", "kind", "side", "quantity", "price", "realized_delta", "cash_after", "net_after"})
	for _, f := range fills {
		rows = append(rows, []string{
			strconv.FormatInt(f.Timestamp, 10),
			f.Symbol,
			f.ChartID,
			f.TradeID,
			f.Kind,
			f.Side,
			strconv.FormatInt(f.Quantity, 10),
			floatStr(f.Price),
			floatStr(f.RealizedDelta),
			floatStr(f.CashAfter),
			strconv.FormatInt(f.NetAfter, 10),
		})
	}
	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Sync()
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
