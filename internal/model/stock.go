package model

// Market is the listing venue of a catalog stock.
type Market string

const (
	MarketNYSE   Market = "NYSE"
	MarketNASDAQ Market = "NASDAQ"
)

// Stock is a tradable symbol in the replay catalog.
type Stock struct {
	Symbol        string  `json:"symbol" yaml:"symbol"`
	Name          string  `json:"name" yaml:"name"`
	Price         float64 `json:"price" yaml:"price"`
	Change        float64 `json:"change" yaml:"change"`
	ChangePercent float64 `json:"change_percent" yaml:"change_percent"`
	Market        Market  `json:"market" yaml:"market"`
}
