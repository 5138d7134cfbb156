package collector

import (
	"strings"

	"MarketReplay/internal/model"
)

// Catalog holds the symbols offered by the replay desk.
var Catalog = []model.Stock{
	{Symbol: "AAPL", Name: "Apple Inc.", Price: 189.95, Change: 2.34, ChangePercent: 1.25, Market: model.MarketNASDAQ},
	{Symbol: "MSFT", Name: "Microsoft Corporation", Price: 415.26, Change: -3.12, ChangePercent: -0.75, Market: model.MarketNASDAQ},
	{Symbol: "GOOGL", Name: "Alphabet Inc.", Price: 139.69, Change: 1.85, ChangePercent: 1.34, Market: model.MarketNASDAQ},
	{Symbol: "TSLA", Name: "Tesla, Inc.", Price: 248.42, Change: -12.15, ChangePercent: -4.66, Market: model.MarketNASDAQ},
	{Symbol: "AMZN", Name: "Amazon.com, Inc.", Price: 178.32, Change: 5.67, ChangePercent: 3.28, Market: model.MarketNASDAQ},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co.", Price: 184.75, Change: 2.18, ChangePercent: 1.19, Market: model.MarketNYSE},
	{Symbol: "BAC", Name: "Bank of America Corporation", Price: 37.82, Change: -0.45, ChangePercent: -1.17, Market: model.MarketNYSE},
	{Symbol: "JNJ", Name: "Johnson & Johnson", Price: 155.89, Change: 0.95, ChangePercent: 0.61, Market: model.MarketNYSE},
}

// LookupStock finds a catalog entry by symbol, case-insensitively.
func LookupStock(symbol string) (model.Stock, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, s := range Catalog {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return model.Stock{}, false
}
