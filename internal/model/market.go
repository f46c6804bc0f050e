package model

import (
	"time"

	"github.com/guregu/null/v6"
)

// Quote is a point-in-time price snapshot for one ticker.
// ChangePercent is a percentage value (1.33 means +1.33%), not a fraction.
type Quote struct {
	Symbol        string     `json:"symbol"`
	CurrentPrice  float64    `json:"currentPrice"`
	PreviousClose float64    `json:"previousClose"`
	Change        float64    `json:"change"`
	ChangePercent float64    `json:"changePercent"`
	Open          float64    `json:"open"`
	High          float64    `json:"high"`
	Low           float64    `json:"low"`
	Volume        float64    `json:"volume"`
	High52w       null.Float `json:"week52High"`
	Low52w        null.Float `json:"week52Low"`
	MarketCap     null.Float `json:"marketCap"`
	PreMarket     null.Float `json:"preMarketPrice"`
	PostMarket    null.Float `json:"postMarketPrice"`
	Timestamp     time.Time  `json:"timestamp"`
	Source        string     `json:"source"`
}

// ChartPoint represents a single bar of a chart series. Price equals Close.
type ChartPoint struct {
	Date   time.Time `json:"date"`
	Price  float64   `json:"price"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// ChartSeries is ordered oldest first.
type ChartSeries []ChartPoint

// Period is the abstract chart range selected in the detail view.
type Period string

const (
	Period1D Period = "1D"
	Period1W Period = "1W"
	Period1M Period = "1M"
	Period3M Period = "3M"
	Period1Y Period = "1Y"
	Period5Y Period = "5Y"
)

// Periods lists every supported period, shortest first.
func Periods() []Period {
	return []Period{Period1D, Period1W, Period1M, Period3M, Period1Y, Period5Y}
}

// ParsePeriod maps a period token to a Period. Unknown tokens fall back to 1M.
func ParsePeriod(s string) Period {
	for _, p := range Periods() {
		if string(p) == s {
			return p
		}
	}
	return Period1M
}

// IndexQuote is the headline change of a market index tracker.
type IndexQuote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	ChangePercent float64 `json:"changePercent"`
	Text          string  `json:"text"`
}
