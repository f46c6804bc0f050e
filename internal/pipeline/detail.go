package pipeline

import (
	"context"

	"github.com/guregu/null/v6"

	"MarketHeatmap/internal/calculator"
	"MarketHeatmap/internal/model"
	"MarketHeatmap/internal/tree"
)

// Detail is everything the detail panel shows for one stock.
type Detail struct {
	Stock       tree.Stock  `json:"stock"`
	Quote       model.Quote `json:"quote"`
	ChangeText  string      `json:"changeText"`
	High52w     null.Float  `json:"week52High"`
	Low52w      null.Float  `json:"week52Low"`
	Position52w null.Float  `json:"week52Position"`
	AvgVolume   null.Float  `json:"avgVolume"`
	MA50        null.Float  `json:"ma50"`
	RSI14       null.Float  `json:"rsi14"`
}

const (
	avgVolumeDays = 63
	maDays        = 50
	rsiPeriod     = 14
)

// Detail combines the live quote, the tree entry and statistics from the 1Y
// chart. Provider-supplied 52-week values take precedence. It reports false
// when the ticker is unknown or no quote is available.
func (p *Pipeline) Detail(ctx context.Context, ticker string) (Detail, bool) {
	st, ok := p.tree.Find(ticker)
	if !ok {
		return Detail{}, false
	}
	q, ok := p.client.FetchQuote(ctx, ticker)
	if !ok {
		return Detail{}, false
	}

	d := Detail{
		Stock:      st,
		Quote:      q,
		ChangeText: FormatChange(q.ChangePercent),
		High52w:    q.High52w,
		Low52w:     q.Low52w,
	}

	series, ok := p.client.FetchChart(ctx, ticker, model.Period1Y)
	if !ok {
		p.logger.WithField("ticker", ticker).Debug("detail without chart statistics")
		return d, true
	}
	if !d.High52w.Valid || !d.Low52w.Valid {
		if high, low, err := calculator.Calculate52WeekRange(series); err == nil {
			d.High52w = null.FloatFrom(high)
			d.Low52w = null.FloatFrom(low)
		}
	}
	if pos, err := calculator.Calculate52WeekPosition(q.CurrentPrice, d.High52w.Float64, d.Low52w.Float64); err == nil {
		d.Position52w = null.FloatFrom(pos)
	}
	if v, err := calculator.AverageVolume(series, avgVolumeDays); err == nil {
		d.AvgVolume = null.FloatFrom(v)
	}
	if ma, err := calculator.MovingAverage(series, maDays); err == nil {
		d.MA50 = null.FloatFrom(ma)
	}
	if len(series) > rsiPeriod {
		if rsi, err := calculator.CalculateRSI(series, rsiPeriod); err == nil {
			d.RSI14 = null.FloatFrom(rsi)
		}
	}
	return d, true
}
