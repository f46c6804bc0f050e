package collector

import (
	"context"
	"errors"
	"math"
	"sort"

	"MarketHeatmap/internal/model"
)

var (
	// ErrNoData means the provider answered but had nothing usable for the ticker.
	ErrNoData = errors.New("no data returned")
	// ErrInvalidQuote means a quote failed price validation.
	ErrInvalidQuote = errors.New("invalid quote")
)

// Fetcher talks to exactly one upstream data source.
//
//go:generate mockgen -package=collector -destination=mock_fetcher_test.go -source=fetcher.go Fetcher
type Fetcher interface {
	FetchQuote(ctx context.Context, ticker string) (model.Quote, error)
	FetchChart(ctx context.Context, ticker string, period model.Period) (model.ChartSeries, error)
	Name() string
}

// completeQuote fills change and changePercent from the prices when the
// provider left them out. Supplied values are kept as is.
func completeQuote(q *model.Quote, change, changePercent *float64) {
	if change != nil {
		q.Change = *change
	} else if q.PreviousClose > 0 {
		q.Change = q.CurrentPrice - q.PreviousClose
	}
	if changePercent != nil {
		q.ChangePercent = *changePercent
	} else if q.PreviousClose > 0 {
		q.ChangePercent = 100 * (q.CurrentPrice - q.PreviousClose) / q.PreviousClose
	}
}

func validateQuote(q model.Quote) error {
	if !positive(q.CurrentPrice) || !positive(q.PreviousClose) {
		return ErrInvalidQuote
	}
	for _, v := range []float64{q.Open, q.High, q.Low, q.Change, q.ChangePercent} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidQuote
		}
	}
	if q.Open < 0 || q.High < 0 || q.Low < 0 {
		return ErrInvalidQuote
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// normalizeSeries drops points without a price and returns the rest in
// strictly ascending time order. For duplicate timestamps the later point wins.
func normalizeSeries(in model.ChartSeries) model.ChartSeries {
	out := make(model.ChartSeries, 0, len(in))
	for _, p := range in {
		if !positive(p.Price) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	dedup := out[:0]
	for _, p := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Date.Equal(p.Date) {
			dedup[n-1] = p
			continue
		}
		dedup = append(dedup, p)
	}
	return dedup
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
