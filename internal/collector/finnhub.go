package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"MarketHeatmap/internal/fallback"
	"MarketHeatmap/internal/model"
	"MarketHeatmap/internal/ticker"
)

// FinnhubBaseURL is the public Finnhub REST endpoint.
const FinnhubBaseURL = "https://finnhub.io/api/v1"

// FinnhubFetcher implements Fetcher using the Finnhub REST API.
// Free-tier keys allow 60 calls per minute.
type FinnhubFetcher struct {
	BaseURL    string
	APIKey     string
	Chain      *fallback.Chain
	Normalizer *ticker.Normalizer
	Now        func() time.Time
}

// NewFinnhubFetcher creates a fetcher. Requests go through chain.
func NewFinnhubFetcher(baseURL, apiKey string, chain *fallback.Chain) *FinnhubFetcher {
	if baseURL == "" {
		baseURL = FinnhubBaseURL
	}
	return &FinnhubFetcher{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Chain:      chain,
		Normalizer: ticker.NewNormalizer(ticker.DotSeparator, nil),
		Now:        time.Now,
	}
}

func (f *FinnhubFetcher) Name() string { return "finnhub" }

// finnhubQuote is the /quote response. d and dp are null for unknown symbols.
type finnhubQuote struct {
	C  float64  `json:"c"`
	D  *float64 `json:"d"`
	DP *float64 `json:"dp"`
	H  float64  `json:"h"`
	L  float64  `json:"l"`
	O  float64  `json:"o"`
	PC float64  `json:"pc"`
	T  int64    `json:"t"`
}

// finnhubCandles is the /stock/candle response.
type finnhubCandles struct {
	S string    `json:"s"`
	T []int64   `json:"t"`
	O []float64 `json:"o"`
	H []float64 `json:"h"`
	L []float64 `json:"l"`
	C []float64 `json:"c"`
	V []float64 `json:"v"`
}

func (f *FinnhubFetcher) FetchQuote(ctx context.Context, tk string) (model.Quote, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s&token=%s",
		f.BaseURL, url.QueryEscape(f.Normalizer.ToProviderForm(tk)), url.QueryEscape(f.APIKey))

	var raw finnhubQuote
	if err := f.Chain.Do(ctx, endpoint, func(b []byte) error { return json.Unmarshal(b, &raw) }); err != nil {
		return model.Quote{}, fmt.Errorf("finnhub quote %s: %w", tk, err)
	}
	if raw.C <= 0 {
		return model.Quote{}, fmt.Errorf("finnhub quote %s: %w", tk, ErrNoData)
	}

	q := model.Quote{
		Symbol:        tk,
		CurrentPrice:  raw.C,
		PreviousClose: raw.PC,
		Open:          raw.O,
		High:          raw.H,
		Low:           raw.L,
		Source:        f.Name(),
	}
	if raw.T > 0 {
		q.Timestamp = time.Unix(raw.T, 0)
	} else {
		q.Timestamp = f.Now()
	}
	completeQuote(&q, raw.D, raw.DP)
	return q, nil
}

// finnhubResolution maps a period to a candle resolution and a lookback window.
func finnhubResolution(p model.Period) (string, time.Duration) {
	const day = 24 * time.Hour
	switch p {
	case model.Period1D:
		return "5", day
	case model.Period1W:
		return "15", 5 * day
	case model.Period3M:
		return "D", 90 * day
	case model.Period1Y:
		return "D", 365 * day
	case model.Period5Y:
		return "W", 5 * 365 * day
	default:
		return "D", 30 * day
	}
}

func (f *FinnhubFetcher) FetchChart(ctx context.Context, tk string, period model.Period) (model.ChartSeries, error) {
	resolution, window := finnhubResolution(period)
	to := f.Now().Unix()
	from := to - int64(window/time.Second)

	endpoint := fmt.Sprintf("%s/stock/candle?symbol=%s&resolution=%s&from=%d&to=%d&token=%s",
		f.BaseURL, url.QueryEscape(f.Normalizer.ToProviderForm(tk)), resolution, from, to, url.QueryEscape(f.APIKey))

	var raw finnhubCandles
	if err := f.Chain.Do(ctx, endpoint, func(b []byte) error { return json.Unmarshal(b, &raw) }); err != nil {
		return nil, fmt.Errorf("finnhub candles %s: %w", tk, err)
	}
	if raw.S != "ok" || len(raw.T) == 0 {
		return nil, fmt.Errorf("finnhub candles %s (status %q): %w", tk, raw.S, ErrNoData)
	}

	series := make(model.ChartSeries, 0, len(raw.T))
	for i, ts := range raw.T {
		if i >= len(raw.C) {
			break
		}
		series = append(series, model.ChartPoint{
			Date:   time.Unix(ts, 0).UTC(),
			Price:  raw.C[i],
			Open:   at(raw.O, i),
			High:   at(raw.H, i),
			Low:    at(raw.L, i),
			Close:  raw.C[i],
			Volume: at(raw.V, i),
		})
	}
	return series, nil
}

func at(vs []float64, i int) float64 {
	if i < len(vs) {
		return vs[i]
	}
	return 0
}
