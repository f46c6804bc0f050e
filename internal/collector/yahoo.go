package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"MarketHeatmap/internal/fallback"
	"MarketHeatmap/internal/model"
	"MarketHeatmap/internal/ticker"
)

const (
	yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/%s?interval=%s&range=%s"
	yahooQuoteURL = "https://query1.finance.yahoo.com/v7/finance/quote?symbols=%s"

	// YahooMaxBatch is the number of symbols requested per multi-quote call.
	YahooMaxBatch = 20
)

// YahooFetcher implements BatchFetcher using Yahoo Finance public endpoints.
// Yahoo does not send CORS headers, so requests usually go through relays
// configured on the chain.
type YahooFetcher struct {
	ChartURL   string
	QuoteURL   string
	Chain      *fallback.Chain
	Normalizer *ticker.Normalizer
	BatchLimit int
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(chain *fallback.Chain) *YahooFetcher {
	return &YahooFetcher{
		ChartURL: yahooChartURL,
		QuoteURL: yahooQuoteURL,
		Chain:    chain,
		// Yahoo already uses the dash form for share classes.
		Normalizer: ticker.NewNormalizer(ticker.InternalSeparator, ticker.YahooAliases),
		BatchLimit: YahooMaxBatch,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) MaxBatch() int { return f.BatchLimit }

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string   `json:"symbol"`
				RegularMarketPrice float64  `json:"regularMarketPrice"`
				ChartPreviousClose float64  `json:"chartPreviousClose"`
				PreviousClose      float64  `json:"previousClose"`
				DayHigh            float64  `json:"regularMarketDayHigh"`
				DayLow             float64  `json:"regularMarketDayLow"`
				Volume             float64  `json:"regularMarketVolume"`
				High52w            *float64 `json:"fiftyTwoWeekHigh"`
				Low52w             *float64 `json:"fiftyTwoWeekLow"`
				MarketTime         int64    `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// yahooQuoteResponse is the v7 multi-symbol quote response.
type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuote `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

type yahooQuote struct {
	Symbol        string   `json:"symbol"`
	Price         float64  `json:"regularMarketPrice"`
	Change        *float64 `json:"regularMarketChange"`
	ChangePercent *float64 `json:"regularMarketChangePercent"`
	PreviousClose float64  `json:"regularMarketPreviousClose"`
	Open          float64  `json:"regularMarketOpen"`
	DayHigh       float64  `json:"regularMarketDayHigh"`
	DayLow        float64  `json:"regularMarketDayLow"`
	Volume        float64  `json:"regularMarketVolume"`
	High52w       *float64 `json:"fiftyTwoWeekHigh"`
	Low52w        *float64 `json:"fiftyTwoWeekLow"`
	MarketCap     *float64 `json:"marketCap"`
	PreMarket     *float64 `json:"preMarketPrice"`
	PostMarket    *float64 `json:"postMarketPrice"`
	MarketTime    int64    `json:"regularMarketTime"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// yahooRange maps a period to Yahoo's range and interval parameters.
func yahooRange(p model.Period) (rng, interval string) {
	switch p {
	case model.Period1D:
		return "1d", "5m"
	case model.Period1W:
		return "5d", "15m"
	case model.Period3M:
		return "3mo", "1d"
	case model.Period1Y:
		return "1y", "1d"
	case model.Period5Y:
		return "5y", "1wk"
	default:
		return "1mo", "1d"
	}
}

func (f *YahooFetcher) fetchChart(ctx context.Context, tk, interval, rng string) (*yahooChart, error) {
	endpoint := fmt.Sprintf(f.ChartURL, url.PathEscape(f.Normalizer.ToProviderForm(tk)), interval, rng)

	var chart yahooChart
	decode := func(b []byte) error {
		if err := json.Unmarshal(b, &chart); err != nil {
			return err
		}
		if len(chart.Chart.Result) == 0 && chart.Chart.Error == nil {
			return errors.New("missing chart result")
		}
		return nil
	}
	if err := f.Chain.Do(ctx, endpoint, decode); err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", tk, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart %s: %s: %w", tk, chart.Chart.Error.Description, ErrNoData)
	}
	return &chart, nil
}

func (f *YahooFetcher) FetchQuote(ctx context.Context, tk string) (model.Quote, error) {
	chart, err := f.fetchChart(ctx, tk, "1d", "1d")
	if err != nil {
		return model.Quote{}, err
	}
	result := chart.Chart.Result[0]
	meta := result.Meta
	if meta.RegularMarketPrice <= 0 {
		return model.Quote{}, fmt.Errorf("yahoo quote %s: %w", tk, ErrNoData)
	}

	prev := meta.ChartPreviousClose
	if prev <= 0 {
		prev = meta.PreviousClose
	}
	q := model.Quote{
		Symbol:        tk,
		CurrentPrice:  meta.RegularMarketPrice,
		PreviousClose: prev,
		High:          meta.DayHigh,
		Low:           meta.DayLow,
		Volume:        meta.Volume,
		High52w:       null.FloatFromPtr(meta.High52w),
		Low52w:        null.FloatFromPtr(meta.Low52w),
		Timestamp:     time.Unix(meta.MarketTime, 0),
		Source:        f.Name(),
	}
	if len(result.Indicators.Quote) > 0 && len(result.Indicators.Quote[0].Open) > 0 {
		q.Open = toFloat(result.Indicators.Quote[0].Open[0])
	}
	completeQuote(&q, nil, nil)
	return q, nil
}

// FetchQuotes requests up to BatchLimit symbols in one round trip.
func (f *YahooFetcher) FetchQuotes(ctx context.Context, tickers []string) (map[string]model.Quote, error) {
	if len(tickers) == 0 {
		return map[string]model.Quote{}, nil
	}
	symbols := make([]string, len(tickers))
	requested := make(map[string]string, len(tickers))
	for i, tk := range tickers {
		symbols[i] = f.Normalizer.ToProviderForm(tk)
		requested[symbols[i]] = tk
	}
	endpoint := fmt.Sprintf(f.QuoteURL, url.QueryEscape(strings.Join(symbols, ",")))

	var resp yahooQuoteResponse
	decode := func(b []byte) error {
		if err := json.Unmarshal(b, &resp); err != nil {
			return err
		}
		if resp.QuoteResponse.Error != nil {
			return fmt.Errorf("api error: %s", resp.QuoteResponse.Error.Description)
		}
		return nil
	}
	if err := f.Chain.Do(ctx, endpoint, decode); err != nil {
		return nil, fmt.Errorf("yahoo quotes: %w", err)
	}

	out := make(map[string]model.Quote, len(resp.QuoteResponse.Result))
	for _, r := range resp.QuoteResponse.Result {
		if r.Price <= 0 {
			continue
		}
		tk, ok := requested[r.Symbol]
		if !ok {
			tk = f.Normalizer.FromProviderForm(r.Symbol)
		}
		q := model.Quote{
			Symbol:        tk,
			CurrentPrice:  r.Price,
			PreviousClose: r.PreviousClose,
			Open:          r.Open,
			High:          r.DayHigh,
			Low:           r.DayLow,
			Volume:        r.Volume,
			High52w:       null.FloatFromPtr(r.High52w),
			Low52w:        null.FloatFromPtr(r.Low52w),
			MarketCap:     null.FloatFromPtr(r.MarketCap),
			PreMarket:     null.FloatFromPtr(r.PreMarket),
			PostMarket:    null.FloatFromPtr(r.PostMarket),
			Timestamp:     time.Unix(r.MarketTime, 0),
			Source:        f.Name(),
		}
		completeQuote(&q, r.Change, r.ChangePercent)
		out[tk] = q
	}
	return out, nil
}

func (f *YahooFetcher) FetchChart(ctx context.Context, tk string, period model.Period) (model.ChartSeries, error) {
	rng, interval := yahooRange(period)
	chart, err := f.fetchChart(ctx, tk, interval, rng)
	if err != nil {
		return nil, err
	}
	result := chart.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: %w", tk, ErrNoData)
	}

	quote := result.Indicators.Quote[0]
	series := make(model.ChartSeries, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		c := toFloat(quote.Close[i])
		if c == 0 {
			continue // skip null bars (holidays etc.)
		}
		series = append(series, model.ChartPoint{
			Date:   time.Unix(ts, 0).UTC(),
			Price:  c,
			Open:   toFloat(valueAt(quote.Open, i)),
			High:   toFloat(valueAt(quote.High, i)),
			Low:    toFloat(valueAt(quote.Low, i)),
			Close:  c,
			Volume: toFloat(valueAt(quote.Volume, i)),
		})
	}
	return series, nil
}

func valueAt(vs []interface{}, i int) interface{} {
	if i < len(vs) {
		return vs[i]
	}
	return nil
}
