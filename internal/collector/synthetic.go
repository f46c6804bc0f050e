package collector

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"MarketHeatmap/internal/market"
	"MarketHeatmap/internal/model"
)

// SyntheticFetcher generates plausible quotes and charts without any network access.
// It serves development setups and the degraded mode of the Collector.
type SyntheticFetcher struct {
	BasePrices map[string]float64 // optional fixture prices by ticker
	Now        func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSyntheticFetcher creates a generator. The same seed yields the same data.
func NewSyntheticFetcher(seed int64, basePrices map[string]float64) *SyntheticFetcher {
	return &SyntheticFetcher{
		BasePrices: basePrices,
		Now:        time.Now,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (s *SyntheticFetcher) Name() string { return "synthetic" }

// basePrice returns the fixture price or a stable ticker-derived price in [20, 520).
func (s *SyntheticFetcher) basePrice(tk string) float64 {
	if p, ok := s.BasePrices[tk]; ok && p > 0 {
		return p
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(tk))
	return 20 + float64(h.Sum32()%50000)/100
}

func (s *SyntheticFetcher) FetchQuote(_ context.Context, tk string) (model.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := round2(s.basePrice(tk))
	pct := math.Max(-6, math.Min(6, s.rng.NormFloat64()*1.5))
	current := round2(prev * (1 + pct/100))
	open := round2(prev * (1 + (s.rng.Float64()-0.5)*0.01))
	high := round2(math.Max(open, current) * (1 + s.rng.Float64()*0.01))
	low := round2(math.Min(open, current) * (1 - s.rng.Float64()*0.01))

	q := model.Quote{
		Symbol:        tk,
		CurrentPrice:  current,
		PreviousClose: prev,
		Open:          open,
		High:          high,
		Low:           low,
		Volume:        float64(20_000_000 + s.rng.Intn(50_000_000)),
		Timestamp:     s.Now(),
		Source:        s.Name(),
	}
	completeQuote(&q, nil, nil)
	return q, nil
}

// walk holds the random-walk shape of a period.
type walk struct {
	days       int
	volatility float64
	trend      float64
}

var syntheticWalks = map[model.Period]walk{
	model.Period1W: {7, 0.02, 0.05},
	model.Period1M: {30, 0.028, 0.10},
	model.Period3M: {90, 0.035, 0.18},
	model.Period1Y: {365, 0.045, 0.30},
	model.Period5Y: {1825, 0.05, 0.35},
}

const intradayVolatility = 0.025

func (s *SyntheticFetcher) FetchChart(_ context.Context, tk string, period model.Period) (model.ChartSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.basePrice(tk)
	if period == model.Period1D {
		return s.intraday(base, intradayVolatility), nil
	}
	w, ok := syntheticWalks[period]
	if !ok {
		w = syntheticWalks[model.Period1M]
	}
	return s.history(base, w), nil
}

// history produces one point per day for w.days days plus today. The start
// price is offset by the trend so the walk ends near base.
func (s *SyntheticFetcher) history(base float64, w walk) model.ChartSeries {
	price := base * (1 - float64(w.days)*w.trend/365)
	now := s.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	series := make(model.ChartSeries, 0, w.days+1)
	for i := w.days; i >= 0; i-- {
		open := price
		change := (s.rng.Float64()-0.5)*w.volatility + w.trend/365
		price *= 1 + change
		series = append(series, s.bar(today.AddDate(0, 0, -i), open, price, w.volatility, 20_000_000, 50_000_000))
	}
	return series
}

// intraday produces 5-minute bars from 09:30 to 16:00 New York time (79 points).
func (s *SyntheticFetcher) intraday(base, volatility float64) model.ChartSeries {
	price := base * 0.998
	start := market.SessionOpen(s.Now())

	series := make(model.ChartSeries, 0, 79)
	for i := 0; i <= 78; i++ {
		open := price
		change := (s.rng.Float64() - 0.48) * volatility * 0.3
		price *= 1 + change
		series = append(series, s.bar(start.Add(time.Duration(i)*5*time.Minute), open, price, volatility*0.3, 500_000, 2_000_000))
	}
	return series
}

func (s *SyntheticFetcher) bar(at time.Time, open, close, volatility float64, minVol, spread int) model.ChartPoint {
	c := round2(close)
	o := round2(open)
	return model.ChartPoint{
		Date:   at,
		Price:  c,
		Open:   o,
		High:   round2(math.Max(o, c) * (1 + s.rng.Float64()*volatility/4)),
		Low:    round2(math.Min(o, c) * (1 - s.rng.Float64()*volatility/4)),
		Close:  c,
		Volume: float64(minVol + s.rng.Intn(spread)),
	}
}
