package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"MarketHeatmap/internal/cache"
	"MarketHeatmap/internal/fallback"
	"MarketHeatmap/internal/logging"
	"MarketHeatmap/internal/model"
)

// Collector is the provider client used by the pipeline. It serves quotes and
// charts from the cache, fetches misses from the live source and reports
// every failure as an absent result.
//
// When a synthetic fetcher is configured and the live source becomes
// unreachable (every transport strategy failed), the Collector switches to
// synthetic data for the rest of the session. BeginCycle re-probes the live
// source every reprobeEvery cycles; zero disables re-probing.
type Collector struct {
	live         Fetcher
	synthetic    Fetcher
	cache        *cache.Cache
	limiter      *rate.Limiter
	logger       *logrus.Logger
	reprobeEvery int
	fetchTimeout time.Duration

	sf singleflight.Group

	mu             sync.Mutex
	degraded       bool
	degradedCycles int
}

// Option configures a Collector.
type Option func(*Collector)

// WithSynthetic enables the synthetic fallback.
func WithSynthetic(f Fetcher, reprobeEvery int) Option {
	return func(c *Collector) {
		c.synthetic = f
		c.reprobeEvery = reprobeEvery
	}
}

// WithRateLimit caps live upstream calls per minute. Burst allows one batch to start at once.
func WithRateLimit(callsPerMinute, burst int) Option {
	return func(c *Collector) {
		if callsPerMinute <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(callsPerMinute)), burst)
	}
}

// DefaultFetchTimeout bounds one shared upstream fetch.
const DefaultFetchTimeout = 30 * time.Second

// WithFetchTimeout bounds one shared upstream fetch. A fetch is shared by
// every concurrent caller for the same key and outlives any single caller.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Collector) {
		c.logger = l
	}
}

// NewCollector creates a Collector over the live fetcher.
func NewCollector(live Fetcher, c *cache.Cache, opts ...Option) *Collector {
	col := &Collector{
		live:         live,
		cache:        c,
		logger:       logging.Discard(),
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(col)
	}
	return col
}

// Name returns the name of the source currently serving requests.
func (c *Collector) Name() string {
	return c.source().Name()
}

// Degraded reports whether the Collector is serving synthetic data in place of the live source.
func (c *Collector) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Synthetic reports whether served data is generated rather than fetched.
func (c *Collector) Synthetic() bool {
	return c.Name() == "synthetic"
}

// BeginCycle is called at the start of every refresh cycle. It returns true
// when the live source is re-probed; the cache is cleared so synthetic
// entries are not served as live data.
func (c *Collector) BeginCycle() bool {
	c.mu.Lock()
	if !c.degraded || c.reprobeEvery <= 0 {
		c.mu.Unlock()
		return false
	}
	c.degradedCycles++
	if c.degradedCycles%c.reprobeEvery != 0 {
		c.mu.Unlock()
		return false
	}
	c.degraded = false
	c.degradedCycles = 0
	c.mu.Unlock()

	c.cache.Clear()
	c.logger.WithField("source", c.live.Name()).Info("re-probing live source")
	return true
}

func (c *Collector) source() Fetcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded && c.synthetic != nil {
		return c.synthetic
	}
	return c.live
}

// degrade switches to synthetic data when err shows the live source is unreachable.
// It returns the synthetic fetcher, or nil when the error is not recoverable that way.
func (c *Collector) degrade(src Fetcher, err error) Fetcher {
	if c.synthetic == nil || src == c.synthetic || !errors.Is(err, fallback.ErrExhausted) {
		return nil
	}
	c.mu.Lock()
	already := c.degraded
	c.degraded = true
	c.mu.Unlock()
	if !already {
		c.logger.WithField("source", src.Name()).Warnf("live source unreachable, switching to synthetic data: %v", err)
	}
	return c.synthetic
}

func (c *Collector) wait(ctx context.Context, src Fetcher) error {
	if c.limiter == nil || src == c.synthetic {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// FetchQuote returns the quote for one ticker. The bool is false when no
// usable quote could be obtained; the reason is logged, never returned.
func (c *Collector) FetchQuote(ctx context.Context, tk string) (model.Quote, bool) {
	if q, ok := c.cache.Quote(tk); ok {
		c.logger.WithField("ticker", tk).Debug("quote cache hit")
		return q, true
	}
	v, err := c.shared(ctx, "quote:"+tk, func(fctx context.Context) (any, error) {
		return c.fetchQuote(fctx, tk)
	})
	if err != nil {
		c.logger.WithField("ticker", tk).Warnf("fetch quote failed: %v", err)
		return model.Quote{}, false
	}
	return v.(model.Quote), true
}

// shared runs fn once per key for all concurrent callers. The flight is
// detached from the caller that started it, so one cancelled caller does not
// fail the others; each caller still stops waiting when its own ctx ends.
func (c *Collector) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.sf.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return fn(fctx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Collector) fetchQuote(ctx context.Context, tk string) (model.Quote, error) {
	src := c.source()
	if err := c.wait(ctx, src); err != nil {
		return model.Quote{}, err
	}
	q, err := src.FetchQuote(ctx, tk)
	if err != nil {
		syn := c.degrade(src, err)
		if syn == nil {
			return model.Quote{}, err
		}
		if q, err = syn.FetchQuote(ctx, tk); err != nil {
			return model.Quote{}, err
		}
	}
	q.Symbol = tk
	if err := validateQuote(q); err != nil {
		return model.Quote{}, fmt.Errorf("%s from %s: %w", tk, q.Source, err)
	}
	c.cache.PutQuote(q)
	return q, nil
}

// FetchQuotes resolves quotes for a group of tickers. Providers with a
// multi-symbol endpoint get one request per chunk; others get one concurrent
// request per ticker. Tickers without a usable quote are absent from the map.
func (c *Collector) FetchQuotes(ctx context.Context, tickers []string) map[string]model.Quote {
	out := make(map[string]model.Quote, len(tickers))
	var missing []string
	for _, tk := range tickers {
		if q, ok := c.cache.Quote(tk); ok {
			out[tk] = q
			continue
		}
		missing = append(missing, tk)
	}
	if len(missing) == 0 {
		return out
	}

	if bf, ok := c.source().(BatchFetcher); ok {
		for _, chunk := range chunkTickers(missing, bf.MaxBatch()) {
			for tk, q := range c.fetchBatch(ctx, bf, chunk) {
				out[tk] = q
			}
		}
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, tk := range missing {
		g.Go(func() error {
			if q, ok := c.FetchQuote(gctx, tk); ok {
				mu.Lock()
				out[tk] = q
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Collector) fetchBatch(ctx context.Context, bf BatchFetcher, chunk []string) map[string]model.Quote {
	out := make(map[string]model.Quote, len(chunk))

	var quotes map[string]model.Quote
	if c.source() != Fetcher(bf) {
		quotes = c.syntheticQuotes(ctx, chunk)
	} else {
		if err := c.wait(ctx, bf); err != nil {
			c.logger.Warnf("fetch quotes aborted: %v", err)
			return out
		}
		var err error
		if quotes, err = bf.FetchQuotes(ctx, chunk); err != nil {
			if c.degrade(bf, err) == nil {
				c.logger.WithField("tickers", len(chunk)).Warnf("fetch quotes failed: %v", err)
				return out
			}
			quotes = c.syntheticQuotes(ctx, chunk)
		}
	}

	for _, tk := range chunk {
		q, ok := quotes[tk]
		if !ok {
			c.logger.WithField("ticker", tk).Warn("no quote in batch response")
			continue
		}
		q.Symbol = tk
		if err := validateQuote(q); err != nil {
			c.logger.WithField("ticker", tk).Warnf("discarding quote: %v", err)
			continue
		}
		c.cache.PutQuote(q)
		out[tk] = q
	}
	return out
}

func (c *Collector) syntheticQuotes(ctx context.Context, chunk []string) map[string]model.Quote {
	quotes := make(map[string]model.Quote, len(chunk))
	for _, tk := range chunk {
		if q, err := c.synthetic.FetchQuote(ctx, tk); err == nil {
			quotes[tk] = q
		}
	}
	return quotes
}

// FetchChart returns the chart for a ticker over a period in ascending time order.
func (c *Collector) FetchChart(ctx context.Context, tk string, period model.Period) (model.ChartSeries, bool) {
	if s, ok := c.cache.Chart(tk, string(period)); ok {
		return s, true
	}
	v, err := c.shared(ctx, "chart:"+tk+":"+string(period), func(fctx context.Context) (any, error) {
		return c.fetchChart(fctx, tk, period)
	})
	if err != nil {
		c.logger.WithFields(logrus.Fields{"ticker": tk, "period": period}).Warnf("fetch chart failed: %v", err)
		return nil, false
	}
	return v.(model.ChartSeries), true
}

func (c *Collector) fetchChart(ctx context.Context, tk string, period model.Period) (model.ChartSeries, error) {
	src := c.source()
	if err := c.wait(ctx, src); err != nil {
		return nil, err
	}
	series, err := src.FetchChart(ctx, tk, period)
	if err != nil {
		syn := c.degrade(src, err)
		if syn == nil {
			return nil, err
		}
		if series, err = syn.FetchChart(ctx, tk, period); err != nil {
			return nil, err
		}
	}
	series = normalizeSeries(series)
	if len(series) == 0 {
		return nil, fmt.Errorf("chart %s %s: %w", tk, period, ErrNoData)
	}
	c.cache.PutChart(tk, string(period), series)
	return series, nil
}
