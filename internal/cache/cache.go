// Package cache holds recent quote and chart responses for a fixed TTL.
// Stale entries are ignored by Get but stay in the map until the next Put
// for the same key or a Clear. The key space is bounded by the ticker
// universe, so no background purge runs.
package cache

import (
	"sync"
	"time"

	"MarketHeatmap/internal/model"
)

// Kind separates quote entries from chart entries. Each kind has its own TTL.
type Kind string

const (
	KindQuote Kind = "quote"
	KindChart Kind = "chart"
)

// Key identifies a cached response. Range is empty for quotes.
type Key struct {
	Kind   Kind
	Symbol string
	Range  string
}

// QuoteKey builds the key for a single-quote response.
func QuoteKey(symbol string) Key {
	return Key{Kind: KindQuote, Symbol: symbol}
}

// ChartKey builds the key for a chart response over a range.
func ChartKey(symbol, rng string) Key {
	return Key{Kind: KindChart, Symbol: symbol, Range: rng}
}

type entry struct {
	value      any
	insertedAt time.Time
}

// Cache is safe for concurrent use. Concurrent Puts for the same key are last-writer-wins.
type Cache struct {
	QuoteTTL time.Duration
	ChartTTL time.Duration
	Now      func() time.Time

	mu    sync.RWMutex
	items map[Key]entry
}

// New creates a Cache. A zero chartTTL defaults to five times the quote TTL.
func New(quoteTTL, chartTTL time.Duration) *Cache {
	if chartTTL <= 0 {
		chartTTL = 5 * quoteTTL
	}
	return &Cache{
		QuoteTTL: quoteTTL,
		ChartTTL: chartTTL,
		Now:      time.Now,
		items:    make(map[Key]entry),
	}
}

// TTL returns the validity window for a kind.
func (c *Cache) TTL(kind Kind) time.Duration {
	if kind == KindChart {
		return c.ChartTTL
	}
	return c.QuoteTTL
}

// Get returns the value only while now - insertedAt < TTL(kind).
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.Now().Sub(e.insertedAt) >= c.TTL(key.Kind) {
		return nil, false
	}
	return e.value, true
}

// Put overwrites the entry with a fresh timestamp.
func (c *Cache) Put(key Key, value any) {
	c.mu.Lock()
	c.items[key] = entry{value: value, insertedAt: c.Now()}
	c.mu.Unlock()
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.items = make(map[Key]entry)
	c.mu.Unlock()
}

// Len counts entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) Quote(symbol string) (model.Quote, bool) {
	v, ok := c.Get(QuoteKey(symbol))
	if !ok {
		return model.Quote{}, false
	}
	q, ok := v.(model.Quote)
	return q, ok
}

func (c *Cache) PutQuote(q model.Quote) {
	c.Put(QuoteKey(q.Symbol), q)
}

func (c *Cache) Chart(symbol, rng string) (model.ChartSeries, bool) {
	v, ok := c.Get(ChartKey(symbol, rng))
	if !ok {
		return nil, false
	}
	s, ok := v.(model.ChartSeries)
	return s, ok
}

func (c *Cache) PutChart(symbol, rng string, series model.ChartSeries) {
	c.Put(ChartKey(symbol, rng), series)
}
