package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketHeatmap/internal/cache"
	"MarketHeatmap/internal/collector"
	"MarketHeatmap/internal/logging"
	"MarketHeatmap/internal/model"
	"MarketHeatmap/internal/scheduler"
	"MarketHeatmap/internal/tree"
)

type fakeFetcher struct {
	mu     sync.Mutex
	quotes map[string]model.Quote
	chart  model.ChartSeries
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{quotes: map[string]model.Quote{}, calls: map[string]int{}}
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) set(tk string, price, pct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[tk] = model.Quote{
		Symbol:        tk,
		CurrentPrice:  price,
		PreviousClose: price / (1 + pct/100),
		ChangePercent: pct,
		Source:        "fake",
	}
}

func (f *fakeFetcher) fail(tk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.quotes, tk)
}

func (f *fakeFetcher) callCount(tk string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tk]
}

func (f *fakeFetcher) FetchQuote(_ context.Context, tk string) (model.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[tk]++
	q, ok := f.quotes[tk]
	if !ok {
		return model.Quote{}, fmt.Errorf("%s: %w", tk, collector.ErrNoData)
	}
	return q, nil
}

func (f *fakeFetcher) FetchChart(_ context.Context, tk string, _ model.Period) (model.ChartSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chart) == 0 {
		return nil, collector.ErrNoData
	}
	return f.chart, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	fetcher *fakeFetcher
	clock   *fakeClock
	cache   *cache.Cache
	batches *scheduler.BatchScheduler
	p       *Pipeline
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		fetcher: newFakeFetcher(),
		clock:   &fakeClock{now: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)},
	}
	f.cache = cache.New(time.Minute, 0)
	f.cache.Now = f.clock.Now
	f.batches = scheduler.NewBatchScheduler(2, time.Second, logging.Discard())
	f.batches.Sleep = func(context.Context, time.Duration) error { return nil }

	col := collector.NewCollector(f.fetcher, f.cache)
	tr := tree.New([]tree.Sector{
		{Name: "Tech", Stocks: []tree.Stock{{Ticker: "AAA", Name: "Aaa"}, {Ticker: "BBB", Name: "Bbb"}}},
		{Name: "Energy", Stocks: []tree.Stock{{Ticker: "CCC", Name: "Ccc"}}},
	})
	opts = append([]Option{WithLogger(logging.Discard()), WithClock(f.clock.Now)}, opts...)
	f.p = New(col, f.cache, tr, f.batches, opts...)
	return f
}

func change(t *testing.T, p *Pipeline, tk string) *float64 {
	t.Helper()
	st, ok := p.Stock(tk)
	require.True(t, ok)
	return st.Change.Ptr()
}

func TestRefreshPartialFailure(t *testing.T) {
	// Arrange
	f := newFixture(t)
	f.fetcher.set("AAA", 10, 1.5)
	f.fetcher.set("CCC", 30, -0.5)

	// Act
	err := f.p.Refresh(t.Context())

	// Assert
	require.NoError(t, err)
	st := f.p.Status()
	assert.Equal(t, 3, st.TotalStocks)
	assert.Equal(t, 2, st.SuccessCount)
	assert.Equal(t, 1, st.FailCount)
	assert.True(t, st.IsLive)
	assert.False(t, st.IsLoading)
	assert.Equal(t, "2/3 loaded", f.p.StatusText())

	require.NotNil(t, change(t, f.p, "AAA"))
	assert.Equal(t, 1.5, *change(t, f.p, "AAA"))
	assert.Equal(t, -0.5, *change(t, f.p, "CCC"))
	assert.Nil(t, change(t, f.p, "BBB"))
}

func TestRefreshKeepsLastKnownValue(t *testing.T) {
	f := newFixture(t)
	for _, tk := range []string{"AAA", "BBB", "CCC"} {
		f.fetcher.set(tk, 10, 1)
	}
	require.NoError(t, f.p.Refresh(t.Context()))

	f.clock.Advance(2 * time.Minute) // past the quote TTL
	f.fetcher.fail("BBB")
	f.fetcher.set("AAA", 11, 2)
	require.NoError(t, f.p.Refresh(t.Context()))

	bbb, _ := f.p.Stock("BBB")
	assert.Equal(t, 1.0, bbb.Change.Float64)
	assert.Equal(t, 10.0, bbb.CurrentPrice.Float64)
	assert.Equal(t, 2.0, *change(t, f.p, "AAA"))
	assert.Equal(t, 2, f.fetcher.callCount("BBB"))
}

func TestRefreshUsesCacheWithinTTL(t *testing.T) {
	f := newFixture(t)
	f.fetcher.set("AAA", 10, 1)
	f.fetcher.set("BBB", 10, 1)
	f.fetcher.set("CCC", 10, 1)

	require.NoError(t, f.p.Refresh(t.Context()))
	require.NoError(t, f.p.Refresh(t.Context()))

	assert.Equal(t, 1, f.fetcher.callCount("AAA"))
	assert.Equal(t, 3, f.p.Status().SuccessCount)
}

func TestRefreshAllClearsCacheAndResets(t *testing.T) {
	f := newFixture(t)
	for _, tk := range []string{"AAA", "BBB", "CCC"} {
		f.fetcher.set(tk, 10, 1)
	}
	require.NoError(t, f.p.Refresh(t.Context()))
	for _, tk := range []string{"AAA", "BBB", "CCC"} {
		f.fetcher.fail(tk)
	}

	require.NoError(t, f.p.RefreshAll(t.Context()))

	assert.Equal(t, 2, f.fetcher.callCount("AAA"), "cache was cleared")
	for _, tk := range []string{"AAA", "BBB", "CCC"} {
		assert.Nil(t, change(t, f.p, tk))
	}
	st := f.p.Status()
	assert.False(t, st.IsLive)
	assert.Equal(t, 3, st.FailCount)
	assert.Equal(t, "Data unavailable", f.p.StatusText())
}

type hookRecorder struct {
	mu       sync.Mutex
	renders  []uint64
	statuses []model.RefreshStatus
	texts    []string
}

func (h *hookRecorder) TreeUpdated(gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.renders = append(h.renders, gen)
}

func (h *hookRecorder) StatusUpdated(st model.RefreshStatus, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, st)
	h.texts = append(h.texts, text)
}

func TestHooksFollowProgress(t *testing.T) {
	h := &hookRecorder{}
	f := newFixture(t, WithRenderHook(h), WithStatusHook(h))
	f.fetcher.set("AAA", 10, 1)
	f.fetcher.set("BBB", 10, 1)
	f.fetcher.set("CCC", 10, 1)

	require.NoError(t, f.p.Refresh(t.Context()))

	// two batches plus the final render
	assert.Equal(t, []uint64{1, 1, 1}, h.renders)
	// start, two batches, finish
	require.Len(t, h.statuses, 4)
	assert.Equal(t, []string{"Loading...", "2/3", "3/3", "Live"}, h.texts)
	for _, st := range h.statuses {
		assert.LessOrEqual(t, st.Progress(), st.TotalStocks)
	}
	last := h.statuses[len(h.statuses)-1]
	assert.Equal(t, last.TotalStocks, last.Progress())
	assert.False(t, last.IsLoading)
}

func TestHooksAreOptional(t *testing.T) {
	f := newFixture(t, WithRenderHook(nil), WithStatusHook(nil))
	f.fetcher.set("AAA", 10, 1)

	assert.NoError(t, f.p.RefreshAll(t.Context()))
}

func TestNewCycleSupersedesRunningCycle(t *testing.T) {
	f := newFixture(t)
	for _, tk := range []string{"AAA", "BBB", "CCC"} {
		f.fetcher.set(tk, 10, 1)
	}

	var nested error
	sleeps := 0
	f.batches.Sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps++
		if sleeps == 1 {
			// a user refresh arrives while the periodic cycle waits between batches
			nested = f.p.RefreshAll(context.Background())
		}
		return ctx.Err()
	}

	err := f.p.Refresh(t.Context())

	assert.ErrorIs(t, err, ErrSuperseded)
	require.NoError(t, nested)
	st := f.p.Status()
	assert.Equal(t, uint64(2), st.Generation)
	assert.False(t, st.IsLoading)
	assert.Equal(t, 3, st.SuccessCount)
}

func TestRefreshParentCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := f.p.Refresh(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrSuperseded))
	st := f.p.Status()
	assert.False(t, st.IsLoading, "a cancelled cycle must not stay loading")
	assert.Equal(t, 0, st.SuccessCount)
	assert.Equal(t, 3, st.FailCount)
	assert.Equal(t, "Data unavailable", f.p.StatusText())
}

func TestRefreshCancelledMidCycleKeepsPartialCounts(t *testing.T) {
	f := newFixture(t)
	f.fetcher.set("AAA", 10, 1)
	f.fetcher.set("BBB", 20, 2)
	f.fetcher.set("CCC", 30, 3)
	ctx, cancel := context.WithCancel(t.Context())
	f.batches.Sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	err := f.p.Refresh(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	st := f.p.Status()
	assert.False(t, st.IsLoading)
	assert.Equal(t, 2, st.SuccessCount)
	assert.Equal(t, 1, st.FailCount)
	assert.Equal(t, "2/3 loaded", f.p.StatusText())
}

func TestIndices(t *testing.T) {
	f := newFixture(t)
	f.fetcher.set("SPY", 500, 1.234)

	got, err := f.p.Indices(t.Context())

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SPY", got[0].Symbol)
	assert.Equal(t, "+1.23%", got[0].Text)
	assert.Equal(t, "QQQ", got[1].Symbol)
	assert.Equal(t, "--", got[1].Text)
}

func TestIndicesAllFailing(t *testing.T) {
	f := newFixture(t)

	got, err := f.p.Indices(t.Context())

	assert.ErrorIs(t, err, collector.ErrNoData)
	assert.Len(t, got, 2)
}

func TestFormatChange(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{1.33, "+1.33%"},
		{-0.5, "-0.50%"},
		{0, "+0.00%"},
		{12.345, "+12.35%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatChange(tt.pct))
	}
}

func TestDetail(t *testing.T) {
	f := newFixture(t)
	f.fetcher.set("AAA", 150, 2)
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		price := 100 + float64(i)
		f.fetcher.chart = append(f.fetcher.chart, model.ChartPoint{
			Date:   start.AddDate(0, 0, i),
			Price:  price,
			Close:  price,
			High:   price + 1,
			Low:    price - 1,
			Volume: 1000,
		})
	}

	d, ok := f.p.Detail(t.Context(), "AAA")

	require.True(t, ok)
	assert.Equal(t, "Aaa", d.Stock.Name)
	assert.Equal(t, "+2.00%", d.ChangeText)
	assert.Equal(t, 160.0, d.High52w.Float64)
	assert.Equal(t, 99.0, d.Low52w.Float64)
	assert.Equal(t, 1000.0, d.AvgVolume.Float64)
	assert.True(t, d.MA50.Valid)
	assert.Equal(t, 100.0, d.RSI14.Float64)
	assert.InDelta(t, (150.0-99)/(160-99), d.Position52w.Float64, 1e-9)
}

func TestDetailUnknownTicker(t *testing.T) {
	f := newFixture(t)
	f.fetcher.set("ZZZ", 10, 1)

	_, ok := f.p.Detail(t.Context(), "ZZZ")

	assert.False(t, ok)
}

func TestDetailWithoutChart(t *testing.T) {
	f := newFixture(t)
	f.fetcher.set("AAA", 150, 2)

	d, ok := f.p.Detail(t.Context(), "AAA")

	require.True(t, ok)
	assert.False(t, d.High52w.Valid)
	assert.False(t, d.AvgVolume.Valid)
}
