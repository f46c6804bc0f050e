// Package pipeline owns one heat-map refresh pipeline: the stock-state tree,
// the response cache, the provider client and the status tracker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"MarketHeatmap/internal/cache"
	"MarketHeatmap/internal/collector"
	"MarketHeatmap/internal/model"
	"MarketHeatmap/internal/recorder"
	"MarketHeatmap/internal/scheduler"
	"MarketHeatmap/internal/status"
	"MarketHeatmap/internal/tree"
)

// ErrSuperseded is returned by a cycle that a newer cycle replaced.
var ErrSuperseded = errors.New("refresh cycle superseded")

// IndexTrackers are the headline symbols shown above the heat map.
var IndexTrackers = []struct{ Symbol, Name string }{
	{"SPY", "S&P 500"},
	{"QQQ", "NASDAQ 100"},
}

// Pipeline is safe for concurrent use. Starting a cycle cancels the one in
// progress; results of the cancelled cycle are discarded.
type Pipeline struct {
	client  *collector.Collector
	cache   *cache.Cache
	tree    *tree.Tree
	tracker *status.Tracker
	batches *scheduler.BatchScheduler

	render     RenderHook
	statusHook StatusHook
	recorder   recorder.Recorder
	logger     *logrus.Logger
	now        func() time.Time

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	indices []model.IndexQuote
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRenderHook sets the hook invoked after every tree merge.
func WithRenderHook(h RenderHook) Option {
	return func(p *Pipeline) { p.render = h }
}

// WithStatusHook sets the hook invoked after every status change.
func WithStatusHook(h StatusHook) Option {
	return func(p *Pipeline) { p.statusHook = h }
}

// WithRecorder sets where finished cycles are recorded.
func WithRecorder(r recorder.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock replaces time.Now for the pipeline and its status tracker.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline. c must be the cache the client reads from.
func New(client *collector.Collector, c *cache.Cache, t *tree.Tree, batches *scheduler.BatchScheduler, opts ...Option) *Pipeline {
	p := &Pipeline{
		client:   client,
		cache:    c,
		tree:     t,
		tracker:  status.NewTracker(),
		batches:  batches,
		recorder: recorder.NewNoopRecorder(),
		logger:   logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.tracker.Now = p.now
	return p
}

// Refresh runs a periodic cycle. Cached quotes within TTL are reused and
// the tree keeps its values until new quotes arrive.
func (p *Pipeline) Refresh(ctx context.Context) error {
	return p.run(ctx, false)
}

// RefreshAll runs a full cycle: the cache is cleared and every change is
// reset to null before fetching.
func (p *Pipeline) RefreshAll(ctx context.Context) error {
	return p.run(ctx, true)
}

func (p *Pipeline) begin(parent context.Context) (context.Context, uint64, context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	return ctx, p.gen, cancel
}

func (p *Pipeline) run(parent context.Context, full bool) error {
	ctx, gen, cancel := p.begin(parent)
	defer cancel()

	log := p.logger.WithFields(logrus.Fields{"cycle": gen, "full": full})
	started := p.now()

	if full {
		p.cache.Clear()
	}
	if p.client.BeginCycle() {
		log.Info("live source re-probed")
	}

	tickers := p.tree.Tickers()
	p.tree.Advance(gen, full)
	p.tracker.Start(gen, len(tickers), p.client.Synthetic())
	p.notifyStatus()
	if full {
		p.notifyRender(gen)
	}
	log.WithField("tickers", len(tickers)).Info("refresh started")

	err := p.batches.Run(ctx, tickers, p.client.FetchQuotes, func(res scheduler.BatchResult) {
		if _, ok := p.tree.Merge(gen, res.Quotes); !ok {
			return
		}
		p.notifyRender(gen)
		if p.tracker.Record(gen, len(res.Quotes), res.Failed()) {
			p.notifyStatus()
		}
	})
	if err != nil {
		log.WithError(err).Info("refresh stopped")
		if p.current() != gen {
			return fmt.Errorf("refresh cycle %d: %w", gen, ErrSuperseded)
		}
		// Cancelled from outside: close the cycle so the status does not stay loading.
		if p.tracker.Finish(gen, p.client.Synthetic()) {
			p.notifyStatus()
		}
		return fmt.Errorf("refresh cycle %d: %w", gen, err)
	}
	if !p.tracker.Finish(gen, p.client.Synthetic()) {
		return fmt.Errorf("refresh cycle %d: %w", gen, ErrSuperseded)
	}
	p.notifyRender(gen)
	p.notifyStatus()

	st := p.tracker.Snapshot()
	log.WithFields(logrus.Fields{
		"ok":     st.SuccessCount,
		"fail":   st.FailCount,
		"source": p.client.Name(),
	}).Info("refresh finished")

	if _, err := p.Indices(ctx); err != nil {
		log.WithError(err).Warn("index trackers unavailable")
	}

	if err := p.recorder.RecordCycle(&recorder.CycleRecord{
		Generation:   gen,
		Full:         full,
		StartedAt:    started,
		FinishedAt:   p.now(),
		TotalStocks:  st.TotalStocks,
		SuccessCount: st.SuccessCount,
		FailCount:    st.FailCount,
		Live:         st.IsLive,
		Synthetic:    st.Synthetic,
		Provider:     p.client.Name(),
	}); err != nil {
		log.WithError(err).Error("record cycle")
	}
	return nil
}

func (p *Pipeline) current() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *Pipeline) notifyRender(gen uint64) {
	if p.render != nil {
		p.render.TreeUpdated(gen)
	}
}

func (p *Pipeline) notifyStatus() {
	if p.statusHook != nil {
		st := p.tracker.Snapshot()
		p.statusHook.StatusUpdated(st, status.Text(st, p.now()))
	}
}

// FetchOne returns the quote for one ticker, from cache when fresh.
func (p *Pipeline) FetchOne(ctx context.Context, ticker string) (model.Quote, bool) {
	return p.client.FetchQuote(ctx, ticker)
}

// FetchChart returns the chart of ticker over period.
func (p *Pipeline) FetchChart(ctx context.Context, ticker string, period model.Period) (model.ChartSeries, bool) {
	return p.client.FetchChart(ctx, ticker, period)
}

// Indices fetches the index trackers concurrently. Trackers that fail keep
// their previous value.
func (p *Pipeline) Indices(ctx context.Context) ([]model.IndexQuote, error) {
	quotes := make([]model.Quote, len(IndexTrackers))
	found := make([]bool, len(IndexTrackers))

	g, gctx := errgroup.WithContext(ctx)
	for i, idx := range IndexTrackers {
		g.Go(func() error {
			quotes[i], found[i] = p.client.FetchQuote(gctx, idx.Symbol)
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.indices == nil {
		p.indices = make([]model.IndexQuote, len(IndexTrackers))
		for i, idx := range IndexTrackers {
			p.indices[i] = model.IndexQuote{Symbol: idx.Symbol, Name: idx.Name, Text: "--"}
		}
	}
	resolved := 0
	for i, ok := range found {
		if !ok {
			continue
		}
		resolved++
		p.indices[i].ChangePercent = quotes[i].ChangePercent
		p.indices[i].Text = FormatChange(quotes[i].ChangePercent)
	}

	out := append([]model.IndexQuote(nil), p.indices...)
	if resolved == 0 {
		return out, collector.ErrNoData
	}
	return out, nil
}

// FormatChange renders a percent change with an explicit sign, e.g. "+1.33%".
func FormatChange(pct float64) string {
	return fmt.Sprintf("%+.2f%%", pct)
}

// Status returns the current refresh status.
func (p *Pipeline) Status() model.RefreshStatus {
	return p.tracker.Snapshot()
}

// StatusText returns the display text of the current status.
func (p *Pipeline) StatusText() string {
	return p.tracker.Text()
}

// Tree returns a deep copy of the stock-state tree.
func (p *Pipeline) Tree() []tree.Sector {
	return p.tree.Snapshot()
}

// Stock returns the tree entry of ticker.
func (p *Pipeline) Stock(ticker string) (tree.Stock, bool) {
	return p.tree.Find(ticker)
}

// TopMovers returns the largest gainers or losers with a known change.
func (p *Pipeline) TopMovers(gainers bool, limit int) []tree.Stock {
	return p.tree.TopMovers(gainers, limit)
}

// Source returns the name of the fetcher currently serving data.
func (p *Pipeline) Source() string {
	return p.client.Name()
}
