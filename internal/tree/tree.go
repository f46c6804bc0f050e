// Package tree holds the sector/stock hierarchy the heat map is drawn from
// and merges quote results into it.
package tree

import (
	"sort"
	"sync"

	"github.com/guregu/null/v6"

	"MarketHeatmap/internal/model"
)

// DefaultMarketCap is used for catalog entries without a cap (billions).
const DefaultMarketCap = 10

// Stock is one leaf of the tree. Change is the daily change in percent and
// stays null until the first successful quote.
type Stock struct {
	Ticker       string     `json:"ticker" yaml:"ticker"`
	Name         string     `json:"name" yaml:"name"`
	Sector       string     `json:"sector" yaml:"-"`
	MarketCap    float64    `json:"marketCap" yaml:"cap"`
	Change       null.Float `json:"change" yaml:"-"`
	CurrentPrice null.Float `json:"currentPrice" yaml:"-"`
	FixturePrice float64    `json:"-" yaml:"price"` // reference price for synthetic data, optional
}

// Sector groups stocks.
type Sector struct {
	Name   string  `json:"name" yaml:"name"`
	Stocks []Stock `json:"stocks" yaml:"stocks"`
}

type position struct{ sector, stock int }

// Tree is safe for concurrent use. Merges are tagged with the cycle
// generation; only merges for the current generation are applied.
type Tree struct {
	mu         sync.RWMutex
	sectors    []Sector
	index      map[string]position
	generation uint64
}

// New builds a tree from sectors. Sector names are copied into each stock and
// missing caps are set to DefaultMarketCap. Duplicate tickers keep the first entry.
func New(sectors []Sector) *Tree {
	t := &Tree{index: make(map[string]position)}
	for _, s := range sectors {
		sec := Sector{Name: s.Name, Stocks: make([]Stock, 0, len(s.Stocks))}
		for _, st := range s.Stocks {
			if _, dup := t.index[st.Ticker]; dup || st.Ticker == "" {
				continue
			}
			st.Sector = s.Name
			if st.MarketCap <= 0 {
				st.MarketCap = DefaultMarketCap
			}
			t.index[st.Ticker] = position{len(t.sectors), len(sec.Stocks)}
			sec.Stocks = append(sec.Stocks, st)
		}
		t.sectors = append(t.sectors, sec)
	}
	return t
}

// Tickers returns every ticker in catalog order.
func (t *Tree) Tickers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.index))
	for _, s := range t.sectors {
		for _, st := range s.Stocks {
			out = append(out, st.Ticker)
		}
	}
	return out
}

// FixturePrices returns the catalog reference prices by ticker. Stocks
// without one are omitted.
func (t *Tree) FixturePrices() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]float64)
	for _, s := range t.sectors {
		for _, st := range s.Stocks {
			if st.FixturePrice > 0 {
				out[st.Ticker] = st.FixturePrice
			}
		}
	}
	return out
}

// Len returns the number of stocks.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.index)
}

// Advance makes gen the current generation. With reset, every change and
// price goes back to null.
func (t *Tree) Advance(gen uint64, reset bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.generation = gen
	if !reset {
		return
	}
	for i := range t.sectors {
		for j := range t.sectors[i].Stocks {
			t.sectors[i].Stocks[j].Change = null.Float{}
			t.sectors[i].Stocks[j].CurrentPrice = null.Float{}
		}
	}
}

// Merge writes the quotes of one batch into the tree in a single step.
// Tickers absent from quotes keep their last known values. It returns the
// number of stocks updated, or false if gen is no longer current.
func (t *Tree) Merge(gen uint64, quotes map[string]model.Quote) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.generation {
		return 0, false
	}
	n := 0
	for tk, q := range quotes {
		pos, ok := t.index[tk]
		if !ok {
			continue
		}
		st := &t.sectors[pos.sector].Stocks[pos.stock]
		st.Change = null.FloatFrom(q.ChangePercent)
		st.CurrentPrice = null.FloatFrom(q.CurrentPrice)
		n++
	}
	return n, true
}

// Find returns a copy of the stock for ticker.
func (t *Tree) Find(ticker string) (Stock, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, ok := t.index[ticker]
	if !ok {
		return Stock{}, false
	}
	return t.sectors[pos.sector].Stocks[pos.stock], true
}

// Snapshot returns a deep copy of all sectors.
func (t *Tree) Snapshot() []Sector {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Sector, len(t.sectors))
	for i, s := range t.sectors {
		out[i] = Sector{Name: s.Name, Stocks: append([]Stock(nil), s.Stocks...)}
	}
	return out
}

// TopMovers returns up to limit stocks with a known change, largest gain
// first for gainers and largest loss first otherwise.
func (t *Tree) TopMovers(gainers bool, limit int) []Stock {
	t.mu.RLock()
	movers := make([]Stock, 0, len(t.index))
	for _, s := range t.sectors {
		for _, st := range s.Stocks {
			if st.Change.Valid {
				movers = append(movers, st)
			}
		}
	}
	t.mu.RUnlock()

	sort.SliceStable(movers, func(i, j int) bool {
		if gainers {
			return movers[i].Change.Float64 > movers[j].Change.Float64
		}
		return movers[i].Change.Float64 < movers[j].Change.Float64
	})
	if limit >= 0 && len(movers) > limit {
		movers = movers[:limit]
	}
	return movers
}
