// Package status tracks the outcome of the current refresh cycle.
package status

import (
	"fmt"
	"sync"
	"time"

	"MarketHeatmap/internal/model"
)

// Tracker is the per-pipeline status state machine: Start, Record per batch, Finish.
// Every mutation carries the cycle generation; calls for an older generation are ignored.
type Tracker struct {
	Now func() time.Time

	mu sync.Mutex
	st model.RefreshStatus
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{Now: time.Now}
}

// Start resets the counts for a new cycle of total tickers.
func (t *Tracker) Start(gen uint64, total int, synthetic bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.st = model.RefreshStatus{
		TotalStocks: total,
		LastUpdate:  t.Now(),
		IsLoading:   true,
		IsLive:      t.st.IsLive,
		Synthetic:   synthetic,
		Generation:  gen,
	}
}

// Record adds per-ticker outcomes of one batch. It reports false for a stale generation.
func (t *Tracker) Record(gen uint64, success, fail int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.st.Generation || !t.st.IsLoading {
		return false
	}
	t.st.SuccessCount += success
	t.st.FailCount += fail
	// Never report more outcomes than tickers.
	if over := t.st.Progress() - t.st.TotalStocks; over > 0 {
		t.st.FailCount -= min(over, t.st.FailCount)
	}
	t.st.LastUpdate = t.Now()
	return true
}

// Finish closes the cycle. Tickers without a recorded outcome count as failed.
func (t *Tracker) Finish(gen uint64, synthetic bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.st.Generation || !t.st.IsLoading {
		return false
	}
	if missing := t.st.TotalStocks - t.st.Progress(); missing > 0 {
		t.st.FailCount += missing
	}
	t.st.IsLoading = false
	t.st.IsLive = t.st.SuccessCount > 0
	t.st.Synthetic = synthetic
	t.st.LastUpdate = t.Now()
	return true
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() model.RefreshStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st
}

// Text is the display text of the current status.
func (t *Tracker) Text() string {
	return Text(t.Snapshot(), t.Now())
}

// Text derives the indicator text for st as seen at now.
func Text(st model.RefreshStatus, now time.Time) string {
	switch {
	case st.Generation == 0:
		return "Loading..."
	case st.IsLoading && st.Progress() == 0:
		return "Loading..."
	case st.IsLoading:
		return fmt.Sprintf("%d/%d", st.SuccessCount, st.TotalStocks)
	case st.SuccessCount == 0:
		return "Data unavailable"
	case st.FailCount > 0:
		return fmt.Sprintf("%d/%d loaded", st.SuccessCount, st.TotalStocks)
	}
	age := now.Sub(st.LastUpdate)
	if age < time.Minute {
		return "Live"
	}
	return fmt.Sprintf("%dm ago", int(age/time.Minute))
}
