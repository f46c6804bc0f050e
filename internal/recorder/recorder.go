package recorder

import "time"

// CycleRecord summarizes one finished refresh cycle.
type CycleRecord struct {
	Generation   uint64
	Full         bool // user-triggered refresh that cleared the cache
	StartedAt    time.Time
	FinishedAt   time.Time
	TotalStocks  int
	SuccessCount int
	FailCount    int
	Live         bool
	Synthetic    bool
	Provider     string
}

// Recorder persists refresh history for later analysis. It is write-only;
// nothing in the refresh path reads it back.
type Recorder interface {
	RecordCycle(rec *CycleRecord) error
	Close() error
}
