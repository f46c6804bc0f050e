package model

import "time"

// RefreshStatus aggregates the outcome of one refresh cycle.
type RefreshStatus struct {
	TotalStocks  int       `json:"totalStocks"`
	SuccessCount int       `json:"successCount"`
	FailCount    int       `json:"failCount"`
	LastUpdate   time.Time `json:"lastUpdate"`
	IsLoading    bool      `json:"isLoading"`
	IsLive       bool      `json:"isLive"`
	Synthetic    bool      `json:"synthetic"`
	Generation   uint64    `json:"generation"`
}

// Progress returns how many tickers have resolved so far.
func (s RefreshStatus) Progress() int {
	return s.SuccessCount + s.FailCount
}
