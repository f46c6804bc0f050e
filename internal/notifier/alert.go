package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"MarketHeatmap/internal/model"
)

// Sender delivers a message with retries.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

type availability int

const (
	unknown availability = iota
	unavailable
	synthetic
	live
)

func availabilityOf(st model.RefreshStatus) availability {
	switch {
	case !st.IsLive:
		return unavailable
	case st.Synthetic:
		return synthetic
	default:
		return live
	}
}

// StatusAlert watches finished refresh cycles and sends a message when data
// availability changes. The first finished cycle only alerts when it is not live.
type StatusAlert struct {
	Sender  Sender
	Ctx     context.Context
	Logger  *logrus.Logger
	Retries int
	Now     func() time.Time

	mu   sync.Mutex
	last availability
	wg   sync.WaitGroup
}

// NewStatusAlert creates a StatusAlert that sends through s.
func NewStatusAlert(ctx context.Context, s Sender, logger *logrus.Logger) *StatusAlert {
	return &StatusAlert{Sender: s, Ctx: ctx, Logger: logger, Retries: 3, Now: time.Now}
}

// StatusUpdated implements the pipeline status hook. Sending happens in the
// background so a slow chat never holds up a refresh cycle.
func (a *StatusAlert) StatusUpdated(st model.RefreshStatus, text string) {
	if st.IsLoading {
		return
	}
	cur := availabilityOf(st)

	a.mu.Lock()
	prev := a.last
	a.last = cur
	a.mu.Unlock()

	if cur == prev || (prev == unknown && cur == live) {
		return
	}
	msg := FormatAlert(st, text, a.Now())
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.Sender.SendWithRetry(a.Ctx, msg, a.Retries); err != nil {
			a.Logger.Errorf("send status alert: %v", err)
		}
	}()
}

// Wait blocks until pending alerts are sent.
func (a *StatusAlert) Wait() {
	a.wg.Wait()
}
