package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"MarketHeatmap/internal/model"
)

// FetchFunc resolves one batch of tickers. Tickers missing from the result failed.
type FetchFunc func(ctx context.Context, tickers []string) map[string]model.Quote

// BatchResult is the outcome of one batch.
type BatchResult struct {
	Index   int
	Tickers []string
	Quotes  map[string]model.Quote
}

// Failed returns how many tickers of the batch did not resolve.
func (r BatchResult) Failed() int {
	return len(r.Tickers) - len(r.Quotes)
}

// BatchScheduler walks a ticker list in contiguous batches. A batch is
// finished, and handed to the callback, before the delay and the next batch start.
type BatchScheduler struct {
	Size   int
	Delay  time.Duration
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *logrus.Logger
}

// NewBatchScheduler creates a scheduler. A non-positive size means one batch.
func NewBatchScheduler(size int, delay time.Duration, logger *logrus.Logger) *BatchScheduler {
	return &BatchScheduler{
		Size:   size,
		Delay:  delay,
		Sleep:  sleepContext,
		Logger: logger,
	}
}

// Partition splits tickers into contiguous batches of at most size.
func Partition(tickers []string, size int) [][]string {
	if len(tickers) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(tickers)
	}
	batches := make([][]string, 0, (len(tickers)+size-1)/size)
	for start := 0; start < len(tickers); start += size {
		end := min(start+size, len(tickers))
		batches = append(batches, tickers[start:end])
	}
	return batches
}

// Run fetches every batch in order and calls onBatch after each one. It stops
// early with ctx.Err() when ctx is cancelled between batches.
func (s *BatchScheduler) Run(ctx context.Context, tickers []string, fetch FetchFunc, onBatch func(BatchResult)) error {
	batches := Partition(tickers, s.Size)
	for i, batch := range batches {
		if i > 0 && s.Delay > 0 {
			if err := s.Sleep(ctx, s.Delay); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		quotes := fetch(ctx, batch)
		if quotes == nil {
			quotes = map[string]model.Quote{}
		}
		res := BatchResult{Index: i, Tickers: batch, Quotes: quotes}
		s.Logger.WithFields(logrus.Fields{
			"batch": i + 1,
			"of":    len(batches),
			"ok":    len(quotes),
			"fail":  res.Failed(),
		}).Debug("batch done")
		if onBatch != nil {
			onBatch(res)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
