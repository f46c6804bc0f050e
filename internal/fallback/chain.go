// Package fallback tries an ordered list of transport strategies for one
// logical request and remembers which strategy worked last.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrExhausted is returned when every strategy failed for a request.
	ErrExhausted = errors.New("all transport strategies failed")
	// ErrUnparsable marks a response body the caller could not decode.
	ErrUnparsable = errors.New("unparsable response body")
)

// DefaultTimeout bounds a single attempt.
const DefaultTimeout = 8 * time.Second

// Attempt records one failed strategy attempt.
type Attempt struct {
	Strategy string
	Err      error
	Elapsed  time.Duration
}

// ExhaustedError carries the reason each strategy failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrExhausted.Error() + ": no strategies configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	return ErrExhausted.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap exposes ErrExhausted and every attempt error to errors.Is.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, ErrExhausted)
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Chain holds the strategies and the sticky index. It is owned by one
// fetcher; separate chains never share state.
type Chain struct {
	strategies []Strategy
	timeout    time.Duration
	logger     *logrus.Logger

	mu           sync.Mutex
	sticky       int
	lastFailures []Attempt
}

// NewChain creates a Chain. A non-positive timeout uses DefaultTimeout.
func NewChain(timeout time.Duration, logger *logrus.Logger, strategies ...Strategy) *Chain {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Chain{
		strategies: strategies,
		timeout:    timeout,
		logger:     logger,
	}
}

// Len returns the number of strategies.
func (c *Chain) Len() int { return len(c.strategies) }

// Sticky returns the index tried first on the next call.
func (c *Chain) Sticky() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sticky
}

// LastFailures returns the attempts of the most recent exhausted request.
func (c *Chain) LastFailures() []Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Attempt, len(c.lastFailures))
	copy(out, c.lastFailures)
	return out
}

// Do makes one pass over the strategies starting at the sticky index. An
// attempt fails on timeout, transport error, non-2xx status, or when decode
// rejects the body. A 404 whose body decode accepts is the upstream's answer
// about the symbol and counts as a success, so decode must record it. The
// first success becomes the new sticky index.
func (c *Chain) Do(ctx context.Context, target string, decode func([]byte) error) error {
	n := len(c.strategies)
	if n == 0 {
		return &ExhaustedError{}
	}
	start := c.Sticky()
	attempts := make([]Attempt, 0, n)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := (start + i) % n
		s := c.strategies[idx]

		began := time.Now()
		err := c.attempt(ctx, s, target, decode)
		if err == nil {
			c.mu.Lock()
			c.sticky = idx
			c.mu.Unlock()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempts = append(attempts, Attempt{Strategy: s.Name(), Err: err, Elapsed: time.Since(began)})
		c.logger.WithFields(logrus.Fields{
			"strategy": s.Name(),
			"attempt":  i + 1,
		}).Warnf("transport attempt failed: %v", err)
	}

	c.mu.Lock()
	c.lastFailures = attempts
	c.mu.Unlock()
	return &ExhaustedError{Attempts: attempts}
}

func (c *Chain) attempt(ctx context.Context, s Strategy, target string, decode func([]byte) error) error {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := s.Get(actx, target)
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("timeout after %v: %w", c.timeout, err)
		}
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound && len(se.payload) > 0 {
			if decode(se.payload) == nil {
				return nil
			}
		}
		return err
	}
	if err := decode(body); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	return nil
}
