// Package budget enforces the global per-sweep request cap shared by every
// worker. Once exhausted, fetches refuse new calls instead of blocking.
package budget

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrExhausted is returned when the sweep budget is spent.
var ErrExhausted = errors.New("request budget exhausted")

// ExhaustedError carries usage detail for diagnostics.
type ExhaustedError struct {
	Used  int64
	Limit int64
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("request budget exhausted: %d/%d used", e.Used, e.Limit)
}

func (e *ExhaustedError) Unwrap() error { return ErrExhausted }

// Tracker counts requests against a fixed limit. Safe for concurrent use:
// the consume path is a single atomic add with rollback on overshoot, so
// concurrent workers can never exceed the budget.
type Tracker struct {
	limit int64
	used  int64
}

// NewTracker creates a tracker with the given limit.
func NewTracker(limit int64) *Tracker {
	return &Tracker{limit: limit}
}

// Consume claims one request from the budget, or returns *ExhaustedError.
func (t *Tracker) Consume() error {
	newUsed := atomic.AddInt64(&t.used, 1)
	if newUsed > t.limit {
		atomic.AddInt64(&t.used, -1)
		return &ExhaustedError{Used: newUsed - 1, Limit: t.limit}
	}
	return nil
}

// Exhausted reports whether the budget is spent without consuming.
func (t *Tracker) Exhausted() bool {
	return atomic.LoadInt64(&t.used) >= t.limit
}

// Used returns the number of requests consumed so far.
func (t *Tracker) Used() int64 { return atomic.LoadInt64(&t.used) }

// Remaining returns how many requests are left.
func (t *Tracker) Remaining() int64 {
	rem := t.limit - atomic.LoadInt64(&t.used)
	if rem < 0 {
		return 0
	}
	return rem
}

// Reset restores the full budget for a new sweep.
func (t *Tracker) Reset() { atomic.StoreInt64(&t.used, 0) }
