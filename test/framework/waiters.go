package framework

import (
	"context"
	"fmt"
	"time"
)

// Waiter polls a condition until it becomes true or timeout elapses —
// useful for tests that drive the orchestrator in a goroutine and need to
// observe a batch reach a given state.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a Waiter with the given timeout and polling interval.
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{timeout: timeout, interval: interval}
}

// DefaultWaiter returns a Waiter with sensible defaults for an in-process
// harness (5s timeout, 50ms interval — there is no network here).
func DefaultWaiter() *Waiter {
	return NewWaiter(5*time.Second, defaultPollInterval)
}

// WaitFor blocks until condition returns true or the timeout elapses.
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if condition() {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForBatchStatus waits until h's state store reports batchName at the
// given status.
func (w *Waiter) WaitForBatchStatus(ctx context.Context, h *Harness, batchName, status string) error {
	return w.WaitFor(ctx, func() bool {
		b, err := h.Store.GetBatch(batchName)
		return err == nil && b != nil && string(b.Status) == status
	}, fmt.Sprintf("batch %s to reach status %s", batchName, status))
}
