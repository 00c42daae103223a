// Package pool recycles timers for the driver's backoff and pacing waits.
// Chunk retries during a large burn can allocate thousands of short-lived
// timers; pooling keeps that off the garbage collector.
package pool

import (
	"context"
	"sync"
	"time"
)

var timerPool sync.Pool

func getTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer) // only *time.Timer is ever put into the pool
		if t.Reset(d) {
			// Timer was active, drain the channel to prevent a stale fire.
			select {
			case <-t.C:
			default:
			}
		}
		return t
	}
	return time.NewTimer(d)
}

func putTimer(t *time.Timer) {
	if !t.Stop() {
		// Drain t.C if it wasn't consumed by the waiter.
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Wait blocks for d using a pooled timer, or until ctx ends. Returns the
// context error when cancelled early, nil when the full duration elapsed.
func Wait(ctx context.Context, d time.Duration) error {
	t := getTimer(d)
	defer putTimer(t)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
