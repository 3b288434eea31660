// Copyright 2025 Certen Protocol
//
// Overload tracking, grounded on execution_scheduler/overload_tracker.rs:
// per-sender outstanding counts plus the oldest-pending-age check that
// backs check_execution_overload.

package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/certen/objectvalidator/pkg/types"
)

// OverloadConfig mirrors AuthorityOverloadConfig's admission limits.
type OverloadConfig struct {
	MaxQueueLength        int
	MaxOldestPendingAge    time.Duration
	MaxPerSenderOutstanding int
}

// DefaultOverloadConfig returns reasonable production defaults.
func DefaultOverloadConfig() OverloadConfig {
	return OverloadConfig{
		MaxQueueLength:          100_000,
		MaxOldestPendingAge:     60 * time.Second,
		MaxPerSenderOutstanding: 256,
	}
}

// overloadTracker tracks the per-sender outstanding count and oldest
// pending-entry timestamp needed by check_execution_overload, independent
// of the pending-digest set itself (that's held by Scheduler).
type overloadTracker struct {
	mu            sync.Mutex
	perSender     map[types.ObjectId]int
	oldestPending time.Time
	oldestCount   int
}

func newOverloadTracker() *overloadTracker {
	return &overloadTracker{perSender: make(map[types.ObjectId]int)}
}

func (t *overloadTracker) addPending(sender types.ObjectId, enqueuedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.perSender[sender]++
	if t.oldestCount == 0 || enqueuedAt.Before(t.oldestPending) {
		t.oldestPending = enqueuedAt
	}
	t.oldestCount++
}

func (t *overloadTracker) removePending(sender types.ObjectId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.perSender[sender]; ok {
		if n <= 1 {
			delete(t.perSender, sender)
		} else {
			t.perSender[sender] = n - 1
		}
	}
	if t.oldestCount > 0 {
		t.oldestCount--
	}
	if t.oldestCount == 0 {
		t.oldestPending = time.Time{}
	}
}

// check applies the configured limits, given the caller-supplied current
// queue length (the scheduler's pending-set size at call time).
func (t *overloadTracker) check(cfg OverloadConfig, sender types.ObjectId, queueLength int) error {
	if cfg.MaxQueueLength > 0 && queueLength >= cfg.MaxQueueLength {
		return fmt.Errorf("execution scheduler overloaded: queue length %d >= limit %d", queueLength, cfg.MaxQueueLength)
	}

	t.mu.Lock()
	oldest := t.oldestPending
	perSender := t.perSender[sender]
	t.mu.Unlock()

	if cfg.MaxOldestPendingAge > 0 && !oldest.IsZero() && time.Since(oldest) > cfg.MaxOldestPendingAge {
		return fmt.Errorf("execution scheduler overloaded: oldest pending certificate has waited %s", time.Since(oldest))
	}
	if cfg.MaxPerSenderOutstanding > 0 && perSender >= cfg.MaxPerSenderOutstanding {
		return fmt.Errorf("execution scheduler overloaded: sender %s has %d outstanding certificates >= limit %d", sender, perSender, cfg.MaxPerSenderOutstanding)
	}
	return nil
}
