// Copyright 2025 Certen Protocol

package statesync

import "sync"

// weightedSemaphore bounds a resource with per-holder weights, standing in
// for the original's second, transaction-counting concurrency limit
// (checkpoints vary widely in transaction count, so a plain slot count
// isn't the resource actually being bounded).
type weightedSemaphore struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	used     int
}

func newWeightedSemaphore(capacity int) *weightedSemaphore {
	s := &weightedSemaphore{capacity: capacity}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// acquire blocks until n units are available. A request larger than the
// total capacity is clamped to the full capacity so it isn't starved
// forever (mirrors a single oversized checkpoint still being syncable).
func (s *weightedSemaphore) acquire(n int) {
	if n > s.capacity {
		n = s.capacity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.used+n > s.capacity {
		s.cond.Wait()
	}
	s.used += n
}

func (s *weightedSemaphore) release(n int) {
	if n > s.capacity {
		n = s.capacity
	}
	s.mu.Lock()
	s.used -= n
	s.mu.Unlock()
	s.cond.Broadcast()
}
