// Copyright 2025 Certen Protocol

package statesync

import (
	"sync"

	"github.com/certen/objectvalidator/pkg/types"
)

// sequenceWatch is a single-slot "latest value" signal, standing in for
// tokio::sync::watch: Set coalesces repeated updates, Changed() fires after
// every Set (pending signals coalesce into one), and Get() returns the
// highest value set so far.
type sequenceWatch struct {
	mu     sync.Mutex
	val    types.CheckpointSequenceNumber
	notify chan struct{}
}

func newSequenceWatch() *sequenceWatch {
	return &sequenceWatch{notify: make(chan struct{}, 1)}
}

func (w *sequenceWatch) Set(v types.CheckpointSequenceNumber) {
	w.mu.Lock()
	if v > w.val {
		w.val = v
	}
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *sequenceWatch) Get() types.CheckpointSequenceNumber {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.val
}

func (w *sequenceWatch) Changed() <-chan struct{} { return w.notify }
