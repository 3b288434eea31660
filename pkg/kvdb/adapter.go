// Copyright 2025 Certen Protocol
//
// KV Adapter for CometBFT Database Integration
// Wraps a cometbft-db backend (goleveldb, memdb, ...) to implement
// pkg/ledger's KV interface, so the object store (C1) can run against a
// durable, on-disk KV engine instead of pkg/objectstore's in-process
// MemStore reference implementation.

package kvdb

import (
	dbm "github.com/cometbft/cometbft-db"
)

// KVAdapter exposes a cometbft-db dbm.DB as pkg/ledger.KV.
type KVAdapter struct {
	db dbm.DB
}

// NewKVAdapter wraps db for use as a ledger.Store backing KV.
func NewKVAdapter(db dbm.DB) *KVAdapter {
	return &KVAdapter{db: db}
}

// Get implements ledger.KV.Get.
func (a *KVAdapter) Get(key []byte) ([]byte, error) {
	if a.db == nil {
		return nil, nil
	}
	v, err := a.db.Get(key)
	if err != nil {
		return nil, err
	}
	// v may be nil if key not found; ledger treats nil as "not present".
	return v, nil
}

// Set implements ledger.KV.Set, using SetSync so every committed write is
// durable before WriteBatch returns to its caller.
func (a *KVAdapter) Set(key, value []byte) error {
	if a.db == nil {
		return nil
	}
	return a.db.SetSync(key, value)
}

// Close releases the underlying database, called on node shutdown.
func (a *KVAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}