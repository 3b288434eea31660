// Copyright 2025 Certen Protocol
//
// Package ledger provides sentinel errors for the KV-backed object store.
// F.4 remediation: Explicit errors instead of nil, nil returns

package ledger

import "errors"

// Sentinel errors for object-store KV operations
var (
	// ErrObjectNotFound is returned when an (id, version) pair is absent.
	ErrObjectNotFound = errors.New("ledger: object not found")

	// ErrMetaNotFound is returned when the global object-store metadata
	// record has not been written yet.
	ErrMetaNotFound = errors.New("ledger: metadata not found")

	// ErrCheckpointNotFound is returned when a requested checkpoint is absent.
	ErrCheckpointNotFound = errors.New("ledger: checkpoint not found")
)
