// Copyright 2025 Certen Protocol
//
// Package database provides sentinel errors for repository operations.
// F.4 remediation: Explicit errors instead of nil, nil returns

package database

import "errors"

// Sentinel errors for database operations.
var (
	// ErrNotFound is returned when a requested entity is not found in the database.
	ErrNotFound = errors.New("entity not found")

	// ErrPendingTxNotFound is returned when a pending_tx_log lookup finds no
	// row for the requested digest.
	ErrPendingTxNotFound = errors.New("pending transaction not found")
)
