// Copyright 2025 Certen Protocol

package orchestrator

import (
	"context"

	"github.com/certen/objectvalidator/pkg/types"
)

// SubmissionGuard records a transaction in the PendingLog on construction
// and removes it on Release, grounded on TransactionSubmissionGuard's
// Drop-based cleanup (translated to Go via an explicit Release called in a
// defer, since Go has no destructors).
type SubmissionGuard struct {
	log    PendingLog
	digest types.TransactionDigest
	isNew  bool
}

// NewSubmissionGuard inserts tx into log and returns a guard that must be
// released (typically via `defer guard.Release(ctx)`) once the caller is
// done driving the transaction to finality.
func NewSubmissionGuard(ctx context.Context, log PendingLog, tx *types.Transaction) (*SubmissionGuard, error) {
	digest := tx.Digest()
	isNew, err := log.Insert(ctx, tx)
	if err != nil {
		return nil, err
	}
	return &SubmissionGuard{log: log, digest: digest, isNew: isNew}, nil
}

// IsNewTransaction reports whether this call was the first to log the
// transaction; a false value means another in-flight attempt (or a retry)
// already owns submission, so no new submission tasks should be spawned.
func (g *SubmissionGuard) IsNewTransaction() bool { return g.isNew }

// Release removes the transaction from the log. Errors are intentionally
// swallowed here: a failed cleanup just leaves a stale WAL entry that a
// future recovery pass will harmlessly re-drive to the same (already
// reached) finality.
func (g *SubmissionGuard) Release(ctx context.Context) {
	_ = g.log.Remove(ctx, g.digest)
}
