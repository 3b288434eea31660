// Copyright 2025 Certen Protocol
//
// TransactionDriver is the quorum-voting client the orchestrator submits
// to; Validator is the local validator-state handle it consults for
// signature verification and early validation. Both are out-of-scope
// external collaborators (spec's boundary) — only their contracts live
// here, grounded on TransactionDriver's public submit API and
// AuthorityState's check_transaction_validity/is_tx_already_executed.

package orchestrator

import (
	"context"

	"github.com/certen/objectvalidator/pkg/types"
)

// EffectsFinalityKind distinguishes how a response reached finality.
type EffectsFinalityKind int

const (
	FinalityQuorumExecuted EffectsFinalityKind = iota
	FinalityCheckpointed
)

// FinalityInfo records how and at which epoch a transaction's effects
// became final.
type FinalityInfo struct {
	Kind  EffectsFinalityKind
	Epoch types.EpochId
}

// FinalizedEffects is a transaction's effects plus how they reached finality.
type FinalizedEffects struct {
	Effects  *types.Effects
	Finality FinalityInfo
}

// SubmitOptions carries the allow/deny submission-target lists down to the
// driver.
type SubmitOptions struct {
	Allowed []string
	Blocked []string
}

// TransactionDriver submits a verified transaction to the validator
// committee and returns once a quorum of effects agree.
type TransactionDriver interface {
	Submit(ctx context.Context, tx *types.Transaction, opts SubmitOptions) (*FinalizedEffects, error)
}

// Validator is the local validator-state surface the orchestrator consults
// before submission and to recognize already-executed transactions.
type Validator interface {
	// VerifySignature checks tx's signature under the current epoch's
	// validator aliases.
	VerifySignature(ctx context.Context, tx *types.Transaction) error

	// CheckTransactionValidity runs the local pre-flight sanity check.
	// When enforceLiveInputObjects is true, input objects that no longer
	// exist are treated as a hard rejection rather than "wait and retry".
	CheckTransactionValidity(ctx context.Context, tx *types.Transaction, enforceLiveInputObjects bool) error

	// IsTransactionExecuted reports whether digest already has recorded
	// effects, used to let already-executed transactions through early
	// validation so retries return cached results instead of an error.
	IsTransactionExecuted(ctx context.Context, digest types.TransactionDigest) bool
}
