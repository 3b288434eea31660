// Copyright 2025 Certen Protocol
//
// Error taxonomy for the transaction orchestrator (C4), grounded on
// transaction_orchestrator.rs's QuorumDriverError/ErrorCategory split: every
// error the orchestrator returns is tagged with a category, and IsRetriable
// is the single decision point the retry loop and early-validation check
// both consult.

package orchestrator

import (
	"errors"
	"fmt"

	"github.com/certen/objectvalidator/pkg/types"
)

// ErrorCategory classifies why a submission failed, independent of the
// underlying cause, matching the original's ErrorCategory enum.
type ErrorCategory int

const (
	CategoryInternal ErrorCategory = iota
	CategoryInvalidSignature
	CategoryInvalidInput
	CategoryNetwork
	CategoryTimeout
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryInvalidSignature:
		return "InvalidSignature"
	case CategoryInvalidInput:
		return "InvalidInput"
	case CategoryNetwork:
		return "Network"
	case CategoryTimeout:
		return "Timeout"
	default:
		return "Internal"
	}
}

// Error wraps a submission failure with its category and the transaction
// digest it concerns, so callers can log/retry without re-deriving either.
type Error struct {
	Category ErrorCategory
	Digest   types.TransactionDigest
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("orchestrator: %s: %s: %v", e.Category, e.Digest, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(category ErrorCategory, digest types.TransactionDigest, err error) *Error {
	return &Error{Category: category, Digest: digest, Err: err}
}

// ErrTimeoutBeforeFinality is returned when neither a quorum response nor
// local effects arrived before the configured finality timeout.
var ErrTimeoutBeforeFinality = errors.New("orchestrator: timed out before reaching finality")

// ErrAlreadyExecuted names the case where early validation would reject a
// transaction that has already executed locally. executeWithEffectsWaiting
// does not return it: that case skips submission and returns the cached
// local effects instead.
var ErrAlreadyExecuted = errors.New("orchestrator: transaction already executed")

// IsRetriable reports whether err is worth retrying. Invalid-signature and
// invalid-input categories are never retriable (the transaction itself is
// malformed or rejected); network and internal errors, and the bare
// timeout sentinel, are.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeoutBeforeFinality) {
		return true
	}
	var oe *Error
	if errors.As(err, &oe) {
		switch oe.Category {
		case CategoryInvalidSignature, CategoryInvalidInput:
			return false
		default:
			return true
		}
	}
	// An unclassified error is assumed transient rather than permanently
	// rejecting the transaction.
	return true
}
