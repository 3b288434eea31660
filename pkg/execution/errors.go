// Copyright 2025 Certen Protocol

package execution

import (
	"errors"
	"fmt"

	"github.com/certen/objectvalidator/pkg/types"
)

// ErrGasSmashingInvariant is returned when gas coin smashing fails for a
// certified transaction. Since the transaction already passed quorum
// certification, the gas coins were validated to exist and be mergeable at
// that point; failure here means the store and the certificate disagree,
// which is treated as fatal rather than an ordinary execution failure.
var ErrGasSmashingInvariant = errors.New("execution: gas smashing invariant violated")

// Failure wraps an ExecutionFailureStatus as a Go error, for use with the
// dispatch functions that report Move-VM-style execution errors.
type Failure struct {
	Status types.ExecutionFailureStatus
}

func (f *Failure) Error() string {
	if f.Status.Details != "" {
		return fmt.Sprintf("execution: %s: %s", f.Status.Kind, f.Status.Details)
	}
	return fmt.Sprintf("execution: %s", f.Status.Kind)
}

func newFailure(kind types.ExecutionFailureKind, format string, args ...any) *Failure {
	return &Failure{Status: types.ExecutionFailureStatus{Kind: kind, Details: fmt.Sprintf(format, args...)}}
}

func asFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
