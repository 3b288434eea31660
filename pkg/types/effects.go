package types

// ExecutionStatusKind is Success or Failure.
type ExecutionStatusKind int

const (
	StatusSuccess ExecutionStatusKind = iota
	StatusFailure
)

// ExecutionFailureKind is the closed set of reasons an execution can fail,
// mirroring the original's ExecutionFailureStatus enum rather than a bare
// string (see SPEC_FULL.md §3.1).
type ExecutionFailureKind int

const (
	FailureInsufficientGas ExecutionFailureKind = iota
	FailureArityMismatch
	FailureInsufficientBalance
	FailureCoinBalanceOverflow
	FailureInvalidObjectOwner
	FailureObjectNotTransferable
	FailureCoinTypeMismatch
	FailurePublishError
	FailureUnsupportedTransactionKind
	FailureInvariantViolation
	FailureEmptyCoins
	FailureEmptyRecipients
)

var executionFailureKindNames = [...]string{
	"InsufficientGas",
	"ArityMismatch",
	"InsufficientBalance",
	"CoinBalanceOverflow",
	"InvalidObjectOwner",
	"ObjectNotTransferable",
	"CoinTypeMismatch",
	"PublishError",
	"UnsupportedTransactionKind",
	"InvariantViolation",
	"EmptyCoins",
	"EmptyRecipients",
}

func (k ExecutionFailureKind) String() string {
	if int(k) < 0 || int(k) >= len(executionFailureKindNames) {
		return "Unknown"
	}
	return executionFailureKindNames[k]
}

// ExecutionFailureStatus carries a failure kind plus free-form detail,
// surfaced inside effects (it never aborts the transaction: gas is still
// charged and versions still bump, per spec §4.2 error semantics).
type ExecutionFailureStatus struct {
	Kind    ExecutionFailureKind
	Details string
}

// ExecutionStatus is Success, or Failure carrying a status.
type ExecutionStatus struct {
	Kind    ExecutionStatusKind
	Failure *ExecutionFailureStatus
}

func Success() ExecutionStatus { return ExecutionStatus{Kind: StatusSuccess} }
func Failure(kind ExecutionFailureKind, details string) ExecutionStatus {
	return ExecutionStatus{Kind: StatusFailure, Failure: &ExecutionFailureStatus{Kind: kind, Details: details}}
}

// GasCostSummary is the three-part cost plus the non-refundable fee carried
// by the original and restored here per SPEC_FULL.md §3.1.
type GasCostSummary struct {
	ComputationCost         uint64
	StorageCost              uint64
	StorageRebate            uint64
	NonRefundableStorageFee  uint64
}

// NetGasUsed is the signed cost actually debited from the gas coin.
func (g GasCostSummary) NetGasUsed() int64 {
	return int64(g.ComputationCost) + int64(g.StorageCost) - int64(g.StorageRebate)
}

// ObjectChange records one object's before/after state in effects.
type ObjectChange struct {
	ObjectId   ObjectId
	NewVersion Version
}

// Effects is the deterministic record of executing one certified transaction.
type Effects struct {
	TransactionDigest TransactionDigest
	Status            ExecutionStatus

	Created   []ObjectChange
	Mutated   []ObjectChange
	Deleted   []ObjectChange
	Wrapped   []ObjectChange
	Unwrapped []ObjectChange

	GasObject    ObjectChange
	GasSummary   GasCostSummary

	// Dependencies is the de-duplicated list of transaction digests whose
	// outputs were read, minus the sentinel genesis digest (spec §4.2 step 6).
	Dependencies []TransactionDigest

	SharedInputs []ObjectId
	ExecutedEpoch EpochId
}

// Digest computes the effects digest; two executions of the same
// certificate must produce identical digests (spec §3 invariant).
func (e *Effects) Digest() Digest {
	h := newDigestHasher()
	h.write(e.TransactionDigest[:])
	h.writeInt(int(e.Status.Kind))
	for _, c := range e.Created {
		h.write(c.ObjectId[:])
		h.writeInt(int(c.NewVersion))
	}
	for _, c := range e.Mutated {
		h.write(c.ObjectId[:])
		h.writeInt(int(c.NewVersion))
	}
	for _, c := range e.Deleted {
		h.write(c.ObjectId[:])
		h.writeInt(int(c.NewVersion))
	}
	h.write(e.GasObject.ObjectId[:])
	h.writeInt(int(e.GasObject.NewVersion))
	h.writeInt(int(e.GasSummary.ComputationCost))
	h.writeInt(int(e.GasSummary.StorageCost))
	h.writeInt(int(e.GasSummary.StorageRebate))
	return h.sum()
}

// GenesisDigest is the sentinel dependency digest excluded from effects
// dependency lists (spec §4.2 step 6).
var GenesisDigest = Digest{}
