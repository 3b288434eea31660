// Copyright 2025 Certen Protocol
//
// The bytecode VM (Call/Publish execution, the system module's
// advance-epoch and consensus-commit-prologue entry points) is an external
// collaborator: C2 only needs to invoke it and observe what it wrote
// through the TemporaryStore, per the object-store contract's out-of-scope
// boundary. This mirrors how execution_engine.rs takes move_vm: &Arc<MoveVM>
// as a parameter rather than owning VM internals.

package execution

import "github.com/certen/objectvalidator/pkg/types"

// VM is the boundary the execution engine calls into for Move-style
// function invocation and package publication.
type VM interface {
	// Call invokes `function` in `module` of `pkg`, with the resolved
	// object/pure arguments, against the transaction's working set.
	Call(ts *TemporaryStore, tx *TxContext, pkg types.ObjectId, module, function string, typeArgs []string, args []types.CallArg, meter GasMeter) error

	// Publish deploys a package of modules as a new Immutable object and
	// returns its id.
	Publish(ts *TemporaryStore, tx *TxContext, modules [][]byte, meter GasMeter) (types.ObjectId, error)

	// AdvanceEpoch invokes the system module's epoch-advance entry point.
	AdvanceEpoch(ts *TemporaryStore, tx *TxContext, params types.ChangeEpochData) error

	// AdvanceEpochSafeMode invokes the narrower safe-mode entry point taken
	// only when the full AdvanceEpoch call fails; it must not itself fail.
	AdvanceEpochSafeMode(ts *TemporaryStore, tx *TxContext, epoch types.EpochId, protocolVersion uint64)
}
