// Copyright 2025 Certen Protocol
//
// Package execution implements the execution engine contract (C2):
// gas smashing, storage-read charging, per-kind dispatch, version
// promotion, storage accounting and effects emission for one certified
// transaction, grounded on execution_engine.rs's
// execute_transaction_to_effects/execute_transaction/execution_loop chain.

package execution

import (
	"context"
	"fmt"
	"sort"

	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/types"
)

// Request bundles everything the engine needs for one certified
// transaction: its resolved active inputs, the shared objects it touched,
// and the dependency digests to record (minus genesis, already filtered
// by the caller or here).
type Request struct {
	Certified    *types.CertifiedTransaction
	Inputs       map[types.ObjectId]*types.Object
	SharedInputs []types.ObjectId
	Dependencies []types.TransactionDigest
}

// Execute runs the full C2 algorithm and returns the working set (so the
// caller can Commit it), the resulting effects, and any dispatch error
// (already folded into effects' failure status, returned here only so
// callers can log/observe it).
func Execute(_ context.Context, backing objectstore.Store, vm VM, req Request) (*TemporaryStore, *types.Effects, error) {
	data := req.Certified.Transaction.Data
	digest := req.Certified.Transaction.Digest()

	ts := NewTemporaryStore(backing, req.Inputs)
	tx := NewTxContext(data.Sender, digest, data.Epoch)

	// Step 1: gas smashing.
	gasRef, meter, smashErr := smashGasCoins(ts, tx, data.Gas)
	if smashErr != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGasSmashingInvariant, smashErr)
	}

	var dispatchErr error

	// Step 2: storage-read charge. Failure here still proceeds to effects
	// commitment with no further state mutation (spec step 2).
	if err := meter.ChargeStorageRead(ts.ActiveInputsSize()); err != nil {
		dispatchErr = err
	}

	// Step 3: dispatch, one single-transaction-kind at a time, in order.
	if dispatchErr == nil {
		for _, kind := range data.Kinds {
			if err := dispatchSingle(ts, tx, vm, meter, gasRef.ObjectId, kind); err != nil {
				dispatchErr = err
				break
			}
		}
	}

	if dispatchErr != nil {
		ts.Reset()
	}

	// Step 4: version promotion, before storage accounting so rebate math
	// sees final object sizes.
	ts.EnsureActiveInputsMutated(gasRef.ObjectId)

	// Step 5: storage accounting.
	if bg, ok := meter.(*BudgetGasMeter); ok {
		for id, w := range ts.writes {
			prevSize := 0
			if prev, existed := req.Inputs[id]; existed {
				prevSize = prev.SerializedSize()
			}
			bg.ChargeStorage(w.Object.SerializedSize(), prevSize)
		}
		for id := range ts.deletes {
			if prev, existed := req.Inputs[id]; existed {
				bg.ChargeStorage(0, prev.SerializedSize())
			}
		}
	}

	success := dispatchErr == nil
	gasSummary := meter.Summary(success)

	status := types.Success()
	if failure, ok := asFailure(dispatchErr); ok {
		status = types.Failure(failure.Status.Kind, failure.Status.Details)
	} else if dispatchErr != nil {
		status = types.Failure(types.FailureInvariantViolation, dispatchErr.Error())
	}

	created, mutated, unwrapped, deleted, wrapped, unwrappedDeleted := ts.ObjectChanges()
	gasObj, gasPresent := ts.GetObject(gasRef.ObjectId)
	gasChange := types.ObjectChange{ObjectId: gasRef.ObjectId}
	if gasPresent {
		gasChange.NewVersion = gasObj.Version
	}

	deps := dedupeDependencies(req.Dependencies)

	effects := &types.Effects{
		TransactionDigest: digest,
		Status:            status,
		Created:           created,
		Mutated:           mutated,
		Deleted:           append(deleted, unwrappedDeleted...),
		Wrapped:           wrapped,
		Unwrapped:         unwrapped,
		GasObject:         gasChange,
		GasSummary:        gasSummary,
		Dependencies:      deps,
		SharedInputs:      req.SharedInputs,
		ExecutedEpoch:     data.Epoch,
	}

	return ts, effects, dispatchErr
}

// dedupeDependencies removes duplicates and the sentinel genesis digest
// (spec step 6), returning the rest sorted by hex string for determinism.
func dedupeDependencies(deps []types.TransactionDigest) []types.TransactionDigest {
	seen := make(map[types.TransactionDigest]bool, len(deps))
	out := make([]types.TransactionDigest, 0, len(deps))
	for _, d := range deps {
		if d == types.GenesisDigest || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// smashGasCoins merges every non-primary gas coin's balance into the first
// (spec step 1), deleting the rest, and returns the canonical gas ObjectRef
// plus a budget-tracking meter seeded from the transaction's gas data.
func smashGasCoins(ts *TemporaryStore, tx *TxContext, gas types.GasData) (types.ObjectRef, GasMeter, error) {
	if len(gas.Payment) == 0 {
		return types.ObjectRef{}, nil, fmt.Errorf("no gas payment objects")
	}
	meter := NewBudgetGasMeter(gas.Price, gas.Budget)

	primaryRef := gas.Payment[0]
	if len(gas.Payment) == 1 {
		return primaryRef, meter, nil
	}

	primary, ok := ts.GetObject(primaryRef.ObjectId)
	if !ok {
		return types.ObjectRef{}, nil, fmt.Errorf("primary gas object %s not found", primaryRef.ObjectId)
	}
	merged := *primary
	total := merged.Balance()
	for _, ref := range gas.Payment[1:] {
		coin, ok := ts.GetObject(ref.ObjectId)
		if !ok {
			return types.ObjectRef{}, nil, fmt.Errorf("gas object %s not found", ref.ObjectId)
		}
		if !coin.IsCoin() {
			return types.ObjectRef{}, nil, fmt.Errorf("gas object %s is not a coin", ref.ObjectId)
		}
		total += coin.Balance()
		ts.DeleteObject(coin.Id, coin.Version+1, objectstore.DeleteNormal)
	}
	merged.SetBalance(total)
	merged.PreviousTransaction = tx.Digest()
	ts.WriteObject(&merged, objectstore.WriteMutate)

	// The canonical gas reference stays the originally-declared primary ref;
	// its version is advanced later, uniformly, by EnsureActiveInputsMutated.
	return primaryRef, meter, nil
}
