// Copyright 2025 Certen Protocol
//
// TemporaryStore buffers one transaction's reads/writes/deletes in memory
// and only asks the durable objectstore.Store to commit them once dispatch
// has fully run; this mirrors the teacher's KV read-then-batch-write
// discipline in pkg/ledger, generalized from a single KV namespace to the
// object-versioned read/write/delete sets the adapter's TemporaryStore uses.

package execution

import (
	"context"
	"fmt"

	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/types"
)

// TemporaryStore is the per-transaction working set: active inputs resolved
// up front, plus the writes/deletes dispatch accumulates.
type TemporaryStore struct {
	backing objectstore.Store

	// inputs holds every object the transaction declared, keyed by id, as it
	// stood when the transaction was scheduled.
	inputs map[types.ObjectId]*types.Object

	writes  map[types.ObjectId]*objectstore.ObjectWrite
	deletes map[types.ObjectId]*objectstore.ObjectDelete
}

// NewTemporaryStore seeds a TemporaryStore with a transaction's resolved
// active inputs (objects the scheduler already confirmed are present).
func NewTemporaryStore(backing objectstore.Store, inputs map[types.ObjectId]*types.Object) *TemporaryStore {
	return &TemporaryStore{
		backing: backing,
		inputs:  inputs,
		writes:  make(map[types.ObjectId]*objectstore.ObjectWrite),
		deletes: make(map[types.ObjectId]*objectstore.ObjectDelete),
	}
}

// GetObject returns the object's current view: a pending write/delete in
// this transaction if one exists, else the original active input.
func (ts *TemporaryStore) GetObject(id types.ObjectId) (*types.Object, bool) {
	if w, ok := ts.writes[id]; ok {
		return w.Object, true
	}
	if _, ok := ts.deletes[id]; ok {
		return nil, false
	}
	obj, ok := ts.inputs[id]
	return obj, ok
}

// WriteObject records a create/mutate/unwrap for id, storing the object at
// the version it carries; version promotion is left to
// EnsureActiveInputsMutated.
func (ts *TemporaryStore) WriteObject(obj *types.Object, kind objectstore.WriteKind) {
	ts.writes[obj.Id] = &objectstore.ObjectWrite{Object: obj, Kind: kind}
	delete(ts.deletes, obj.Id)
}

// DeleteObject records a removal, producing a version-bumped tombstone.
func (ts *TemporaryStore) DeleteObject(id types.ObjectId, newVersion types.Version, kind objectstore.DeleteKind) {
	ts.deletes[id] = &objectstore.ObjectDelete{ObjectId: id, NewVersion: newVersion, Kind: kind}
	delete(ts.writes, id)
}

// Reset discards every write/delete recorded so far, as if dispatch never
// ran. Called on execution error: the transaction still produces effects,
// but with no object mutation beyond version promotion and gas charges.
func (ts *TemporaryStore) Reset() {
	ts.writes = make(map[types.ObjectId]*objectstore.ObjectWrite)
	ts.deletes = make(map[types.ObjectId]*objectstore.ObjectDelete)
}

// EnsureActiveInputsMutated bumps the version of every mutable active input
// (plus the gas object) exactly once, whether or not dispatch already
// touched it: dispatch functions leave mutated objects at their original
// version, and this is the single place version numbers actually advance.
// Must run before storage accounting (spec step 4) so rebate math sees
// final object sizes.
func (ts *TemporaryStore) EnsureActiveInputsMutated(gasObjectID types.ObjectId) {
	bumpIfUnbumped := func(id types.ObjectId, orig *types.Object) {
		if orig.Owner.IsImmutable() {
			return
		}
		if w, ok := ts.writes[id]; ok {
			if w.Object.Version == orig.Version {
				w.Object.Version = orig.Version + 1
			}
			return
		}
		if _, ok := ts.deletes[id]; ok {
			return
		}
		bumped := *orig
		bumped.Version = orig.Version + 1
		ts.writes[id] = &objectstore.ObjectWrite{Object: &bumped, Kind: objectstore.WriteMutate}
	}
	for id, orig := range ts.inputs {
		bumpIfUnbumped(id, orig)
	}
	if orig, alreadyInput := ts.inputs[gasObjectID]; alreadyInput {
		_ = orig
		return
	}
	if obj, present := ts.GetObject(gasObjectID); present {
		if _, staged := ts.writes[gasObjectID]; !staged {
			bumped := *obj
			bumped.Version = obj.Version + 1
			ts.writes[gasObjectID] = &objectstore.ObjectWrite{Object: &bumped, Kind: objectstore.WriteMutate}
		}
	}
}

// ActiveInputsSize sums the serialized size of every active input, excluding
// the free framework/stdlib packages (spec step 2).
func (ts *TemporaryStore) ActiveInputsSize() int {
	total := 0
	for id, obj := range ts.inputs {
		if types.IsFreePackage(id) {
			continue
		}
		total += obj.SerializedSize()
	}
	return total
}

// Commit flushes the accumulated writes/deletes and effects to the backing
// store in a single batch.
func (ts *TemporaryStore) Commit(ctx context.Context, effects *types.Effects) error {
	writes := make([]objectstore.ObjectWrite, 0, len(ts.writes))
	for _, w := range ts.writes {
		writes = append(writes, *w)
	}
	deletes := make([]objectstore.ObjectDelete, 0, len(ts.deletes))
	for _, d := range ts.deletes {
		deletes = append(deletes, *d)
	}
	if err := ts.backing.WriteBatch(ctx, writes, deletes, effects); err != nil {
		return fmt.Errorf("execution: commit: %w", err)
	}
	return nil
}

// ObjectChanges splits the recorded writes into created/mutated/unwrapped
// buckets and deletes into deleted/unwrapped-then-deleted/wrapped buckets,
// for effects assembly.
func (ts *TemporaryStore) ObjectChanges() (created, mutated, unwrapped, deleted, wrapped, unwrappedThenDeleted []types.ObjectChange) {
	for id, w := range ts.writes {
		change := types.ObjectChange{ObjectId: id, NewVersion: w.Object.Version}
		switch w.Kind {
		case objectstore.WriteCreate:
			created = append(created, change)
		case objectstore.WriteUnwrap:
			unwrapped = append(unwrapped, change)
		default:
			mutated = append(mutated, change)
		}
	}
	for id, d := range ts.deletes {
		change := types.ObjectChange{ObjectId: id, NewVersion: d.NewVersion}
		switch d.Kind {
		case objectstore.DeleteWrap:
			wrapped = append(wrapped, change)
		case objectstore.DeleteUnwrapThenDelete:
			unwrappedThenDeleted = append(unwrappedThenDeleted, change)
		default:
			deleted = append(deleted, change)
		}
	}
	return
}
