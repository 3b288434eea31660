// Copyright 2025 Certen Protocol
//
// Package objectstore defines the Object Store contract (C1): versioned,
// content-addressed storage for objects, effects, checkpoints and committees,
// with await-on-availability notifications. Its implementations are external
// collaborators per the spec's Out-of-scope boundary; only the interface and
// a couple of reference/test implementations live here.

package objectstore

import (
	"context"

	"github.com/certen/objectvalidator/pkg/types"
)

// WriteKind distinguishes why an object is being written.
type WriteKind int

const (
	WriteCreate WriteKind = iota
	WriteMutate
	WriteUnwrap
)

// DeleteKind distinguishes why an object is being removed.
type DeleteKind int

const (
	DeleteNormal DeleteKind = iota
	DeleteUnwrapThenDelete
	DeleteWrap
)

// InputKey identifies one transaction-input slot for the scheduler's wait:
// an object id, the version it must appear at, and whether receiving
// semantics apply (present at >= Version rather than exactly Version).
type InputKey struct {
	ObjectId  types.ObjectId
	Version   types.Version
	Receiving bool
}

// Store is the object-store contract the execution pipeline depends on
// (spec §4.1). Implementations are out of scope; this interface is the
// only thing C2-C5 know about.
type Store interface {
	Get(ctx context.Context, id types.ObjectId, version types.Version) (*types.Object, bool, error)
	GetLatest(ctx context.Context, id types.ObjectId) (*types.Object, bool, error)

	// Write and Delete apply atomically per transaction; callers batch all
	// of one transaction's writes/deletes through WriteBatch.
	WriteBatch(ctx context.Context, writes []ObjectWrite, deletes []ObjectDelete, effects *types.Effects) error

	// NotifyReadInputObjects completes when every non-receiving key in
	// inputKeys is present at exactly its version and every key listed in
	// receivingKeys is present at some version >= its declared version.
	NotifyReadInputObjects(ctx context.Context, inputKeys []InputKey, receivingKeys map[types.ObjectId]bool, epoch types.EpochId) <-chan error

	// NotifyReadExecutedEffects completes once effects exist for every digest.
	NotifyReadExecutedEffects(ctx context.Context, digests []types.TransactionDigest) <-chan NotifyEffectsResult

	GetCommittee(epoch types.EpochId) (*types.Committee, bool)

	InsertCheckpoint(ctx context.Context, summary *types.CertifiedCheckpointSummary, contents *types.CheckpointContents) error
	UpdateHighestSyncedCheckpoint(ctx context.Context, seq types.CheckpointSequenceNumber) error
	GetFullCheckpointContents(ctx context.Context, contentDigest types.Digest) (*types.CheckpointContents, bool, error)

	HighestSyncedCheckpoint() types.CheckpointSequenceNumber
	GetCheckpointBySequence(seq types.CheckpointSequenceNumber) (*types.CertifiedCheckpointSummary, bool)
	GetCheckpointByDigest(digest types.CheckpointDigest) (*types.CertifiedCheckpointSummary, bool)
	LatestCheckpoint() (*types.CertifiedCheckpointSummary, bool)
}

// ObjectWrite is one object creation/mutation within a transaction's batch.
type ObjectWrite struct {
	Object *types.Object
	Kind   WriteKind
}

// ObjectDelete is one object removal (producing a version-bumped tombstone)
// within a transaction's batch.
type ObjectDelete struct {
	ObjectId   types.ObjectId
	NewVersion types.Version
	Kind       DeleteKind
}

// NotifyEffectsResult carries the resolved effects, or an error if the
// context was cancelled before all digests resolved.
type NotifyEffectsResult struct {
	Effects []*types.Effects
	Err     error
}
