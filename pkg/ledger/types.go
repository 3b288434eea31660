// Copyright 2025 Certen Protocol
//
// Persisted record shapes for the KV-backed object store. Adapted from the
// teacher's system/anchor ledger block-meta records: same JSON-over-KV shape,
// new domain (objects/effects/checkpoints instead of blocks/anchors).

package ledger

import "github.com/certen/objectvalidator/pkg/types"

// objectRecord is the persisted form of one (id, version) object.
type objectRecord struct {
	Id                  [32]byte `json:"id"`
	Version             uint64   `json:"version"`
	Digest              [32]byte `json:"digest"`
	OwnerKind           int      `json:"ownerKind"`
	OwnerAddress        [32]byte `json:"ownerAddress,omitempty"`
	OwnerParent         [32]byte `json:"ownerParent,omitempty"`
	InitialSharedVersion uint64  `json:"initialSharedVersion,omitempty"`
	Mutable             bool     `json:"mutable,omitempty"`
	PayloadKind         int      `json:"payloadKind"`
	TypeTag             string   `json:"typeTag,omitempty"`
	Modules             [][]byte `json:"modules,omitempty"`
	Contents            []byte   `json:"contents,omitempty"`
	PreviousTransaction [32]byte `json:"previousTransaction"`
	Tombstone           bool     `json:"tombstone,omitempty"`
}

func toRecord(o *types.Object, tombstone bool) *objectRecord {
	return &objectRecord{
		Id:                   o.Id,
		Version:              uint64(o.Version),
		Digest:               o.Digest,
		OwnerKind:            int(o.Owner.Kind),
		OwnerAddress:         o.Owner.Address,
		OwnerParent:          o.Owner.Parent,
		InitialSharedVersion: uint64(o.Owner.InitialSharedVersion),
		Mutable:              o.Owner.Mutable,
		PayloadKind:          int(o.PayloadKind),
		TypeTag:              o.TypeTag,
		Modules:              o.Modules,
		Contents:             o.Contents,
		PreviousTransaction:  o.PreviousTransaction,
		Tombstone:            tombstone,
	}
}

func (r *objectRecord) toObject() *types.Object {
	return &types.Object{
		Id:      r.Id,
		Version: types.Version(r.Version),
		Owner: types.Owner{
			Kind:                 types.OwnerKind(r.OwnerKind),
			Address:              r.OwnerAddress,
			Parent:               r.OwnerParent,
			InitialSharedVersion: types.Version(r.InitialSharedVersion),
			Mutable:              r.Mutable,
		},
		Digest:              r.Digest,
		PayloadKind:         types.PayloadKind(r.PayloadKind),
		TypeTag:             r.TypeTag,
		Modules:             r.Modules,
		Contents:            r.Contents,
		PreviousTransaction: r.PreviousTransaction,
	}
}

// metaRecord tracks, per object id, the highest known version (including
// tombstones) so GetLatest doesn't need a range scan.
type metaRecord struct {
	LatestVersions map[string]uint64 `json:"latestVersions"`
}

// effectsRecord is the persisted form of one transaction's effects.
type effectsRecord struct {
	TransactionDigest [32]byte          `json:"transactionDigest"`
	StatusSuccess     bool              `json:"statusSuccess"`
	FailureKind       int               `json:"failureKind,omitempty"`
	FailureDetails    string            `json:"failureDetails,omitempty"`
	Created           []objectChange    `json:"created,omitempty"`
	Mutated           []objectChange    `json:"mutated,omitempty"`
	Deleted           []objectChange    `json:"deleted,omitempty"`
	GasObjectId       [32]byte          `json:"gasObjectId"`
	GasObjectVersion  uint64            `json:"gasObjectVersion"`
	ComputationCost   uint64            `json:"computationCost"`
	StorageCost       uint64            `json:"storageCost"`
	StorageRebate     uint64            `json:"storageRebate"`
	Dependencies      [][32]byte        `json:"dependencies,omitempty"`
	ExecutedEpoch     uint64            `json:"executedEpoch"`
}

type objectChange struct {
	ObjectId   [32]byte `json:"objectId"`
	NewVersion uint64   `json:"newVersion"`
}

func toEffectsRecord(e *types.Effects) *effectsRecord {
	conv := func(cs []types.ObjectChange) []objectChange {
		out := make([]objectChange, len(cs))
		for i, c := range cs {
			out[i] = objectChange{ObjectId: c.ObjectId, NewVersion: uint64(c.NewVersion)}
		}
		return out
	}
	r := &effectsRecord{
		TransactionDigest: e.TransactionDigest,
		StatusSuccess:     e.Status.Kind == types.StatusSuccess,
		Created:           conv(e.Created),
		Mutated:           conv(e.Mutated),
		Deleted:           conv(e.Deleted),
		GasObjectId:       e.GasObject.ObjectId,
		GasObjectVersion:  uint64(e.GasObject.NewVersion),
		ComputationCost:   e.GasSummary.ComputationCost,
		StorageCost:       e.GasSummary.StorageCost,
		StorageRebate:     e.GasSummary.StorageRebate,
		ExecutedEpoch:     uint64(e.ExecutedEpoch),
	}
	if e.Status.Failure != nil {
		r.FailureKind = int(e.Status.Failure.Kind)
		r.FailureDetails = e.Status.Failure.Details
	}
	for _, d := range e.Dependencies {
		r.Dependencies = append(r.Dependencies, [32]byte(d))
	}
	return r
}

func (r *effectsRecord) toEffects() *types.Effects {
	conv := func(cs []objectChange) []types.ObjectChange {
		out := make([]types.ObjectChange, len(cs))
		for i, c := range cs {
			out[i] = types.ObjectChange{ObjectId: c.ObjectId, NewVersion: types.Version(c.NewVersion)}
		}
		return out
	}
	e := &types.Effects{
		TransactionDigest: r.TransactionDigest,
		Created:           conv(r.Created),
		Mutated:           conv(r.Mutated),
		Deleted:           conv(r.Deleted),
		GasObject:         types.ObjectChange{ObjectId: r.GasObjectId, NewVersion: types.Version(r.GasObjectVersion)},
		GasSummary: types.GasCostSummary{
			ComputationCost: r.ComputationCost,
			StorageCost:     r.StorageCost,
			StorageRebate:   r.StorageRebate,
		},
		ExecutedEpoch: types.EpochId(r.ExecutedEpoch),
	}
	if r.StatusSuccess {
		e.Status = types.Success()
	} else {
		e.Status = types.Failure(types.ExecutionFailureKind(r.FailureKind), r.FailureDetails)
	}
	for _, d := range r.Dependencies {
		e.Dependencies = append(e.Dependencies, types.Digest(d))
	}
	return e
}
