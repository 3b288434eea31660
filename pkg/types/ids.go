// Copyright 2025 Certen Protocol
//
// Package types defines the object-centric data model: objects, coins,
// transactions, certified transactions, effects and checkpoints.

package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ObjectId is an opaque 32-byte identifier for an object or package.
type ObjectId [32]byte

// String renders the id as a "0x"-prefixed hex string.
func (id ObjectId) String() string {
	return hexutil.Encode(id[:])
}

// ObjectIdFromHex decodes a "0x"-prefixed (or bare) hex string into an ObjectId.
func ObjectIdFromHex(s string) (ObjectId, error) {
	var id ObjectId
	b, err := hexutil.Decode(ensureHexPrefix(s))
	if err != nil {
		return id, fmt.Errorf("invalid object id hex: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid object id length: got %d bytes, want %d", len(b), len(id))
	}
	copy(id[:], b)
	return id, nil
}

// Digest is a 32-byte content digest, used for objects, transactions and
// effects alike.
type Digest [32]byte

// String renders the digest as a "0x"-prefixed hex string.
func (d Digest) String() string {
	return hexutil.Encode(d[:])
}

func ensureHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s
	}
	return "0x" + s
}

func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Version is a strictly-increasing per-object sequence number.
type Version uint64

// Sentinel shared-object versions assigned by consensus when a transaction's
// shared-object reads are cancelled rather than sequenced normally: a
// deadlock-breaking cancellation and an object-congestion cancellation.
// Neither ever appears as a real object version, so a scheduler wait keyed
// on one of these must never block on store state — it is already decided.
const (
	CancelledReadVersion Version = ^Version(0)
	CongestedVersion     Version = ^Version(0) - 1
)

// IsCancelledVersion reports whether v is one of the cancellation sentinels.
func IsCancelledVersion(v Version) bool {
	return v == CancelledReadVersion || v == CongestedVersion
}

// EpochId identifies a consensus epoch.
type EpochId uint64

// TransactionDigest identifies a transaction uniquely and deterministically.
type TransactionDigest = Digest

// CheckpointDigest identifies a checkpoint header uniquely.
type CheckpointDigest = Digest

// CheckpointSequenceNumber is the monotonic position of a checkpoint in the chain.
type CheckpointSequenceNumber uint64

// ObjectRef pins an object to an exact version and content digest; every
// operation that reads or writes an object carries the ObjectRef it expects.
type ObjectRef struct {
	ObjectId ObjectId
	Version  Version
	Digest   Digest
}

// Framework/stdlib package identifiers exempt from storage-read charging.
// These are configured constants rather than named after any specific
// external VM's packages (the VM itself is out of scope, per spec).
var (
	FrameworkPackageID = ObjectId{0x01}
	StdlibPackageID     = ObjectId{0x02}

	// ClockObjectID is the well-known shared object ConsensusCommitPrologue
	// updates on every commit, analogous to the original's SUI_CLOCK_OBJECT_ID.
	ClockObjectID = ObjectId{0x03}

	// SystemStateObjectID is the well-known shared object ChangeEpoch mutates.
	SystemStateObjectID = ObjectId{0x04}
)

// IsFreePackage reports whether reading this package incurs no storage charge.
func IsFreePackage(id ObjectId) bool {
	return id == FrameworkPackageID || id == StdlibPackageID
}
