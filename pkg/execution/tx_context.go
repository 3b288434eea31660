// Copyright 2025 Certen Protocol

package execution

import (
	"encoding/binary"

	"github.com/certen/objectvalidator/pkg/types"
)

// TxContext carries per-transaction ambient state dispatch functions need:
// the sender, the transaction's digest (used both for PreviousTransaction
// stamping and as a seed for fresh object ids), and the executing epoch.
type TxContext struct {
	Sender ObjectId
	digest types.TransactionDigest
	epoch  types.EpochId
	nextID uint64
}

type ObjectId = types.ObjectId

// NewTxContext seeds a TxContext from a certified transaction's digest.
func NewTxContext(sender ObjectId, digest types.TransactionDigest, epoch types.EpochId) *TxContext {
	return &TxContext{Sender: sender, digest: digest, epoch: epoch}
}

func (tx *TxContext) Digest() types.TransactionDigest { return tx.digest }
func (tx *TxContext) Epoch() types.EpochId             { return tx.epoch }

// FreshID deterministically derives a new object id from this transaction's
// digest plus a monotonically increasing counter, so that re-executing the
// same certificate always creates objects with the same ids (spec's
// deterministic-effects invariant).
func (tx *TxContext) FreshID() types.ObjectId {
	var id types.ObjectId
	copy(id[:], tx.digest[:])
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], tx.nextID)
	tx.nextID++
	for i := range counter {
		id[len(id)-len(counter)+i] ^= counter[i]
	}
	return id
}
