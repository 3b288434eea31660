package types

import "github.com/certen/objectvalidator/pkg/merkle"

// CheckpointSummary is the certified checkpoint header: an ordered batch of
// transaction digests is summarized by ContentDigest, not carried inline.
type CheckpointSummary struct {
	Epoch                EpochId
	Sequence              CheckpointSequenceNumber
	PreviousDigest        CheckpointDigest // zero for the genesis checkpoint
	ContentDigest         Digest
	NetworkTotalTransactions uint64
	TimestampMs           uint64
	NextEpochCommittee    *Committee // present only when this checkpoint ends an epoch
}

func (s *CheckpointSummary) Digest() Digest {
	h := newDigestHasher()
	h.writeInt(int(s.Epoch))
	h.writeInt(int(s.Sequence))
	h.write(s.PreviousDigest[:])
	h.write(s.ContentDigest[:])
	h.writeInt(int(s.NetworkTotalTransactions))
	return h.sum()
}

// CertifiedCheckpointSummary is a CheckpointSummary plus committee signatures.
type CertifiedCheckpointSummary struct {
	Summary    CheckpointSummary
	Signatures []ValidatorSignature
}

// CheckpointContents is the full ordered list of transaction digests (and
// their effects digests) referenced by a checkpoint.
type CheckpointContents struct {
	Transactions []ExecutionDigests
}

// ExecutionDigests pairs a transaction digest with its effects digest.
type ExecutionDigests struct {
	Transaction TransactionDigest
	Effects     Digest
}

// ContentDigest computes the digest committed to by CheckpointSummary.ContentDigest:
// the root of a Merkle tree over each transaction's (digest, effects digest)
// leaf, so that a light client can request an inclusion proof for a single
// transaction without downloading the whole checkpoint.
func (c *CheckpointContents) ContentDigest() Digest {
	tree, err := merkle.BuildTree(c.leafHashes())
	if err != nil {
		// Empty checkpoints (no transactions) have no tree; their content
		// digest is the zero digest, matching the empty-contents case.
		return Digest{}
	}
	var d Digest
	copy(d[:], tree.Root())
	return d
}

// ContentProof returns a Merkle inclusion proof that txIndex's entry is part
// of this checkpoint's contents, for a peer that only wants to verify one
// transaction against a known ContentDigest rather than fetch the full list.
func (c *CheckpointContents) ContentProof(txIndex int) (*merkle.InclusionProof, error) {
	tree, err := merkle.BuildTree(c.leafHashes())
	if err != nil {
		return nil, err
	}
	return tree.GenerateProof(txIndex)
}

func (c *CheckpointContents) leafHashes() [][]byte {
	leaves := make([][]byte, len(c.Transactions))
	for i, d := range c.Transactions {
		leaves[i] = merkle.CombineHashes(d.Transaction[:], d.Effects[:])
	}
	return leaves
}
