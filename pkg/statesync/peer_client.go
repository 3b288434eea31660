// Copyright 2025 Certen Protocol
//
// PeerClient and PeerSource are the peer-to-peer network's external
// collaborators (spec's out-of-scope boundary, same pattern as C1's
// objectstore.Store and C4's TransactionDriver/Validator): state-sync
// only knows the wire contract, not anemo/libp2p/gRPC transport details.
// Grounded on state_sync/mod.rs's GetCheckpointSummaryRequest/
// GetCheckpointContentsRequest and the generated StateSyncClient.

package statesync

import (
	"context"

	"github.com/certen/objectvalidator/pkg/types"
)

// CheckpointSummaryQuery selects which header a peer is asked for.
type CheckpointSummaryQuery struct {
	Latest         bool
	BySequence     *types.CheckpointSequenceNumber
	ByDigest       *types.CheckpointDigest
}

// PeerClient is the request surface one connected peer exposes for
// checkpoint gossip.
type PeerClient interface {
	GetCheckpointSummary(ctx context.Context, query CheckpointSummaryQuery) (*types.CertifiedCheckpointSummary, error)
	GetCheckpointContents(ctx context.Context, contentDigest types.Digest) (*types.CheckpointContents, error)

	// PushCheckpoint notifies this peer that we've synced a new checkpoint,
	// the gossip half of spec_full's "every concurrency-th commit, notify
	// peers" rule.
	PushCheckpoint(ctx context.Context, checkpoint *types.CertifiedCheckpointSummary) error
}

// PeerSource enumerates currently connected peers and hands out a
// PeerClient for each, standing in for anemo's Network/PeerEvent stream.
type PeerSource interface {
	Peers() []PeerID
	Client(id PeerID) (PeerClient, bool)

	// Subscribe returns a channel of peer-join/leave events; closed when the
	// source shuts down.
	Subscribe() <-chan PeerEvent
}

// PeerEventKind distinguishes a peer connecting from disconnecting.
type PeerEventKind int

const (
	PeerJoined PeerEventKind = iota
	PeerLeft
)

// PeerEvent is one connectivity change delivered by a PeerSource.
type PeerEvent struct {
	Kind PeerEventKind
	Peer PeerID
}
