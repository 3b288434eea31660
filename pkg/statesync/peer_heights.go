// Copyright 2025 Certen Protocol
//
// PeerHeights tracks, per peer, the highest checkpoint they've advertised
// and whether they're on our chain, grounded on state_sync/mod.rs's
// PeerHeights/PeerStateSyncInfo (translated from Arc<RwLock<PeerHeights>>
// to a plain sync.RWMutex-guarded struct, since Go has no equivalent of
// sharing an Arc across tasks without an explicit lock anyway).

package statesync

import (
	"sync"

	"github.com/certen/objectvalidator/pkg/types"
)

// PeerID identifies one gossip peer; concrete identity (network address,
// node id) is an external collaborator concern.
type PeerID string

// PeerInfo is what we know about one peer's sync position.
type PeerInfo struct {
	GenesisCheckpointDigest types.CheckpointDigest
	OnSameChainAsUs         bool
	Height                  types.CheckpointSequenceNumber
}

// PeerHeights is the shared table of per-peer advertised heights plus a
// staging area of checkpoint headers peers have told us about but that we
// haven't yet verified and stored ourselves.
type PeerHeights struct {
	mu sync.RWMutex

	peers                  map[PeerID]PeerInfo
	unprocessedCheckpoints map[types.CheckpointDigest]*types.CertifiedCheckpointSummary
	sequenceToDigest       map[types.CheckpointSequenceNumber]types.CheckpointDigest
}

func NewPeerHeights() *PeerHeights {
	return &PeerHeights{
		peers:                  make(map[PeerID]PeerInfo),
		unprocessedCheckpoints: make(map[types.CheckpointDigest]*types.CertifiedCheckpointSummary),
		sequenceToDigest:       make(map[types.CheckpointSequenceNumber]types.CheckpointDigest),
	}
}

// HighestKnownCheckpoint returns the highest-sequence checkpoint header
// advertised by any peer on our chain, if we've staged one.
func (p *PeerHeights) HighestKnownCheckpoint() (*types.CertifiedCheckpointSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	seq, ok := p.highestKnownCheckpointSequenceNumberLocked()
	if !ok {
		return nil, false
	}
	digest, ok := p.sequenceToDigest[seq]
	if !ok {
		return nil, false
	}
	cp, ok := p.unprocessedCheckpoints[digest]
	return cp, ok
}

func (p *PeerHeights) HighestKnownCheckpointSequenceNumber() (types.CheckpointSequenceNumber, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.highestKnownCheckpointSequenceNumberLocked()
}

func (p *PeerHeights) highestKnownCheckpointSequenceNumberLocked() (types.CheckpointSequenceNumber, bool) {
	var max types.CheckpointSequenceNumber
	found := false
	for _, info := range p.peers {
		if !info.OnSameChainAsUs {
			continue
		}
		if !found || info.Height > max {
			max = info.Height
			found = true
		}
	}
	return max, found
}

// PeersOnSameChain returns the id of every peer currently believed to be on
// our chain, for fan-out fetches.
func (p *PeerHeights) PeersOnSameChain() []PeerID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PeerID, 0, len(p.peers))
	for id, info := range p.peers {
		if info.OnSameChainAsUs {
			out = append(out, id)
		}
	}
	return out
}

// PeersCoveringSequence returns peers whose advertised height is at least
// seq, the candidate set header-sync picks a random fetch target from.
func (p *PeerHeights) PeersCoveringSequence(seq types.CheckpointSequenceNumber) []PeerID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PeerID, 0)
	for id, info := range p.peers {
		if info.OnSameChainAsUs && info.Height >= seq {
			out = append(out, id)
		}
	}
	return out
}

// UpdatePeerInfo ratchets a peer's height up and stages the checkpoint
// header they advertised. Returns false if the peer isn't tracked or has
// already been marked off our chain.
func (p *PeerHeights) UpdatePeerInfo(id PeerID, checkpoint *types.CertifiedCheckpointSummary) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.peers[id]
	if !ok || !info.OnSameChainAsUs {
		return false
	}
	if checkpoint.Summary.Sequence > info.Height {
		info.Height = checkpoint.Summary.Sequence
	}
	p.peers[id] = info
	p.insertCheckpointLocked(checkpoint)
	return true
}

// InsertPeerInfo records a newly discovered peer, or merges height if the
// peer is already known to share our genesis; a genesis mismatch replaces
// the stale entry outright (the peer might have switched networks).
func (p *PeerHeights) InsertPeerInfo(id PeerID, info PeerInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	existing, ok := p.peers[id]
	if !ok {
		p.peers[id] = info
		return
	}
	if existing.GenesisCheckpointDigest == info.GenesisCheckpointDigest {
		if info.Height > existing.Height {
			existing.Height = info.Height
		}
		p.peers[id] = existing
		return
	}
	p.peers[id] = info
}

// OnSameChainAsUs reports whether id is tracked and still believed to be on
// our chain.
func (p *PeerHeights) OnSameChainAsUs(id PeerID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.peers[id]
	return ok && info.OnSameChainAsUs
}

func (p *PeerHeights) MarkPeerAsNotOnSameChain(id PeerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.peers[id]
	if !ok {
		return
	}
	info.OnSameChainAsUs = false
	p.peers[id] = info
}

func (p *PeerHeights) RemovePeer(id PeerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.peers, id)
}

// CleanupOldCheckpoints drops every staged header at or below seq; they're
// no longer useful once our own watermark has passed them.
func (p *PeerHeights) CleanupOldCheckpoints(seq types.CheckpointSequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for digest, cp := range p.unprocessedCheckpoints {
		if cp.Summary.Sequence <= seq {
			delete(p.unprocessedCheckpoints, digest)
			delete(p.sequenceToDigest, cp.Summary.Sequence)
		}
	}
}

func (p *PeerHeights) InsertCheckpoint(checkpoint *types.CertifiedCheckpointSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.insertCheckpointLocked(checkpoint)
}

func (p *PeerHeights) insertCheckpointLocked(checkpoint *types.CertifiedCheckpointSummary) {
	digest := checkpoint.Summary.Digest()
	p.unprocessedCheckpoints[digest] = checkpoint
	p.sequenceToDigest[checkpoint.Summary.Sequence] = digest
}

func (p *PeerHeights) GetCheckpointBySequenceNumber(seq types.CheckpointSequenceNumber) (*types.CertifiedCheckpointSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	digest, ok := p.sequenceToDigest[seq]
	if !ok {
		return nil, false
	}
	cp, ok := p.unprocessedCheckpoints[digest]
	return cp, ok
}
