// Copyright 2025 Certen Protocol
//
// Header sync: verify and adopt checkpoint headers peers advertise ahead of
// our highest_verified_checkpoint, grounded on state_sync/mod.rs's
// maybe_start_checkpoint_summary_sync_task / sync_to_checkpoint.

package statesync

import (
	"context"
	"log"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/certen/objectvalidator/pkg/types"
)

// maybeStartHeaderSync launches a header-sync run if one isn't already in
// flight and a peer has advertised a header beyond our current tip.
func (e *EventLoop) maybeStartHeaderSync(ctx context.Context) {
	e.headerSyncMu.Lock()
	if e.headerSyncRunning {
		e.headerSyncMu.Unlock()
		return
	}
	target, ok := e.heights.HighestKnownCheckpoint()
	if !ok || target.Summary.Sequence <= e.highestVerifiedLocked() {
		e.headerSyncMu.Unlock()
		return
	}
	e.headerSyncRunning = true
	e.headerSyncMu.Unlock()

	go func() {
		defer func() {
			e.headerSyncMu.Lock()
			e.headerSyncRunning = false
			e.headerSyncMu.Unlock()
		}()
		e.syncToCheckpoint(ctx, target)
	}()
}

// syncToCheckpoint fetches, verifies, and adopts every header after our
// current tip up to and including target, in order. Fetches for distinct
// sequence numbers run concurrently (bounded by HeaderDownloadConcurrency);
// adoption happens strictly in sequence order so a later header never
// becomes our tip before an earlier one has been checked.
func (e *EventLoop) syncToCheckpoint(ctx context.Context, target *types.CertifiedCheckpointSummary) {
	start := e.highestVerifiedLocked() + 1
	end := target.Summary.Sequence
	if start > end {
		return
	}

	jobID := uuid.New()
	log.Printf("[STATESYNC] header sync job %s: syncing checkpoints %d..=%d", jobID, start, end)

	var mu sync.Mutex
	cond := sync.NewCond(&mu)
	fetched := make(map[types.CheckpointSequenceNumber]*types.CertifiedCheckpointSummary)
	fetchedFrom := make(map[types.CheckpointSequenceNumber]PeerID)
	failed := make(map[types.CheckpointSequenceNumber]bool)

	sem := make(chan struct{}, e.cfg.HeaderDownloadConcurrency)
	var wg sync.WaitGroup
	for seq := start; seq <= end; seq++ {
		seq := seq
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			header, from, ok := e.fetchHeaderFromAnyPeer(ctx, seq)
			mu.Lock()
			if ok {
				fetched[seq] = header
				fetchedFrom[seq] = from
			} else {
				failed[seq] = true
			}
			cond.Broadcast()
			mu.Unlock()
		}()
	}
	go func() { wg.Wait() }()

	for seq := start; seq <= end; seq++ {
		mu.Lock()
		for fetched[seq] == nil && !failed[seq] {
			cond.Wait()
		}
		header := fetched[seq]
		from := fetchedFrom[seq]
		wasFailed := failed[seq]
		mu.Unlock()

		if wasFailed {
			log.Printf("[STATESYNC] header sync: exhausted all peers for checkpoint %d, aborting run", seq)
			return
		}

		if !e.verifyAndAdvanceHeader(header, from) {
			return
		}
	}
}

// fetchHeaderFromAnyPeer tries every peer whose advertised height covers
// seq, in random order, falling through to the next on failure.
func (e *EventLoop) fetchHeaderFromAnyPeer(ctx context.Context, seq types.CheckpointSequenceNumber) (*types.CertifiedCheckpointSummary, PeerID, bool) {
	candidates := e.heights.PeersCoveringSequence(seq)
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	for _, id := range candidates {
		client, ok := e.peers.Client(id)
		if !ok {
			continue
		}
		reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		header, err := client.GetCheckpointSummary(reqCtx, CheckpointSummaryQuery{BySequence: &seq})
		cancel()
		if err != nil || header == nil || header.Summary.Sequence != seq {
			continue
		}
		return header, id, true
	}
	return nil, "", false
}

// verifyAndAdvanceHeader checks chain continuity, epoch monotonicity, and
// the committee's signature quorum, then advances highest_verified_checkpoint
// on success. Returns false (and aborts the caller's sync run) on failure;
// per spec's "reject and isolate the source peer" rule, every false-return
// path marks `from` (the peer this header came from) as not-on-same-chain.
func (e *EventLoop) verifyAndAdvanceHeader(header *types.CertifiedCheckpointSummary, from PeerID) bool {
	e.verifiedMu.Lock()
	tip, ok := e.store.GetCheckpointBySequence(e.highestVerified)
	tipDigest := types.Digest{}
	if ok {
		tipDigest = tip.Summary.Digest()
	}
	currentEpoch := types.EpochId(0)
	if ok {
		currentEpoch = tip.Summary.Epoch
	}
	e.verifiedMu.Unlock()

	if header.Summary.PreviousDigest != tipDigest {
		log.Printf("[STATESYNC] header verification failed: checkpoint %d previous_digest does not match our tip", header.Summary.Sequence)
		e.heights.MarkPeerAsNotOnSameChain(from)
		return false
	}

	switch header.Summary.Epoch {
	case currentEpoch:
	case currentEpoch + 1:
		if ok && tip.Summary.NextEpochCommittee == nil {
			log.Printf("[STATESYNC] header verification failed: checkpoint %d claims epoch %d without a next_epoch_committee on its predecessor", header.Summary.Sequence, header.Summary.Epoch)
			e.heights.MarkPeerAsNotOnSameChain(from)
			return false
		}
	default:
		log.Printf("[STATESYNC] header verification failed: checkpoint %d epoch %d is neither current nor current+1", header.Summary.Sequence, header.Summary.Epoch)
		e.heights.MarkPeerAsNotOnSameChain(from)
		return false
	}

	committee, ok := e.store.GetCommittee(header.Summary.Epoch)
	if !ok || !committee.HasQuorum(header.Signatures) {
		log.Printf("[STATESYNC] header verification failed: checkpoint %d lacks a quorum of committee signatures", header.Summary.Sequence)
		e.heights.MarkPeerAsNotOnSameChain(from)
		return false
	}

	e.verifiedMu.Lock()
	e.highestVerified = header.Summary.Sequence
	e.verifiedHeaders[header.Summary.Sequence] = header
	e.verifiedMu.Unlock()

	if e.metrics != nil {
		e.metrics.HighestVerifiedCheckpoint.Set(float64(header.Summary.Sequence))
	}
	e.contentTarget.Set(header.Summary.Sequence)
	return true
}
