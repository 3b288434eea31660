// Copyright 2025 Certen Protocol
//
// Content sync: fetch the transaction/effects digest list for every
// verified-but-unsynced checkpoint and advance highest_synced_checkpoint in
// order, grounded on state_sync/mod.rs's sync_checkpoint_contents.

package statesync

import (
	"bytes"
	"context"
	"log"
	"time"

	"github.com/certen/objectvalidator/pkg/types"
)

// syncCheckpointContentsLoop runs for the lifetime of the event loop,
// waking whenever the verified watermark moves ahead of the synced one.
func (e *EventLoop) syncCheckpointContentsLoop(ctx context.Context) {
	checkpointSem := newWeightedSemaphore(e.cfg.ContentCheckpointConcurrency)
	txSem := newWeightedSemaphore(e.cfg.ContentTxConcurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.contentTarget.Changed():
		}

		target := e.contentTarget.Get()
		synced := e.store.HighestSyncedCheckpoint()
		if target <= synced {
			continue
		}

		committed := 0
		for seq := synced + 1; seq <= target; seq++ {
			header, ok := e.verifiedHeaderFor(seq)
			if !ok {
				break
			}
			if !e.syncOneCheckpoint(ctx, header, checkpointSem, txSem) {
				break
			}
			committed++
			if e.cfg.NotifyPeersEvery > 0 && committed%e.cfg.NotifyPeersEvery == 0 {
				go e.notifyPeersOfCheckpoint(ctx, header)
			}
			e.heights.CleanupOldCheckpoints(seq)
			e.forgetVerifiedHeader(seq)
		}
	}
}

func (e *EventLoop) verifiedHeaderFor(seq types.CheckpointSequenceNumber) (*types.CertifiedCheckpointSummary, bool) {
	e.verifiedMu.Lock()
	defer e.verifiedMu.Unlock()
	h, ok := e.verifiedHeaders[seq]
	return h, ok
}

func (e *EventLoop) forgetVerifiedHeader(seq types.CheckpointSequenceNumber) {
	e.verifiedMu.Lock()
	delete(e.verifiedHeaders, seq)
	e.verifiedMu.Unlock()
}

// syncOneCheckpoint fetches header's contents from peers, verifies the
// content hash, and commits both to the store. On failure it retries after
// RequeueDelay rather than giving up the sync run outright, per spec.
func (e *EventLoop) syncOneCheckpoint(ctx context.Context, header *types.CertifiedCheckpointSummary, checkpointSem, txSem *weightedSemaphore) bool {
	checkpointSem.acquire(1)
	defer checkpointSem.release(1)

	for {
		contents, ok := e.fetchContentsFromAnyPeer(ctx, header)
		if ok {
			weight := len(contents.Transactions)
			if weight == 0 {
				weight = 1
			}
			txSem.acquire(weight)
			err := e.store.InsertCheckpoint(ctx, header, contents)
			txSem.release(weight)
			if err == nil {
				if uerr := e.store.UpdateHighestSyncedCheckpoint(ctx, header.Summary.Sequence); uerr != nil {
					log.Printf("[STATESYNC] failed to advance highest synced checkpoint to %d: %v", header.Summary.Sequence, uerr)
				} else {
					if e.metrics != nil {
						e.metrics.HighestSyncedCheckpoint.Set(float64(header.Summary.Sequence))
					}
					e.broadcastSynced(header)
					return true
				}
			} else {
				log.Printf("[STATESYNC] failed to store checkpoint %d contents: %v", header.Summary.Sequence, err)
			}
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.cfg.RequeueDelay):
		}
	}
}

func (e *EventLoop) fetchContentsFromAnyPeer(ctx context.Context, header *types.CertifiedCheckpointSummary) (*types.CheckpointContents, bool) {
	if contents, ok, err := e.store.GetFullCheckpointContents(ctx, header.Summary.ContentDigest); err == nil && ok {
		return contents, true
	}

	for _, id := range e.heights.PeersOnSameChain() {
		client, ok := e.peers.Client(id)
		if !ok {
			continue
		}
		reqCtx, cancel := context.WithTimeout(ctx, e.cfg.ContentTimeout)
		contents, err := client.GetCheckpointContents(reqCtx, header.Summary.ContentDigest)
		cancel()
		if err != nil || contents == nil {
			continue
		}
		if !bytes.Equal(contentsDigestBytes(contents), header.Summary.ContentDigest[:]) {
			e.heights.MarkPeerAsNotOnSameChain(id)
			continue
		}
		return contents, true
	}
	return nil, false
}

func contentsDigestBytes(c *types.CheckpointContents) []byte {
	d := c.ContentDigest()
	return d[:]
}
