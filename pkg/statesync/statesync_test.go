package statesync

import (
	"context"
	"testing"
	"time"

	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/types"
)

// fakePeerClient answers summary/contents queries from fixed maps.
type fakePeerClient struct {
	summaries map[types.CheckpointSequenceNumber]*types.CertifiedCheckpointSummary
	latest    *types.CertifiedCheckpointSummary
	contents  map[types.Digest]*types.CheckpointContents
}

func (c *fakePeerClient) GetCheckpointSummary(_ context.Context, q CheckpointSummaryQuery) (*types.CertifiedCheckpointSummary, error) {
	if q.Latest {
		return c.latest, nil
	}
	if q.BySequence != nil {
		return c.summaries[*q.BySequence], nil
	}
	if q.ByDigest != nil {
		for _, s := range c.summaries {
			if s.Summary.Digest() == *q.ByDigest {
				return s, nil
			}
		}
	}
	return nil, nil
}

func (c *fakePeerClient) GetCheckpointContents(_ context.Context, digest types.Digest) (*types.CheckpointContents, error) {
	return c.contents[digest], nil
}

func (c *fakePeerClient) PushCheckpoint(context.Context, *types.CertifiedCheckpointSummary) error {
	return nil
}

// fakePeerSource hands out a single configured peer and never emits events.
type fakePeerSource struct {
	client *fakePeerClient
}

func (s *fakePeerSource) Peers() []PeerID { return []PeerID{"peer-1"} }
func (s *fakePeerSource) Client(id PeerID) (PeerClient, bool) {
	if id != "peer-1" {
		return nil, false
	}
	return s.client, true
}
func (s *fakePeerSource) Subscribe() <-chan PeerEvent {
	ch := make(chan PeerEvent)
	return ch
}

func genesisCheckpoint() *types.CertifiedCheckpointSummary {
	return &types.CertifiedCheckpointSummary{Summary: types.CheckpointSummary{Epoch: 0, Sequence: 0}}
}

func testCommittee(epoch types.EpochId) *types.Committee {
	return &types.Committee{
		Epoch: epoch,
		Validators: []types.Validator{
			{ID: "v1", VotingPower: 1},
			{ID: "v2", VotingPower: 1},
			{ID: "v3", VotingPower: 1},
			{ID: "v4", VotingPower: 1},
		},
	}
}

func quorumSignatures() []types.ValidatorSignature {
	return []types.ValidatorSignature{{ValidatorID: "v1"}, {ValidatorID: "v2"}, {ValidatorID: "v3"}}
}

func newTestLoop(t *testing.T) (*EventLoop, *objectstore.MemStore) {
	t.Helper()
	store := objectstore.NewMemStore()
	genesis := genesisCheckpoint()
	if err := store.InsertCheckpoint(context.Background(), genesis, &types.CheckpointContents{}); err != nil {
		t.Fatalf("seeding genesis: %v", err)
	}
	if err := store.UpdateHighestSyncedCheckpoint(context.Background(), 0); err != nil {
		t.Fatalf("seeding genesis watermark: %v", err)
	}
	store.SetCommittee(testCommittee(0))

	e, _ := New(DefaultConfig(), store, &fakePeerSource{client: &fakePeerClient{}}, nil)
	return e, store
}

func TestPeerHeights_UpdateAndHighestKnown(t *testing.T) {
	h := NewPeerHeights()
	h.InsertPeerInfo("p1", PeerInfo{OnSameChainAsUs: true, Height: 0})

	cp := &types.CertifiedCheckpointSummary{Summary: types.CheckpointSummary{Sequence: 5}}
	if !h.UpdatePeerInfo("p1", cp) {
		t.Fatal("expected update to succeed for a known same-chain peer")
	}

	seq, ok := h.HighestKnownCheckpointSequenceNumber()
	if !ok || seq != 5 {
		t.Fatalf("expected highest known sequence 5, got %d (ok=%v)", seq, ok)
	}

	h.MarkPeerAsNotOnSameChain("p1")
	if _, ok := h.HighestKnownCheckpointSequenceNumber(); ok {
		t.Fatal("expected no known checkpoint once the only peer is marked off-chain")
	}
}

func TestVerifyAndAdvanceHeader_Success(t *testing.T) {
	e, store := newTestLoop(t)

	header := &types.CertifiedCheckpointSummary{
		Summary:    types.CheckpointSummary{Epoch: 0, Sequence: 1, PreviousDigest: genesisCheckpoint().Summary.Digest()},
		Signatures: quorumSignatures(),
	}

	e.heights.InsertPeerInfo("peer-1", PeerInfo{OnSameChainAsUs: true, Height: 1})
	if !e.verifyAndAdvanceHeader(header, "peer-1") {
		t.Fatal("expected header verification to succeed")
	}
	if e.highestVerifiedLocked() != 1 {
		t.Fatalf("expected highest verified to advance to 1, got %d", e.highestVerifiedLocked())
	}
	if !e.heights.OnSameChainAsUs("peer-1") {
		t.Fatal("expected peer to remain marked on-same-chain after a successful verification")
	}
	_ = store
}

func TestVerifyAndAdvanceHeader_RejectsFork(t *testing.T) {
	e, _ := newTestLoop(t)
	e.heights.InsertPeerInfo("peer-1", PeerInfo{OnSameChainAsUs: true, Height: 1})

	forkDigest := types.Digest{0xFF}
	header := &types.CertifiedCheckpointSummary{
		Summary:    types.CheckpointSummary{Epoch: 0, Sequence: 1, PreviousDigest: forkDigest},
		Signatures: quorumSignatures(),
	}

	if e.verifyAndAdvanceHeader(header, "peer-1") {
		t.Fatal("expected header with mismatched previous_digest to be rejected")
	}
	if e.highestVerifiedLocked() != 0 {
		t.Fatalf("expected highest verified to stay at 0 after a rejected header, got %d", e.highestVerifiedLocked())
	}
	if e.heights.OnSameChainAsUs("peer-1") {
		t.Fatal("expected the source peer to be marked not-on-same-chain after a rejected fork header")
	}
}

func TestVerifyAndAdvanceHeader_RejectsMissingQuorum(t *testing.T) {
	e, _ := newTestLoop(t)
	e.heights.InsertPeerInfo("peer-1", PeerInfo{OnSameChainAsUs: true, Height: 1})

	header := &types.CertifiedCheckpointSummary{
		Summary:    types.CheckpointSummary{Epoch: 0, Sequence: 1, PreviousDigest: genesisCheckpoint().Summary.Digest()},
		Signatures: []types.ValidatorSignature{{ValidatorID: "v1"}},
	}

	if e.verifyAndAdvanceHeader(header, "peer-1") {
		t.Fatal("expected header without a signature quorum to be rejected")
	}
	if e.heights.OnSameChainAsUs("peer-1") {
		t.Fatal("expected the source peer to be marked not-on-same-chain after a missing-quorum rejection")
	}
}

func TestHandleCheckpointFromConsensus_FastPath(t *testing.T) {
	e, _ := newTestLoop(t)

	checkpoint := &types.CertifiedCheckpointSummary{
		Summary: types.CheckpointSummary{Epoch: 0, Sequence: 1, PreviousDigest: genesisCheckpoint().Summary.Digest()},
	}
	synced := e.SubscribeToSyncedCheckpoints()

	e.handleCheckpointFromConsensus(context.Background(), checkpoint)

	if e.highestVerifiedLocked() != 1 {
		t.Fatalf("expected fast path to advance highest verified to 1, got %d", e.highestVerifiedLocked())
	}
	select {
	case got := <-synced:
		if got.Summary.Sequence != 1 {
			t.Fatalf("expected broadcast of sequence 1, got %d", got.Summary.Sequence)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a synced-checkpoint broadcast")
	}
}

func TestSyncOneCheckpoint_CommitsAndAdvancesWatermark(t *testing.T) {
	e, store := newTestLoop(t)

	contents := &types.CheckpointContents{Transactions: []types.ExecutionDigests{{}}}
	header := &types.CertifiedCheckpointSummary{
		Summary: types.CheckpointSummary{Epoch: 0, Sequence: 1, ContentDigest: contents.ContentDigest()},
	}
	e.peers = &fakePeerSource{client: &fakePeerClient{contents: map[types.Digest]*types.CheckpointContents{
		contents.ContentDigest(): contents,
	}}}
	e.heights.InsertPeerInfo("peer-1", PeerInfo{OnSameChainAsUs: true, Height: 1})

	checkpointSem := newWeightedSemaphore(e.cfg.ContentCheckpointConcurrency)
	txSem := newWeightedSemaphore(e.cfg.ContentTxConcurrency)

	ok := e.syncOneCheckpoint(context.Background(), header, checkpointSem, txSem)
	if !ok {
		t.Fatal("expected content sync to succeed")
	}
	if store.HighestSyncedCheckpoint() != 1 {
		t.Fatalf("expected highest synced checkpoint to advance to 1, got %d", store.HighestSyncedCheckpoint())
	}
}
