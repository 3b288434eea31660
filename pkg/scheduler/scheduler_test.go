// Copyright 2025 Certen Protocol

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/types"
)

func idAt(b byte) types.ObjectId {
	var id types.ObjectId
	id[31] = b
	return id
}

func certWithOwnedInput(sender types.ObjectId, epoch types.EpochId, objID types.ObjectId, version types.Version) *types.CertifiedTransaction {
	data := types.TransactionData{
		Sender: sender,
		Epoch:  epoch,
		Kinds: []types.TransactionKind{
			{Tag: types.KindTransferObject, TransferObject: &types.TransferObjectData{
				ObjectRef: types.ObjectRef{ObjectId: objID, Version: version},
				Recipient: sender,
			}},
		},
	}
	return &types.CertifiedTransaction{Transaction: types.Transaction{Data: data}, Epoch: epoch}
}

func certWithSharedInput(sender types.ObjectId, epoch types.EpochId, pkg types.ObjectId, sharedID types.ObjectId, version types.Version) *types.CertifiedTransaction {
	data := types.TransactionData{
		Sender: sender,
		Epoch:  epoch,
		Kinds: []types.TransactionKind{
			{Tag: types.KindCall, Call: &types.CallData{
				Package:  pkg,
				Module:   "m",
				Function: "f",
				Args: []types.CallArg{
					{IsObject: true, Shared: true, Object: types.ObjectRef{ObjectId: sharedID, Version: version}},
				},
			}},
		},
	}
	return &types.CertifiedTransaction{Transaction: types.Transaction{Data: data}, Epoch: epoch}
}

func waitForPending(t *testing.T, s *Scheduler, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.NumPending() == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("pending set never reached %d, stuck at %d", n, s.NumPending())
}

func TestEnqueue_ReleasesOnceInputAvailable(t *testing.T) {
	store := objectstore.NewMemStore()
	out := make(chan PendingCertificate, 4)
	s := New(store, 1, out, nil)

	sender := idAt(1)
	objID := idAt(10)
	cert := certWithOwnedInput(sender, 1, objID, 5)

	s.Enqueue(context.Background(), []*types.CertifiedTransaction{cert})
	waitForPending(t, s, 1)

	select {
	case <-out:
		t.Fatalf("certificate released before its input existed")
	case <-time.After(20 * time.Millisecond):
	}

	store.SeedObject(&types.Object{Id: objID, Version: 5, Owner: types.AddressOwner(sender)})

	select {
	case pc := <-out:
		if pc.Certificate.Digest() != cert.Digest() {
			t.Fatalf("wrong certificate released")
		}
	case <-time.After(time.Second):
		t.Fatalf("certificate never released after input became available")
	}

	// Still pending until NotifyCommit.
	if s.NumPending() != 1 {
		t.Fatalf("expected still pending pre-commit, got %d", s.NumPending())
	}
	s.NotifyCommit(cert)
	if s.NumPending() != 0 {
		t.Fatalf("expected pending cleared post-commit, got %d", s.NumPending())
	}
}

// Scheduler idempotence: enqueueing the same certified transaction multiple
// times yields exactly one PendingCertificate emission.
func TestEnqueue_IdempotentAcrossRepeats(t *testing.T) {
	store := objectstore.NewMemStore()
	out := make(chan PendingCertificate, 8)
	s := New(store, 1, out, nil)

	sender := idAt(1)
	objID := idAt(10)
	cert := certWithOwnedInput(sender, 1, objID, 5)
	store.SeedObject(&types.Object{Id: objID, Version: 5, Owner: types.AddressOwner(sender)})

	for i := 0; i < 5; i++ {
		s.Enqueue(context.Background(), []*types.CertifiedTransaction{cert})
	}

	var got int
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case <-out:
			got++
		case <-deadline:
			if got != 1 {
				t.Fatalf("expected exactly 1 emission for repeated enqueue, got %d", got)
			}
			return
		}
	}
}

// Scenario 5: two transactions waiting on the same shared object both
// become ready the moment that object's version appears.
func TestEnqueue_SharedObjectFanOut(t *testing.T) {
	store := objectstore.NewMemStore()
	out := make(chan PendingCertificate, 4)
	s := New(store, 1, out, nil)

	pkg := idAt(0x50)
	shared := idAt(20)
	certA := certWithSharedInput(idAt(1), 1, pkg, shared, 7)
	certB := certWithSharedInput(idAt(2), 1, pkg, shared, 7)
	store.SeedObject(&types.Object{Id: pkg, Version: 1, Owner: types.ImmutableOwner(), PayloadKind: types.PayloadPackage})

	s.Enqueue(context.Background(), []*types.CertifiedTransaction{certA, certB})
	waitForPending(t, s, 2)

	store.SeedObject(&types.Object{Id: shared, Version: 7, Owner: types.SharedOwner(7, true)})

	seen := map[types.TransactionDigest]bool{}
	for i := 0; i < 2; i++ {
		select {
		case pc := <-out:
			seen[pc.Certificate.Digest()] = true
		case <-time.After(time.Second):
			t.Fatalf("expected both fan-out certificates to release, got %d", len(seen))
		}
	}
	if !seen[certA.Digest()] || !seen[certB.Digest()] {
		t.Fatalf("expected both certA and certB released, got %+v", seen)
	}
}

// A cancelled shared input (sentinel CANCELLED_READ/CONGESTED version) is
// bypassed: the transaction waits only on its remaining non-shared inputs.
func TestEnqueue_CancelledSharedInputBypassed(t *testing.T) {
	store := objectstore.NewMemStore()
	out := make(chan PendingCertificate, 4)
	s := New(store, 1, out, nil)

	sender := idAt(1)
	owned := idAt(30)
	shared := idAt(31)

	data := types.TransactionData{
		Sender: sender,
		Epoch:  1,
		Kinds: []types.TransactionKind{
			{Tag: types.KindCall, Call: &types.CallData{
				Package:  idAt(0x60),
				Module:   "m",
				Function: "f",
				Args: []types.CallArg{
					{IsObject: true, Shared: true, Object: types.ObjectRef{ObjectId: shared, Version: types.CancelledReadVersion}},
					{IsObject: true, Object: types.ObjectRef{ObjectId: owned, Version: 3}},
				},
			}},
		},
	}
	cert := &types.CertifiedTransaction{Transaction: types.Transaction{Data: data}, Epoch: 1}
	store.SeedObject(&types.Object{Id: idAt(0x60), Version: 1, Owner: types.ImmutableOwner(), PayloadKind: types.PayloadPackage})

	s.Enqueue(context.Background(), []*types.CertifiedTransaction{cert})
	waitForPending(t, s, 1)

	// Never seed the shared object at CancelledReadVersion (impossible to);
	// with the called package already present, only the owned input still
	// needs to appear.
	store.SeedObject(&types.Object{Id: owned, Version: 3, Owner: types.AddressOwner(sender)})

	select {
	case pc := <-out:
		if pc.Certificate.Digest() != cert.Digest() {
			t.Fatalf("wrong certificate released")
		}
	case <-time.After(time.Second):
		t.Fatalf("cancelled-input transaction never released despite its owned input being available")
	}
}

func TestEnqueue_WrongEpochDropped(t *testing.T) {
	store := objectstore.NewMemStore()
	out := make(chan PendingCertificate, 1)
	s := New(store, 2, out, nil)

	cert := certWithOwnedInput(idAt(1), 1, idAt(10), 1) // epoch 1, scheduler is epoch 2

	s.Enqueue(context.Background(), []*types.CertifiedTransaction{cert})
	time.Sleep(20 * time.Millisecond)
	if s.NumPending() != 0 {
		t.Fatalf("expected wrong-epoch certificate to be dropped, got pending=%d", s.NumPending())
	}
}

func TestCheckExecutionOverload_MaxQueueLength(t *testing.T) {
	store := objectstore.NewMemStore()
	out := make(chan PendingCertificate, 4)
	s := New(store, 1, out, nil)

	sender := idAt(1)
	cert := certWithOwnedInput(sender, 1, idAt(10), 1)
	s.Enqueue(context.Background(), []*types.CertifiedTransaction{cert})
	waitForPending(t, s, 1)

	cfg := OverloadConfig{MaxQueueLength: 1}
	if err := s.CheckExecutionOverload(cfg, sender); err == nil {
		t.Fatalf("expected overload rejection at queue length limit")
	}
}
