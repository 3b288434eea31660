// Copyright 2025 Certen Protocol

package execution

import (
	"context"
	"testing"

	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/types"
)

func addr(b byte) types.ObjectId {
	var id types.ObjectId
	id[31] = b
	return id
}

func coinObject(id types.ObjectId, version types.Version, owner types.ObjectId, balance uint64) *types.Object {
	o := &types.Object{
		Id:          id,
		Version:     version,
		Owner:       types.AddressOwner(owner),
		PayloadKind: types.PayloadData,
		TypeTag:     types.CoinTypeTag,
	}
	o.SetBalance(balance)
	return o
}

func payCert(sender types.ObjectId, epoch types.EpochId, gasRef types.ObjectRef, coins []types.ObjectRef, recipients []types.ObjectId, amounts []uint64) *types.CertifiedTransaction {
	data := types.TransactionData{
		Sender: sender,
		Epoch:  epoch,
		Gas:    types.GasData{Payment: []types.ObjectRef{gasRef}, Owner: sender, Price: 1, Budget: 1_000_000},
		Kinds: []types.TransactionKind{
			{Tag: types.KindPay, Pay: &types.PayData{Coins: coins, Recipients: recipients, Amounts: amounts}},
		},
	}
	return &types.CertifiedTransaction{Transaction: types.Transaction{Data: data}, Epoch: epoch}
}

func gasCoin(owner types.ObjectId) (*types.Object, types.ObjectRef) {
	g := coinObject(addr(0xFF), 1, owner, 1_000_000)
	return g, g.Ref()
}

// Scenario 1: Pay one coin, partial spend.
func TestPay_OneCoinPartialSpend(t *testing.T) {
	a, b, c := addr(1), addr(2), addr(3)
	coin := coinObject(addr(10), 5, a, 10)
	gas, gasRef := gasCoin(a)

	cert := payCert(a, 1, gasRef, []types.ObjectRef{coin.Ref()}, []types.ObjectId{b, c}, []uint64{6, 3})
	inputs := map[types.ObjectId]*types.Object{coin.Id: coin, gas.Id: gas}

	_, effects, err := Execute(context.Background(), objectstore.NewMemStore(), nil, Request{
		Certified: cert, Inputs: inputs,
	})
	if err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if effects.Status.Kind != types.StatusSuccess {
		t.Fatalf("expected success, got failure: %+v", effects.Status.Failure)
	}
	if len(effects.Created) != 2 {
		t.Fatalf("expected 2 created objects, got %d", len(effects.Created))
	}
	if len(effects.Mutated) != 2 { // coin + gas
		t.Fatalf("expected 2 mutated objects (coin, gas), got %d", len(effects.Mutated))
	}
	if len(effects.Deleted) != 0 {
		t.Fatalf("expected 0 deleted objects, got %d", len(effects.Deleted))
	}
	for _, m := range effects.Mutated {
		if m.ObjectId == coin.Id && m.NewVersion <= coin.Version {
			t.Fatalf("coin version did not advance: %d", m.NewVersion)
		}
	}
}

// Scenario 2: Pay exhausts two coins.
func TestPay_ExhaustsTwoCoins(t *testing.T) {
	a, r1, r2 := addr(1), addr(2), addr(3)
	c1 := coinObject(addr(10), 5, a, 10)
	c2 := coinObject(addr(11), 5, a, 5)
	gas, gasRef := gasCoin(a)

	cert := payCert(a, 1, gasRef, []types.ObjectRef{c1.Ref(), c2.Ref()}, []types.ObjectId{r1, r2}, []uint64{4, 11})
	inputs := map[types.ObjectId]*types.Object{c1.Id: c1, c2.Id: c2, gas.Id: gas}

	_, effects, err := Execute(context.Background(), objectstore.NewMemStore(), nil, Request{
		Certified: cert, Inputs: inputs,
	})
	if err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if effects.Status.Kind != types.StatusSuccess {
		t.Fatalf("expected success, got failure: %+v", effects.Status.Failure)
	}
	if len(effects.Created) != 2 {
		t.Fatalf("expected 2 created objects, got %d", len(effects.Created))
	}
	if len(effects.Deleted) != 2 {
		t.Fatalf("expected 2 deleted objects (c1, c2 drained), got %d", len(effects.Deleted))
	}
	deleted := map[types.ObjectId]bool{}
	for _, d := range effects.Deleted {
		deleted[d.ObjectId] = true
	}
	if !deleted[c1.Id] || !deleted[c2.Id] {
		t.Fatalf("expected both input coins deleted, got %+v", effects.Deleted)
	}
}

// Scenario 3: Pay insufficient balance.
func TestPay_InsufficientBalance(t *testing.T) {
	a, r1, r2 := addr(1), addr(2), addr(3)
	c1 := coinObject(addr(10), 5, a, 10)
	c2 := coinObject(addr(11), 5, a, 5)
	gas, gasRef := gasCoin(a)

	cert := payCert(a, 1, gasRef, []types.ObjectRef{c1.Ref(), c2.Ref()}, []types.ObjectId{r1, r2}, []uint64{10, 6})
	inputs := map[types.ObjectId]*types.Object{c1.Id: c1, c2.Id: c2, gas.Id: gas}

	_, effects, err := Execute(context.Background(), objectstore.NewMemStore(), nil, Request{
		Certified: cert, Inputs: inputs,
	})
	if err == nil {
		t.Fatalf("expected a dispatch error")
	}
	if effects.Status.Kind != types.StatusFailure {
		t.Fatalf("expected failure status")
	}
	if effects.Status.Failure.Kind != types.FailureInsufficientBalance {
		t.Fatalf("expected InsufficientBalance, got %v", effects.Status.Failure.Kind)
	}
	if len(effects.Created) != 0 || len(effects.Deleted) != 0 {
		t.Fatalf("expected no writes on failure, got created=%d deleted=%d", len(effects.Created), len(effects.Deleted))
	}
}

// Scenario 4: Pay arity mismatch.
func TestPay_ArityMismatch(t *testing.T) {
	a, r1, r2 := addr(1), addr(2), addr(3)
	coin := coinObject(addr(10), 5, a, 10)
	gas, gasRef := gasCoin(a)

	cert := payCert(a, 1, gasRef, []types.ObjectRef{coin.Ref()}, []types.ObjectId{r1, r2}, []uint64{5})
	inputs := map[types.ObjectId]*types.Object{coin.Id: coin, gas.Id: gas}

	_, effects, err := Execute(context.Background(), objectstore.NewMemStore(), nil, Request{
		Certified: cert, Inputs: inputs,
	})
	if err == nil {
		t.Fatalf("expected a dispatch error")
	}
	if effects.Status.Failure.Kind != types.FailureArityMismatch {
		t.Fatalf("expected ArityMismatch, got %v", effects.Status.Failure.Kind)
	}
}

// Coin conservation invariant (spec §8): input value equals created value
// plus what remains mutated into the source coin, for every Pay execution.
func TestPay_CoinConservation(t *testing.T) {
	a, b := addr(1), addr(2)
	coin := coinObject(addr(10), 5, a, 10)
	gas, gasRef := gasCoin(a)

	cert := payCert(a, 1, gasRef, []types.ObjectRef{coin.Ref()}, []types.ObjectId{b}, []uint64{7})
	inputs := map[types.ObjectId]*types.Object{coin.Id: coin, gas.Id: gas}

	backing := objectstore.NewMemStore()
	ts, effects, err := Execute(context.Background(), backing, nil, Request{Certified: cert, Inputs: inputs})
	if err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	var createdTotal, remainingTotal uint64
	for _, c := range effects.Created {
		obj, ok := ts.GetObject(c.ObjectId)
		if !ok {
			t.Fatalf("created object %s missing from working set", c.ObjectId)
		}
		createdTotal += obj.Balance()
	}
	for _, m := range effects.Mutated {
		if m.ObjectId == coin.Id {
			obj, _ := ts.GetObject(coin.Id)
			remainingTotal = obj.Balance()
		}
	}
	if createdTotal+remainingTotal != coin.Balance() {
		t.Fatalf("coin conservation violated: created=%d remaining=%d input=%d", createdTotal, remainingTotal, coin.Balance())
	}
}

func TestVersionMonotonicity(t *testing.T) {
	a, b := addr(1), addr(2)
	obj := &types.Object{Id: addr(20), Version: 3, Owner: types.AddressOwner(a), PayloadKind: types.PayloadData, TypeTag: "widget"}
	gas, gasRef := gasCoin(a)

	data := types.TransactionData{
		Sender: a,
		Epoch:  1,
		Gas:    types.GasData{Payment: []types.ObjectRef{gasRef}, Owner: a, Price: 1, Budget: 1_000_000},
		Kinds: []types.TransactionKind{
			{Tag: types.KindTransferObject, TransferObject: &types.TransferObjectData{ObjectRef: obj.Ref(), Recipient: b}},
		},
	}
	cert := &types.CertifiedTransaction{Transaction: types.Transaction{Data: data}, Epoch: 1}
	inputs := map[types.ObjectId]*types.Object{obj.Id: obj, gas.Id: gas}

	_, effects, err := Execute(context.Background(), objectstore.NewMemStore(), nil, Request{Certified: cert, Inputs: inputs})
	if err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	for _, m := range effects.Mutated {
		var inputVersion types.Version
		switch m.ObjectId {
		case obj.Id:
			inputVersion = obj.Version
		case gas.Id:
			inputVersion = gas.Version
		}
		if m.NewVersion <= inputVersion {
			t.Fatalf("object %s did not advance version: input=%d new=%d", m.ObjectId, inputVersion, m.NewVersion)
		}
	}
}
