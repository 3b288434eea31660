// Copyright 2025 Certen Protocol
//
// Per-kind dispatch, grounded on execution_engine.rs's execution_loop match
// arms: transfer_object, transfer_sui, pay/pay_sui/pay_all_sui, advance_epoch,
// setup_consensus_commit, and the Genesis object-materialization branch.

package execution

import (
	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/types"
)

func dispatchSingle(ts *TemporaryStore, tx *TxContext, vm VM, meter GasMeter, gasObjectID types.ObjectId, kind types.TransactionKind) error {
	switch kind.Tag {
	case types.KindTransferObject:
		return transferObject(ts, tx, kind.TransferObject)
	case types.KindTransferSui:
		return transferSui(ts, tx, gasObjectID, kind.TransferSui)
	case types.KindPay:
		return pay(ts, tx, kind.Pay)
	case types.KindPaySui:
		return paySui(ts, tx, kind.PaySui)
	case types.KindPayAllSui:
		return payAllSui(ts, tx, kind.PayAllSui)
	case types.KindPublish:
		return publish(ts, tx, vm, meter, kind.Publish)
	case types.KindCall:
		return call(ts, tx, vm, meter, kind.Call)
	case types.KindChangeEpoch:
		return changeEpoch(ts, tx, vm, kind.ChangeEpoch)
	case types.KindConsensusCommitPrologue:
		return consensusCommitPrologue(ts, tx, kind.ConsensusCommitPrologue)
	case types.KindGenesis:
		return genesis(ts, tx, kind.Genesis)
	case types.KindProgrammableTransaction:
		// Deferred: rejected by a dedicated dispatch entry rather than
		// reaching an unreachable!()-style panic, keeping the table total.
		return newFailure(types.FailureUnsupportedTransactionKind, "programmable transactions are not yet supported")
	default:
		return newFailure(types.FailureUnsupportedTransactionKind, "unknown transaction kind %d", kind.Tag)
	}
}

func transferObject(ts *TemporaryStore, tx *TxContext, data *types.TransferObjectData) error {
	obj, ok := ts.GetObject(data.ObjectRef.ObjectId)
	if !ok {
		return newFailure(types.FailureInvalidObjectOwner, "object %s not found", data.ObjectRef.ObjectId)
	}
	if obj.Owner.IsImmutable() || obj.Owner.IsShared() {
		return newFailure(types.FailureObjectNotTransferable, "object %s is not publicly transferable", obj.Id)
	}
	moved := *obj
	moved.Owner = types.AddressOwner(data.Recipient)
	moved.PreviousTransaction = tx.Digest()
	ts.WriteObject(&moved, objectstore.WriteMutate)
	return nil
}

// transferSui never bumps the gas object's version itself: the gas object is
// written back at its current version and the single bump happens later in
// TemporaryStore.EnsureActiveInputsMutated.
func transferSui(ts *TemporaryStore, tx *TxContext, gasObjectID types.ObjectId, data *types.TransferSuiData) error {
	gas, ok := ts.GetObject(gasObjectID)
	if !ok {
		return newFailure(types.FailureInvalidObjectOwner, "gas object %s not found", gasObjectID)
	}
	if data.Amount == nil {
		moved := *gas
		moved.Owner = types.AddressOwner(data.Recipient)
		moved.PreviousTransaction = tx.Digest()
		ts.WriteObject(&moved, objectstore.WriteMutate)
		return nil
	}
	amount := *data.Amount
	if gas.Balance() < amount {
		return newFailure(types.FailureInsufficientBalance, "gas coin balance %d less than split amount %d", gas.Balance(), amount)
	}
	debited := *gas
	debited.SetBalance(gas.Balance() - amount)
	ts.WriteObject(&debited, objectstore.WriteMutate)

	newCoin := &types.Object{
		Id:                  tx.FreshID(),
		Version:             1,
		Owner:               types.AddressOwner(data.Recipient),
		PayloadKind:         types.PayloadData,
		TypeTag:             types.CoinTypeTag,
		PreviousTransaction: tx.Digest(),
	}
	newCoin.SetBalance(amount)
	ts.WriteObject(newCoin, objectstore.WriteCreate)
	return nil
}

func resolveCoins(ts *TemporaryStore, refs []types.ObjectRef) ([]*types.Object, error) {
	coins := make([]*types.Object, len(refs))
	for i, ref := range refs {
		obj, ok := ts.GetObject(ref.ObjectId)
		if !ok {
			return nil, newFailure(types.FailureInvalidObjectOwner, "coin %s not found", ref.ObjectId)
		}
		coins[i] = obj
	}
	return coins, nil
}

// pay debits coins left-to-right per spec step 3's Pay algorithm, deleting
// any input coin drained to zero and mutating the rest.
func pay(ts *TemporaryStore, tx *TxContext, data *types.PayData) error {
	if err := checkRecipients(data.Recipients, data.Amounts); err != nil {
		return err
	}
	coins, err := resolveCoins(ts, data.Coins)
	if err != nil {
		return err
	}
	if err := checkCoins(coins); err != nil {
		return err
	}
	working := make([]*types.Object, len(coins))
	for i, c := range coins {
		cp := *c
		working[i] = &cp
	}
	if _, _, err := checkTotalCoins(working, data.Amounts); err != nil {
		return err
	}

	debitCoinsAndTransfer(ts, tx, working, data.Recipients, data.Amounts)

	for _, coin := range working {
		if coin.Balance() == 0 {
			ts.DeleteObject(coin.Id, coin.Version+1, objectstore.DeleteNormal)
		} else {
			coin.PreviousTransaction = tx.Digest()
			ts.WriteObject(coin, objectstore.WriteMutate)
		}
	}
	return nil
}

// paySui merges every input coin (the primary being the gas coin itself)
// into one, then splits fresh coins off it for each recipient.
func paySui(ts *TemporaryStore, tx *TxContext, data *types.PaySuiData) error {
	coins, err := resolveCoins(ts, data.Coins)
	if err != nil {
		return err
	}
	if err := checkCoins(coins); err != nil {
		return err
	}
	if err := checkRecipients(data.Recipients, data.Amounts); err != nil {
		return err
	}
	total := uint64(0)
	for _, c := range coins {
		total += c.Balance()
	}
	if _, _, err := checkTotalCoins(coins, data.Amounts); err != nil {
		return err
	}

	merged := *coins[0]
	remaining := total
	for i, recipient := range data.Recipients {
		amount := data.Amounts[i]
		remaining -= amount
		newCoin := &types.Object{
			Id:                  tx.FreshID(),
			Version:             1,
			Owner:               types.AddressOwner(recipient),
			PayloadKind:         types.PayloadData,
			TypeTag:             types.CoinTypeTag,
			PreviousTransaction: tx.Digest(),
		}
		newCoin.SetBalance(amount)
		ts.WriteObject(newCoin, objectstore.WriteCreate)
	}
	merged.SetBalance(remaining)
	merged.PreviousTransaction = tx.Digest()
	ts.WriteObject(&merged, objectstore.WriteMutate)

	for _, c := range coins[1:] {
		ts.DeleteObject(c.Id, c.Version+1, objectstore.DeleteNormal)
	}
	return nil
}

// payAllSui merges every input coin into one and sends the whole thing to
// a single recipient; amounts are irrelevant, the entire balance moves.
func payAllSui(ts *TemporaryStore, tx *TxContext, data *types.PayAllSuiData) error {
	coins, err := resolveCoins(ts, data.Coins)
	if err != nil {
		return err
	}
	if err := checkCoins(coins); err != nil {
		return err
	}
	total := uint64(0)
	for _, c := range coins {
		total += c.Balance()
	}

	merged := *coins[0]
	merged.SetBalance(total)
	merged.Owner = types.AddressOwner(data.Recipient)
	merged.PreviousTransaction = tx.Digest()
	ts.WriteObject(&merged, objectstore.WriteMutate)

	for _, c := range coins[1:] {
		ts.DeleteObject(c.Id, c.Version+1, objectstore.DeleteNormal)
	}
	return nil
}

func publish(ts *TemporaryStore, tx *TxContext, vm VM, meter GasMeter, data *types.PublishData) error {
	totalBytes := 0
	for _, m := range data.Modules {
		totalBytes += len(m)
	}
	if err := meter.ChargePublish(totalBytes); err != nil {
		return err
	}
	if _, err := vm.Publish(ts, tx, data.Modules, meter); err != nil {
		return newFailure(types.FailurePublishError, "%v", err)
	}
	return nil
}

func call(ts *TemporaryStore, tx *TxContext, vm VM, meter GasMeter, data *types.CallData) error {
	if err := meter.ChargeComputation(1); err != nil {
		return err
	}
	if err := vm.Call(ts, tx, data.Package, data.Module, data.Function, data.TypeArgs, data.Args, meter); err != nil {
		return newFailure(types.FailureInvariantViolation, "%v", err)
	}
	return nil
}

// changeEpoch must never fail the transaction overall: on a normal-mode
// failure the temp store is reset and the narrower safe-mode entry point is
// invoked instead, per spec step 3.
func changeEpoch(ts *TemporaryStore, tx *TxContext, vm VM, data *types.ChangeEpochData) error {
	if err := vm.AdvanceEpoch(ts, tx, *data); err != nil {
		ts.Reset()
		vm.AdvanceEpochSafeMode(ts, tx, data.Epoch, data.ProtocolVersion)
	}
	return nil
}

func consensusCommitPrologue(ts *TemporaryStore, tx *TxContext, data *types.ConsensusCommitPrologueData) error {
	clock, ok := ts.GetObject(types.ClockObjectID)
	if !ok {
		return newFailure(types.FailureInvariantViolation, "clock object missing")
	}
	updated := *clock
	updated.SetBalance(data.CommitTimestampMs)
	updated.PreviousTransaction = tx.Digest()
	ts.WriteObject(&updated, objectstore.WriteMutate)
	return nil
}

// genesis materializes the initial object set; only valid at epoch 0,
// matching the original's panic-on-violation turned into a returned error.
func genesis(ts *TemporaryStore, tx *TxContext, data *types.GenesisData) error {
	if tx.Epoch() != 0 {
		return newFailure(types.FailureInvariantViolation, "genesis transactions can only execute in epoch 0")
	}
	for _, g := range data.Objects {
		obj := g.Object
		obj.Owner = g.Owner
		obj.PreviousTransaction = tx.Digest()
		ts.WriteObject(&obj, objectstore.WriteCreate)
	}
	return nil
}
