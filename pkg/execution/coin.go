// Copyright 2025 Certen Protocol
//
// Coin arithmetic shared by Pay/PaySui/PayAllSui, grounded on the original's
// check_coins/check_recipients/check_total_coins/debit_coins_and_transfer.

package execution

import (
	"math"

	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/types"
)

func checkCoins(coins []*types.Object) error {
	if len(coins) == 0 {
		return newFailure(types.FailureEmptyCoins, "transaction requires a non-empty list of input coins")
	}
	for _, c := range coins {
		if !c.IsCoin() {
			return newFailure(types.FailureCoinTypeMismatch, "object %s is not a coin", c.Id)
		}
	}
	return nil
}

func checkRecipients(recipients []types.ObjectId, amounts []uint64) error {
	if len(recipients) == 0 {
		return newFailure(types.FailureEmptyRecipients, "pay transaction requires a non-empty list of recipients")
	}
	if len(recipients) != len(amounts) {
		return newFailure(types.FailureArityMismatch, "found %d recipients but %d amounts", len(recipients), len(amounts))
	}
	return nil
}

// checkTotalCoins sums amounts (checked for overflow) and coin values, and
// confirms the coins cover the total.
func checkTotalCoins(coins []*types.Object, amounts []uint64) (totalCoins, totalAmount uint64, err error) {
	for _, a := range amounts {
		if totalAmount > math.MaxUint64-a {
			return 0, 0, newFailure(types.FailureCoinBalanceOverflow, "total payment amount overflows")
		}
		totalAmount += a
	}
	for _, c := range coins {
		totalCoins += c.Balance()
	}
	if totalAmount > totalCoins {
		return 0, 0, newFailure(types.FailureInsufficientBalance, "paying %d exceeds input coin total %d", totalAmount, totalCoins)
	}
	return totalCoins, totalAmount, nil
}

// debitCoinsAndTransfer drains coins left-to-right to satisfy each
// recipient/amount pair, creating one fresh coin per recipient. coins are
// mutated in place to reflect the post-debit balances.
func debitCoinsAndTransfer(ts *TemporaryStore, tx *TxContext, coins []*types.Object, recipients []types.ObjectId, amounts []uint64) {
	idx := 0
	for i, recipient := range recipients {
		remaining := amounts[i]
		for remaining > 0 {
			coin := coins[idx]
			value := coin.Balance()
			if value == 0 {
				idx++
				continue
			}
			if value >= remaining {
				coin.SetBalance(value - remaining)
				newCoin := &types.Object{
					Id:                  tx.FreshID(),
					Version:             1,
					Owner:               types.AddressOwner(recipient),
					PayloadKind:         types.PayloadData,
					TypeTag:             types.CoinTypeTag,
					PreviousTransaction: tx.Digest(),
				}
				newCoin.SetBalance(amounts[i])
				ts.WriteObject(newCoin, objectstore.WriteCreate)
				remaining = 0
			} else {
				coin.SetBalance(0)
				remaining -= value
				idx++
			}
		}
	}
}
