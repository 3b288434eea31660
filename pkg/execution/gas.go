// Copyright 2025 Certen Protocol

package execution

import "github.com/certen/objectvalidator/pkg/types"

// GasMeter accounts computation, storage-read and publish costs against a
// transaction's budget. Real metering (bytecode-instruction costing) lives
// with the VM and is out of scope; this interface is the boundary C2
// depends on, mirroring how the original threads SuiGasStatus through
// execute_transaction rather than owning metering itself.
type GasMeter interface {
	IsUnmetered() bool
	ChargeStorageRead(sizeBytes int) error
	ChargeComputation(units uint64) error
	ChargePublish(totalModuleBytes int) error
	// Summary finalizes accumulated charges into a GasCostSummary; success
	// reports whether execution ultimately succeeded (failed transactions
	// still charge computation but never a storage rebate, per spec).
	Summary(success bool) types.GasCostSummary
}

// BudgetGasMeter is the reference GasMeter: a fixed per-unit price charged
// against a budget, failing once the budget is exhausted.
type BudgetGasMeter struct {
	price     uint64
	budget    uint64
	spent     uint64
	unmetered bool

	storageCost   uint64
	storageRebate uint64
}

// NewBudgetGasMeter builds a metered gas tracker for the given price/budget.
func NewBudgetGasMeter(price, budget uint64) *BudgetGasMeter {
	return &BudgetGasMeter{price: price, budget: budget}
}

// NewUnmeteredGasMeter builds a gas meter that never fails and reports a
// zero cost summary. Engine.Execute does not use it: every transaction,
// system kinds included, is charged through the budget meter built from its
// smashed gas payment.
func NewUnmeteredGasMeter() *BudgetGasMeter {
	return &BudgetGasMeter{unmetered: true}
}

func (g *BudgetGasMeter) IsUnmetered() bool { return g.unmetered }

func (g *BudgetGasMeter) charge(units uint64) error {
	if g.unmetered {
		return nil
	}
	cost := units * g.price
	if g.spent+cost > g.budget {
		return newFailure(types.FailureInsufficientGas, "budget %d exhausted charging %d units at price %d", g.budget, units, g.price)
	}
	g.spent += cost
	return nil
}

func (g *BudgetGasMeter) ChargeStorageRead(sizeBytes int) error {
	return g.charge(uint64(sizeBytes))
}

func (g *BudgetGasMeter) ChargeComputation(units uint64) error {
	return g.charge(units)
}

func (g *BudgetGasMeter) ChargePublish(totalModuleBytes int) error {
	return g.charge(uint64(totalModuleBytes))
}

// ChargeStorage records the storage cost/rebate for one written object; net
// cost is folded into Summary rather than the computation budget, since
// storage is a separate ledger line (spec step 5).
func (g *BudgetGasMeter) ChargeStorage(newSize, previousSize int) {
	g.storageCost += uint64(newSize)
	g.storageRebate += uint64(previousSize)
}

func (g *BudgetGasMeter) Summary(success bool) types.GasCostSummary {
	rebate := g.storageRebate
	if !success {
		rebate = 0
	}
	return types.GasCostSummary{
		ComputationCost: g.spent,
		StorageCost:     g.storageCost,
		StorageRebate:   rebate,
	}
}
