package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/types"
)

func testTx(b byte) *types.Transaction {
	return &types.Transaction{
		Data: types.TransactionData{
			Sender: types.ObjectId{b},
			Epoch:  1,
		},
	}
}

// fakeDriver answers each submission with success effects after submitDelay,
// simulating a quorum response; it does not write to the backing store.
type fakeDriver struct {
	store       *objectstore.MemStore
	submitDelay time.Duration
	submitErr   error
	submitCount int32
}

func (d *fakeDriver) Submit(ctx context.Context, tx *types.Transaction, _ SubmitOptions) (*FinalizedEffects, error) {
	atomic.AddInt32(&d.submitCount, 1)
	if d.submitErr != nil {
		return nil, d.submitErr
	}
	if d.submitDelay > 0 {
		select {
		case <-time.After(d.submitDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	effects := &types.Effects{TransactionDigest: tx.Digest(), Status: types.Success(), ExecutedEpoch: tx.Data.Epoch}
	return &FinalizedEffects{Effects: effects, Finality: FinalityInfo{Kind: FinalityQuorumExecuted, Epoch: tx.Data.Epoch}}, nil
}

// fakeValidator lets tests control signature/validity/already-executed outcomes.
type fakeValidator struct {
	mu              sync.Mutex
	sigErr          error
	validityErr     error
	executedDigests map[types.TransactionDigest]bool
}

func newFakeValidator() *fakeValidator {
	return &fakeValidator{executedDigests: make(map[types.TransactionDigest]bool)}
}

func (v *fakeValidator) VerifySignature(context.Context, *types.Transaction) error { return v.sigErr }

func (v *fakeValidator) CheckTransactionValidity(context.Context, *types.Transaction, bool) error {
	return v.validityErr
}

func (v *fakeValidator) IsTransactionExecuted(_ context.Context, digest types.TransactionDigest) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.executedDigests[digest]
}

func (v *fakeValidator) markExecuted(digest types.TransactionDigest) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.executedDigests[digest] = true
}

func newTestLog(t *testing.T) *FileLog {
	t.Helper()
	log, err := NewFileLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileLog: %v", err)
	}
	return log
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FinalityTimeout = 500 * time.Millisecond
	cfg.LocalExecutionTimeout = 200 * time.Millisecond
	cfg.BackoffMin = 10 * time.Millisecond
	cfg.BackoffMax = 20 * time.Millisecond
	return cfg
}

func TestExecuteTransaction_SubmissionSucceeds(t *testing.T) {
	store := objectstore.NewMemStore()
	driver := &fakeDriver{store: store}
	o := New(testConfig(), newTestLog(t), driver, store, nil, nil)

	tx := testTx(1)
	resp, err := o.ExecuteTransaction(context.Background(), tx, false)
	if err != nil {
		t.Fatalf("ExecuteTransaction: %v", err)
	}
	if resp.Effects == nil || resp.Effects.Status.Kind != types.StatusSuccess {
		t.Fatalf("expected successful effects, got %+v", resp.Effects)
	}
	if resp.ExecutedLocally {
		t.Fatalf("expected ExecutedLocally=false when effects came from quorum, not local store")
	}
}

func TestExecuteTransaction_AlreadyExecutedBypassesEarlyValidation(t *testing.T) {
	store := objectstore.NewMemStore()
	driver := &fakeDriver{store: store}
	validator := newFakeValidator()
	validator.validityErr = errors.New("inputs look stale")

	tx := testTx(2)
	validator.markExecuted(tx.Digest())

	effects := &types.Effects{TransactionDigest: tx.Digest(), Status: types.Success(), ExecutedEpoch: 1}
	if err := store.WriteBatch(context.Background(), nil, nil, effects); err != nil {
		t.Fatalf("seeding effects: %v", err)
	}

	o := New(testConfig(), newTestLog(t), driver, store, validator, nil)
	resp, err := o.ExecuteTransaction(context.Background(), tx, false)
	if err != nil {
		t.Fatalf("ExecuteTransaction: %v", err)
	}
	if resp.Effects.TransactionDigest != tx.Digest() {
		t.Fatalf("expected cached effects for already-executed tx")
	}
	if driver.submitCount != 0 {
		t.Fatalf("expected no submission attempts for an already-executed transaction, got %d", driver.submitCount)
	}
}

func TestExecuteTransaction_InvalidSignatureNotRetriable(t *testing.T) {
	store := objectstore.NewMemStore()
	driver := &fakeDriver{store: store}
	validator := newFakeValidator()
	validator.sigErr = errors.New("bad signature")

	o := New(testConfig(), newTestLog(t), driver, store, validator, nil)
	_, err := o.ExecuteTransaction(context.Background(), testTx(3), false)
	if err == nil {
		t.Fatal("expected an error for an invalid signature")
	}
	if IsRetriable(err) {
		t.Fatalf("invalid-signature errors must not be retriable, got %v", err)
	}
}

func TestExecuteTransaction_InvalidInputRejectedWhenNotExecuted(t *testing.T) {
	store := objectstore.NewMemStore()
	driver := &fakeDriver{store: store}
	validator := newFakeValidator()
	validator.validityErr = errors.New("input object does not exist")

	o := New(testConfig(), newTestLog(t), driver, store, validator, nil)
	_, err := o.ExecuteTransaction(context.Background(), testTx(4), false)
	if err == nil {
		t.Fatal("expected an error for invalid input")
	}
	if IsRetriable(err) {
		t.Fatalf("invalid-input errors must not be retriable, got %v", err)
	}
	if driver.submitCount != 0 {
		t.Fatalf("expected no submission attempt after early-validation rejection, got %d", driver.submitCount)
	}
}

func TestExecuteTransaction_LocalEffectsWinRace(t *testing.T) {
	store := objectstore.NewMemStore()
	driver := &fakeDriver{store: store, submitDelay: 300 * time.Millisecond}
	o := New(testConfig(), newTestLog(t), driver, store, nil, nil)

	tx := testTx(5)
	go func() {
		time.Sleep(20 * time.Millisecond)
		effects := &types.Effects{TransactionDigest: tx.Digest(), Status: types.Success(), ExecutedEpoch: 1}
		_ = store.WriteBatch(context.Background(), nil, nil, effects)
	}()

	resp, err := o.ExecuteTransaction(context.Background(), tx, false)
	if err != nil {
		t.Fatalf("ExecuteTransaction: %v", err)
	}
	if !resp.ExecutedLocally {
		t.Fatalf("expected local effects to win the race")
	}
}

func TestExecuteTransaction_TimeoutBeforeFinality(t *testing.T) {
	store := objectstore.NewMemStore()
	driver := &fakeDriver{store: store, submitDelay: time.Second}
	cfg := testConfig()
	cfg.FinalityTimeout = 50 * time.Millisecond

	o := New(cfg, newTestLog(t), driver, store, nil, nil)
	_, err := o.ExecuteTransaction(context.Background(), testTx(6), false)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !IsRetriable(err) {
		t.Fatalf("timeout errors must be retriable, got %v", err)
	}
}

func TestSubmissionGuard_DuplicateSubmissionIsIdempotent(t *testing.T) {
	log := newTestLog(t)
	tx := testTx(7)

	first, err := NewSubmissionGuard(context.Background(), log, tx)
	if err != nil {
		t.Fatalf("first guard: %v", err)
	}
	if !first.IsNewTransaction() {
		t.Fatal("first submission should be new")
	}

	second, err := NewSubmissionGuard(context.Background(), log, tx)
	if err != nil {
		t.Fatalf("second guard: %v", err)
	}
	if second.IsNewTransaction() {
		t.Fatal("duplicate submission should not be treated as new")
	}

	first.Release(context.Background())
	second.Release(context.Background())

	empty, err := log.IsEmpty(context.Background())
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatal("expected pending log to be empty after both guards released")
	}
}

func TestRecover_DrivesPendingTransactionsToFinality(t *testing.T) {
	store := objectstore.NewMemStore()
	driver := &fakeDriver{store: store}
	log := newTestLog(t)

	tx := testTx(8)
	if _, err := log.Insert(context.Background(), tx); err != nil {
		t.Fatalf("seeding pending log: %v", err)
	}

	o := New(testConfig(), log, driver, store, nil, nil)
	o.Recover(context.Background())

	if n := atomic.LoadInt32(&driver.submitCount); n < 1 {
		t.Fatalf("expected recovery to submit the pending transaction, got %d submissions", n)
	}

	empty, err := log.IsEmpty(context.Background())
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatal("expected recovered transaction to be removed from the pending log")
	}
}
