// Copyright 2025 Certen Protocol
//
// Package orchestrator implements the Transaction Orchestrator contract
// (C4): accept a user-submitted transaction and return a finalized
// response, either quorum-certified or observed locally. Grounded on
// transaction_orchestrator.rs's Inner::execute_transaction_with_retry /
// execute_transaction_with_effects_waiting / wait_for_finalized_tx_executed_locally_with_timeout.

package orchestrator

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/certen/objectvalidator/pkg/metrics"
	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/types"
)

// Orchestrator is the C4 submission entry point.
type Orchestrator struct {
	cfg       Config
	log       PendingLog
	driver    TransactionDriver
	store     objectstore.Store
	validator Validator
	metrics   *metrics.Orchestrator
}

// New constructs an Orchestrator. validator may be nil, in which case
// signature verification and early validation are both skipped (useful for
// tests and for deployments that verify signatures upstream).
func New(cfg Config, pendingLog PendingLog, driver TransactionDriver, store objectstore.Store, validator Validator, m *metrics.Orchestrator) *Orchestrator {
	return &Orchestrator{cfg: cfg, log: pendingLog, driver: driver, store: store, validator: validator, metrics: m}
}

// ExecuteResponse is what ExecuteTransaction returns to a caller.
type ExecuteResponse struct {
	Effects         *types.Effects
	Finality        FinalityInfo
	ExecutedLocally bool
}

// ExecuteTransaction drives tx to finality and optionally waits for local
// execution before returning, per spec section 4.4.
func (o *Orchestrator) ExecuteTransaction(ctx context.Context, tx *types.Transaction, waitForLocalExecution bool) (*ExecuteResponse, error) {
	finalized, executedLocally, err := o.executeWithRetry(ctx, tx)
	if err != nil {
		return nil, err
	}

	if waitForLocalExecution && !executedLocally {
		executedLocally = o.waitForLocalExecution(ctx, tx.Digest())
	}

	return &ExecuteResponse{
		Effects:         finalized.Effects,
		Finality:        finalized.Finality,
		ExecutedLocally: executedLocally,
	}, nil
}

// executeWithRetry runs the fast-path attempt and, if it fails retriably,
// spawns a background retry loop; the fast-path's own result (success or
// error) is what's returned to the caller, matching the original's design
// where the background retries are a best-effort continuation rather than
// something the original caller waits on.
func (o *Orchestrator) executeWithRetry(ctx context.Context, tx *types.Transaction) (*FinalizedEffects, bool, error) {
	finalized, executedLocally, err := o.executeWithEffectsWaiting(ctx, tx, false)

	if err != nil && IsRetriable(err) {
		go o.backgroundRetry(tx)
	}

	return finalized, executedLocally, err
}

func (o *Orchestrator) backgroundRetry(tx *types.Transaction) {
	if o.metrics != nil {
		o.metrics.SubmissionRetries.Inc()
	}
	digest := tx.Digest()
	delay := o.cfg.BackoffMin
	for attempt := 0; attempt < o.cfg.MaxBackgroundRetries; attempt++ {
		time.Sleep(delay)

		enforceLive := attempt >= o.cfg.LiveInputEnforcementFromAttempt
		_, _, err := o.executeWithEffectsWaiting(context.Background(), tx, enforceLive)
		if err == nil {
			log.Printf("[ORCHESTRATOR] background retry %d for %s succeeded", attempt, digest)
			return
		}
		if !IsRetriable(err) {
			log.Printf("[ORCHESTRATOR] background retry %d for %s failed non-retriably: %v", attempt, digest, err)
			return
		}
		log.Printf("[ORCHESTRATOR] background retry %d for %s failed retriably: %v", attempt, digest, err)

		delay *= 2
		if delay > o.cfg.BackoffMax {
			delay = o.cfg.BackoffMax
		}
	}
}

// submissionResult carries one duplicate submission attempt's outcome.
type submissionResult struct {
	finalized *FinalizedEffects
	err       error
}

// executeWithEffectsWaiting is the shared implementation racing submission
// attempts against local-effects availability and a finality timeout.
func (o *Orchestrator) executeWithEffectsWaiting(ctx context.Context, tx *types.Transaction, enforceLiveInputObjects bool) (*FinalizedEffects, bool, error) {
	digest := tx.Digest()
	startedAt := time.Now()
	alreadyExecuted := false

	if o.validator != nil {
		if err := o.validator.VerifySignature(ctx, tx); err != nil {
			return nil, false, newError(CategoryInvalidSignature, digest, err)
		}
		if o.cfg.EnableEarlyValidation {
			if err := o.validator.CheckTransactionValidity(ctx, tx, enforceLiveInputObjects); err != nil {
				if !o.validator.IsTransactionExecuted(ctx, digest) {
					if o.metrics != nil {
						o.metrics.SubmissionAttempts.Inc()
					}
					return nil, false, newError(CategoryInvalidInput, digest, err)
				}
				// Already executed: fall through and let the local-effects
				// wait below return the cached result instead of erroring.
				alreadyExecuted = true
			}
		}
	}

	guard, err := NewSubmissionGuard(ctx, o.log, tx)
	if err != nil {
		return nil, false, newError(CategoryInternal, digest, err)
	}
	defer guard.Release(ctx)

	numSubmissions := o.cfg.MaxDuplicateSubmissions
	if !guard.IsNewTransaction() {
		// Another in-flight attempt already owns submission; just wait.
		numSubmissions = 0
	}
	if numSubmissions < 1 && guard.IsNewTransaction() {
		numSubmissions = 1
	}
	if alreadyExecuted {
		// Effects are already local; wait for them without re-submitting.
		numSubmissions = 0
	}

	results := make(chan submissionResult, numSubmissions)
	for i := 0; i < numSubmissions; i++ {
		attemptID := uuid.New()
		delay := time.Duration(0)
		if i > 0 && rand.Intn(10) < 8 {
			delay = time.Duration(100+rand.Intn(401)) * time.Millisecond
		}
		go func(delay time.Duration, attemptID uuid.UUID) {
			if delay > 0 {
				time.Sleep(delay)
			}
			if o.metrics != nil {
				o.metrics.SubmissionAttempts.Inc()
			}
			opts := SubmitOptions{Allowed: o.cfg.AllowedSubmissionValidators, Blocked: o.cfg.BlockedSubmissionValidators}
			fx, err := o.driver.Submit(ctx, tx, opts)
			if err != nil {
				log.Printf("[ORCHESTRATOR] submission attempt %s for %s failed: %v", attemptID, digest, err)
				results <- submissionResult{err: newError(CategoryNetwork, digest, err)}
				return
			}
			results <- submissionResult{finalized: fx}
		}(delay, attemptID)
	}

	localEffects := o.store.NotifyReadExecutedEffects(ctx, []types.TransactionDigest{digest})
	timeoutCh := time.After(o.cfg.FinalityTimeout)

	var lastErr error
	remaining := numSubmissions
	for {
		select {
		case res := <-localEffects:
			if res.Err != nil {
				log.Printf("[ORCHESTRATOR] epoch terminated before local effects were available for %s: %v", digest, res.Err)
				localEffects = nil
				continue
			}
			if len(res.Effects) > 0 && res.Effects[0] != nil {
				effects := res.Effects[0]
				if o.metrics != nil {
					o.metrics.FinalityLatency.Observe(time.Since(startedAt).Seconds())
				}
				return &FinalizedEffects{
					Effects:  effects,
					Finality: FinalityInfo{Kind: FinalityQuorumExecuted, Epoch: effects.ExecutedEpoch},
				}, true, nil
			}

		case res := <-results:
			if res.err == nil {
				return res.finalized, false, nil
			}
			lastErr = res.err
			remaining--
			if remaining == 0 && numSubmissions > 0 {
				return nil, false, lastErr
			}

		case <-timeoutCh:
			if lastErr != nil {
				return nil, false, newError(CategoryTimeout, digest, lastErr)
			}
			return nil, false, ErrTimeoutBeforeFinality

		case <-ctx.Done():
			return nil, false, newError(CategoryInternal, digest, ctx.Err())
		}
	}
}

// waitForLocalExecution waits up to cfg.LocalExecutionTimeout for digest's
// effects to become locally observable.
func (o *Orchestrator) waitForLocalExecution(ctx context.Context, digest types.TransactionDigest) bool {
	waitCtx, cancel := context.WithTimeout(ctx, o.cfg.LocalExecutionTimeout)
	defer cancel()
	select {
	case res := <-o.store.NotifyReadExecutedEffects(waitCtx, []types.TransactionDigest{digest}):
		return res.Err == nil && len(res.Effects) > 0 && res.Effects[0] != nil
	case <-waitCtx.Done():
		return false
	}
}

// Recover loads every record from the pending log and attempts to drive
// each to finality with cfg.RecoveryTimeout, per spec section 4.4's
// startup recovery pass.
func (o *Orchestrator) Recover(ctx context.Context) {
	txs, err := o.log.LoadAll(ctx)
	if err != nil {
		log.Printf("[ORCHESTRATOR] recovery: failed to load pending tx log: %v", err)
		return
	}
	for _, tx := range txs {
		digest := tx.Digest()
		recoverCtx, cancel := context.WithTimeout(ctx, o.cfg.RecoveryTimeout)
		// Drop the stale entry first so the submission guard below treats the
		// transaction as new and submits it again.
		if err := o.log.Remove(recoverCtx, digest); err != nil {
			log.Printf("[ORCHESTRATOR] recovery: failed to clear log entry for %s: %v", digest, err)
		}
		_, _, err := o.executeWithEffectsWaiting(recoverCtx, tx, false)
		cancel()
		if err != nil {
			log.Printf("[ORCHESTRATOR] recovery: transaction %s did not reach finality: %v", digest, err)
			continue
		}
		log.Printf("[ORCHESTRATOR] recovery: transaction %s reached finality", digest)
	}
}
