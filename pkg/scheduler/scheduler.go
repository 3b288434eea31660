// Copyright 2025 Certen Protocol
//
// Package scheduler implements the Execution Scheduler contract (C3):
// the queue that sits between certification and execution, releasing a
// transaction only once every input it declared is actually available at
// the version it needs. Grounded on execution_scheduler/mod.rs's
// ExecutionScheduler: enqueue_impl/schedule_transaction's two-future race,
// notify_commit, and check_execution_overload.

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/certen/objectvalidator/pkg/metrics"
	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/types"
)

// PendingCertificateStats records when a certificate entered the scheduler
// and when it became ready for execution.
type PendingCertificateStats struct {
	EnqueueTime time.Time
	ReadyTime   time.Time
}

// PendingCertificate is emitted on the outbound channel once every input a
// transaction declared is available.
type PendingCertificate struct {
	Certificate           *types.CertifiedTransaction
	ExpectedEffectsDigest *types.TransactionDigest
	Stats                 PendingCertificateStats
}

// Scheduler is the C3 execution scheduler: a `pending` set of in-flight
// digests, an overload tracker, and an outbound channel of ready
// certificates. One Scheduler instance serves one epoch's worth of
// certificates; callers construct a fresh one across epoch boundaries.
type Scheduler struct {
	store   objectstore.Store
	epoch   types.EpochId
	metrics *metrics.Scheduler

	mu      sync.Mutex
	pending map[types.TransactionDigest]bool

	overload *overloadTracker
	out      chan PendingCertificate
}

// New constructs a Scheduler for the given epoch. out is the outbound
// channel of ready certificates; callers typically make it large (or
// unbounded via a forwarding goroutine) since the scheduler never blocks
// on send internally beyond ordinary channel backpressure.
func New(store objectstore.Store, epoch types.EpochId, out chan PendingCertificate, m *metrics.Scheduler) *Scheduler {
	return &Scheduler{
		store:    store,
		epoch:    epoch,
		metrics:  m,
		pending:  make(map[types.TransactionDigest]bool),
		overload: newOverloadTracker(),
		out:      out,
	}
}

// Out returns the outbound channel of certificates ready for execution.
func (s *Scheduler) Out() <-chan PendingCertificate { return s.out }

// NumPending reports the current size of the pending set, for tests and
// metrics sampling.
func (s *Scheduler) NumPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Enqueue schedules certs for execution. Certificates from the wrong epoch
// are dropped (mirroring enqueue_impl's filter_map). Each surviving
// certificate is scheduled independently and concurrently; Enqueue itself
// returns immediately, matching the original's fire-and-forget
// spawn_monitored_task per certificate.
func (s *Scheduler) Enqueue(ctx context.Context, certs []*types.CertifiedTransaction) {
	s.EnqueueWithExpectedEffects(ctx, certs, nil)
}

// EnqueueWithExpectedEffects is Enqueue plus an optional expected-effects
// digest per certificate (checkpoint-driven execution, where a fork must be
// detectable before commit). digests may be nil or shorter than certs; a
// missing entry means "no expectation".
func (s *Scheduler) EnqueueWithExpectedEffects(ctx context.Context, certs []*types.CertifiedTransaction, digests []*types.TransactionDigest) {
	for i, cert := range certs {
		if cert.Epoch != s.epoch {
			continue
		}
		var expected *types.TransactionDigest
		if i < len(digests) {
			expected = digests[i]
		}
		go s.scheduleTransaction(ctx, cert, expected)
	}
}

// scheduleTransaction is the per-certificate body of schedule_transaction:
// idempotent dedup, input-key computation, then the two-future wait race.
func (s *Scheduler) scheduleTransaction(ctx context.Context, cert *types.CertifiedTransaction, expected *types.TransactionDigest) {
	digest := cert.Digest()

	s.mu.Lock()
	if s.pending[digest] {
		s.mu.Unlock()
		return
	}
	s.pending[digest] = true
	s.mu.Unlock()

	enqueueTime := time.Now()
	sender := cert.Transaction.Data.Sender
	s.overload.addPending(sender, enqueueTime)
	if s.metrics != nil {
		s.metrics.PendingCertificates.Set(float64(s.NumPending()))
	}

	inputKeys, receivingKeys := s.inputKeys(cert)

	inputsReady := s.store.NotifyReadInputObjects(ctx, inputKeys, receivingKeys, s.epoch)
	effectsReady := s.store.NotifyReadExecutedEffects(ctx, []types.TransactionDigest{digest})

	select {
	case <-inputsReady:
		if s.metrics != nil {
			s.metrics.QueueAgeSeconds.Observe(time.Since(enqueueTime).Seconds())
		}
		s.out <- PendingCertificate{
			Certificate:           cert,
			ExpectedEffectsDigest: expected,
			Stats: PendingCertificateStats{
				EnqueueTime: enqueueTime,
				ReadyTime:   time.Now(),
			},
		}
		// Do not remove from pending: only NotifyCommit does that.
	case <-effectsReady:
		// Already executed elsewhere (or on a prior boot); never emit,
		// since no execution is required, but still clean up pending.
		s.NotifyCommit(cert)
	}
}

// inputKeys computes the strict and receiving InputKey sets for cert,
// bypassing cancelled shared inputs (CANCELLED_READ/CONGESTED sentinel
// versions) per the scheduler's cancellation semantics: those never wait on
// store state because no object will ever carry that version.
func (s *Scheduler) inputKeys(cert *types.CertifiedTransaction) ([]objectstore.InputKey, map[types.ObjectId]bool) {
	data := cert.Transaction.Data
	refs := data.InputObjects()

	keys := make([]objectstore.InputKey, 0, len(refs))
	receiving := make(map[types.ObjectId]bool)
	for _, ref := range refs {
		if ref.Kind == types.InputSharedObject && types.IsCancelledVersion(ref.Version) {
			continue
		}
		isReceiving := ref.Kind == types.InputReceivingObject
		if isReceiving {
			receiving[ref.ObjectId] = true
		}
		keys = append(keys, objectstore.InputKey{
			ObjectId:  ref.ObjectId,
			Version:   ref.Version,
			Receiving: isReceiving,
		})
	}
	return keys, receiving
}

// NotifyCommit removes cert's digest from the pending set and updates the
// overload tracker. Called once effects are durable, by whatever executed
// the transaction (possibly outside this scheduler's own wait path).
func (s *Scheduler) NotifyCommit(cert *types.CertifiedTransaction) {
	digest := cert.Digest()
	s.mu.Lock()
	delete(s.pending, digest)
	n := len(s.pending)
	s.mu.Unlock()

	s.overload.removePending(cert.Transaction.Data.Sender)
	if s.metrics != nil {
		s.metrics.PendingCertificates.Set(float64(n))
	}
}

// CheckExecutionOverload reports whether admitting one more certificate
// from sender would exceed any configured limit. Admission control itself
// is the caller's responsibility; the scheduler only answers the question.
func (s *Scheduler) CheckExecutionOverload(cfg OverloadConfig, sender types.ObjectId) error {
	if err := s.overload.check(cfg, sender, s.NumPending()); err != nil {
		if s.metrics != nil {
			s.metrics.OverloadRejections.Inc()
		}
		return err
	}
	return nil
}
