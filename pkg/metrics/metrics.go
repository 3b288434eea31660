// Copyright 2025 Certen Protocol
//
// Package metrics centralizes the prometheus collectors shared across the
// execution scheduler, transaction orchestrator and state-sync subsystems,
// wiring a teacher dependency (prometheus/client_golang) that shipped in
// go.mod but was never imported by any package.

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Scheduler holds the execution scheduler's (C3) collectors.
type Scheduler struct {
	PendingCertificates prometheus.Gauge
	QueueAgeSeconds     prometheus.Histogram
	OverloadRejections  prometheus.Counter
}

// NewScheduler registers and returns the scheduler collector set. Passing a
// nil registerer skips registration, for tests that construct scrap
// Scheduler instances without a shared registry.
func NewScheduler(reg prometheus.Registerer) *Scheduler {
	s := &Scheduler{
		PendingCertificates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "certen",
			Subsystem: "execution_scheduler",
			Name:      "pending_certificates",
			Help:      "Number of certificates currently pending in the execution scheduler.",
		}),
		QueueAgeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "certen",
			Subsystem: "execution_scheduler",
			Name:      "transaction_queue_age_seconds",
			Help:      "Time a transaction spent waiting for its input objects to become available.",
			Buckets:   prometheus.DefBuckets,
		}),
		OverloadRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "certen",
			Subsystem: "execution_scheduler",
			Name:      "overload_rejections_total",
			Help:      "Number of certificates rejected by the overload tracker.",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.PendingCertificates, s.QueueAgeSeconds, s.OverloadRejections)
	}
	return s
}

// Orchestrator holds the transaction orchestrator's (C4) collectors.
type Orchestrator struct {
	SubmissionAttempts prometheus.Counter
	SubmissionRetries  prometheus.Counter
	FinalityLatency    prometheus.Histogram
}

func NewOrchestrator(reg prometheus.Registerer) *Orchestrator {
	o := &Orchestrator{
		SubmissionAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "certen",
			Subsystem: "transaction_orchestrator",
			Name:      "submission_attempts_total",
			Help:      "Number of transaction submission attempts, including retries.",
		}),
		SubmissionRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "certen",
			Subsystem: "transaction_orchestrator",
			Name:      "submission_retries_total",
			Help:      "Number of transaction submission retries after a non-terminal failure.",
		}),
		FinalityLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "certen",
			Subsystem: "transaction_orchestrator",
			Name:      "finality_latency_seconds",
			Help:      "Time from submission to locally observed finality.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(o.SubmissionAttempts, o.SubmissionRetries, o.FinalityLatency)
	}
	return o
}

// StateSync holds the state-sync subsystem's (C5) collectors.
type StateSync struct {
	HighestSyncedCheckpoint prometheus.Gauge
	HighestVerifiedCheckpoint prometheus.Gauge
	PeersTracked            prometheus.Gauge
}

func NewStateSync(reg prometheus.Registerer) *StateSync {
	s := &StateSync{
		HighestSyncedCheckpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "certen",
			Subsystem: "state_sync",
			Name:      "highest_synced_checkpoint",
			Help:      "Sequence number of the highest checkpoint this node has fully synced.",
		}),
		HighestVerifiedCheckpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "certen",
			Subsystem: "state_sync",
			Name:      "highest_verified_checkpoint",
			Help:      "Sequence number of the highest checkpoint header this node has verified.",
		}),
		PeersTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "certen",
			Subsystem: "state_sync",
			Name:      "peers_tracked",
			Help:      "Number of tracked peers currently on the same chain (matching genesis).",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.HighestSyncedCheckpoint, s.HighestVerifiedCheckpoint, s.PeersTracked)
	}
	return s
}
