// Copyright 2025 Certen Protocol

package statesync

import "time"

// Config carries state-sync's tunables, grounded on StateSyncConfig's
// interval_period/timeout/checkpoint_header_download_concurrency/
// checkpoint_content_download_concurrency/checkpoint_content_download_tx_concurrency/
// checkpoint_content_timeout fields.
type Config struct {
	// TickInterval is how often we poll every known peer for their latest
	// checkpoint.
	TickInterval time.Duration

	// Timeout bounds a single peer request (header fetch, content fetch,
	// latest-checkpoint query).
	Timeout time.Duration

	// HeaderDownloadConcurrency bounds how many header fetches run at once
	// during a header-sync run.
	HeaderDownloadConcurrency int

	// ContentCheckpointConcurrency bounds how many checkpoints' contents can
	// be in flight simultaneously.
	ContentCheckpointConcurrency int

	// ContentTxConcurrency bounds the sum of per-checkpoint transaction
	// counts in flight across all concurrently-syncing checkpoints.
	ContentTxConcurrency int

	ContentTimeout time.Duration

	// RequeueDelay is how long a failed content-sync checkpoint waits before
	// being retried at the front of the queue.
	RequeueDelay time.Duration

	// NotifyPeersEvery gossips our new watermark to peers every this-many
	// successful content-sync commits.
	NotifyPeersEvery int
}

// DefaultConfig matches the original's defaults: 5s tick, 30s request
// timeout, header concurrency 400, content concurrency 10 checkpoints / 200
// transactions, 10s requeue delay, notify peers every checkpoint.
func DefaultConfig() Config {
	return Config{
		TickInterval:                 5 * time.Second,
		Timeout:                      30 * time.Second,
		HeaderDownloadConcurrency:    400,
		ContentCheckpointConcurrency: 10,
		ContentTxConcurrency:         200,
		ContentTimeout:               30 * time.Second,
		RequeueDelay:                 10 * time.Second,
		NotifyPeersEvery:             1,
	}
}
