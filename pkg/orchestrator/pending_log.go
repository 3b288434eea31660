// Copyright 2025 Certen Protocol
//
// PendingLog is the write-ahead log of in-flight verified transactions
// (spec §4.4's pending_tx_log), grounded on
// write_path_pending_tx_log.rs/WritePathPendingTransactionLog. Two
// implementations are provided: a Postgres-backed one (pkg/database,
// production) and a file-backed one (parity with the original's literal
// `<parent>/fullnode_pending_transactions` directory, useful for
// single-binary or test deployments without a database).

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/certen/objectvalidator/pkg/types"
)

// PendingLog persists verified transactions between submission and
// finality, so a crash mid-flight can be recovered on restart.
type PendingLog interface {
	// Insert records tx if its digest isn't already present. isNew is false
	// when the transaction was already logged (a concurrent or retried
	// submission), matching the original's is_new_transaction() check.
	Insert(ctx context.Context, tx *types.Transaction) (isNew bool, err error)
	Remove(ctx context.Context, digest types.TransactionDigest) error
	LoadAll(ctx context.Context) ([]*types.Transaction, error)
	IsEmpty(ctx context.Context) (bool, error)
}

// FileLog is a PendingLog backed by one JSON file per pending transaction
// under a directory, named `fullnode_pending_transactions` by convention to
// match the original's literal path.
type FileLog struct {
	dir string
}

// NewFileLog opens (creating if necessary) a FileLog rooted at
// filepath.Join(parentDir, "fullnode_pending_transactions").
func NewFileLog(parentDir string) (*FileLog, error) {
	dir := filepath.Join(parentDir, "fullnode_pending_transactions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("orchestrator: creating pending tx log dir: %w", err)
	}
	return &FileLog{dir: dir}, nil
}

func (l *FileLog) path(digest types.TransactionDigest) string {
	return filepath.Join(l.dir, digest.String()+".json")
}

func (l *FileLog) Insert(_ context.Context, tx *types.Transaction) (bool, error) {
	digest := tx.Digest()
	path := l.path(digest)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	b, err := json.Marshal(tx)
	if err != nil {
		return false, fmt.Errorf("orchestrator: encoding pending transaction: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return false, fmt.Errorf("orchestrator: writing pending transaction log entry: %w", err)
	}
	return true, nil
}

func (l *FileLog) Remove(_ context.Context, digest types.TransactionDigest) error {
	if err := os.Remove(l.path(digest)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("orchestrator: removing pending transaction log entry: %w", err)
	}
	return nil
}

func (l *FileLog) LoadAll(_ context.Context) ([]*types.Transaction, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: listing pending transaction log: %w", err)
	}
	out := make([]*types.Transaction, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(l.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("orchestrator: reading pending transaction log entry %s: %w", e.Name(), err)
		}
		var tx types.Transaction
		if err := json.Unmarshal(b, &tx); err != nil {
			return nil, fmt.Errorf("orchestrator: decoding pending transaction log entry %s: %w", e.Name(), err)
		}
		out = append(out, &tx)
	}
	return out, nil
}

func (l *FileLog) IsEmpty(ctx context.Context) (bool, error) {
	entries, err := l.LoadAll(ctx)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

var _ PendingLog = (*FileLog)(nil)
