// Copyright 2025 Certen Protocol
//
// PendingTxLog is the Postgres-backed write-ahead log for the transaction
// orchestrator's pending_tx_log (spec section 4.4), continuing this
// package's lib/pq connection-pool setup (client.go) repurposed from
// anchor-proof persistence onto orchestrator recovery-log persistence.

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/certen/objectvalidator/pkg/types"
)

// PendingTxLog implements orchestrator.PendingLog against the pending_tx_log
// table. It is defined here rather than in pkg/orchestrator to avoid that
// package importing database/sql directly, matching the teacher's own
// repository-per-concern layering (pkg/database/repository_*.go).
type PendingTxLog struct {
	client *Client
}

// NewPendingTxLog wraps an already-connected Client.
func NewPendingTxLog(client *Client) *PendingTxLog {
	return &PendingTxLog{client: client}
}

func (l *PendingTxLog) Insert(ctx context.Context, tx *types.Transaction) (bool, error) {
	digest := tx.Digest()
	payload, err := json.Marshal(tx)
	if err != nil {
		return false, fmt.Errorf("database: encoding pending transaction: %w", err)
	}
	res, err := l.client.DB().ExecContext(ctx,
		`INSERT INTO pending_tx_log (digest, payload) VALUES ($1, $2) ON CONFLICT (digest) DO NOTHING`,
		digest.String(), payload,
	)
	if err != nil {
		return false, fmt.Errorf("database: inserting pending transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("database: checking pending transaction insert: %w", err)
	}
	return n == 1, nil
}

// Get fetches a single pending transaction by digest, returning
// ErrPendingTxNotFound if no row matches. It is not part of the
// orchestrator's PendingLog interface; recovery uses LoadAll.
func (l *PendingTxLog) Get(ctx context.Context, digest types.TransactionDigest) (*types.Transaction, error) {
	var payload []byte
	err := l.client.DB().QueryRowContext(ctx,
		`SELECT payload FROM pending_tx_log WHERE digest = $1`, digest.String(),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrPendingTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database: fetching pending transaction %s: %w", digest, err)
	}
	var tx types.Transaction
	if err := json.Unmarshal(payload, &tx); err != nil {
		return nil, fmt.Errorf("database: decoding pending transaction: %w", err)
	}
	return &tx, nil
}

func (l *PendingTxLog) Remove(ctx context.Context, digest types.TransactionDigest) error {
	if _, err := l.client.DB().ExecContext(ctx, `DELETE FROM pending_tx_log WHERE digest = $1`, digest.String()); err != nil {
		return fmt.Errorf("database: removing pending transaction %s: %w", digest, err)
	}
	return nil
}

func (l *PendingTxLog) LoadAll(ctx context.Context) ([]*types.Transaction, error) {
	rows, err := l.client.DB().QueryContext(ctx, `SELECT payload FROM pending_tx_log ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("database: loading pending transactions: %w", err)
	}
	defer rows.Close()

	var out []*types.Transaction
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("database: scanning pending transaction row: %w", err)
		}
		var tx types.Transaction
		if err := json.Unmarshal(payload, &tx); err != nil {
			return nil, fmt.Errorf("database: decoding pending transaction: %w", err)
		}
		out = append(out, &tx)
	}
	return out, rows.Err()
}

func (l *PendingTxLog) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := l.client.DB().QueryRowContext(ctx, `SELECT count(*) FROM pending_tx_log`).Scan(&n); err != nil {
		if err == sql.ErrNoRows {
			return true, nil
		}
		return false, fmt.Errorf("database: counting pending transactions: %w", err)
	}
	return n == 0, nil
}
