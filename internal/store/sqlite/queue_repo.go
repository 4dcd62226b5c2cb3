package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/4tyam/everyday/internal/errs"
	"github.com/4tyam/everyday/internal/model"
)

const queueColumns = `id, memory_id, user_id, operation, status, attempts,
	next_retry_at, last_error, created_at, updated_at`

// QueueRepo implements repository.SyncQueueRepository on the local store.
// Every transition updates the queue row and the memory's sync_status together.
type QueueRepo struct{ s *Store }

// NewQueueRepo constructs a sync queue repository.
func NewQueueRepo(s *Store) *QueueRepo { return &QueueRepo{s: s} }

func scanEntry(row rowScanner) (model.SyncQueueEntry, error) {
	var (
		e         model.SyncQueueEntry
		op, st    string
		nextRetry sql.NullInt64
		lastErr   sql.NullString
	)
	if err := row.Scan(&e.ID, &e.MemoryID, &e.UserID, &op, &st, &e.Attempts,
		&nextRetry, &lastErr, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return model.SyncQueueEntry{}, err
	}
	e.Operation = model.SyncOperation(op)
	e.Status = model.QueueStatus(st)
	e.NextRetryAt = int64Ptr(nextRetry)
	e.LastError = stringPtr(lastErr)
	return e, nil
}

func (r *QueueRepo) list(ctx context.Context, q string, args ...any) ([]model.SyncQueueEntry, error) {
	db, err := r.s.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.SyncQueueEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListDue returns up to limit pending entries ready at now.
func (r *QueueRepo) ListDue(ctx context.Context, userID string, now int64, limit int) ([]model.SyncQueueEntry, error) {
	q := `SELECT ` + queueColumns + `
FROM memory_sync_queue
WHERE user_id = ? AND status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= ?)
ORDER BY created_at ASC, id ASC
LIMIT ?`
	out, err := r.list(ctx, q, userID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due sync entries: %w", err)
	}
	return out, nil
}

// ListByMemory returns all entries recorded for memoryID.
func (r *QueueRepo) ListByMemory(ctx context.Context, userID, memoryID string) ([]model.SyncQueueEntry, error) {
	q := `SELECT ` + queueColumns + `
FROM memory_sync_queue
WHERE user_id = ? AND memory_id = ?
ORDER BY created_at ASC, id ASC`
	out, err := r.list(ctx, q, userID, memoryID)
	if err != nil {
		return nil, fmt.Errorf("list sync entries: %w", err)
	}
	return out, nil
}

// transition updates the entry (guarded by its current status) and its memory.
func (r *QueueRepo) transition(ctx context.Context, entryID string, from model.QueueStatus,
	entrySet string, entryArgs []any, memorySet string, memoryArgs []any,
) error {
	db, err := r.s.DB(ctx)
	if err != nil {
		return err
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		var memoryID, userID string
		err := tx.QueryRowContext(ctx,
			`SELECT memory_id, user_id FROM memory_sync_queue WHERE id = ? AND status = ?`,
			entryID, string(from),
		).Scan(&memoryID, &userID)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE memory_sync_queue SET `+entrySet+` WHERE id = ?`,
			append(entryArgs, entryID)...); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE memories SET `+memorySet+` WHERE id = ? AND user_id = ?`,
			append(memoryArgs, memoryID, userID)...)
		return err
	})
}

// MarkSyncing moves a pending entry to syncing.
func (r *QueueRepo) MarkSyncing(ctx context.Context, entryID string, now int64) error {
	return r.transition(ctx, entryID, model.QueuePending,
		`status = 'syncing', updated_at = ?`, []any{now},
		`sync_status = 'syncing', updated_at = ?`, []any{now},
	)
}

// MarkSynced completes a syncing entry and stores the remote URL on the memory.
func (r *QueueRepo) MarkSynced(ctx context.Context, entryID, remoteURL string, now int64) error {
	return r.transition(ctx, entryID, model.QueueSyncing,
		`status = 'done', last_error = NULL, next_retry_at = NULL, updated_at = ?`, []any{now},
		`sync_status = 'synced', remote_url = ?, last_error = NULL, updated_at = ?`, []any{remoteURL, now},
	)
}

// MarkFailed records a failed attempt on a syncing entry.
func (r *QueueRepo) MarkFailed(ctx context.Context, entryID, lastErr string, nextRetryAt int64, terminal bool, now int64) error {
	entryStatus, memoryStatus := model.QueuePending, model.SyncPending
	retryAt := sql.NullInt64{Int64: nextRetryAt, Valid: true}
	if terminal {
		entryStatus, memoryStatus = model.QueueFailed, model.SyncFailed
		retryAt = sql.NullInt64{}
	}
	return r.transition(ctx, entryID, model.QueueSyncing,
		`status = ?, attempts = attempts + 1, next_retry_at = ?, last_error = ?, updated_at = ?`,
		[]any{string(entryStatus), retryAt, lastErr, now},
		`sync_status = ?, retry_count = retry_count + 1, last_error = ?, updated_at = ?`,
		[]any{string(memoryStatus), lastErr, now},
	)
}

// Release hands a syncing entry back to pending, leaving attempts unchanged.
func (r *QueueRepo) Release(ctx context.Context, entryID string, now int64) error {
	return r.transition(ctx, entryID, model.QueueSyncing,
		`status = 'pending', updated_at = ?`, []any{now},
		`sync_status = 'pending', updated_at = ?`, []any{now},
	)
}

// ReleaseStale hands back claims older than claimedBefore, left behind by a
// drain that stopped between claiming and recording an outcome.
func (r *QueueRepo) ReleaseStale(ctx context.Context, userID string, claimedBefore, now int64) (int, error) {
	db, err := r.s.DB(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	err = withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE memories SET sync_status = 'pending', updated_at = ?
WHERE user_id = ? AND id IN (
	SELECT memory_id FROM memory_sync_queue
	WHERE user_id = ? AND status = 'syncing' AND updated_at < ?)`,
			now, userID, userID, claimedBefore); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
UPDATE memory_sync_queue SET status = 'pending', updated_at = ?
WHERE user_id = ? AND status = 'syncing' AND updated_at < ?`,
			now, userID, claimedBefore)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("release stale sync entries: %w", err)
	}
	return int(n), nil
}

// Stats counts entries per status for userID.
func (r *QueueRepo) Stats(ctx context.Context, userID string) (model.QueueStats, error) {
	db, err := r.s.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM memory_sync_queue WHERE user_id = ? GROUP BY status`, userID)
	if err != nil {
		return nil, fmt.Errorf("sync queue stats: %w", err)
	}
	defer rows.Close()

	out := make(model.QueueStats)
	for rows.Next() {
		var (
			st string
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[model.QueueStatus(st)] = n
	}
	return out, rows.Err()
}
