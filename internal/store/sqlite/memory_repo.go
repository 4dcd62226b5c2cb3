package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/4tyam/everyday/internal/errs"
	"github.com/4tyam/everyday/internal/model"
	"github.com/4tyam/everyday/internal/repository"
)

const memoryColumns = `id, user_id, day_key, local_uri, image_width, image_height,
	dominant_color, remote_url, sync_status, created_at`

// MemoryRepo implements repository.MemoryRepository on the local store.
type MemoryRepo struct{ s *Store }

// NewMemoryRepo constructs a memory repository.
func NewMemoryRepo(s *Store) *MemoryRepo { return &MemoryRepo{s: s} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (model.Memory, error) {
	var (
		m             model.Memory
		width, height sql.NullInt64
		color, remote sql.NullString
		status        string
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.DayKey, &m.URI, &width, &height,
		&color, &remote, &status, &m.CreatedAt); err != nil {
		return model.Memory{}, err
	}
	m.ImageWidth = intPtr(width)
	m.ImageHeight = intPtr(height)
	m.DominantColor = stringPtr(color)
	m.RemoteURL = stringPtr(remote)
	m.SyncStatus = model.SyncStatus(status)
	return m, nil
}

func (r *MemoryRepo) query(ctx context.Context, q string, args ...any) ([]model.Memory, error) {
	db, err := r.s.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func groupByDay(ms []model.Memory) model.DayMemories {
	out := make(model.DayMemories)
	for _, m := range ms {
		out[m.DayKey] = append(out[m.DayKey], m)
	}
	return out
}

// ListByDay returns one day's memories ordered by created_at, id.
func (r *MemoryRepo) ListByDay(ctx context.Context, userID, dayKey string) ([]model.Memory, error) {
	q := `SELECT ` + memoryColumns + `
FROM memories
WHERE user_id = ? AND day_key = ?
ORDER BY created_at ASC, id ASC`
	out, err := r.query(ctx, q, userID, dayKey)
	if err != nil {
		return nil, fmt.Errorf("list memories by day: %w", err)
	}
	if out == nil {
		out = []model.Memory{}
	}
	return out, nil
}

// ListByMonth groups the memories of every day key with the month prefix.
func (r *MemoryRepo) ListByMonth(ctx context.Context, userID, monthKey string) (model.DayMemories, error) {
	q := `SELECT ` + memoryColumns + `
FROM memories
WHERE user_id = ? AND day_key LIKE ?
ORDER BY created_at ASC, id ASC`
	out, err := r.query(ctx, q, userID, monthKey+"-%")
	if err != nil {
		return nil, fmt.Errorf("list memories by month: %w", err)
	}
	return groupByDay(out), nil
}

// ListByDayRange groups memories with start <= day_key <= end, by day then creation time.
func (r *MemoryRepo) ListByDayRange(ctx context.Context, userID, start, end string) (model.DayMemories, error) {
	q := `SELECT ` + memoryColumns + `
FROM memories
WHERE user_id = ? AND day_key >= ? AND day_key <= ?
ORDER BY day_key ASC, created_at ASC, id ASC`
	out, err := r.query(ctx, q, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list memories by range: %w", err)
	}
	return groupByDay(out), nil
}

// Get loads a single memory owned by userID.
func (r *MemoryRepo) Get(ctx context.Context, userID, memoryID string) (*model.Memory, error) {
	db, err := r.s.DB(ctx)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + memoryColumns + ` FROM memories WHERE id = ? AND user_id = ?`
	m, err := scanMemory(db.QueryRowContext(ctx, q, memoryID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// CreateWithSync inserts the batch of memories and their queue rows in one transaction.
func (r *MemoryRepo) CreateWithSync(ctx context.Context, batch []repository.MemoryInsert) error {
	if len(batch) == 0 {
		return nil
	}
	db, err := r.s.DB(ctx)
	if err != nil {
		return err
	}
	const insMemory = `
INSERT INTO memories (
	id, user_id, day_key, local_uri, image_width, image_height, dominant_color,
	remote_url, sync_status, retry_count, last_error, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)`
	const insEntry = `
INSERT INTO memory_sync_queue (
	id, memory_id, user_id, operation, status, attempts, next_retry_at, last_error, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, 0, NULL, NULL, ?, ?)`

	err = withTx(ctx, db, func(tx *sql.Tx) error {
		for _, in := range batch {
			m := in.Memory
			if _, err := tx.ExecContext(ctx, insMemory,
				m.ID, m.UserID, m.DayKey, m.URI, nullInt(m.ImageWidth), nullInt(m.ImageHeight),
				nullString(m.DominantColor), nullString(m.RemoteURL), string(m.SyncStatus),
				m.CreatedAt, m.CreatedAt,
			); err != nil {
				return err
			}
			if in.Sync == nil {
				continue
			}
			e := in.Sync
			if _, err := tx.ExecContext(ctx, insEntry,
				e.ID, m.ID, m.UserID, string(e.Operation), string(e.Status), e.CreatedAt, e.CreatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("insert memories: %w", errs.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert memories: %w", err)
	}
	return nil
}

// Delete removes the memory and its queue rows; a missing row is not an error.
func (r *MemoryRepo) Delete(ctx context.Context, userID, memoryID string) (*model.Memory, error) {
	db, err := r.s.DB(ctx)
	if err != nil {
		return nil, err
	}

	var deleted *model.Memory
	err = withTx(ctx, db, func(tx *sql.Tx) error {
		q := `SELECT ` + memoryColumns + ` FROM memories WHERE id = ? AND user_id = ?`
		m, err := scanMemory(tx.QueryRowContext(ctx, q, memoryID, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memory_sync_queue WHERE memory_id = ? AND user_id = ?`, memoryID, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memories WHERE id = ? AND user_id = ?`, memoryID, userID); err != nil {
			return err
		}
		deleted = &m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete memory: %w", err)
	}
	return deleted, nil
}
