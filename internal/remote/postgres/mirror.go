package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/4tyam/everyday/internal/errs"
	"github.com/4tyam/everyday/internal/media"
	"github.com/4tyam/everyday/internal/model"
)

// Mirror records uploaded memories in remote_memories. It satisfies uploader.Sink.
type Mirror struct {
	db      *DB
	baseURL string
}

// NewMirror constructs a Mirror whose remote URLs are rooted at baseURL.
func NewMirror(db *DB, baseURL string) *Mirror {
	return &Mirror{db: db, baseURL: strings.TrimRight(baseURL, "/")}
}

// ObjectKey is the remote location of a memory relative to the base URL.
func ObjectKey(m model.Memory) string {
	return m.UserID + "/" + m.DayKey + "/" + m.ID + "." + media.Extension(m.URI)
}

// Upload inserts the memory row. Re-uploading the same memory is idempotent
// and returns the stored URL; an id owned by another user is rejected.
func (r *Mirror) Upload(ctx context.Context, m model.Memory) (string, error) {
	const q = `
INSERT INTO remote_memories (id, user_id, day_key, object_key, image_width, image_height, dominant_color, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET object_key = remote_memories.object_key
WHERE remote_memories.user_id = EXCLUDED.user_id
RETURNING object_key`
	var key string
	err := r.db.Pool.QueryRow(ctx, q,
		m.ID, m.UserID, m.DayKey, ObjectKey(m), m.ImageWidth, m.ImageHeight, m.DominantColor, m.CreatedAt,
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("memory %s: %w", m.ID, errs.ErrAlreadyExists)
	}
	if err != nil {
		return "", err
	}
	return r.baseURL + "/" + key, nil
}

// Count returns the number of mirrored memories of userID.
func (r *Mirror) Count(ctx context.Context, userID string) (int, error) {
	const q = `SELECT count(*) FROM remote_memories WHERE user_id = $1`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Delete removes a mirrored memory. Missing rows are not an error.
func (r *Mirror) Delete(ctx context.Context, userID, memoryID string) error {
	const q = `DELETE FROM remote_memories WHERE id = $1 AND user_id = $2`
	_, err := r.db.Pool.Exec(ctx, q, memoryID, userID)
	return err
}
