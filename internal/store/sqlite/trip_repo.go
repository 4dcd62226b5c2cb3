package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/4tyam/everyday/internal/errs"
	"github.com/4tyam/everyday/internal/model"
)

const tripColumns = `id, user_id, name, start_day_key, end_day_key, created_at, updated_at`

// TripRepo implements repository.TripRepository on the local store.
// Trip membership is never stored: it is the range predicate
// m.day_key BETWEEN t.start_day_key AND t.end_day_key evaluated per query.
type TripRepo struct{ s *Store }

// NewTripRepo constructs a trip repository.
func NewTripRepo(s *Store) *TripRepo { return &TripRepo{s: s} }

func scanTrip(row rowScanner) (model.Trip, error) {
	var t model.Trip
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.StartDayKey, &t.EndDayKey, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// List returns the user's trips ordered by created_at descending.
func (r *TripRepo) List(ctx context.Context, userID string) ([]model.Trip, error) {
	db, err := r.s.DB(ctx)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + tripColumns + `
FROM trips
WHERE user_id = ?
ORDER BY created_at DESC, id DESC`
	rows, err := db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	out := []model.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create inserts a trip row.
func (r *TripRepo) Create(ctx context.Context, t model.Trip) error {
	db, err := r.s.DB(ctx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO trips (id, user_id, name, start_day_key, end_day_key, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, q, t.ID, t.UserID, t.Name, t.StartDayKey, t.EndDayKey, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert trip %s: %w", t.ID, errs.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

// Get loads a trip only when both tripID and userID match.
func (r *TripRepo) Get(ctx context.Context, userID, tripID string) (*model.Trip, error) {
	db, err := r.s.DB(ctx)
	if err != nil {
		return nil, err
	}
	return getTrip(ctx, db, userID, tripID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTrip(ctx context.Context, q queryRower, userID, tripID string) (*model.Trip, error) {
	sel := `SELECT ` + tripColumns + ` FROM trips WHERE id = ? AND user_id = ? LIMIT 1`
	t, err := scanTrip(q.QueryRowContext(ctx, sel, tripID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// update applies set to the (tripID, userID) row and returns the row after the change.
func (r *TripRepo) update(ctx context.Context, userID, tripID, set string, args ...any) (*model.Trip, error) {
	db, err := r.s.DB(ctx)
	if err != nil {
		return nil, err
	}
	var out *model.Trip
	err = withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := getTrip(ctx, tx, userID, tripID); err != nil {
			return err
		}
		upd := `UPDATE trips SET ` + set + ` WHERE id = ? AND user_id = ?`
		if _, err := tx.ExecContext(ctx, upd, append(args, tripID, userID)...); err != nil {
			return err
		}
		t, err := getTrip(ctx, tx, userID, tripID)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rename sets a new (already validated) name.
func (r *TripRepo) Rename(ctx context.Context, userID, tripID, name string, updatedAt int64) (*model.Trip, error) {
	return r.update(ctx, userID, tripID, `name = ?, updated_at = ?`, name, updatedAt)
}

// UpdateDates sets a new (already validated) inclusive range.
func (r *TripRepo) UpdateDates(ctx context.Context, userID, tripID, start, end string, updatedAt int64) (*model.Trip, error) {
	return r.update(ctx, userID, tripID, `start_day_key = ?, end_day_key = ?, updated_at = ?`, start, end, updatedAt)
}

// PreviewImages ranks each trip's memories newest first and keeps the top limit.
func (r *TripRepo) PreviewImages(ctx context.Context, userID string, limit int) (map[string][]model.TripPreviewImage, error) {
	db, err := r.s.DB(ctx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT trip_id, local_uri, dominant_color FROM (
	SELECT t.id AS trip_id, m.local_uri, m.dominant_color,
		ROW_NUMBER() OVER (PARTITION BY t.id ORDER BY m.created_at DESC, m.id DESC) AS rn
	FROM trips t
	JOIN memories m
		ON m.user_id = t.user_id
		AND m.day_key >= t.start_day_key
		AND m.day_key <= t.end_day_key
	WHERE t.user_id = ?
) sub
WHERE rn <= ?
ORDER BY trip_id, rn`
	rows, err := db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("trip previews: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.TripPreviewImage)
	for rows.Next() {
		var (
			p     model.TripPreviewImage
			color sql.NullString
		)
		if err := rows.Scan(&p.TripID, &p.URI, &color); err != nil {
			return nil, err
		}
		p.DominantColor = stringPtr(color)
		out[p.TripID] = append(out[p.TripID], p)
	}
	return out, rows.Err()
}

// MemoryCounts counts matching memories for every trip of the user, zero included.
func (r *TripRepo) MemoryCounts(ctx context.Context, userID string) (map[string]int, error) {
	db, err := r.s.DB(ctx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT t.id, COUNT(m.id)
FROM trips t
LEFT JOIN memories m
	ON m.user_id = t.user_id
	AND m.day_key >= t.start_day_key
	AND m.day_key <= t.end_day_key
WHERE t.user_id = ?
GROUP BY t.id`
	rows, err := db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("trip memory counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}
