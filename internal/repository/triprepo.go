package repository

import (
	"context"

	"github.com/4tyam/everyday/internal/model"
)

// TripRepository provides user-scoped access to trips and their derived aggregates.
type TripRepository interface {
	// List returns the user's trips, most recently created first.
	List(ctx context.Context, userID string) ([]model.Trip, error)
	// Create inserts a new trip.
	Create(ctx context.Context, t model.Trip) error
	// Get loads a trip by (tripID, userID); errs.ErrNotFound otherwise.
	Get(ctx context.Context, userID, tripID string) (*model.Trip, error)
	// Rename sets the name and returns the updated trip; errs.ErrNotFound if absent.
	Rename(ctx context.Context, userID, tripID, name string, updatedAt int64) (*model.Trip, error)
	// UpdateDates sets the range and returns the updated trip; errs.ErrNotFound if absent.
	UpdateDates(ctx context.Context, userID, tripID, start, end string, updatedAt int64) (*model.Trip, error)
	// PreviewImages returns up to limit most recent memory thumbnails per trip.
	// Trips without memories are absent from the result.
	PreviewImages(ctx context.Context, userID string, limit int) (map[string][]model.TripPreviewImage, error)
	// MemoryCounts returns the number of memories per trip, zero included.
	MemoryCounts(ctx context.Context, userID string) (map[string]int, error)
}
