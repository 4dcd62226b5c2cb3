// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/4tyam/everyday/internal/model"
)

// MemoryRepository provides user-scoped access to memories.
type MemoryRepository interface {
	// ListByDay returns the memories of one day ordered by creation time.
	ListByDay(ctx context.Context, userID, dayKey string) ([]model.Memory, error)
	// ListByMonth groups the memories of every day in monthKey ("YYYY-MM").
	ListByMonth(ctx context.Context, userID, monthKey string) (model.DayMemories, error)
	// ListByDayRange groups the memories whose day lies in [start, end].
	ListByDayRange(ctx context.Context, userID, start, end string) (model.DayMemories, error)
	// Get loads one memory; errs.ErrNotFound if absent for this user.
	Get(ctx context.Context, userID, memoryID string) (*model.Memory, error)
	// CreateWithSync inserts every memory of the batch together with its sync
	// queue entry in one transaction: all rows are written or none.
	CreateWithSync(ctx context.Context, batch []MemoryInsert) error
	// Delete removes the memory and its queue entries. It returns the removed
	// row, or nil when nothing matched.
	Delete(ctx context.Context, userID, memoryID string) (*model.Memory, error)
}

// MemoryInsert is one memory row plus its upload intent. A nil Sync means the
// memory is local_only and no queue row is written.
type MemoryInsert struct {
	Memory model.Memory
	Sync   *model.SyncQueueEntry
}
