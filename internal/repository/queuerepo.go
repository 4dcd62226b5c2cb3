package repository

import (
	"context"

	"github.com/4tyam/everyday/internal/model"
)

// SyncQueueRepository is the storage contract the background uploader drains.
type SyncQueueRepository interface {
	// ListDue returns pending entries whose retry time has passed, oldest first.
	ListDue(ctx context.Context, userID string, now int64, limit int) ([]model.SyncQueueEntry, error)
	// ListByMemory returns every entry recorded for one memory.
	ListByMemory(ctx context.Context, userID, memoryID string) ([]model.SyncQueueEntry, error)
	// MarkSyncing claims a pending entry; errs.ErrNotFound if it is no longer pending.
	MarkSyncing(ctx context.Context, entryID string, now int64) error
	// MarkSynced completes an entry and records the memory's remote URL.
	MarkSynced(ctx context.Context, entryID, remoteURL string, now int64) error
	// MarkFailed records a failed attempt. A terminal failure parks the entry
	// as failed; otherwise it returns to pending until nextRetryAt.
	MarkFailed(ctx context.Context, entryID, lastErr string, nextRetryAt int64, terminal bool, now int64) error
	// Release returns a syncing entry to pending without counting an attempt.
	Release(ctx context.Context, entryID string, now int64) error
	// ReleaseStale returns the user's entries claimed before claimedBefore to
	// pending and reports how many were released.
	ReleaseStale(ctx context.Context, userID string, claimedBefore, now int64) (int, error)
	// Stats counts the user's entries per status.
	Stats(ctx context.Context, userID string) (model.QueueStats, error)
}
