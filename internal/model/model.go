// Package model defines domain entities used by services, repositories and the cache.
package model

// SyncStatus is the upload lifecycle state of a memory.
type SyncStatus string

const (
	SyncLocalOnly SyncStatus = "local_only"
	SyncPending   SyncStatus = "pending"
	SyncSyncing   SyncStatus = "syncing"
	SyncSynced    SyncStatus = "synced"
	SyncFailed    SyncStatus = "failed"
)

// Memory is one captured image attached to a calendar day.
// Timestamps are unix milliseconds.
type Memory struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	DayKey        string     `json:"dayKey"`
	URI           string     `json:"uri"` // persisted on-device copy
	ImageWidth    *int       `json:"imageWidth"`
	ImageHeight   *int       `json:"imageHeight"`
	DominantColor *string    `json:"dominantColor"`
	RemoteURL     *string    `json:"remoteUrl"` // set by the uploader
	SyncStatus    SyncStatus `json:"syncStatus"`
	CreatedAt     int64      `json:"createdAt"` // sole ordering key within a day
}

// DayMemories maps a day key to its memories ordered by CreatedAt ascending.
type DayMemories map[string][]Memory

// SourceAsset is a picker-provided image; width/height are nil when unknown.
type SourceAsset struct {
	URI    string `json:"uri"`
	Width  *int   `json:"width"`
	Height *int   `json:"height"`
}

// Trip is a named inclusive day range; its memories are derived by range overlap.
type Trip struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	StartDayKey string `json:"startDayKey"`
	EndDayKey   string `json:"endDayKey"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// TripStatus classifies a trip relative to today.
type TripStatus string

const (
	TripUpcoming TripStatus = "upcoming"
	TripOngoing  TripStatus = "ongoing"
	TripPast     TripStatus = "past"
)

// TripGroups buckets trips by status with display ordering applied.
type TripGroups struct {
	Upcoming []Trip `json:"upcoming"`
	Ongoing  []Trip `json:"ongoing"`
	Past     []Trip `json:"past"`
}

// TripPreviewImage is a thumbnail of one of the most recent memories of a trip.
type TripPreviewImage struct {
	TripID        string  `json:"tripId"`
	URI           string  `json:"uri"`
	DominantColor *string `json:"dominantColor"`
}

// SyncOperation is the kind of work a queue entry asks for.
type SyncOperation string

const OpUpload SyncOperation = "upload"

// QueueStatus is the state of a sync queue entry.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueSyncing QueueStatus = "syncing"
	QueueDone    QueueStatus = "done"
	QueueFailed  QueueStatus = "failed"
)

// SyncQueueEntry is a durable unit of synchronization work for one memory.
type SyncQueueEntry struct {
	ID          string        `json:"id"`
	MemoryID    string        `json:"memoryId"`
	UserID      string        `json:"userId"`
	Operation   SyncOperation `json:"operation"`
	Status      QueueStatus   `json:"status"`
	Attempts    int           `json:"attempts"`
	NextRetryAt *int64        `json:"nextRetryAt"`
	LastError   *string       `json:"lastError"`
	CreatedAt   int64         `json:"createdAt"`
	UpdatedAt   int64         `json:"updatedAt"`
}

// QueueStats counts queue entries per status for one user.
type QueueStats map[QueueStatus]int
