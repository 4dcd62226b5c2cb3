package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/4tyam/everyday/internal/daykey"
	"github.com/4tyam/everyday/internal/errs"
	"github.com/4tyam/everyday/internal/media"
	"github.com/4tyam/everyday/internal/model"
	"github.com/4tyam/everyday/internal/repository"
)

// MemoryService defines day/month queries and add/remove of memories.
type MemoryService interface {
	// ListByDay returns the memories of one day ordered by creation time.
	ListByDay(ctx context.Context, userID, dayKey string) ([]model.Memory, error)
	// ListByMonth returns the memories of a month grouped by day.
	ListByMonth(ctx context.Context, userID, monthKey string) (model.DayMemories, error)
	// ListByDayRange returns the memories of an inclusive day range grouped by day.
	ListByDayRange(ctx context.Context, userID, startDayKey, endDayKey string) (model.DayMemories, error)
	// Add persists and records the assets for one day, all or nothing.
	Add(ctx context.Context, userID, dayKey string, assets []model.SourceAsset) ([]model.Memory, error)
	// Delete removes a memory and its file. Missing memories are a no-op.
	Delete(ctx context.Context, userID, memoryID string) (*model.Memory, error)
}

// ImageStore keeps the on-device copies of memory images.
type ImageStore interface {
	Persist(ctx context.Context, sourceURI, userID, dayKey, memoryID string) (string, error)
	Remove(localURI string) error
}

type MemoryServiceImpl struct {
	repo         repository.MemoryRepository
	files        ImageStore
	colors       media.ColorResolver
	colorTimeout time.Duration
	syncEnabled  bool
	log          *zap.Logger

	now   func() time.Time
	newID func() (string, error)
}

// MemoryOptions tunes MemoryServiceImpl. Zero values select defaults.
type MemoryOptions struct {
	ColorTimeout time.Duration
	// SkipSync marks new memories local_only and writes no queue rows.
	SkipSync bool
}

// NewMemoryService constructs MemoryService over the repository and image store.
func NewMemoryService(repo repository.MemoryRepository, files ImageStore, colors media.ColorResolver, opts MemoryOptions, log *zap.Logger) *MemoryServiceImpl {
	if opts.ColorTimeout <= 0 {
		opts.ColorTimeout = 3 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryServiceImpl{
		repo:         repo,
		files:        files,
		colors:       colors,
		colorTimeout: opts.ColorTimeout,
		syncEnabled:  !opts.SkipSync,
		log:          log,
		now:          time.Now,
		newID:        newV7,
	}
}

func newV7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ListByDay returns an empty slice for signed-out callers.
func (s *MemoryServiceImpl) ListByDay(ctx context.Context, userID, dayKey string) ([]model.Memory, error) {
	if userID == "" {
		return []model.Memory{}, nil
	}
	if !daykey.Valid(dayKey) {
		return nil, errs.Validation(fmt.Sprintf("invalid day key %q", dayKey))
	}
	return s.repo.ListByDay(ctx, userID, dayKey)
}

// ListByMonth returns an empty map for signed-out callers.
func (s *MemoryServiceImpl) ListByMonth(ctx context.Context, userID, monthKey string) (model.DayMemories, error) {
	if userID == "" {
		return model.DayMemories{}, nil
	}
	if !daykey.ValidMonth(monthKey) {
		return nil, errs.Validation(fmt.Sprintf("invalid month key %q", monthKey))
	}
	return s.repo.ListByMonth(ctx, userID, monthKey)
}

// checkDayRange rejects malformed keys and reports whether the range is empty.
func checkDayRange(startDayKey, endDayKey string) (empty bool, err error) {
	if !daykey.Valid(startDayKey) || !daykey.Valid(endDayKey) {
		return false, errs.Validation(fmt.Sprintf("invalid day range %q..%q", startDayKey, endDayKey))
	}
	return daykey.Compare(startDayKey, endDayKey) > 0, nil
}

// ListByDayRange returns an empty map when start is after end.
func (s *MemoryServiceImpl) ListByDayRange(ctx context.Context, userID, startDayKey, endDayKey string) (model.DayMemories, error) {
	if userID == "" {
		return model.DayMemories{}, nil
	}
	empty, err := checkDayRange(startDayKey, endDayKey)
	if err != nil {
		return nil, err
	}
	if empty {
		return model.DayMemories{}, nil
	}
	return s.repo.ListByDayRange(ctx, userID, startDayKey, endDayKey)
}

// Add copies every asset into the image store, resolves its dominant color and
// inserts all memories with their upload intents in one transaction.
// Timestamps increase by one millisecond per asset so batch order is kept.
// Any failure removes the files persisted so far and records nothing.
func (s *MemoryServiceImpl) Add(ctx context.Context, userID, dayKey string, assets []model.SourceAsset) ([]model.Memory, error) {
	if userID == "" || len(assets) == 0 {
		return []model.Memory{}, nil
	}
	if !daykey.Valid(dayKey) {
		return nil, errs.Validation(fmt.Sprintf("invalid day key %q", dayKey))
	}

	base := s.now().UnixMilli()
	batch := make([]repository.MemoryInsert, 0, len(assets))
	persisted := make([]string, 0, len(assets))
	cleanup := func() {
		for _, uri := range persisted {
			if err := s.files.Remove(uri); err != nil {
				s.log.Warn("remove orphaned memory file", zap.String("uri", uri), zap.Error(err))
			}
		}
	}

	for i, a := range assets {
		id, err := s.newID()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("memory id: %w", err)
		}
		uri, err := s.files.Persist(ctx, a.URI, userID, dayKey, id)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("persist memory image: %w", err)
		}
		persisted = append(persisted, uri)

		color := media.ColorOrFallback(ctx, s.colors, uri, s.colorTimeout, s.log)
		m := model.Memory{
			ID:            id,
			UserID:        userID,
			DayKey:        dayKey,
			URI:           uri,
			ImageWidth:    a.Width,
			ImageHeight:   a.Height,
			DominantColor: &color,
			SyncStatus:    model.SyncLocalOnly,
			CreatedAt:     base + int64(i),
		}
		in := repository.MemoryInsert{Memory: m}
		if s.syncEnabled {
			qid, err := s.newID()
			if err != nil {
				cleanup()
				return nil, fmt.Errorf("queue id: %w", err)
			}
			in.Memory.SyncStatus = model.SyncPending
			in.Sync = &model.SyncQueueEntry{
				ID:        qid,
				MemoryID:  id,
				UserID:    userID,
				Operation: model.OpUpload,
				Status:    model.QueuePending,
				CreatedAt: m.CreatedAt,
				UpdatedAt: m.CreatedAt,
			}
		}
		batch = append(batch, in)
	}

	if err := s.repo.CreateWithSync(ctx, batch); err != nil {
		cleanup()
		return nil, err
	}

	out := make([]model.Memory, 0, len(batch))
	for _, in := range batch {
		out = append(out, in.Memory)
	}
	s.log.Info("memories added",
		zap.String("user", userID), zap.String("day", dayKey), zap.Int("count", len(out)))
	return out, nil
}

// Delete removes the row and its queue entries first, then the file.
// A file that cannot be removed is logged and left behind.
func (s *MemoryServiceImpl) Delete(ctx context.Context, userID, memoryID string) (*model.Memory, error) {
	if userID == "" || memoryID == "" {
		return nil, nil
	}
	m, err := s.repo.Delete(ctx, userID, memoryID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	if err := s.files.Remove(m.URI); err != nil {
		s.log.Warn("remove memory file", zap.String("id", m.ID), zap.String("uri", m.URI), zap.Error(err))
	}
	return m, nil
}
