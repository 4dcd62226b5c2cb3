package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/4tyam/everyday/internal/daykey"
	"github.com/4tyam/everyday/internal/errs"
	"github.com/4tyam/everyday/internal/model"
	"github.com/4tyam/everyday/internal/repository"
)

const (
	// MaxTripNameLen is measured in UTF-16 code units of the trimmed name.
	MaxTripNameLen = 60
	// MaxPreviewImages is the number of thumbnails returned per trip.
	MaxPreviewImages = 4
	// MaxTripAheadMonths bounds the end date of a new trip relative to today.
	MaxTripAheadMonths = 2
)

// TripService defines trip CRUD and the range-derived trip aggregates.
type TripService interface {
	List(ctx context.Context, userID string) ([]model.Trip, error)
	Create(ctx context.Context, p CreateTripParams) (*model.Trip, error)
	Rename(ctx context.Context, userID, tripID, name string) (*model.Trip, error)
	UpdateDates(ctx context.Context, userID, tripID, startDayKey, endDayKey string) (*model.Trip, error)
	MemoriesByRange(ctx context.Context, userID, startDayKey, endDayKey string) (model.DayMemories, error)
	PreviewImages(ctx context.Context, userID string) (map[string][]model.TripPreviewImage, error)
	MemoryCounts(ctx context.Context, userID string) (map[string]int, error)
}

// CreateTripParams carries a new trip plus the bounds it is validated against.
type CreateTripParams struct {
	UserID       string
	Name         string
	StartDayKey  string
	EndDayKey    string
	TodayDayKey  string
	MaxEndDayKey string
}

type TripServiceImpl struct {
	trips    repository.TripRepository
	memories repository.MemoryRepository
	log      *zap.Logger

	now   func() time.Time
	newID func() (string, error)
}

// NewTripService constructs TripService.
func NewTripService(trips repository.TripRepository, memories repository.MemoryRepository, log *zap.Logger) *TripServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &TripServiceImpl{trips: trips, memories: memories, log: log, now: time.Now, newID: newV7}
}

// List returns trips most recent first; empty for signed-out callers.
func (s *TripServiceImpl) List(ctx context.Context, userID string) ([]model.Trip, error) {
	if userID == "" {
		return []model.Trip{}, nil
	}
	return s.trips.List(ctx, userID)
}

// Create validates and inserts a trip. Rules are checked in order and the
// first failing one is returned:
// - trimmed name is not empty
// - trimmed name fits MaxTripNameLen
// - start is today or later
// - end is not before start
// - end is not after MaxEndDayKey
func (s *TripServiceImpl) Create(ctx context.Context, p CreateTripParams) (*model.Trip, error) {
	if p.UserID == "" {
		return nil, errs.SignedOut("You need to be signed in to create a trip.")
	}
	name, err := validateTripName(p.Name)
	if err != nil {
		return nil, err
	}
	if !daykey.Valid(p.StartDayKey) || !daykey.Valid(p.EndDayKey) {
		return nil, errs.Validation("Trip dates must be valid days.")
	}
	if daykey.Compare(p.StartDayKey, p.TodayDayKey) < 0 {
		return nil, errs.Validation("Trip start date must be today or later.")
	}
	if daykey.Compare(p.EndDayKey, p.StartDayKey) < 0 {
		return nil, errs.Validation("Trip end date cannot be before the start date.")
	}
	if daykey.Compare(p.EndDayKey, p.MaxEndDayKey) > 0 {
		return nil, errs.Validation("Trip end date must be within two months from today.")
	}

	id, err := s.newID()
	if err != nil {
		return nil, err
	}
	now := s.now().UnixMilli()
	t := model.Trip{
		ID:          id,
		UserID:      p.UserID,
		Name:        name,
		StartDayKey: p.StartDayKey,
		EndDayKey:   p.EndDayKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.trips.Create(ctx, t); err != nil {
		return nil, err
	}
	s.log.Info("trip created", zap.String("user", p.UserID), zap.String("trip", id))
	return &t, nil
}

// Rename re-validates the name; only the owner can rename.
func (s *TripServiceImpl) Rename(ctx context.Context, userID, tripID, name string) (*model.Trip, error) {
	if userID == "" {
		return nil, errs.SignedOut("You need to be signed in to edit a trip.")
	}
	trimmed, err := validateTripName(name)
	if err != nil {
		return nil, err
	}
	t, err := s.trips.Rename(ctx, userID, tripID, trimmed, s.now().UnixMilli())
	return t, tripNotFound(err)
}

// UpdateDates only requires end >= start. The creation-time bounds
// (today or later, within two months) are not re-checked so past trips stay editable.
func (s *TripServiceImpl) UpdateDates(ctx context.Context, userID, tripID, startDayKey, endDayKey string) (*model.Trip, error) {
	if userID == "" {
		return nil, errs.SignedOut("You need to be signed in to edit a trip.")
	}
	if !daykey.Valid(startDayKey) || !daykey.Valid(endDayKey) {
		return nil, errs.Validation("Trip dates must be valid days.")
	}
	if daykey.Compare(endDayKey, startDayKey) < 0 {
		return nil, errs.Validation("Trip end date cannot be before the start date.")
	}
	t, err := s.trips.UpdateDates(ctx, userID, tripID, startDayKey, endDayKey, s.now().UnixMilli())
	return t, tripNotFound(err)
}

// MemoriesByRange lists the memories covered by a trip range grouped by day.
func (s *TripServiceImpl) MemoriesByRange(ctx context.Context, userID, startDayKey, endDayKey string) (model.DayMemories, error) {
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
	return s.memories.ListByDayRange(ctx, userID, startDayKey, endDayKey)
}

// PreviewImages returns up to MaxPreviewImages newest thumbnails per trip.
func (s *TripServiceImpl) PreviewImages(ctx context.Context, userID string) (map[string][]model.TripPreviewImage, error) {
	if userID == "" {
		return map[string][]model.TripPreviewImage{}, nil
	}
	return s.trips.PreviewImages(ctx, userID, MaxPreviewImages)
}

// MemoryCounts returns the count for every trip of the user.
func (s *TripServiceImpl) MemoryCounts(ctx context.Context, userID string) (map[string]int, error) {
	if userID == "" {
		return map[string]int{}, nil
	}
	return s.trips.MemoryCounts(ctx, userID)
}

func validateTripName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errs.Validation("Trip name is required.")
	}
	if len(utf16.Encode([]rune(trimmed))) > MaxTripNameLen {
		return "", errs.Validation("Trip name must be 60 characters or fewer.")
	}
	return trimmed, nil
}

func tripNotFound(err error) error {
	if errors.Is(err, errs.ErrNotFound) {
		return errs.NotFound("Trip not found.")
	}
	return err
}

// StatusOf classifies a trip relative to today.
func StatusOf(t model.Trip, todayDayKey string) model.TripStatus {
	if daykey.Compare(todayDayKey, t.StartDayKey) < 0 {
		return model.TripUpcoming
	}
	if daykey.Compare(todayDayKey, t.EndDayKey) > 0 {
		return model.TripPast
	}
	return model.TripOngoing
}

// GroupTrips buckets trips by status. Upcoming and ongoing are sorted by
// start ascending, past by start descending; ties fall back to creation time.
func GroupTrips(trips []model.Trip, todayDayKey string) model.TripGroups {
	g := model.TripGroups{Upcoming: []model.Trip{}, Ongoing: []model.Trip{}, Past: []model.Trip{}}
	for _, t := range trips {
		switch StatusOf(t, todayDayKey) {
		case model.TripUpcoming:
			g.Upcoming = append(g.Upcoming, t)
		case model.TripOngoing:
			g.Ongoing = append(g.Ongoing, t)
		default:
			g.Past = append(g.Past, t)
		}
	}
	sort.SliceStable(g.Upcoming, func(i, j int) bool { return startAsc(g.Upcoming[i], g.Upcoming[j]) })
	sort.SliceStable(g.Ongoing, func(i, j int) bool { return startAsc(g.Ongoing[i], g.Ongoing[j]) })
	sort.SliceStable(g.Past, func(i, j int) bool { return startAsc(g.Past[j], g.Past[i]) })
	return g
}

func startAsc(a, b model.Trip) bool {
	if c := daykey.Compare(a.StartDayKey, b.StartDayKey); c != 0 {
		return c < 0
	}
	return a.CreatedAt < b.CreatedAt
}
