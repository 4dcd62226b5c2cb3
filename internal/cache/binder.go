// Package cache keeps per-user read-through views of memories and trips and
// keeps them consistent across writes without refetching what a write can patch.
//
// Day and month entries are patched in place after a successful add or remove.
// Trip aggregates (counts, previews, per-range memories) depend on a range join
// the cache cannot evaluate, so every write marks all of them stale instead.
package cache

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/4tyam/everyday/internal/daykey"
	"github.com/4tyam/everyday/internal/model"
	"github.com/4tyam/everyday/internal/service"
)

const (
	prefixMonth        = "memories/month/"
	prefixDay          = "memories/day/"
	keyTrips           = "trips/list"
	keyTripCounts      = "trips/counts"
	keyTripPreviews    = "trips/previews"
	prefixTripMemories = "trips/memories/"
)

func monthKey(m string) string { return prefixMonth + m }

func dayKey(d string) string { return prefixDay + d }

func tripMemoriesKey(s, e string) string { return prefixTripMemories + s + "/" + e }

type entry struct {
	val   any
	stale bool
}

// Binder is safe for concurrent use. It serves one user at a time; switching
// users drops everything cached.
type Binder struct {
	memories service.MemoryService
	trips    service.TripService
	log      *zap.Logger
	now      func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	userID  string
	epoch   uint64
	entries map[string]*entry
	// gens counts writes per key; a fetch stores its result only if no write
	// touched the key while it was in flight.
	gens map[string]uint64
}

// NewBinder constructs a Binder for userID; "" means signed out.
func NewBinder(memories service.MemoryService, trips service.TripService, userID string, log *zap.Logger) *Binder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Binder{
		memories: memories,
		trips:    trips,
		log:      log,
		now:      time.Now,
		userID:   userID,
		entries:  map[string]*entry{},
		gens:     map[string]uint64{},
	}
}

// SetUser switches the bound user and clears the cache when it changes.
func (b *Binder) SetUser(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.userID == userID {
		return
	}
	b.userID = userID
	b.epoch++
	b.entries = map[string]*entry{}
	b.gens = map[string]uint64{}
}

// UserID returns the bound user.
func (b *Binder) UserID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userID
}

type fetchFunc func(ctx context.Context, userID string) (any, error)

// read serves key from cache or runs fetch once for all concurrent callers.
func (b *Binder) read(ctx context.Context, key string, fetch fetchFunc) (any, error) {
	b.mu.Lock()
	if e, ok := b.entries[key]; ok && !e.stale {
		v := e.val
		b.mu.Unlock()
		return v, nil
	}
	user, epoch, gen := b.userID, b.epoch, b.gens[key]
	// tracked so invalidatePrefix reaches keys that are only in flight
	b.gens[key] = gen
	b.mu.Unlock()

	// a write moves the key to a new flight; reads issued after it never
	// join a fetch that may hold the pre-write snapshot
	ch := b.group.DoChan(fmt.Sprintf("%d|%d|%s", epoch, gen, key), func() (any, error) {
		b.mu.Lock()
		if b.epoch != epoch {
			b.mu.Unlock()
			return nil, context.Canceled
		}
		b.mu.Unlock()

		v, err := fetch(context.WithoutCancel(ctx), user)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.epoch == epoch && b.gens[key] == gen {
			b.entries[key] = &entry{val: v}
		} else {
			b.log.Debug("discarding fetch overtaken by a write", zap.String("key", key))
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}

// patch applies fn to a cached value if present. The key's generation moves
// on either way so an in-flight fetch cannot overwrite the write.
// Callers hold b.mu.
func (b *Binder) patch(key string, fn func(any) any) {
	b.gens[key]++
	if e, ok := b.entries[key]; ok {
		e.val = fn(e.val)
	}
}

// invalidate marks key stale. Callers hold b.mu.
func (b *Binder) invalidate(key string) {
	b.gens[key]++
	if e, ok := b.entries[key]; ok {
		e.stale = true
	}
}

// invalidatePrefix marks every cached or in-flight key under prefix stale.
// Callers hold b.mu.
func (b *Binder) invalidatePrefix(prefix string) {
	for k := range b.gens {
		if strings.HasPrefix(k, prefix) {
			b.gens[k]++
		}
	}
	for k, e := range b.entries {
		if strings.HasPrefix(k, prefix) {
			e.stale = true
		}
	}
}

func (b *Binder) invalidateTripAggregates() {
	b.invalidate(keyTripCounts)
	b.invalidate(keyTripPreviews)
	b.invalidatePrefix(prefixTripMemories)
}

// lockFor locks b.mu and reports whether userID is still the bound user.
// The caller must unlock.
func (b *Binder) lockFor(userID string) bool {
	b.mu.Lock()
	return b.userID == userID
}

// Month returns the memories of a month grouped by day.
func (b *Binder) Month(ctx context.Context, month string) (model.DayMemories, error) {
	if b.UserID() == "" {
		return model.DayMemories{}, nil
	}
	v, err := b.read(ctx, monthKey(month), func(ctx context.Context, user string) (any, error) {
		return b.memories.ListByMonth(ctx, user, month)
	})
	if err != nil {
		return nil, err
	}
	return cloneDays(v.(model.DayMemories)), nil
}

// Day returns the memories of one day.
func (b *Binder) Day(ctx context.Context, day string) ([]model.Memory, error) {
	if b.UserID() == "" {
		return []model.Memory{}, nil
	}
	v, err := b.read(ctx, dayKey(day), func(ctx context.Context, user string) (any, error) {
		return b.memories.ListByDay(ctx, user, day)
	})
	if err != nil {
		return nil, err
	}
	return cloneList(v.([]model.Memory)), nil
}

// CalendarMemories merges the visible month with today's and the previous
// day's lists, which may fall outside that month.
func (b *Binder) CalendarMemories(ctx context.Context, visibleMonth, today, previous string) (model.DayMemories, error) {
	out, err := b.Month(ctx, visibleMonth)
	if err != nil {
		return nil, err
	}
	if b.UserID() == "" {
		return out, nil
	}
	for _, d := range []string{today, previous} {
		ms, err := b.Day(ctx, d)
		if err != nil {
			return nil, err
		}
		out[d] = ms
	}
	return out, nil
}

// DotCount maps a day's memory count to the 0..3 calendar indicator.
func DotCount(days model.DayMemories, day string) int {
	return min(len(days[day]), 3)
}

// TotalMemories counts every memory in days.
func TotalMemories(days model.DayMemories) int {
	n := 0
	for _, ms := range days {
		n += len(ms)
	}
	return n
}

// AddMemories stores assets for day and patches the cached day and month.
// Nothing is cached or patched when the write fails.
func (b *Binder) AddMemories(ctx context.Context, day string, assets []model.SourceAsset) ([]model.Memory, error) {
	user := b.UserID()
	if user == "" || len(assets) == 0 {
		return []model.Memory{}, nil
	}
	added, err := b.memories.Add(ctx, user, day, assets)
	if err != nil {
		return nil, err
	}
	if len(added) == 0 {
		return added, nil
	}

	ok := b.lockFor(user)
	defer b.mu.Unlock()
	if !ok {
		return added, nil
	}
	b.patch(dayKey(day), func(v any) any {
		return mergeSorted(v.([]model.Memory), added)
	})
	b.patch(monthKey(daykey.MonthOf(day)), func(v any) any {
		m := cloneDays(v.(model.DayMemories))
		m[day] = mergeSorted(m[day], added)
		return m
	})
	b.invalidateTripAggregates()
	return added, nil
}

// RemoveMemory deletes a memory and filters it out of the cached day and month.
func (b *Binder) RemoveMemory(ctx context.Context, day, memoryID string) error {
	user := b.UserID()
	if user == "" || memoryID == "" {
		return nil
	}
	deleted, err := b.memories.Delete(ctx, user, memoryID)
	if err != nil {
		return err
	}
	if deleted != nil {
		day = deleted.DayKey
	}

	ok := b.lockFor(user)
	defer b.mu.Unlock()
	if !ok {
		return nil
	}
	b.patch(dayKey(day), func(v any) any {
		return without(v.([]model.Memory), memoryID)
	})
	b.patch(monthKey(daykey.MonthOf(day)), func(v any) any {
		m := cloneDays(v.(model.DayMemories))
		if rest := without(m[day], memoryID); len(rest) > 0 {
			m[day] = rest
		} else {
			delete(m, day)
		}
		return m
	})
	b.invalidateTripAggregates()
	return nil
}

// Trips returns the user's trips, most recent first.
func (b *Binder) Trips(ctx context.Context) ([]model.Trip, error) {
	if b.UserID() == "" {
		return []model.Trip{}, nil
	}
	v, err := b.read(ctx, keyTrips, func(ctx context.Context, user string) (any, error) {
		return b.trips.List(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return cloneList(v.([]model.Trip)), nil
}

// TripCounts returns memory counts per trip.
func (b *Binder) TripCounts(ctx context.Context) (map[string]int, error) {
	if b.UserID() == "" {
		return map[string]int{}, nil
	}
	v, err := b.read(ctx, keyTripCounts, func(ctx context.Context, user string) (any, error) {
		return b.trips.MemoryCounts(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return maps.Clone(v.(map[string]int)), nil
}

// TripPreviews returns preview thumbnails per trip.
func (b *Binder) TripPreviews(ctx context.Context) (map[string][]model.TripPreviewImage, error) {
	if b.UserID() == "" {
		return map[string][]model.TripPreviewImage{}, nil
	}
	v, err := b.read(ctx, keyTripPreviews, func(ctx context.Context, user string) (any, error) {
		return b.trips.PreviewImages(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	src := v.(map[string][]model.TripPreviewImage)
	out := make(map[string][]model.TripPreviewImage, len(src))
	for k, p := range src {
		out[k] = slices.Clone(p)
	}
	return out, nil
}

// TripMemories returns the memories covered by [start, end] grouped by day.
func (b *Binder) TripMemories(ctx context.Context, start, end string) (model.DayMemories, error) {
	if b.UserID() == "" {
		return model.DayMemories{}, nil
	}
	v, err := b.read(ctx, tripMemoriesKey(start, end), func(ctx context.Context, user string) (any, error) {
		return b.trips.MemoriesByRange(ctx, user, start, end)
	})
	if err != nil {
		return nil, err
	}
	return cloneDays(v.(model.DayMemories)), nil
}

// Overview is everything the trips screen shows.
type Overview struct {
	Today        string                              `json:"today"`
	MaxEndDayKey string                              `json:"maxEndDayKey"`
	Trips        []model.Trip                        `json:"trips"`
	Groups       model.TripGroups                    `json:"groups"`
	Counts       map[string]int                      `json:"counts"`
	Previews     map[string][]model.TripPreviewImage `json:"previews"`
}

// TripsOverview assembles trips, their status groups and aggregates.
func (b *Binder) TripsOverview(ctx context.Context) (Overview, error) {
	today := daykey.Today(b.now())
	maxEnd, err := daykey.AddMonths(today, service.MaxTripAheadMonths)
	if err != nil {
		return Overview{}, err
	}
	trips, err := b.Trips(ctx)
	if err != nil {
		return Overview{}, err
	}
	counts, err := b.TripCounts(ctx)
	if err != nil {
		return Overview{}, err
	}
	previews, err := b.TripPreviews(ctx)
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		Today:        today,
		MaxEndDayKey: maxEnd,
		Trips:        trips,
		Groups:       service.GroupTrips(trips, today),
		Counts:       counts,
		Previews:     previews,
	}, nil
}

// CreateTrip validates against today and the two month horizon, then
// prepends the new trip to the cached list.
func (b *Binder) CreateTrip(ctx context.Context, name, start, end string) (*model.Trip, error) {
	user := b.UserID()
	today := daykey.Today(b.now())
	maxEnd, err := daykey.AddMonths(today, service.MaxTripAheadMonths)
	if err != nil {
		return nil, err
	}
	t, err := b.trips.Create(ctx, service.CreateTripParams{
		UserID:       user,
		Name:         name,
		StartDayKey:  start,
		EndDayKey:    end,
		TodayDayKey:  today,
		MaxEndDayKey: maxEnd,
	})
	if err != nil {
		return nil, err
	}

	ok := b.lockFor(user)
	defer b.mu.Unlock()
	if !ok {
		return t, nil
	}
	b.patch(keyTrips, func(v any) any {
		return append([]model.Trip{*t}, v.([]model.Trip)...)
	})
	b.invalidate(keyTripCounts)
	b.invalidate(keyTripPreviews)
	return t, nil
}

// RenameTrip renames a trip and replaces it in the cached list.
func (b *Binder) RenameTrip(ctx context.Context, tripID, name string) (*model.Trip, error) {
	user := b.UserID()
	t, err := b.trips.Rename(ctx, user, tripID, name)
	if err != nil {
		return nil, err
	}
	b.replaceTrip(user, *t)
	return t, nil
}

// UpdateTripDates changes a trip's range and replaces it in the cached list.
func (b *Binder) UpdateTripDates(ctx context.Context, tripID, start, end string) (*model.Trip, error) {
	user := b.UserID()
	t, err := b.trips.UpdateDates(ctx, user, tripID, start, end)
	if err != nil {
		return nil, err
	}
	b.replaceTrip(user, *t)
	return t, nil
}

func (b *Binder) replaceTrip(user string, t model.Trip) {
	ok := b.lockFor(user)
	defer b.mu.Unlock()
	if !ok {
		return
	}
	b.patch(keyTrips, func(v any) any {
		out := cloneList(v.([]model.Trip))
		for i := range out {
			if out[i].ID == t.ID {
				out[i] = t
			}
		}
		return out
	})
	b.invalidateTripAggregates()
}

func cloneList[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return slices.Clone(s)
}

func cloneDays(src model.DayMemories) model.DayMemories {
	out := make(model.DayMemories, len(src))
	for k, ms := range src {
		out[k] = slices.Clone(ms)
	}
	return out
}

func mergeSorted(cur, added []model.Memory) []model.Memory {
	out := make([]model.Memory, 0, len(cur)+len(added))
	out = append(out, cur...)
	out = append(out, added...)
	slices.SortStableFunc(out, func(a, b model.Memory) int {
		if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func without(ms []model.Memory, id string) []model.Memory {
	out := make([]model.Memory, 0, len(ms))
	for _, m := range ms {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
