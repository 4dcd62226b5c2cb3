package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/4tyam/everyday/internal/errs"
	"github.com/4tyam/everyday/internal/model"
	"github.com/4tyam/everyday/internal/service"
)

type fakeMemories struct {
	mu    sync.Mutex
	rows  []model.Memory
	calls map[string]int

	addErr error
	nextID int

	// monthGate, when set, makes the next ListByMonth take its snapshot and
	// then block until the gate is closed.
	monthGate    chan struct{}
	monthStarted chan struct{}
}

var _ service.MemoryService = (*fakeMemories)(nil)

func newFakeMemories(rows ...model.Memory) *fakeMemories {
	return &fakeMemories{rows: rows, calls: map[string]int{}}
}

func (f *fakeMemories) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeMemories) ListByDay(_ context.Context, userID, day string) ([]model.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["day"]++
	out := []model.Memory{}
	for _, m := range f.rows {
		if m.UserID == userID && m.DayKey == day {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemories) ListByMonth(_ context.Context, userID, month string) (model.DayMemories, error) {
	f.mu.Lock()
	gate, started := f.monthGate, f.monthStarted
	f.monthGate, f.monthStarted = nil, nil
	f.calls["month"]++
	out := model.DayMemories{}
	for _, m := range f.rows {
		if m.UserID == userID && m.DayKey[:7] == month {
			out[m.DayKey] = append(out[m.DayKey], m)
		}
	}
	f.mu.Unlock()

	if gate != nil {
		close(started)
		<-gate
	}
	return out, nil
}

func (f *fakeMemories) ListByDayRange(_ context.Context, userID, start, end string) (model.DayMemories, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["range"]++
	out := model.DayMemories{}
	for _, m := range f.rows {
		if m.UserID == userID && m.DayKey >= start && m.DayKey <= end {
			out[m.DayKey] = append(out[m.DayKey], m)
		}
	}
	return out, nil
}

func (f *fakeMemories) Add(_ context.Context, userID, day string, assets []model.SourceAsset) ([]model.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["add"]++
	if f.addErr != nil {
		return nil, f.addErr
	}
	out := make([]model.Memory, 0, len(assets))
	for _, a := range assets {
		f.nextID++
		m := model.Memory{ID: "new-" + a.URI, UserID: userID, DayKey: day, URI: a.URI, CreatedAt: int64(1000 + f.nextID)}
		f.rows = append(f.rows, m)
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMemories) Delete(_ context.Context, userID, id string) (*model.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	for i, m := range f.rows {
		if m.UserID == userID && m.ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return &m, nil
		}
	}
	return nil, nil
}

type fakeTrips struct {
	mems  *fakeMemories
	trips []model.Trip
	calls map[string]int

	renameErr error
}

var _ service.TripService = (*fakeTrips)(nil)

func (f *fakeTrips) List(_ context.Context, userID string) ([]model.Trip, error) {
	f.calls["list"]++
	return append([]model.Trip(nil), f.trips...), nil
}

func (f *fakeTrips) Create(_ context.Context, p service.CreateTripParams) (*model.Trip, error) {
	f.calls["create"]++
	if p.UserID == "" {
		return nil, errs.SignedOut("You need to be signed in to create a trip.")
	}
	t := model.Trip{ID: "t-new", UserID: p.UserID, Name: p.Name, StartDayKey: p.StartDayKey, EndDayKey: p.EndDayKey}
	f.trips = append([]model.Trip{t}, f.trips...)
	return &t, nil
}

func (f *fakeTrips) Rename(_ context.Context, _, tripID, name string) (*model.Trip, error) {
	f.calls["rename"]++
	if f.renameErr != nil {
		return nil, f.renameErr
	}
	for i := range f.trips {
		if f.trips[i].ID == tripID {
			f.trips[i].Name = name
			t := f.trips[i]
			return &t, nil
		}
	}
	return nil, errs.NotFound("Trip not found.")
}

func (f *fakeTrips) UpdateDates(_ context.Context, _, tripID, start, end string) (*model.Trip, error) {
	f.calls["dates"]++
	for i := range f.trips {
		if f.trips[i].ID == tripID {
			f.trips[i].StartDayKey, f.trips[i].EndDayKey = start, end
			t := f.trips[i]
			return &t, nil
		}
	}
	return nil, errs.NotFound("Trip not found.")
}

func (f *fakeTrips) MemoriesByRange(ctx context.Context, userID, start, end string) (model.DayMemories, error) {
	f.calls["memories"]++
	return f.mems.ListByDayRange(ctx, userID, start, end)
}

func (f *fakeTrips) PreviewImages(context.Context, string) (map[string][]model.TripPreviewImage, error) {
	f.calls["previews"]++
	return map[string][]model.TripPreviewImage{}, nil
}

func (f *fakeTrips) MemoryCounts(_ context.Context, userID string) (map[string]int, error) {
	f.calls["counts"]++
	out := map[string]int{}
	for _, t := range f.trips {
		for _, m := range f.mems.rows {
			if m.UserID == userID && m.DayKey >= t.StartDayKey && m.DayKey <= t.EndDayKey {
				out[t.ID]++
			}
		}
		if _, ok := out[t.ID]; !ok {
			out[t.ID] = 0
		}
	}
	return out, nil
}

func mem(id, day string, createdAt int64) model.Memory {
	return model.Memory{ID: id, UserID: "u1", DayKey: day, URI: "file:///" + id, CreatedAt: createdAt}
}

func newTestBinder(t *testing.T, user string, rows ...model.Memory) (*Binder, *fakeMemories, *fakeTrips) {
	t.Helper()
	fm := newFakeMemories(rows...)
	ft := &fakeTrips{mems: fm, calls: map[string]int{},
		trips: []model.Trip{{ID: "t1", UserID: "u1", Name: "Spring", StartDayKey: "2024-03-01", EndDayKey: "2024-03-10"}}}
	b := NewBinder(fm, ft, user, zaptest.NewLogger(t))
	b.now = func() time.Time { return time.Date(2024, 3, 5, 9, 0, 0, 0, time.Local) }
	return b, fm, ft
}

func TestBinder_ReadThrough(t *testing.T) {
	ctx := context.Background()
	b, fm, _ := newTestBinder(t, "u1", mem("a", "2024-03-05", 1))

	for range 3 {
		got, err := b.Month(ctx, "2024-03")
		require.NoError(t, err)
		require.Len(t, got["2024-03-05"], 1)
	}
	require.Equal(t, 1, fm.count("month"))

	// callers get copies
	got, _ := b.Month(ctx, "2024-03")
	got["2024-03-05"][0].ID = "mutated"
	again, _ := b.Month(ctx, "2024-03")
	require.Equal(t, "a", again["2024-03-05"][0].ID)
}

func TestBinder_SignedOut(t *testing.T) {
	ctx := context.Background()
	b, fm, ft := newTestBinder(t, "")

	m, err := b.Month(ctx, "2024-03")
	require.NoError(t, err)
	require.Empty(t, m)
	d, err := b.Day(ctx, "2024-03-05")
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Empty(t, d)
	trips, err := b.Trips(ctx)
	require.NoError(t, err)
	require.Empty(t, trips)
	added, err := b.AddMemories(ctx, "2024-03-05", []model.SourceAsset{{URI: "x"}})
	require.NoError(t, err)
	require.Empty(t, added)
	require.NoError(t, b.RemoveMemory(ctx, "2024-03-05", "a"))

	_, err = b.CreateTrip(ctx, "NYC", "2024-03-06", "2024-03-07")
	require.ErrorIs(t, err, errs.ErrSignedOut)
	require.Equal(t, "You need to be signed in to create a trip.", err.Error())

	require.Zero(t, fm.count("month")+fm.count("day")+fm.count("add")+fm.count("delete"))
	require.Zero(t, ft.calls["list"])
}

func TestBinder_AddPatchesDayAndMonth(t *testing.T) {
	ctx := context.Background()
	b, fm, ft := newTestBinder(t, "u1", mem("a", "2024-03-05", 1))

	_, err := b.Month(ctx, "2024-03")
	require.NoError(t, err)
	_, err = b.Day(ctx, "2024-03-05")
	require.NoError(t, err)
	_, err = b.TripCounts(ctx)
	require.NoError(t, err)
	_, err = b.TripMemories(ctx, "2024-03-01", "2024-03-10")
	require.NoError(t, err)

	added, err := b.AddMemories(ctx, "2024-03-05", []model.SourceAsset{{URI: "p"}, {URI: "q"}})
	require.NoError(t, err)
	require.Len(t, added, 2)

	day, err := b.Day(ctx, "2024-03-05")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "new-p", "new-q"}, ids(day))
	month, err := b.Month(ctx, "2024-03")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "new-p", "new-q"}, ids(month["2024-03-05"]))
	require.Equal(t, 1, fm.count("month"), "month is patched, not refetched")
	require.Equal(t, 1, fm.count("day"), "day is patched, not refetched")

	counts, err := b.TripCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, counts["t1"])
	require.Equal(t, 2, ft.calls["counts"], "counts are refetched after a write")

	tm, err := b.TripMemories(ctx, "2024-03-01", "2024-03-10")
	require.NoError(t, err)
	require.Len(t, tm["2024-03-05"], 3)
	require.Equal(t, 2, ft.calls["memories"])
}

func TestBinder_AddEmptyBatchIsNoop(t *testing.T) {
	ctx := context.Background()
	b, fm, ft := newTestBinder(t, "u1", mem("a", "2024-03-05", 1))

	_, err := b.TripCounts(ctx)
	require.NoError(t, err)
	_, err = b.TripPreviews(ctx)
	require.NoError(t, err)

	for _, assets := range [][]model.SourceAsset{nil, {}} {
		added, err := b.AddMemories(ctx, "2024-03-05", assets)
		require.NoError(t, err)
		require.NotNil(t, added)
		require.Empty(t, added)
	}
	require.Zero(t, fm.count("add"))

	_, err = b.TripCounts(ctx)
	require.NoError(t, err)
	_, err = b.TripPreviews(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, ft.calls["counts"], "trip aggregates stay cached")
	require.Equal(t, 1, ft.calls["previews"])
}

func TestBinder_RemovePatchesDayAndMonth(t *testing.T) {
	ctx := context.Background()
	b, fm, _ := newTestBinder(t, "u1", mem("a", "2024-03-05", 1), mem("b", "2024-03-06", 2))

	_, _ = b.Month(ctx, "2024-03")
	_, _ = b.Day(ctx, "2024-03-05")

	require.NoError(t, b.RemoveMemory(ctx, "2024-03-05", "a"))
	day, _ := b.Day(ctx, "2024-03-05")
	require.Empty(t, day)
	month, _ := b.Month(ctx, "2024-03")
	require.NotContains(t, month, "2024-03-05")
	require.Len(t, month["2024-03-06"], 1)
	require.Equal(t, 1, fm.count("month"))

	// removing again is a no-op
	require.NoError(t, b.RemoveMemory(ctx, "2024-03-05", "a"))
}

func TestBinder_FailedWriteLeavesCache(t *testing.T) {
	ctx := context.Background()
	b, fm, ft := newTestBinder(t, "u1", mem("a", "2024-03-05", 1))

	_, _ = b.Month(ctx, "2024-03")
	_, _ = b.TripCounts(ctx)
	_, _ = b.Trips(ctx)

	fm.addErr = errors.New("disk full")
	_, err := b.AddMemories(ctx, "2024-03-05", []model.SourceAsset{{URI: "p"}})
	require.Error(t, err)

	ft.renameErr = errors.New("locked")
	_, err = b.RenameTrip(ctx, "t1", "New")
	require.Error(t, err)

	month, _ := b.Month(ctx, "2024-03")
	require.Len(t, month["2024-03-05"], 1)
	trips, _ := b.Trips(ctx)
	require.Equal(t, "Spring", trips[0].Name)
	_, _ = b.TripCounts(ctx)
	require.Equal(t, 1, fm.count("month"))
	require.Equal(t, 1, ft.calls["counts"])
	require.Equal(t, 1, ft.calls["list"])
}

func TestBinder_TripWrites(t *testing.T) {
	ctx := context.Background()
	b, _, ft := newTestBinder(t, "u1")

	_, err := b.Trips(ctx)
	require.NoError(t, err)
	_, _ = b.TripPreviews(ctx)

	created, err := b.CreateTrip(ctx, "NYC", "2024-03-06", "2024-03-07")
	require.NoError(t, err)
	trips, _ := b.Trips(ctx)
	require.Equal(t, []string{created.ID, "t1"}, tripIDs(trips))
	require.Equal(t, 1, ft.calls["list"], "list is patched, not refetched")

	_, _ = b.TripPreviews(ctx)
	require.Equal(t, 2, ft.calls["previews"])

	_, err = b.RenameTrip(ctx, "t1", "Renamed")
	require.NoError(t, err)
	_, err = b.UpdateTripDates(ctx, "t1", "2024-02-01", "2024-02-03")
	require.NoError(t, err)
	trips, _ = b.Trips(ctx)
	require.Equal(t, "Renamed", trips[1].Name)
	require.Equal(t, "2024-02-01", trips[1].StartDayKey)
	require.Equal(t, 1, ft.calls["list"])

	_, err = b.RenameTrip(ctx, "missing", "x")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestBinder_OverviewAndCalendar(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBinder(t, "u1",
		mem("a", "2024-03-05", 1), mem("b", "2024-03-05", 2), mem("c", "2024-03-05", 3), mem("d", "2024-03-05", 4),
		mem("e", "2024-02-29", 5))

	ov, err := b.TripsOverview(ctx)
	require.NoError(t, err)
	require.Equal(t, "2024-03-05", ov.Today)
	require.Equal(t, "2024-05-05", ov.MaxEndDayKey)
	require.Len(t, ov.Groups.Ongoing, 1)
	require.Equal(t, 4, ov.Counts["t1"])

	// previous day falls in the prior month
	cal, err := b.CalendarMemories(ctx, "2024-03", "2024-03-05", "2024-02-29")
	require.NoError(t, err)
	require.Equal(t, 3, DotCount(cal, "2024-03-05"))
	require.Equal(t, 1, DotCount(cal, "2024-02-29"))
	require.Equal(t, 0, DotCount(cal, "2024-03-01"))
	require.Equal(t, 5, TotalMemories(cal))
}

func TestBinder_WriteWinsOverInFlightFetch(t *testing.T) {
	ctx := context.Background()
	b, fm, _ := newTestBinder(t, "u1", mem("a", "2024-03-05", 1))
	gate, started := make(chan struct{}), make(chan struct{})
	fm.monthGate, fm.monthStarted = gate, started

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.Month(ctx, "2024-03")
	}()
	<-started

	// lands while the month fetch still holds the pre-write snapshot
	_, err := b.AddMemories(ctx, "2024-03-05", []model.SourceAsset{{URI: "p"}})
	require.NoError(t, err)
	close(gate)
	<-done

	month, err := b.Month(ctx, "2024-03")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "new-p"}, ids(month["2024-03-05"]))
	require.Equal(t, 2, fm.count("month"))
}

func TestBinder_ReadAfterWriteSkipsStaleFlight(t *testing.T) {
	ctx := context.Background()
	b, fm, _ := newTestBinder(t, "u1", mem("a", "2024-03-05", 1))
	gate, started := make(chan struct{}), make(chan struct{})
	fm.monthGate, fm.monthStarted = gate, started

	first := make(chan []string, 1)
	go func() {
		m, _ := b.Month(ctx, "2024-03")
		first <- ids(m["2024-03-05"])
	}()
	<-started

	_, err := b.AddMemories(ctx, "2024-03-05", []model.SourceAsset{{URI: "p"}})
	require.NoError(t, err)

	// issued after the write returned, while the old fetch is still stalled
	second := make(chan []string, 1)
	go func() {
		m, _ := b.Month(ctx, "2024-03")
		second <- ids(m["2024-03-05"])
	}()
	var got []string
	select {
	case got = <-second:
	case <-time.After(2 * time.Second):
		close(gate)
		t.Fatalf("read after write joined the stalled fetch")
	}
	close(gate)

	require.Equal(t, []string{"a", "new-p"}, got)
	require.Equal(t, []string{"a"}, <-first)
	require.Equal(t, 2, fm.count("month"))

	cached, err := b.Month(ctx, "2024-03")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "new-p"}, ids(cached["2024-03-05"]))
	require.Equal(t, 2, fm.count("month"))
}

func TestBinder_SetUserClears(t *testing.T) {
	ctx := context.Background()
	b, fm, _ := newTestBinder(t, "u1", mem("a", "2024-03-05", 1))
	_, _ = b.Month(ctx, "2024-03")
	b.SetUser("u2")
	m, err := b.Month(ctx, "2024-03")
	require.NoError(t, err)
	require.Empty(t, m)
	require.Equal(t, 2, fm.count("month"))
}

func ids(ms []model.Memory) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func tripIDs(ts []model.Trip) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}
