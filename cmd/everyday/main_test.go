package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/4tyam/everyday/internal/cache"
	"github.com/4tyam/everyday/internal/daykey"
	"github.com/4tyam/everyday/internal/model"
)

func withTmpEnv(t *testing.T, tokenKey string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("EVERYDAY_TOKEN_KEY", tokenKey)
	t.Setenv("EVERYDAY_TOKEN", "")
	t.Setenv("EVERYDAY_REMOTE_DSN", "")
	t.Setenv("EVERYDAY_SKIP_SYNC", "false")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, err := newRootCmd()
	if err != nil {
		t.Fatalf("newRootCmd: %v", err)
	}
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, dst any, args ...string) {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	if dst == nil {
		return
	}
	if err := json.Unmarshal([]byte(out), dst); err != nil {
		t.Fatalf("%s: decode %q: %v", strings.Join(args, " "), out, err)
	}
}

func writeImage(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 6, 4))
	for x := 0; x < 6; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.NRGBA{B: 0xff, A: 0xff})
		}
	}
	p := filepath.Join(t.TempDir(), "beach.png")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return p
}

func Test_printJSON_WritesPretty(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, map[string]int{"a": 1}); err != nil {
		t.Fatalf("printJSON: %v", err)
	}
	if got := buf.String(); got != "{\n  \"a\": 1\n}\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func Test_version(t *testing.T) {
	withTmpEnv(t, "")
	out, err := run(t, "version")
	if err != nil || !strings.HasPrefix(out, "everyday dev") {
		t.Fatalf("version: out=%q err=%v", out, err)
	}
}

func Test_signedOut_EmptyResults(t *testing.T) {
	withTmpEnv(t, "k")

	var day []model.Memory
	mustRun(t, &day, "memories", "day", "2024-03-05")
	if len(day) != 0 {
		t.Fatalf("want no memories signed out, got %d", len(day))
	}

	var st syncStatus
	mustRun(t, &st, "sync", "status")
	if len(st.Queue) != 0 || st.Remote != nil {
		t.Fatalf("want empty status, got %+v", st)
	}

	if _, err := run(t, "sync", "drain"); err == nil {
		t.Fatalf("drain must require a session")
	}
}

func Test_token_RequiresKey(t *testing.T) {
	withTmpEnv(t, "")
	if _, err := run(t, "token", "issue", "u1"); err == nil {
		t.Fatalf("want error without token key")
	}
}

func Test_invalidToken_IsSignedOut(t *testing.T) {
	withTmpEnv(t, "k")
	var day []model.Memory
	mustRun(t, &day, "--token", "not-a-jwt", "memories", "day", "2024-03-05")
	if len(day) != 0 {
		t.Fatalf("invalid token must read as signed out, got %d", len(day))
	}
}

func Test_memories_EndToEnd(t *testing.T) {
	withTmpEnv(t, "test-key")

	var tok struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	mustRun(t, &tok, "token", "issue", "u1", "--save")
	if tok.AccessToken == "" || !tok.ExpiresAt.After(time.Now()) {
		t.Fatalf("bad token %+v", tok)
	}

	src := writeImage(t)
	var added []model.Memory
	mustRun(t, &added, "memories", "add", "--day", "2024-03-05", src)
	if len(added) != 1 {
		t.Fatalf("want 1 added, got %d", len(added))
	}
	m := added[0]
	if m.UserID != "u1" || m.DayKey != "2024-03-05" || m.SyncStatus != model.SyncPending {
		t.Fatalf("unexpected memory %+v", m)
	}
	if m.ImageWidth == nil || *m.ImageWidth != 6 || m.ImageHeight == nil || *m.ImageHeight != 4 {
		t.Fatalf("dimensions not probed: %+v", m)
	}
	if m.DominantColor == nil || *m.DominantColor != "#0000ff" {
		t.Fatalf("dominant color = %v", m.DominantColor)
	}
	if m.URI == src {
		t.Fatalf("image must be copied into the data dir")
	}
	if _, err := os.Stat(m.URI); err != nil {
		t.Fatalf("persisted copy missing: %v", err)
	}

	var day []model.Memory
	mustRun(t, &day, "memories", "day", "2024-03-05")
	if len(day) != 1 || day[0].ID != m.ID {
		t.Fatalf("day listing = %+v", day)
	}

	var cal calendarView
	mustRun(t, &cal, "memories", "month", "2024-03")
	if cal.Total < 1 || cal.Dots["2024-03-05"] != 1 {
		t.Fatalf("calendar = %+v", cal)
	}

	var rng model.DayMemories
	mustRun(t, &rng, "memories", "range", "2024-03-01", "2024-03-31")
	if len(rng["2024-03-05"]) != 1 {
		t.Fatalf("range = %+v", rng)
	}

	var st syncStatus
	mustRun(t, &st, "sync", "status")
	if st.Queue[model.QueuePending] != 1 {
		t.Fatalf("queue = %+v", st.Queue)
	}

	if _, err := run(t, "sync", "drain"); err == nil {
		t.Fatalf("drain must require a remote")
	}

	mustRun(t, nil, "memories", "rm", "2024-03-05", m.ID)
	mustRun(t, &day, "memories", "day", "2024-03-05")
	if len(day) != 0 {
		t.Fatalf("memory not removed: %+v", day)
	}
	if _, err := os.Stat(m.URI); !os.IsNotExist(err) {
		t.Fatalf("persisted copy must be removed, stat err=%v", err)
	}
}

func Test_memories_SkipSync(t *testing.T) {
	withTmpEnv(t, "test-key")
	mustRun(t, nil, "token", "issue", "u1", "--save")

	var added []model.Memory
	mustRun(t, &added, "--skip-sync", "memories", "add", "--day", "2024-03-05", writeImage(t))
	if len(added) != 1 || added[0].SyncStatus != model.SyncLocalOnly {
		t.Fatalf("want local_only, got %+v", added)
	}
	var st syncStatus
	mustRun(t, &st, "sync", "status")
	if st.Queue[model.QueuePending] != 0 {
		t.Fatalf("local only memories must not be queued: %+v", st.Queue)
	}
}

func Test_trips_EndToEnd(t *testing.T) {
	withTmpEnv(t, "test-key")
	mustRun(t, nil, "token", "issue", "u1", "--save")

	today := daykey.Today(time.Now())
	end, err := daykey.AddDays(today, 3)
	if err != nil {
		t.Fatalf("AddDays: %v", err)
	}

	var trip model.Trip
	mustRun(t, &trip, "trips", "create", "  Lisbon  ", today, end)
	if trip.Name != "Lisbon" || trip.StartDayKey != today || trip.EndDayKey != end {
		t.Fatalf("trip = %+v", trip)
	}

	if _, err := run(t, "trips", "create", "Past", "2000-01-01", "2000-01-02"); err == nil {
		t.Fatalf("want error for a trip in the past")
	}

	mustRun(t, nil, "memories", "add", "--day", today, writeImage(t), writeImage(t))

	var renamed model.Trip
	mustRun(t, &renamed, "trips", "rename", trip.ID, "Porto")
	if renamed.Name != "Porto" {
		t.Fatalf("rename = %+v", renamed)
	}

	var ov cache.Overview
	mustRun(t, &ov, "trips", "list")
	if len(ov.Trips) != 1 || ov.Counts[trip.ID] != 2 || len(ov.Previews[trip.ID]) != 2 {
		t.Fatalf("overview = %+v", ov)
	}
	if len(ov.Groups.Ongoing) != 1 {
		t.Fatalf("trip starting today must be ongoing: %+v", ov.Groups)
	}

	var counts map[string]int
	mustRun(t, &counts, "trips", "counts")
	if counts[trip.ID] != 2 {
		t.Fatalf("counts = %+v", counts)
	}

	var days model.DayMemories
	mustRun(t, &days, "trips", "memories", today, end)
	if len(days[today]) != 2 {
		t.Fatalf("trip memories = %+v", days)
	}

	var moved model.Trip
	mustRun(t, &moved, "trips", "dates", trip.ID, end, end)
	counts = nil
	mustRun(t, &counts, "trips", "counts")
	if counts[trip.ID] != 0 {
		t.Fatalf("moved trip must not cover today's memories: %+v", counts)
	}

	if _, err := run(t, "trips", "rename", "missing", "X"); err == nil {
		t.Fatalf("want not found")
	}
}
