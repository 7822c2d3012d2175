package presence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kiosk/internal/services"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func openTestStore(t *testing.T, clock *fakeClock) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "presence.json")
	store, err := Open(path, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestToggleParity(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)}
	store := openTestStore(t, clock)
	ctx := context.Background()

	for n := 1; n <= 5; n++ {
		result, err := store.Toggle(ctx, "2210177")
		if err != nil {
			t.Fatalf("toggle %d: %v", n, err)
		}
		wantPresent := n%2 == 1
		if result.IsEnteringNow != wantPresent {
			t.Fatalf("toggle %d: IsEnteringNow=%v, want %v", n, result.IsEnteringNow, wantPresent)
		}
		if result.WasPresentBefore == result.IsEnteringNow {
			t.Fatalf("toggle %d: WasPresentBefore must be the inverse of IsEnteringNow", n)
		}
		if got := store.Snapshot().IsPresent("2210177"); got != wantPresent {
			t.Fatalf("toggle %d: present=%v, want %v", n, got, wantPresent)
		}
	}

	state := store.Snapshot()
	if state.TotalEnters != 3 {
		t.Fatalf("expected 3 enters after 5 toggles, got %d", state.TotalEnters)
	}
	if state.DailyEnters["2024-05-01"] != 3 {
		t.Fatalf("expected daily count 3, got %d", state.DailyEnters["2024-05-01"])
	}
}

func TestToggleScenarioEnterThenExit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)}
	store := openTestStore(t, clock)
	ctx := context.Background()

	first, err := store.Toggle(ctx, "2210177")
	if err != nil {
		t.Fatal(err)
	}
	if first.Action() != ActionEnter || first.TotalEnters != 1 || first.DailyEnters != 1 {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := store.Toggle(ctx, "2210177")
	if err != nil {
		t.Fatal(err)
	}
	if second.Action() != ActionExit || second.TotalEnters != 1 {
		t.Fatalf("unexpected second result %+v", second)
	}
	if len(store.Snapshot().Present) != 0 {
		t.Fatal("expected empty present set")
	}
}

func TestDailyCounterRollsOver(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 23, 59, 0, 0, time.Local)}
	store := openTestStore(t, clock)
	ctx := context.Background()

	if _, err := store.Toggle(ctx, "aaaaaaa"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Toggle(ctx, "bbbbbbb"); err != nil {
		t.Fatal(err)
	}
	clock.now = clock.now.Add(2 * time.Minute)
	result, err := store.Toggle(ctx, "ccccccc")
	if err != nil {
		t.Fatal(err)
	}
	if result.Day != "2024-05-02" || result.DailyEnters != 1 {
		t.Fatalf("expected first enter of the new day, got %+v", result)
	}
	// Exits do not touch the daily counter.
	if _, err := store.Toggle(ctx, "aaaaaaa"); err != nil {
		t.Fatal(err)
	}

	state := store.Snapshot()
	if state.DailyEnters["2024-05-01"] != 2 || state.DailyEnters["2024-05-02"] != 1 {
		t.Fatalf("unexpected daily counters %v", state.DailyEnters)
	}
	if state.TotalEnters != 3 {
		t.Fatalf("expected total 3, got %d", state.TotalEnters)
	}
}

func TestPersistenceFailureLeavesStateUnchanged(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)}
	store := openTestStore(t, clock)
	ctx := context.Background()

	if _, err := store.Toggle(ctx, "2210177"); err != nil {
		t.Fatal(err)
	}
	before := store.Snapshot()

	store.write = func(string, []byte, os.FileMode) error { return errors.New("disk full") }
	_, err := store.Toggle(ctx, "7654321")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient marker, got %v", err)
	}

	after := store.Snapshot()
	if after.IsPresent("7654321") || after.TotalEnters != before.TotalEnters || len(after.Present) != len(before.Present) {
		t.Fatalf("state changed after failed write: before=%+v after=%+v", before, after)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presence.json")
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)}
	store, err := Open(path, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Toggle(context.Background(), "0123456789abcdef"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	state := reopened.Snapshot()
	if !state.IsPresent("0123456789abcdef") || state.TotalEnters != 1 {
		t.Fatalf("unexpected reopened state %+v", state)
	}
}

func TestOpenRejectsSecondOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presence.json")
	first, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	if _, err := Open(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestOpenReadsLegacyLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entrants.json")
	legacy := map[string]any{
		"entrants":   []string{"2210177", "0123456789abcdef"},
		"all":        42,
		"2024-04-30": 5,
	}
	data, _ := json.Marshal(legacy)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)}
	store, err := Open(path, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	state := store.Snapshot()
	if len(state.Present) != 2 || state.TotalEnters != 42 || state.DailyEnters["2024-04-30"] != 5 {
		t.Fatalf("unexpected legacy state %+v", state)
	}
	if _, err := os.Stat(path + ".legacy"); err != nil {
		t.Fatalf("expected legacy backup: %v", err)
	}

	if _, err := store.Toggle(context.Background(), "7777777"); err != nil {
		t.Fatal(err)
	}
	rewritten, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var persisted State
	if err := json.Unmarshal(rewritten, &persisted); err != nil {
		t.Fatal(err)
	}
	if persisted.Version != stateVersion {
		t.Fatalf("expected version %d, got %d", stateVersion, persisted.Version)
	}
	if persisted.DailyEnters["2024-04-30"] != 5 || persisted.DailyEnters["2024-05-01"] != 1 {
		t.Fatalf("older days must be preserved, got %v", persisted.DailyEnters)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)}
	store := openTestStore(t, clock)
	if _, err := store.Toggle(context.Background(), "2210177"); err != nil {
		t.Fatal(err)
	}

	snap := store.Snapshot()
	snap.Present[0] = "mutated"
	snap.DailyEnters["2024-05-01"] = 99

	again := store.Snapshot()
	if again.Present[0] != "2210177" || again.DailyEnters["2024-05-01"] != 1 {
		t.Fatalf("snapshot mutation leaked into store: %+v", again)
	}
}
