package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_ToggleWatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	watched, err := store.ToggleWatch(ctx, "p1", "f1")
	if err != nil {
		t.Fatalf("ToggleWatch() error = %v", err)
	}
	if !watched {
		t.Error("first ToggleWatch() = false, want true")
	}

	watched, err = store.ToggleWatch(ctx, "p1", "f1")
	if err != nil {
		t.Fatalf("ToggleWatch() error = %v", err)
	}
	if watched {
		t.Error("second ToggleWatch() = true, want false")
	}

	set, err := store.Watched(ctx, "p1")
	if err != nil {
		t.Fatalf("Watched() error = %v", err)
	}
	if len(set) != 0 {
		t.Errorf("double toggle left %d entries, want 0", len(set))
	}
}

func TestStore_ToggleWatchLeavesHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.RecordSync(ctx, "p1", "f1", at); err != nil {
		t.Fatalf("RecordSync() error = %v", err)
	}
	store.ToggleWatch(ctx, "p1", "f1")
	store.ToggleWatch(ctx, "p1", "f1")

	history, err := store.History(ctx, "p1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if !history["f1"].Equal(at) {
		t.Errorf("History()[f1] = %v, want %v", history["f1"], at)
	}
}

func TestStore_ProfileIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	store.SetWatched(ctx, "A", "shared", true)
	store.SetWatched(ctx, "B", "shared", true)
	store.RecordSync(ctx, "A", "shared", now)

	if _, err := store.ToggleWatch(ctx, "A", "shared"); err != nil {
		t.Fatalf("ToggleWatch() error = %v", err)
	}

	watchedB, _ := store.IsWatched(ctx, "B", "shared")
	if !watchedB {
		t.Error("toggling A changed B's watch set")
	}
	historyB, _ := store.History(ctx, "B")
	if len(historyB) != 0 {
		t.Errorf("B history = %v, want empty", historyB)
	}
}

func TestStore_RecordSyncOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	store.RecordSync(ctx, "p", "f", first)
	store.RecordSync(ctx, "p", "f", second)

	history, _ := store.History(ctx, "p")
	if !history["f"].Equal(second) {
		t.Errorf("History()[f] = %v, want %v", history["f"], second)
	}
}

func TestStore_RecordSyncConcurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	const files = 25
	var wg sync.WaitGroup
	for i := 0; i < files; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.RecordSync(ctx, "p", fmt.Sprintf("f%d", i), now); err != nil {
				t.Errorf("RecordSync() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	history, err := store.History(ctx, "p")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != files {
		t.Errorf("History() len = %d, want %d", len(history), files)
	}
}

func TestStore_ValidatesKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.ToggleWatch(ctx, "", "f"); !errors.Is(err, domainErrors.ErrProfileIDRequired) {
		t.Errorf("ToggleWatch(empty profile) error = %v", err)
	}
	if err := store.RecordSync(ctx, "p", "", time.Now()); !errors.Is(err, domainErrors.ErrFileIDRequired) {
		t.Errorf("RecordSync(empty file) error = %v", err)
	}
}

func TestStore_PruneHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	store.RecordSync(ctx, "p", "keep", now)
	store.RecordSync(ctx, "p", "orphan", now)
	store.RecordSync(ctx, "other", "orphan", now)

	removed, err := store.PruneHistory(ctx, "p", map[string]struct{}{"keep": {}})
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("PruneHistory() = %d, want 1", removed)
	}

	history, _ := store.History(ctx, "p")
	if _, ok := history["orphan"]; ok {
		t.Error("orphan entry should be pruned")
	}
	other, _ := store.History(ctx, "other")
	if len(other) != 1 {
		t.Error("prune must not touch other profiles")
	}
}

func TestStore_MergeIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	store.RecordSync(ctx, "p", "f1", newer)

	added, err := store.MergeWatched(ctx, "p", []string{"f1", "f2"})
	if err != nil {
		t.Fatalf("MergeWatched() error = %v", err)
	}
	if added != 2 {
		t.Errorf("MergeWatched() = %d, want 2", added)
	}
	added, _ = store.MergeWatched(ctx, "p", []string{"f1", "f2"})
	if added != 0 {
		t.Errorf("second MergeWatched() = %d, want 0", added)
	}

	changed, err := store.MergeHistory(ctx, "p", map[string]time.Time{"f1": older, "f2": older})
	if err != nil {
		t.Fatalf("MergeHistory() error = %v", err)
	}
	if changed != 1 {
		t.Errorf("MergeHistory() = %d, want 1 (only f2 is new)", changed)
	}

	history, _ := store.History(ctx, "p")
	if !history["f1"].Equal(newer) {
		t.Errorf("merge replaced a later timestamp: %v", history["f1"])
	}
	if !history["f2"].Equal(older) {
		t.Errorf("History()[f2] = %v, want %v", history["f2"], older)
	}
}

func TestStore_Markers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.Marker(ctx, "legacy"); err != nil || ok {
		t.Fatalf("Marker() = %v, %v; want missing", ok, err)
	}
	if err := store.SetMarker(ctx, "legacy", "abc"); err != nil {
		t.Fatalf("SetMarker() error = %v", err)
	}
	store.SetMarker(ctx, "legacy", "def")

	value, ok, err := store.Marker(ctx, "legacy")
	if err != nil || !ok || value != "def" {
		t.Errorf("Marker() = %q, %v, %v; want def", value, ok, err)
	}
}

func TestStore_Leases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	current, ok, err := store.AcquireLease(ctx, "reconcile", "daemon/tick:1", time.Minute)
	if err != nil || !ok || current != "daemon/tick:1" {
		t.Fatalf("AcquireLease() = %q, %v, %v; want acquired", current, ok, err)
	}

	current, ok, err = store.AcquireLease(ctx, "reconcile", "cli/manual:f1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLease() error = %v", err)
	}
	if ok || current != "daemon/tick:1" {
		t.Errorf("contended AcquireLease() = %q, %v; want held by daemon/tick:1", current, ok)
	}

	if _, ok, _ := store.AcquireLease(ctx, "reconcile", "daemon/tick:1", time.Minute); !ok {
		t.Error("holder could not renew its own lease")
	}

	// Only the holder can release.
	store.ReleaseLease(ctx, "reconcile", "cli/manual:f1")
	if _, ok, _ := store.AcquireLease(ctx, "reconcile", "cli/manual:f1", time.Minute); ok {
		t.Error("foreign release dropped the lease")
	}

	if err := store.ReleaseLease(ctx, "reconcile", "daemon/tick:1"); err != nil {
		t.Fatalf("ReleaseLease() error = %v", err)
	}
	if _, ok, _ := store.AcquireLease(ctx, "reconcile", "cli/manual:f1", time.Minute); !ok {
		t.Error("AcquireLease() after release should succeed")
	}
}

func TestStore_LeaseExpires(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, _ := store.AcquireLease(ctx, "reconcile", "crashed", time.Millisecond); !ok {
		t.Fatal("AcquireLease() should succeed on a free lease")
	}
	time.Sleep(5 * time.Millisecond)

	current, ok, err := store.AcquireLease(ctx, "reconcile", "next", time.Minute)
	if err != nil || !ok || current != "next" {
		t.Errorf("AcquireLease() over an expired lease = %q, %v, %v", current, ok, err)
	}
}
