package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	"github.com/jbctechsolutions/docsync/internal/domain/document"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/testutil"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduler_TickSkippedWhileBusy(t *testing.T) {
	h := newHarness(t)
	h.store.SetWatched(context.Background(), "A", "f1", true)
	h.lister.Files = []document.RemoteFile{testutil.NewRemoteFile("f1", "a", baseTime)}
	s := NewScheduler(h.deps, SchedulerConfig{Enabled: true})

	release, err := h.controller.TryBegin(context.Background(), "tick:previous")
	if err != nil {
		t.Fatalf("TryBegin() error = %v", err)
	}
	report := s.RunTick(context.Background())
	release()

	if !report.Skipped || !strings.Contains(report.SkipReason, "in progress") {
		t.Errorf("report = %+v, want skipped as busy", report)
	}
	if h.lister.Calls() != 0 {
		t.Errorf("skipped tick listed %d times", h.lister.Calls())
	}
	if len(h.dest.Pushed()) != 0 {
		t.Error("skipped tick pushed files")
	}
}

func TestScheduler_TickSkippedWhenNothingWatched(t *testing.T) {
	h := newHarness(t, "A", "B")
	report := NewScheduler(h.deps, SchedulerConfig{}).RunTick(context.Background())

	if !report.Skipped || h.lister.Calls() != 0 {
		t.Errorf("report = %+v, list calls = %d", report, h.lister.Calls())
	}
}

func TestScheduler_OneSnapshotForAllProfiles(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	ctx := context.Background()
	h.lister.Files = []document.RemoteFile{
		testutil.NewRemoteFile("f1", "one", baseTime),
		testutil.NewRemoteFile("f2", "two", baseTime),
	}
	h.store.SetWatched(ctx, "A", "f1", true)
	h.store.SetWatched(ctx, "B", "f1", true)
	h.store.SetWatched(ctx, "B", "f2", true)
	h.store.RecordSync(ctx, "B", "f2", baseTime)

	report := NewScheduler(h.deps, SchedulerConfig{SnapshotSize: 100}).RunTick(ctx)

	if report.Skipped || report.Aborted || report.Err != nil {
		t.Fatalf("report = %+v", report)
	}
	if h.lister.Calls() != 1 {
		t.Errorf("list calls = %d, want 1", h.lister.Calls())
	}
	if h.lister.Queries[0].PageSize != ports.SnapshotPageSize {
		t.Errorf("snapshot page size = %d, want %d", h.lister.Queries[0].PageSize, ports.SnapshotPageSize)
	}
	if report.Pushed() != 2 {
		t.Errorf("pushed = %d, want 2 (A:f1, B:f1)", report.Pushed())
	}
	if len(report.Profiles) != 2 {
		t.Errorf("profile reports = %d, want 2 (C has no watches)", len(report.Profiles))
	}

	var targets []string
	for _, p := range h.dest.Pushed() {
		targets = append(targets, p.ProfileID+":"+p.Name)
	}
	if strings.Join(targets, ",") != "A:one,B:one" {
		t.Errorf("push order = %v", targets)
	}
}

func TestScheduler_AuthExpiredAbortsTick(t *testing.T) {
	h := newHarness(t, "P1", "P2", "P3")
	ctx := context.Background()
	h.lister.Files = []document.RemoteFile{
		testutil.NewRemoteFile("f1", "one", baseTime),
		testutil.NewRemoteFile("f2", "two", baseTime),
	}
	for _, p := range []string{"P1", "P2", "P3"} {
		h.store.SetWatched(ctx, p, "f1", true)
		h.store.SetWatched(ctx, p, "f2", true)
	}
	h.dest.ErrFor = func(profileID, name string) error {
		if profileID == "P2" && name == "one" {
			return domainErrors.AuthExpired("session expired", nil)
		}
		return nil
	}
	s := NewScheduler(h.deps, SchedulerConfig{})

	report := s.RunTick(ctx)

	if !report.Aborted || !domainErrors.IsAuthExpired(report.Err) {
		t.Fatalf("report = %+v, want aborted with AuthExpired", report)
	}
	if h.controller.State() != StateDisconnected {
		t.Errorf("controller = %v, want disconnected", h.controller.State())
	}

	p1, _ := h.store.History(ctx, "P1")
	if len(p1) != 2 {
		t.Errorf("P1 history = %v, want both files kept", p1)
	}
	p2, _ := h.store.History(ctx, "P2")
	if len(p2) != 0 {
		t.Errorf("P2 history = %v, want empty", p2)
	}
	p3, _ := h.store.History(ctx, "P3")
	if len(p3) != 0 {
		t.Errorf("P3 history = %v, want untouched", p3)
	}
	for _, p := range h.dest.Pushed() {
		if p.ProfileID == "P3" {
			t.Error("P3 was processed after the abort")
		}
	}

	if next := s.RunTick(ctx); !next.Skipped {
		t.Error("tick after auth failure should be skipped while disconnected")
	}
}

func TestScheduler_SnapshotAuthFailure(t *testing.T) {
	h := newHarness(t)
	h.store.SetWatched(context.Background(), "A", "f1", true)
	h.lister.Err = domainErrors.AuthExpired("401", nil)

	report := NewScheduler(h.deps, SchedulerConfig{}).RunTick(context.Background())

	if !report.Aborted || h.controller.IsConnected() {
		t.Errorf("report = %+v, connected = %v", report, h.controller.IsConnected())
	}
}

func TestScheduler_SkipsProfileWithoutCredentials(t *testing.T) {
	h := newHarness(t, "A", "B")
	ctx := context.Background()
	set := h.book.Profiles()
	set[0].APIKey = ""
	h.book.Replace(set, "A")
	h.lister.Files = []document.RemoteFile{testutil.NewRemoteFile("f1", "one", baseTime)}
	h.store.SetWatched(ctx, "A", "f1", true)
	h.store.SetWatched(ctx, "B", "f1", true)

	report := NewScheduler(h.deps, SchedulerConfig{}).RunTick(ctx)

	if report.Profiles[0].SkipReason == "" || report.Profiles[1].Pushed != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestScheduler_LoopLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.lister.Files = []document.RemoteFile{testutil.NewRemoteFile("f1", "one", baseTime)}
	h.store.SetWatched(ctx, "A", "f1", true)

	s := NewScheduler(h.deps, SchedulerConfig{Enabled: true, Interval: 20 * time.Millisecond})
	ticks := make(chan TickReport, 64)
	s.OnTick(func(r TickReport) {
		select {
		case ticks <- r:
		default:
		}
	})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()
	if err := s.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	select {
	case <-ticks:
	case <-time.After(3 * time.Second):
		t.Fatal("no tick observed")
	}
	waitFor(t, "first push", func() bool { return len(h.dest.Pushed()) == 1 })

	s.Reconfigure(SchedulerConfig{Enabled: false, Interval: 20 * time.Millisecond})
	if s.Armed() {
		t.Error("disabled scheduler is still armed")
	}

	s.Reconfigure(SchedulerConfig{Enabled: true, Interval: 20 * time.Millisecond})
	if !s.Armed() {
		t.Error("re-enabled scheduler is not armed")
	}

	h.controller.Disconnect()
	if s.Armed() {
		t.Error("scheduler stayed armed after disconnect")
	}
	h.controller.Connect()
	if !s.Armed() {
		t.Error("scheduler did not re-arm after reconnect")
	}

	s.Stop()
	if s.Armed() {
		t.Error("scheduler armed after Stop()")
	}
	if _, ok := s.LastTick(); !ok {
		t.Error("LastTick() missing")
	}
}

func TestScheduler_OverlappingTickDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.lister.Files = []document.RemoteFile{testutil.NewRemoteFile("f1", "one", baseTime)}
	h.store.SetWatched(ctx, "A", "f1", true)
	h.fetcher.Block = make(chan struct{})

	s := NewScheduler(h.deps, SchedulerConfig{Enabled: true, Interval: 10 * time.Millisecond})
	skipped := make(chan TickReport, 64)
	s.OnTick(func(r TickReport) {
		if r.Skipped {
			select {
			case skipped <- r:
			default:
			}
		}
	})
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case r := <-skipped:
		if !strings.Contains(r.SkipReason, domainErrors.ErrBusy.Error()) {
			t.Errorf("skip reason = %q", r.SkipReason)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("overlapping tick was not dropped")
	}

	close(h.fetcher.Block)
	s.Stop()

	if n := len(h.dest.Pushed()); n != 1 {
		t.Errorf("pushes = %d, want 1", n)
	}
}

func TestScheduler_StopCancelsContext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.lister.Files = []document.RemoteFile{testutil.NewRemoteFile("f1", "one", baseTime)}
	h.store.SetWatched(ctx, "A", "f1", true)
	h.fetcher.Block = make(chan struct{})

	s := NewScheduler(h.deps, SchedulerConfig{Enabled: true, Interval: 10 * time.Millisecond})
	done := make(chan TickReport, 64)
	s.OnTick(func(r TickReport) {
		if !r.Skipped {
			done <- r
		}
	})
	s.Start(ctx)
	waitFor(t, "tick in flight", func() bool { return h.controller.State() == StateReconciling })

	s.Stop()

	r := <-done
	if r.Pushed() != 0 || r.Failed() != 1 {
		t.Errorf("report = %+v, want the blocked push to fail", r)
	}
	if !errors.Is(r.Profiles[0].Results[0].Err, context.Canceled) {
		t.Errorf("push error = %v, want context.Canceled", r.Profiles[0].Results[0].Err)
	}
}
