package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jbctechsolutions/docsync/internal/domain/document"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/testutil"
)

func viewIDs(views []document.FileView) []string {
	ids := make([]string, len(views))
	for i, v := range views {
		ids[i] = v.File.ID
	}
	return ids
}

func TestProject_Ordering(t *testing.T) {
	files := []document.RemoteFile{
		testutil.NewRemoteFile("unwatched-new", "u1", baseTime.Add(5*time.Hour)),
		testutil.NewRemoteFile("synced-new", "s1", baseTime.Add(4*time.Hour)),
		testutil.NewRemoteFile("pending-old", "p1", baseTime.Add(1*time.Hour)),
		testutil.NewRemoteFile("pending-new", "p2", baseTime.Add(3*time.Hour)),
		testutil.NewRemoteFile("unwatched-old", "u2", baseTime),
	}
	watched := map[string]struct{}{"synced-new": {}, "pending-old": {}, "pending-new": {}}
	history := map[string]time.Time{"synced-new": baseTime.Add(4 * time.Hour)}

	views := Project(files, watched, history, nil)

	want := []string{"pending-new", "pending-old", "synced-new", "unwatched-new", "unwatched-old"}
	if diff := cmp.Diff(want, viewIDs(views)); diff != "" {
		t.Errorf("Project() order mismatch (-want +got):\n%s", diff)
	}

	wantStatus := []document.Status{
		document.StatusPending, document.StatusPending, document.StatusSynced,
		document.StatusIgnored, document.StatusIgnored,
	}
	for i, v := range views {
		if v.Status != wantStatus[i] {
			t.Errorf("views[%d].Status = %v, want %v", i, v.Status, wantStatus[i])
		}
	}
}

func TestProject_TieBreakByID(t *testing.T) {
	files := []document.RemoteFile{
		testutil.NewRemoteFile("b", "b", baseTime),
		testutil.NewRemoteFile("a", "a", baseTime),
	}
	views := Project(files, nil, nil, nil)
	if diff := cmp.Diff([]string{"a", "b"}, viewIDs(views)); diff != "" {
		t.Errorf("tie order mismatch (-want +got):\n%s", diff)
	}
}

func TestProject_OverlayKeepsPosition(t *testing.T) {
	files := []document.RemoteFile{
		testutil.NewRemoteFile("old", "old", baseTime),
		testutil.NewRemoteFile("new", "new", baseTime.Add(time.Hour)),
	}
	watched := map[string]struct{}{"old": {}, "new": {}}
	markers := map[string]document.Status{"old": document.StatusSyncing}

	views := Project(files, watched, nil, markers)

	if diff := cmp.Diff([]string{"new", "old"}, viewIDs(views)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if views[1].Status != document.StatusSyncing {
		t.Errorf("overlay status = %v, want syncing", views[1].Status)
	}
}

func TestProjector_TwoProfilesSameSnapshot(t *testing.T) {
	h := newHarness(t, "A", "B")
	ctx := context.Background()
	file := testutil.NewRemoteFile("shared", "Shared.docx", baseTime)

	h.store.SetWatched(ctx, "A", "shared", true)
	h.store.SetWatched(ctx, "B", "shared", true)
	h.store.RecordSync(ctx, "A", "shared", baseTime.Add(time.Minute))

	projector := NewProjector(h.store, h.overlay)
	snapshot := []document.RemoteFile{file}

	viewsA, err := projector.Project(ctx, snapshot, "A")
	if err != nil {
		t.Fatalf("Project(A) error = %v", err)
	}
	viewsB, err := projector.Project(ctx, snapshot, "B")
	if err != nil {
		t.Fatalf("Project(B) error = %v", err)
	}

	if viewsA[0].Status != document.StatusSynced {
		t.Errorf("A status = %v, want synced", viewsA[0].Status)
	}
	if viewsB[0].Status != document.StatusPending {
		t.Errorf("B status = %v, want pending", viewsB[0].Status)
	}
}

func TestPendingFiles(t *testing.T) {
	files := []document.RemoteFile{
		testutil.NewRemoteFile("stale", "stale", baseTime),
		testutil.NewRemoteFile("fresh", "fresh", baseTime),
		testutil.NewRemoteFile("new", "new", baseTime),
		testutil.NewRemoteFile("ignored", "ignored", baseTime),
	}
	watched := map[string]struct{}{"stale": {}, "fresh": {}, "new": {}}
	history := map[string]time.Time{
		"stale": baseTime.Add(-120 * time.Second),
		"fresh": baseTime.Add(-30 * time.Second),
	}

	got := PendingFiles(files, watched, history)
	ids := make([]string, len(got))
	for i, f := range got {
		ids[i] = f.ID
	}
	if diff := cmp.Diff([]string{"stale", "new"}, ids); diff != "" {
		t.Errorf("PendingFiles() mismatch (-want +got):\n%s", diff)
	}
}
