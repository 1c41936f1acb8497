package reconcile

import (
	"testing"
	"time"

	"github.com/jbctechsolutions/docsync/internal/adapters/store/sqlite"
	"github.com/jbctechsolutions/docsync/internal/domain/profile"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/testutil"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store      *sqlite.Store
	lister     *testutil.FakeLister
	fetcher    *testutil.FakeFetcher
	dest       *testutil.FakeDestination
	controller *Controller
	overlay    *Overlay
	book       *ProfileBook
	deps       Deps
}

// newHarness wires the engine against in-memory SQLite and fakes. The first
// profile is active and the controller starts connected.
func newHarness(t *testing.T, profileIDs ...string) *harness {
	t.Helper()
	if len(profileIDs) == 0 {
		profileIDs = []string{"A"}
	}

	store, err := sqlite.NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	set := make(profile.Set, 0, len(profileIDs))
	for _, id := range profileIDs {
		set = append(set, testutil.NewProfile(id))
	}

	h := &harness{
		store:      store,
		lister:     &testutil.FakeLister{},
		fetcher:    &testutil.FakeFetcher{Default: "document body"},
		dest:       &testutil.FakeDestination{},
		controller: NewController(),
		overlay:    NewOverlay(profileIDs[0]),
		book:       NewProfileBook(set, profileIDs[0]),
	}
	h.controller.Connect()

	logger := logging.Discard()
	pusher := NewPusher(h.fetcher, h.dest, store,
		WithClock(func() time.Time { return baseTime }),
		WithPushLogger(logger),
	)
	h.deps = Deps{
		Controller: h.controller,
		Overlay:    h.overlay,
		Pusher:     pusher,
		Store:      store,
		Lister:     h.lister,
		Profiles:   h.book,
		Logger:     logger,
	}
	return h
}
