// Package ports defines the application layer port interfaces following hexagonal architecture.
// Ports are abstractions that allow the application core to interact with external systems
// (adapters) without knowing their implementation details.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Watch & History Storage Port
// -----------------------------------------------------------------------------

// StateStore persists per-profile watch sets and sync history.
//
// Every method is scoped to one profile id and must never read or mutate
// another profile's entries. All methods accept a context.Context for
// cancellation and timeout support.
type StateStore interface {
	// ToggleWatch flips the membership of fileID in the profile's watch set and
	// returns the new membership. It never touches history.
	ToggleWatch(ctx context.Context, profileID, fileID string) (bool, error)

	// SetWatched sets membership explicitly.
	SetWatched(ctx context.Context, profileID, fileID string, watched bool) error

	// IsWatched reports whether fileID is in the profile's watch set.
	IsWatched(ctx context.Context, profileID, fileID string) (bool, error)

	// Watched returns the profile's watch set.
	Watched(ctx context.Context, profileID string) (map[string]struct{}, error)

	// RecordSync inserts or overwrites the last successful push time of fileID.
	// It must be atomic with respect to concurrent calls for other files of the
	// same profile.
	RecordSync(ctx context.Context, profileID, fileID string, at time.Time) error

	// History returns the profile's file id to last push time map.
	History(ctx context.Context, profileID string) (map[string]time.Time, error)

	// PruneHistory deletes history entries whose file id is not in keep and
	// returns the number of entries removed.
	PruneHistory(ctx context.Context, profileID string, keep map[string]struct{}) (int, error)

	// Close releases the underlying resources.
	Close() error
}

// -----------------------------------------------------------------------------
// Legacy State Port
// -----------------------------------------------------------------------------

// StateImporter merges externally supplied state into the store without
// removing anything already present. Used by the schema migrator.
type StateImporter interface {
	// MergeWatched adds every file id to the profile's watch set.
	MergeWatched(ctx context.Context, profileID string, fileIDs []string) (int, error)

	// MergeHistory keeps, per file, the later of the stored and supplied time.
	MergeHistory(ctx context.Context, profileID string, history map[string]time.Time) (int, error)

	// Marker reads a migration bookkeeping value.
	Marker(ctx context.Context, key string) (string, bool, error)

	// SetMarker writes a migration bookkeeping value.
	SetMarker(ctx context.Context, key, value string) error
}

// -----------------------------------------------------------------------------
// Reconcile Lease Port
// -----------------------------------------------------------------------------

// LeaseStore grants named, expiring leases shared by every process that opens
// the same state. The reconcile exclusion holds one so that a CLI push and a
// daemon tick never run at the same time.
type LeaseStore interface {
	// AcquireLease takes or renews name for holder until ttl elapses. When a
	// different holder's lease is still live it returns that holder and false.
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (current string, acquired bool, err error)

	// ReleaseLease drops name if holder still owns it.
	ReleaseLease(ctx context.Context, name, holder string) error
}
