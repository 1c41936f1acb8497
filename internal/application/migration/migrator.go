package migration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	"github.com/jbctechsolutions/docsync/internal/domain/profile"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/logging"
)

// MarkerLegacyImport holds the checksum of the last imported legacy document.
const MarkerLegacyImport = "legacy_import_sha256"

// Result reports what an import did.
type Result struct {
	Skipped  bool   `json:"skipped"`
	Checksum string `json:"checksum,omitempty"`

	// ActiveProfileID is the profile the flat watch list was attributed to.
	ActiveProfileID string `json:"active_profile_id,omitempty"`

	WatchesAdded   int `json:"watches_added"`
	HistoryMerged  int `json:"history_merged"`
	ProfilesMerged int `json:"profiles_merged"`

	// Profiles are the destination profiles found in the legacy config. The caller
	// merges them into the configuration.
	Profiles []profile.Profile `json:"-"`
	Config   *LegacyConfig     `json:"-"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Migrator merges legacy state into a store. Merging only adds: watch sets are
// unioned and history keeps the later timestamp, so repeated imports are no-ops.
type Migrator struct {
	store  ports.StateImporter
	logger *logging.Logger
}

// NewMigrator creates a migrator writing to store.
func NewMigrator(store ports.StateImporter, logger *logging.Logger) *Migrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Migrator{store: store, logger: logger}
}

// ImportFile imports the legacy document at path. A missing file is not an error.
func (m *Migrator) ImportFile(ctx context.Context, path, activeProfileID string) (Result, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Result{Skipped: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to read legacy state: %w", err)
	}
	return m.Import(ctx, data, activeProfileID)
}

// Import merges data into the store. activeProfileID owns the flat pre-profile
// watch list; when empty, the legacy config's active profile is used, then the
// default profile.
func (m *Migrator) Import(ctx context.Context, data []byte, activeProfileID string) (Result, error) {
	sum := sha256.Sum256(data)
	res := Result{Checksum: hex.EncodeToString(sum[:])}

	if prev, ok, err := m.store.Marker(ctx, MarkerLegacyImport); err != nil {
		return res, fmt.Errorf("failed to read import marker: %w", err)
	} else if ok && prev == res.Checksum {
		res.Skipped = true
		return res, nil
	}

	state, warnings := ParseLegacy(data)
	res.Warnings = warnings
	for _, w := range warnings {
		m.logger.WarnContext(ctx, "legacy state", "warning", w)
	}

	res.ActiveProfileID = attributeTo(activeProfileID, state.Config)

	if len(state.FlatWatched) > 0 {
		n, err := m.store.MergeWatched(ctx, res.ActiveProfileID, state.FlatWatched)
		if err != nil {
			return res, fmt.Errorf("failed to merge flat watch list: %w", err)
		}
		res.WatchesAdded += n
	}
	for profileID, ids := range state.Watched {
		n, err := m.store.MergeWatched(ctx, profileID, ids)
		if err != nil {
			return res, fmt.Errorf("failed to merge watches for %s: %w", profileID, err)
		}
		res.WatchesAdded += n
	}
	for profileID, history := range state.History {
		n, err := m.store.MergeHistory(ctx, profileID, history)
		if err != nil {
			return res, fmt.Errorf("failed to merge history for %s: %w", profileID, err)
		}
		res.HistoryMerged += n
	}

	if state.Config != nil {
		res.Config = state.Config
		for _, lp := range state.Config.Profiles {
			if lp.ID == "" {
				continue
			}
			res.Profiles = append(res.Profiles, lp.Profile())
		}
		res.ProfilesMerged = len(res.Profiles)
	}

	if err := m.store.SetMarker(ctx, MarkerLegacyImport, res.Checksum); err != nil {
		return res, fmt.Errorf("failed to record import marker: %w", err)
	}

	m.logger.InfoContext(ctx, "legacy state imported",
		"active_profile", res.ActiveProfileID,
		"watches_added", res.WatchesAdded,
		"history_merged", res.HistoryMerged,
		"profiles", res.ProfilesMerged,
		"warnings", len(res.Warnings),
	)
	return res, nil
}

func attributeTo(active string, cfg *LegacyConfig) string {
	if active != "" {
		return active
	}
	if cfg != nil && cfg.ActiveProfileID != "" {
		return cfg.ActiveProfileID
	}
	return profile.DefaultID
}
