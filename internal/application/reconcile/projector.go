package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	"github.com/jbctechsolutions/docsync/internal/domain/document"
)

// Projector builds the per-profile view of a remote snapshot.
type Projector struct {
	store   ports.StateStore
	overlay *Overlay
}

// NewProjector creates a projector reading from store. overlay may be nil.
func NewProjector(store ports.StateStore, overlay *Overlay) *Projector {
	return &Projector{store: store, overlay: overlay}
}

// Project reads the profile's watch set and history once and returns the sorted views.
func (p *Projector) Project(ctx context.Context, files []document.RemoteFile, profileID string) ([]document.FileView, error) {
	watched, err := p.store.Watched(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read watch set: %w", err)
	}
	history, err := p.store.History(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var markers map[string]document.Status
	if p.overlay != nil {
		markers = p.overlay.Markers(profileID)
	}
	return Project(files, watched, history, markers), nil
}

// Project derives a view per file and orders them: watched first, then pending
// among watched, then most recently modified first. Ordering uses the derived
// status so a row does not move while its push is in flight. Markers override
// the displayed status only.
func Project(files []document.RemoteFile, watched map[string]struct{}, history map[string]time.Time, markers map[string]document.Status) []document.FileView {
	views := make([]document.FileView, len(files))
	derived := make([]document.Status, len(files))

	for i, f := range files {
		_, isWatched := watched[f.ID]
		var last *time.Time
		if at, ok := history[f.ID]; ok {
			last = &at
		}
		derived[i] = document.ComputeStatus(isWatched, last, f.ModifiedAt)

		status := derived[i]
		if m, ok := markers[f.ID]; ok {
			status = m
		}
		views[i] = document.FileView{File: f, Status: status, LastSynced: last, Watched: isWatched}
	}

	idx := make([]int, len(files))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := views[idx[a]], views[idx[b]]
		if va.Watched != vb.Watched {
			return va.Watched
		}
		if va.Watched {
			pa, pb := derived[idx[a]] == document.StatusPending, derived[idx[b]] == document.StatusPending
			if pa != pb {
				return pa
			}
		}
		if !va.File.ModifiedAt.Equal(vb.File.ModifiedAt) {
			return va.File.ModifiedAt.After(vb.File.ModifiedAt)
		}
		return va.File.ID < vb.File.ID
	})

	out := make([]document.FileView, len(idx))
	for i, j := range idx {
		out[i] = views[j]
	}
	return out
}

// PendingFiles returns the watched files whose derived status is pending, in
// snapshot order.
func PendingFiles(files []document.RemoteFile, watched map[string]struct{}, history map[string]time.Time) []document.RemoteFile {
	var pending []document.RemoteFile
	for _, f := range files {
		if _, ok := watched[f.ID]; !ok {
			continue
		}
		var last *time.Time
		if at, ok := history[f.ID]; ok {
			last = &at
		}
		if document.ComputeStatus(true, last, f.ModifiedAt) == document.StatusPending {
			pending = append(pending, f)
		}
	}
	return pending
}
