package reconcile

import (
	"sync"

	"github.com/jbctechsolutions/docsync/internal/domain/document"
)

// Overlay holds transient push markers (syncing, error) for the displayed
// profile. Markers for any other profile are ignored, and switching the displayed
// profile drops every marker.
type Overlay struct {
	mu        sync.RWMutex
	displayed string
	markers   map[string]document.Status
}

// NewOverlay creates an overlay displaying profileID.
func NewOverlay(profileID string) *Overlay {
	return &Overlay{displayed: profileID, markers: make(map[string]document.Status)}
}

// Displayed returns the displayed profile id.
func (o *Overlay) Displayed() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.displayed
}

// SetDisplayed switches the displayed profile.
func (o *Overlay) SetDisplayed(profileID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.displayed == profileID {
		return
	}
	o.displayed = profileID
	o.markers = make(map[string]document.Status)
}

// Mark sets a marker when profileID is displayed and status is an overlay status.
// It reports whether the marker was applied.
func (o *Overlay) Mark(profileID, fileID string, status document.Status) bool {
	if !status.IsOverlay() {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if profileID != o.displayed {
		return false
	}
	o.markers[fileID] = status
	return true
}

// Clear removes the marker so the derived status shows again.
func (o *Overlay) Clear(profileID, fileID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if profileID == o.displayed {
		delete(o.markers, fileID)
	}
}

// Get returns the marker for fileID on the displayed profile.
func (o *Overlay) Get(fileID string) (document.Status, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.markers[fileID]
	return s, ok
}

// Markers returns a copy of the markers for profileID, or nil when it is not displayed.
func (o *Overlay) Markers(profileID string) map[string]document.Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if profileID != o.displayed {
		return nil
	}
	out := make(map[string]document.Status, len(o.markers))
	for k, v := range o.markers {
		out[k] = v
	}
	return out
}
