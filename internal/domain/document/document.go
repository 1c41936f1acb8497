// Package document defines the remote file model and the pure status derivation
// used to decide whether a file needs to be pushed to a destination profile.
package document

import (
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
)

// SkewBuffer is the tolerance between the remote modification time and the local
// time a push was recorded at. Without it a push could be flagged stale right away.
const SkewBuffer = 60 * time.Second

// Content kinds listed by the file store.
const (
	KindGoogleDoc = "application/vnd.google-apps.document"
	KindPDF       = "application/pdf"
	KindPlainText = "text/plain"
	KindDOCX      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// SupportedKinds is the set of content kinds that participate in synchronization.
var SupportedKinds = []string{KindGoogleDoc, KindPDF, KindPlainText, KindDOCX}

// Status is the synchronization state of a file for one profile.
type Status string

const (
	StatusIgnored Status = "ignored" // Not watched by the profile
	StatusPending Status = "pending" // Never pushed, or changed since the last push
	StatusSynced  Status = "synced"  // Destination copy is current
	StatusSyncing Status = "syncing" // Push in flight (overlay only)
	StatusError   Status = "error"   // Last push failed (overlay only)
)

// IsOverlay reports whether the status can only come from an in-flight marker.
func (s Status) IsOverlay() bool {
	return s == StatusSyncing || s == StatusError
}

// RemoteFile is one entry of a remote snapshot. It is never persisted.
type RemoteFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentKind string    `json:"content_kind"`
	ModifiedAt  time.Time `json:"modified_at"`
	ViewURL     string    `json:"view_url,omitempty"`
}

// Validate checks the fields the status derivation depends on.
func (f RemoteFile) Validate() error {
	var problems []string
	if strings.TrimSpace(f.ID) == "" {
		problems = append(problems, "id is empty")
	}
	if strings.TrimSpace(f.Name) == "" {
		problems = append(problems, "name is empty")
	}
	if f.ModifiedAt.IsZero() {
		problems = append(problems, "modification time is missing")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domainErrors.ErrInvalidRemoteFile, strings.Join(problems, ", "))
	}
	return nil
}

// IsGoogleDoc reports whether the file must be exported rather than downloaded.
func (f RemoteFile) IsGoogleDoc() bool {
	return strings.Contains(f.ContentKind, "google-apps")
}

// ComputeStatus derives the status of a file for one profile. It has no side effects.
//
// An unwatched file is ignored whatever its timestamps. A watched file with no
// recorded push is pending. Otherwise it is pending only when it was modified more
// than SkewBuffer after the last push.
func ComputeStatus(watched bool, lastSynced *time.Time, modifiedAt time.Time) Status {
	if !watched {
		return StatusIgnored
	}
	if lastSynced == nil {
		return StatusPending
	}
	if modifiedAt.After(lastSynced.Add(SkewBuffer)) {
		return StatusPending
	}
	return StatusSynced
}

// FileView is the derived, per-profile view of a remote file.
type FileView struct {
	File       RemoteFile `json:"file"`
	Status     Status     `json:"status"`
	LastSynced *time.Time `json:"last_synced,omitempty"`
	Watched    bool       `json:"watched"`
}

// Snapshot is one point-in-time listing of remote files.
type Snapshot struct {
	Files   []RemoteFile
	TakenAt time.Time
}

// Find returns the file with the given id.
func (s Snapshot) Find(id string) (RemoteFile, bool) {
	for _, f := range s.Files {
		if f.ID == id {
			return f, true
		}
	}
	return RemoteFile{}, false
}

// IDs returns the set of file ids in the snapshot.
func (s Snapshot) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Files))
	for _, f := range s.Files {
		ids[f.ID] = struct{}{}
	}
	return ids
}
