package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	"github.com/jbctechsolutions/docsync/internal/domain/document"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
	"github.com/jbctechsolutions/docsync/internal/domain/profile"
)

// NewRemoteFile creates a plain-text remote file for testing.
func NewRemoteFile(id, name string, modifiedAt time.Time) document.RemoteFile {
	return document.RemoteFile{
		ID:          id,
		Name:        name,
		ContentKind: document.KindPlainText,
		ModifiedAt:  modifiedAt,
		ViewURL:     "https://drive.example/" + id,
	}
}

// NewProfile creates a profile with credentials for testing.
func NewProfile(id string) profile.Profile {
	return profile.Profile{
		ID:        id,
		Name:      "Profile " + id,
		DatasetID: "ds-" + id,
		BaseURL:   "https://dify.example/v1",
		APIKey:    "key-" + id,
	}
}

// FakeLister is an in-memory ports.RemoteLister.
type FakeLister struct {
	mu      sync.Mutex
	Files   []document.RemoteFile
	Err     error
	Queries []ports.ListQuery
}

// List returns the configured files, honoring PageSize as a cap.
func (l *FakeLister) List(ctx context.Context, q ports.ListQuery) ([]document.RemoteFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Queries = append(l.Queries, q)
	if l.Err != nil {
		return nil, l.Err
	}
	files := append([]document.RemoteFile(nil), l.Files...)
	if q.PageSize > 0 && len(files) > q.PageSize {
		files = files[:q.PageSize]
	}
	return files, nil
}

// Get returns the configured file with id fileID.
func (l *FakeLister) Get(ctx context.Context, fileID string) (document.RemoteFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return document.RemoteFile{}, l.Err
	}
	for _, f := range l.Files {
		if f.ID == fileID {
			return f, nil
		}
	}
	return document.RemoteFile{}, fmt.Errorf("%w: %s", domainErrors.ErrFileNotInSnapshot, fileID)
}

// Calls returns how many times List was called.
func (l *FakeLister) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Queries)
}

// FakeFetcher is an in-memory ports.ContentFetcher keyed by file id.
type FakeFetcher struct {
	mu      sync.Mutex
	Content map[string]string
	Errs    map[string]error
	Default string
	Block   chan struct{} // when set, Fetch waits on it
	Fetched []string
}

// Fetch returns the configured content for file.
func (f *FakeFetcher) Fetch(ctx context.Context, file document.RemoteFile) (string, error) {
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetched = append(f.Fetched, file.ID)
	if err := f.Errs[file.ID]; err != nil {
		return "", err
	}
	if text, ok := f.Content[file.ID]; ok {
		return text, nil
	}
	return f.Default, nil
}

// FakeSummarizer is a ports.Summarizer returning a fixed summary.
type FakeSummarizer struct {
	Summary string
	Err     error
	Delay   time.Duration
}

// Summarize returns Summary or Err, after Delay unless ctx ends first.
func (s *FakeSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.Summary, s.Err
}

// Name identifies the fake.
func (s *FakeSummarizer) Name() string { return "fake" }

// Push records one CreateDocument call.
type Push struct {
	ProfileID string
	Name      string
	Text      string
}

// FakeDestination is an in-memory ports.Destination.
type FakeDestination struct {
	mu     sync.Mutex
	Pushes []Push
	// ErrFor returns the error for a push; nil accepts it.
	ErrFor func(profileID, name string) error
}

// CreateDocument records the push.
func (d *FakeDestination) CreateDocument(ctx context.Context, target profile.Profile, name, text string) (ports.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ErrFor != nil {
		if err := d.ErrFor(target.ID, name); err != nil {
			return ports.Receipt{}, err
		}
	}
	d.Pushes = append(d.Pushes, Push{ProfileID: target.ID, Name: name, Text: text})
	return ports.Receipt{DocumentID: fmt.Sprintf("doc-%d", len(d.Pushes)), Message: "success"}, nil
}

// Pushed returns a copy of the recorded pushes.
func (d *FakeDestination) Pushed() []Push {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Push(nil), d.Pushes...)
}
