// Package remote persists watch sets and sync history on an HTTP state server
// exposing GET/POST {base}/config and GET/POST {base}/history.
//
// The config document is a JSON object; this store owns the watch and marker
// keys and preserves every other key it finds. The history document maps
// profile id to file id to an RFC 3339 timestamp.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
)

const (
	keyWatched = "docsync_watched_files_map"
	keyMarkers = "docsync_markers"
	keyLeases  = "docsync_leases"

	DefaultTimeout = 15 * time.Second
)

// Store implements ports.StateStore against a state server. Every mutation is a
// read-modify-write of one document, serialized by mu.
type Store struct {
	baseURL    string
	token      string
	httpClient *http.Client

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.httpClient = c }
}

// NewStore creates a store for the server at baseURL. token may be empty.
func NewStore(baseURL, token string, opts ...Option) *Store {
	s := &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ ports.StateStore    = (*Store)(nil)
	_ ports.StateImporter = (*Store)(nil)
	_ ports.LeaseStore    = (*Store)(nil)
)

type configDoc map[string]json.RawMessage

type historyDoc map[string]map[string]string

// Close is a no-op; the store holds no connections.
func (s *Store) Close() error { return nil }

// ToggleWatch flips membership of fileID in the profile's watch set.
func (s *Store) ToggleWatch(ctx context.Context, profileID, fileID string) (bool, error) {
	if err := validateKeys(profileID, fileID); err != nil {
		return false, err
	}
	var watched bool
	err := s.updateWatches(ctx, func(w map[string][]string) {
		ids := w[profileID]
		if i := slices.Index(ids, fileID); i >= 0 {
			w[profileID] = append(ids[:i], ids[i+1:]...)
			watched = false
			return
		}
		w[profileID] = append(ids, fileID)
		watched = true
	})
	return watched, err
}

// SetWatched sets membership explicitly.
func (s *Store) SetWatched(ctx context.Context, profileID, fileID string, watched bool) error {
	if err := validateKeys(profileID, fileID); err != nil {
		return err
	}
	return s.updateWatches(ctx, func(w map[string][]string) {
		ids := w[profileID]
		i := slices.Index(ids, fileID)
		switch {
		case watched && i < 0:
			w[profileID] = append(ids, fileID)
		case !watched && i >= 0:
			w[profileID] = append(ids[:i], ids[i+1:]...)
		}
	})
}

// IsWatched reports whether fileID is in the profile's watch set.
func (s *Store) IsWatched(ctx context.Context, profileID, fileID string) (bool, error) {
	set, err := s.Watched(ctx, profileID)
	if err != nil {
		return false, err
	}
	_, ok := set[fileID]
	return ok, nil
}

// Watched returns the profile's watch set.
func (s *Store) Watched(ctx context.Context, profileID string) (map[string]struct{}, error) {
	if profileID == "" {
		return nil, domainErrors.ErrProfileIDRequired
	}
	doc, err := s.getConfig(ctx)
	if err != nil {
		return nil, err
	}
	watches, err := decodeWatches(doc)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(watches[profileID]))
	for _, id := range watches[profileID] {
		set[id] = struct{}{}
	}
	return set, nil
}

// RecordSync overwrites the last push time of fileID.
func (s *Store) RecordSync(ctx context.Context, profileID, fileID string, at time.Time) error {
	if err := validateKeys(profileID, fileID); err != nil {
		return err
	}
	return s.updateHistory(ctx, func(h historyDoc) {
		if h[profileID] == nil {
			h[profileID] = make(map[string]string)
		}
		h[profileID][fileID] = formatTime(at)
	})
}

// History returns the profile's sync history. Unreadable timestamps are skipped.
func (s *Store) History(ctx context.Context, profileID string) (map[string]time.Time, error) {
	if profileID == "" {
		return nil, domainErrors.ErrProfileIDRequired
	}
	doc, err := s.getHistory(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(doc[profileID]))
	for fileID, v := range doc[profileID] {
		if at, err := time.Parse(time.RFC3339Nano, v); err == nil {
			out[fileID] = at.UTC()
		}
	}
	return out, nil
}

// PruneHistory removes the profile's entries whose file is not in keep.
func (s *Store) PruneHistory(ctx context.Context, profileID string, keep map[string]struct{}) (int, error) {
	if profileID == "" {
		return 0, domainErrors.ErrProfileIDRequired
	}
	removed := 0
	err := s.updateHistory(ctx, func(h historyDoc) {
		for fileID := range h[profileID] {
			if _, ok := keep[fileID]; !ok {
				delete(h[profileID], fileID)
				removed++
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// MergeWatched adds fileIDs to the profile's watch set and returns how many were new.
func (s *Store) MergeWatched(ctx context.Context, profileID string, fileIDs []string) (int, error) {
	for _, id := range fileIDs {
		if err := validateKeys(profileID, id); err != nil {
			return 0, err
		}
	}
	added := 0
	err := s.updateWatches(ctx, func(w map[string][]string) {
		for _, id := range fileIDs {
			if slices.Index(w[profileID], id) < 0 {
				w[profileID] = append(w[profileID], id)
				added++
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// MergeHistory keeps the later of the stored and supplied time per file.
func (s *Store) MergeHistory(ctx context.Context, profileID string, history map[string]time.Time) (int, error) {
	for id := range history {
		if err := validateKeys(profileID, id); err != nil {
			return 0, err
		}
	}
	changed := 0
	err := s.updateHistory(ctx, func(h historyDoc) {
		if h[profileID] == nil {
			h[profileID] = make(map[string]string)
		}
		for fileID, at := range history {
			if cur, err := time.Parse(time.RFC3339Nano, h[profileID][fileID]); err == nil && !at.After(cur) {
				continue
			}
			h[profileID][fileID] = formatTime(at)
			changed++
		}
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// Marker reads a migration bookkeeping value.
func (s *Store) Marker(ctx context.Context, key string) (string, bool, error) {
	doc, err := s.getConfig(ctx)
	if err != nil {
		return "", false, err
	}
	markers, err := decodeMarkers(doc)
	if err != nil {
		return "", false, err
	}
	v, ok := markers[key]
	return v, ok, nil
}

// SetMarker writes a migration bookkeeping value.
func (s *Store) SetMarker(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.getConfig(ctx)
	if err != nil {
		return err
	}
	markers, err := decodeMarkers(doc)
	if err != nil {
		return err
	}
	markers[key] = value
	if doc[keyMarkers], err = json.Marshal(markers); err != nil {
		return fmt.Errorf("failed to encode markers: %w", err)
	}
	return s.post(ctx, "/config", doc)
}

type lease struct {
	Holder    string `json:"holder"`
	ExpiresAt string `json:"expires_at"`
}

// AcquireLease takes name for holder when it is free, expired or already
// holder's. The state server has no conditional write, so two processes that
// race between the read and the write can both win; mu only serializes this
// process.
func (s *Store) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, leases, err := s.getLeases(ctx)
	if err != nil {
		return "", false, err
	}
	now := time.Now()
	if cur, ok := leases[name]; ok && cur.Holder != holder {
		if expires, err := time.Parse(time.RFC3339Nano, cur.ExpiresAt); err == nil && expires.After(now) {
			return cur.Holder, false, nil
		}
	}
	leases[name] = lease{Holder: holder, ExpiresAt: now.Add(ttl).UTC().Format(time.RFC3339Nano)}
	if err := s.putLeases(ctx, doc, leases); err != nil {
		return "", false, err
	}
	return holder, true, nil
}

// ReleaseLease drops name when holder owns it.
func (s *Store) ReleaseLease(ctx context.Context, name, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, leases, err := s.getLeases(ctx)
	if err != nil {
		return err
	}
	if cur, ok := leases[name]; !ok || cur.Holder != holder {
		return nil
	}
	delete(leases, name)
	return s.putLeases(ctx, doc, leases)
}

func (s *Store) getLeases(ctx context.Context) (configDoc, map[string]lease, error) {
	doc, err := s.getConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	leases := make(map[string]lease)
	if raw, ok := doc[keyLeases]; ok {
		if err := json.Unmarshal(raw, &leases); err != nil {
			return nil, nil, storageError("lease map is malformed", err)
		}
		if leases == nil {
			leases = make(map[string]lease)
		}
	}
	return doc, leases, nil
}

func (s *Store) putLeases(ctx context.Context, doc configDoc, leases map[string]lease) error {
	raw, err := json.Marshal(leases)
	if err != nil {
		return fmt.Errorf("failed to encode leases: %w", err)
	}
	doc[keyLeases] = raw
	return s.post(ctx, "/config", doc)
}

func (s *Store) updateWatches(ctx context.Context, mutate func(map[string][]string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.getConfig(ctx)
	if err != nil {
		return err
	}
	watches, err := decodeWatches(doc)
	if err != nil {
		return err
	}
	mutate(watches)
	for profileID, ids := range watches {
		sort.Strings(ids)
		watches[profileID] = ids
	}
	if doc[keyWatched], err = json.Marshal(watches); err != nil {
		return fmt.Errorf("failed to encode watches: %w", err)
	}
	return s.post(ctx, "/config", doc)
}

func (s *Store) updateHistory(ctx context.Context, mutate func(historyDoc)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.getHistory(ctx)
	if err != nil {
		return err
	}
	mutate(doc)
	return s.post(ctx, "/history", doc)
}

func (s *Store) getConfig(ctx context.Context) (configDoc, error) {
	doc := configDoc{}
	if err := s.get(ctx, "/config", &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = configDoc{}
	}
	return doc, nil
}

func (s *Store) getHistory(ctx context.Context) (historyDoc, error) {
	doc := historyDoc{}
	if err := s.get(ctx, "/history", &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = historyDoc{}
	}
	return doc, nil
}

func decodeWatches(doc configDoc) (map[string][]string, error) {
	watches := make(map[string][]string)
	if raw, ok := doc[keyWatched]; ok {
		if err := json.Unmarshal(raw, &watches); err != nil {
			return nil, storageError("watch map is malformed", err)
		}
		if watches == nil {
			watches = make(map[string][]string)
		}
	}
	return watches, nil
}

func decodeMarkers(doc configDoc) (map[string]string, error) {
	markers := make(map[string]string)
	if raw, ok := doc[keyMarkers]; ok {
		if err := json.Unmarshal(raw, &markers); err != nil {
			return nil, storageError("marker map is malformed", err)
		}
		if markers == nil {
			markers = make(map[string]string)
		}
	}
	return markers, nil
}

// get decodes the document at path. A 404 leaves out untouched.
func (s *Store) get(ctx context.Context, path string, out any) error {
	resp, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domainErrors.NetworkFailure("failed to read state "+path, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return storageError("state "+path+" is not valid JSON", err)
	}
	return nil
}

func (s *Store) post(ctx context.Context, path string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return storageError("failed to encode state "+path, err)
	}
	resp, err := s.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	return nil
}

func (s *Store) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, storageError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domainErrors.NetworkFailure("state server unreachable", err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return storageError(fmt.Sprintf("state server answered HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
}

func storageError(msg string, cause error) error {
	return domainErrors.NewError(domainErrors.CodeStorage, msg, cause)
}

func validateKeys(profileID, fileID string) error {
	if profileID == "" {
		return domainErrors.ErrProfileIDRequired
	}
	if fileID == "" {
		return domainErrors.ErrFileIDRequired
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
