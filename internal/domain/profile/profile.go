// Package profile defines destination profiles: a knowledge-base target with its
// own credentials that remote files are synchronized into.
package profile

import (
	"fmt"
	"strings"

	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
)

const (
	DefaultID      = "default-trade"
	DefaultName    = "TradeStars KB"
	DefaultBaseURL = "https://api.dify.ai/v1"
)

// Profile is a configured destination.
type Profile struct {
	ID        string
	Name      string
	DatasetID string
	BaseURL   string
	APIKey    string
}

// Default returns the profile created on first start.
func Default() Profile {
	return Profile{ID: DefaultID, Name: DefaultName, BaseURL: DefaultBaseURL}
}

// Endpoint returns the base URL, falling back to the public Dify API.
func (p Profile) Endpoint() string {
	if p.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(p.BaseURL, "/")
}

// HasCredentials reports whether the profile can push documents.
func (p Profile) HasCredentials() bool {
	return p.APIKey != "" && p.DatasetID != ""
}

// Set is the ordered list of configured profiles. Order is the order in which
// the scheduler reconciles them.
type Set []Profile

// Find returns the profile with the given id.
func (s Set) Find(id string) (Profile, bool) {
	for _, p := range s {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// Add appends a profile, rejecting duplicate ids.
func (s Set) Add(p Profile) (Set, error) {
	if p.ID == "" {
		return s, domainErrors.ErrProfileIDRequired
	}
	if _, exists := s.Find(p.ID); exists {
		return s, fmt.Errorf("%w: %s", domainErrors.ErrDuplicateProfileID, p.ID)
	}
	return append(s, p), nil
}

// Remove deletes a profile. Removing the last profile is refused.
func (s Set) Remove(id string) (Set, error) {
	idx := -1
	for i, p := range s {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s, fmt.Errorf("%w: %s", domainErrors.ErrProfileNotFound, id)
	}
	if len(s) == 1 {
		return s, domainErrors.ErrLastProfile
	}
	out := make(Set, 0, len(s)-1)
	out = append(out, s[:idx]...)
	return append(out, s[idx+1:]...), nil
}

// Validate checks that the set is non-empty and ids are unique.
func (s Set) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("at least one profile is required")
	}
	seen := make(map[string]bool, len(s))
	for _, p := range s {
		if p.ID == "" {
			return domainErrors.ErrProfileIDRequired
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: %s", domainErrors.ErrDuplicateProfileID, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}
