package reconcile

import (
	"fmt"
	"sync"

	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
	"github.com/jbctechsolutions/docsync/internal/domain/profile"
)

// ProfileSource supplies the configured profiles in reconciliation order and the
// active (displayed) profile id.
type ProfileSource interface {
	Profiles() profile.Set
	ActiveProfileID() string
}

// ProfileBook is a ProfileSource that can be replaced at runtime, for example on
// config reload.
type ProfileBook struct {
	mu     sync.RWMutex
	set    profile.Set
	active string
}

// NewProfileBook creates a book holding set with active selected.
func NewProfileBook(set profile.Set, active string) *ProfileBook {
	return &ProfileBook{set: append(profile.Set(nil), set...), active: active}
}

// Profiles returns a copy of the profile set.
func (b *ProfileBook) Profiles() profile.Set {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append(profile.Set(nil), b.set...)
}

// ActiveProfileID returns the active profile id.
func (b *ProfileBook) ActiveProfileID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// Replace swaps the profile set and active id.
func (b *ProfileBook) Replace(set profile.Set, active string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set = append(profile.Set(nil), set...)
	b.active = active
}

// resolveProfile returns the profile named id, or the active one when id is empty.
func resolveProfile(src ProfileSource, id string) (profile.Profile, error) {
	if id == "" {
		id = src.ActiveProfileID()
	}
	p, ok := src.Profiles().Find(id)
	if !ok {
		return profile.Profile{}, fmt.Errorf("%w: %s", domainErrors.ErrProfileNotFound, id)
	}
	return p, nil
}
