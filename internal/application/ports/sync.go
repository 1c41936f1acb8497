package ports

import (
	"context"

	"github.com/jbctechsolutions/docsync/internal/domain/document"
)

// Page sizes used against the file store.
const (
	InteractivePageSize = 50
	SnapshotPageSize    = 100
)

// ListQuery narrows a remote listing.
type ListQuery struct {
	// NameContains restricts results to names containing the term (deep search).
	NameContains string

	// PageSize is the number of files requested per page.
	PageSize int

	// MaxFiles stops pagination once this many files were collected (0 for one page only).
	MaxFiles int
}

// RemoteLister lists files in the remote file store.
// Implementations must validate every item and drop or reject malformed ones
// before returning, and must report 401-equivalent answers as ErrAuthExpired.
type RemoteLister interface {
	List(ctx context.Context, query ListQuery) ([]document.RemoteFile, error)

	// Get returns a single file by id, validated like List items.
	Get(ctx context.Context, fileID string) (document.RemoteFile, error)
}

// ContentFetcher downloads the text content of a remote file.
// Google Docs types are exported to text/plain, other kinds are fetched raw.
type ContentFetcher interface {
	Fetch(ctx context.Context, file document.RemoteFile) (string, error)
}

// UserInfo describes the account connected to the file store.
type UserInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

// Authenticator provides credentials for the file store.
type Authenticator interface {
	// Token returns the current access token. It returns ErrAuthExpired when no
	// usable token is available.
	Token(ctx context.Context) (string, error)

	// Reauthenticate reloads or refreshes credentials after an ErrAuthExpired.
	// It fails while only an invalidated token is available.
	Reauthenticate(ctx context.Context) error

	// Invalidate records that the file store refused token. Token and
	// Reauthenticate report ErrAuthExpired until a different token is stored.
	Invalidate(token string)

	// Revoke discards the stored credentials.
	Revoke(ctx context.Context) error
}
