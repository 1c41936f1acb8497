package ports

import (
	"context"

	"github.com/jbctechsolutions/docsync/internal/domain/profile"
)

// Summarizer produces a short summary used to enrich pushed documents.
// Callers treat any error as non-fatal.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
	Name() string
}

// Receipt is the destination's acknowledgement of a created document.
type Receipt struct {
	DocumentID string
	Message    string
}

// Destination pushes documents into a knowledge base.
// A non-2xx answer is reported as ErrDestinationRejected carrying the remote
// message; transport failures as ErrNetworkFailure.
type Destination interface {
	CreateDocument(ctx context.Context, target profile.Profile, name, text string) (Receipt, error)
}
