// Package origin defines the contract of the journal, the keyed document
// store that slides are loaded from and saved back to.
//
// The journal is external to the session: the slideshow only finds, reads
// and writes documents through this interface. internal/origin/sqlite is the
// bundled implementation.
package origin

import (
	"context"

	"github.com/sakif/portfolio/internal/model"
)

// Filter selects documents in Find. Zero fields do not filter.
type Filter struct {
	Keep        bool     // only favorited documents (keep=1)
	MimeTypes   []string // mime_type is one of these
	TagContains string   // tags contains this substring
}

// WriteOptions controls Write.
type WriteOptions struct {
	// PreserveMtime keeps UpdatedAt unchanged. Slide text saved back on
	// close is not a user modification of the document.
	PreserveMtime bool
}

// Store is the journal.
type Store interface {
	// Find returns matching documents oldest first, and their count.
	Find(ctx context.Context, f Filter) ([]*model.Document, int, error)
	// Get returns one document or an apperror NotFound.
	Get(ctx context.Context, id string) (*model.Document, error)
	// Create returns a new, unsaved document with a fresh id.
	Create(ctx context.Context) (*model.Document, error)
	// Write inserts or updates a document. When FilePath names a file
	// outside the store, the payload is copied in and FilePath is updated.
	Write(ctx context.Context, doc *model.Document, opts WriteOptions) error
	// Destroy removes a document and its stored payload.
	Destroy(ctx context.Context, id string) error
}
