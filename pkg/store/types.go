package store

import (
	"context"
	"errors"

	"github.com/rmax-ai/topolord/pkg/topology"
)

// ErrNotFound is returned by GetByID when no document has the given id.
var ErrNotFound = errors.New("document not found")

// DocumentStore is the read side of the document collection the engine
// navigates. It never mutates documents.
type DocumentStore interface {
	ListAll(ctx context.Context) ([]topology.Document, error)
	GetByID(ctx context.Context, id string) (*topology.Document, error)
}

// DocumentWriter is implemented by stores that accept imports.
type DocumentWriter interface {
	Put(ctx context.Context, doc topology.Document) error
	Delete(ctx context.Context, id string) error
}

// ChangeStamper exposes a monotonically increasing revision that moves
// whenever any document is written or deleted.
type ChangeStamper interface {
	ChangeStamp(ctx context.Context) (int64, error)
}
