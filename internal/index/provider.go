package index

import (
	"context"
	"encoding/json"
)

// BulkAction selects what a bulk operation does to its document.
type BulkAction string

const (
	BulkIndex  BulkAction = "index"
	BulkDelete BulkAction = "delete"
)

// BulkOp is one operation in a bulk request.
type BulkOp struct {
	Action BulkAction
	ID     string
	Doc    any
}

// Hit is one search result with its raw source document.
type Hit struct {
	ID     string
	Score  float64
	Index  string
	Source json.RawMessage
}

// Result is a parsed search response.
type Result struct {
	Total        int64
	Hits         []Hit
	Aggregations map[string]json.RawMessage
}

// Provider is the thin abstraction over the search backend. Implementations
// translate sentinel errors (ErrNotFound, ErrIndexNotReady, ErrInvalid) from
// the backend's status codes; everything else surfaces as an internal error.
type Provider interface {
	// CheckHealth waits for the cluster to report yellow or better.
	CheckHealth(ctx context.Context) error

	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, name string, mapping any) error
	// CloneIndex copies base into target. The source is made read-only for
	// the duration of the clone and restored afterwards.
	CloneIndex(ctx context.Context, base, target string) error
	DeleteIndex(ctx context.Context, name string) error
	// ListIndices resolves a wildcard pattern to concrete index names.
	ListIndices(ctx context.Context, pattern string) ([]string, error)

	// AliasIndices returns the indices currently behind an alias. A missing
	// alias returns an empty slice, not an error.
	AliasIndices(ctx context.Context, alias string) ([]string, error)
	// Rollover atomically points the alias at next only, removing every
	// member matching removePattern in the same alias-update call.
	Rollover(ctx context.Context, alias, next, removePattern string) error

	Bulk(ctx context.Context, indexName string, ops []BulkOp) error
	// IndexDoc writes one document; an empty id lets the backend assign one.
	// Returns the document id.
	IndexDoc(ctx context.Context, indexName, id string, doc any) (string, error)
	UpdateDoc(ctx context.Context, indexName, id string, partial any) error

	Search(ctx context.Context, indexName string, body map[string]any) (*Result, error)
	Refresh(ctx context.Context, indexName string) error

	Close() error
}
