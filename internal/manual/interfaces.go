package manual

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Resolver is one strategy that attempts to find a document for a product via
// a single information source. Ordinary "nothing found" outcomes return a
// NotFound Resolution with a nil error; an error means the source itself
// failed and the caller should treat it as producing nothing.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, identity ProductIdentity) (Resolution, error)
}

// CacheStore persists CacheRecords keyed by normalized model.
type CacheStore interface {
	GetByModel(ctx context.Context, model string) (CacheRecord, error)
	Upsert(ctx context.Context, record CacheRecord) (CacheRecord, error)
	List(ctx context.Context, search string) ([]CacheRecord, error)
}

// ItemStore persists WorkItems grouped by project.
type ItemStore interface {
	CreateItems(ctx context.Context, items []WorkItem) error
	GetItem(ctx context.Context, id string) (WorkItem, error)
	UpdateItem(ctx context.Context, item WorkItem) error
	ListByProject(ctx context.Context, projectID string) ([]WorkItem, error)
}

// ProjectStore persists Projects.
type ProjectStore interface {
	CreateProject(ctx context.Context, project Project) error
	GetProject(ctx context.Context, id string) (Project, error)
}

// BlobStore writes document payloads and produces time-limited retrieval URLs
// for previously stored documents.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Publisher pushes resolution-completed events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// TextExtractor turns free page text plus a product identity into a short
// warranty-duration phrase. An empty string means no phrase was found.
type TextExtractor interface {
	ExtractWarranty(ctx context.Context, pageText string, identity ProductIdentity) (string, error)
}

// ContractParser extracts the installed-product list from a contract PDF.
type ContractParser interface {
	Parse(ctx context.Context, contractPDF []byte) ([]ProductIdentity, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record and job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
