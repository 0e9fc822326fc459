package types

import (
	"context"
	"time"
)

// BlobStore defines the remote store the sync engine persists documents in.
// It offers no ordering guarantee on listings and no read-after-write
// guarantee; Upload silently overwrites an existing key.
type BlobStore interface {
	// List returns up to maxKeys objects under prefix. Implementations report an
	// oversized request with an error carrying errors.ErrCodeRequestTooLarge.
	List(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error)

	// Upload stores content at folder+fileName.
	Upload(ctx context.Context, content []byte, fileName, folder string) (*UploadResult, error)

	// Fetch reads the public content at a direct URL obtained from PublicURL.
	Fetch(ctx context.Context, url string) ([]byte, error)

	// PublicURL derives the direct read URL of a key.
	PublicURL(key string) string

	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
}

// Cache defines the host-supplied persistent key-value store used for
// last-known-good snapshots and for local-only fallback writes.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Has(key string) bool
	Delete(key string) error
}

// MetricsRecorder defines the metrics surface the sync engine reports to
type MetricsRecorder interface {
	RecordOperation(operation, kind, outcome string, duration time.Duration)
	RecordProbeSkip(kind, reason string)
	RecordReadSource(kind, source string)
	RecordDelete(kind string, success bool)
}
