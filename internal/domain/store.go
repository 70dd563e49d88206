package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ActivityStore persists marketplace settlement/cancellation history.
type ActivityStore interface {
	Insert(ctx context.Context, a Activity) error
	ListRecent(ctx context.Context, opts ListOpts) ([]Activity, error)
	ListByPolicy(ctx context.Context, policyID string, opts ListOpts) ([]Activity, error)
	ListBefore(ctx context.Context, before time.Time) ([]Activity, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of transition attempts.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// MarketCache caches decoded listings and bids per policy id.
type MarketCache interface {
	SetListings(ctx context.Context, policyID string, listings []ListingView) error
	GetListings(ctx context.Context, policyID string) ([]ListingView, error)
	SetBids(ctx context.Context, policyID string, bids []BidView) error
	GetBids(ctx context.Context, policyID string) ([]BidView, error)
	Invalidate(ctx context.Context, policyID string) error
}

// RoyaltyCache caches decoded royalty schedules keyed by royalty token unit.
type RoyaltyCache interface {
	Set(ctx context.Context, unit string, info RoyaltyInfo) error
	Get(ctx context.Context, unit string) (RoyaltyInfo, error)
	Invalidate(ctx context.Context, unit string) error
}

// LockManager hands out short-lived distributed locks. Contention on a
// position is ultimately resolved by the ledger consuming the UTXO; the lock
// only stops one operator process from building two plans against the same
// position.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter limits request rates per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// EventBus publishes and subscribes to marketplace events.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// StreamMessage is a single durable message read back from an event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// BlobWriter writes objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader reads objects from blob storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// Archiver exports historical records to blob storage.
type Archiver interface {
	ArchiveActivities(ctx context.Context, before time.Time) (string, error)
}
