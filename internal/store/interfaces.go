package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a row or cache key is not found
var ErrNotFound = errors.New("not found")

// Key is an ordered tuple of clustering columns
type Key []string

// Row is a single clustering row inside a partition
type Row struct {
	Key     Key
	Value   []byte
	Counter int64
}

// Query describes a bounded scan of one partition.
// After is exclusive. Limit <= 0 means no limit.
type Query struct {
	Prefix  Key
	After   Key
	Limit   int
	Reverse bool
}

// Page is the result of a Query. More reports whether rows remain past the limit.
type Page struct {
	Rows []Row
	More bool
}

// Store is a wide-column store: tables of partitions holding rows ordered by
// clustering key. There are no transactions; the only coordination primitives
// are conditional insert/delete on a single row and counter increments.
type Store interface {
	Get(ctx context.Context, table, partition string, key Key) (*Row, error)
	Put(ctx context.Context, table, partition string, key Key, value []byte) error
	InsertIfNotExists(ctx context.Context, table, partition string, key Key, value []byte) (bool, error)
	DeleteIfExists(ctx context.Context, table, partition string, key Key) (bool, error)
	Query(ctx context.Context, table, partition string, q Query) (*Page, error)

	// Increment adds delta to the counter of an existing row. A missing row is
	// left absent and ErrNotFound is returned.
	Increment(ctx context.Context, table, partition string, key Key, delta int64) error

	DeletePartition(ctx context.Context, table, partition string) error

	Ping(ctx context.Context) error
	Close() error
}

// Cache interface for data set lookups
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
