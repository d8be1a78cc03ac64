// Package store defines the capability interfaces job handlers and core
// components see. Concrete drivers (Redis, Mongo) are injected at process
// start; everything above them depends only on these surfaces.
package store

import (
	"context"
	"time"
)

// Cache is a TTL-bounded byte cache. Get returns domain.ErrNotFound when
// the key is absent or expired.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// ListQueue is a FIFO list. Push appends at the tail, Pop removes from the
// head. Pop returns domain.ErrNotFound when the list is empty.
type ListQueue interface {
	Push(ctx context.Context, key string, value []byte) error
	Pop(ctx context.Context, key string) ([]byte, error)
	Len(ctx context.Context, key string) (int64, error)
}

// Document is one schemaless record. Drivers populate "_id" on reads.
type Document = map[string]any

// DocumentStore is the surface the archival and analytics jobs use against
// the document database.
type DocumentStore interface {
	InsertMany(ctx context.Context, collection string, docs []Document) error
	// FindOlderThan returns up to limit documents whose field sorts below
	// cutoff, oldest first.
	FindOlderThan(ctx context.Context, collection, field string, cutoff time.Time, limit int) ([]Document, error)
	DeleteByIDs(ctx context.Context, collection string, ids []any) (int64, error)
	Count(ctx context.Context, collection string) (int64, error)
	Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]Document, error)
	Ping(ctx context.Context) error
}
