// Package cache memoizes expensive context-wide tables in the persistent
// store so that concurrent callers share one recomputation.
//
// Every table lives as a series of entries per (context, name). A reader
// takes the newest entry that has not expired; when only expired entries
// remain, the reader that manages to extend the newest one by a short grace
// period becomes the recomputer while everyone else keeps serving the stale
// payload. Writers insert a new entry valid for at least the time it took to
// compute, then remove entries expiring after it.
package cache

import (
	"context"
	"time"

	"github.com/rcliao/ratemykey/internal/model"
)

// Store persists cache entries. Methods that look up a single entry return an
// error wrapping store.ErrNotFound when it does not exist.
type Store interface {
	LatestEntry(ctx context.Context, ns string, name model.CacheName, now time.Time) (*model.CacheEntry, error)
	EntryData(ctx context.Context, id string) ([]byte, error)
	ExtendEntry(ctx context.Context, id string, observed, until time.Time) (bool, error)
	InsertEntry(ctx context.Context, e model.CacheEntry, data []byte) (model.CacheEntry, error)
	PurgeEntries(ctx context.Context, e model.CacheEntry, now time.Time) (int64, error)
	FlushCache(ctx context.Context, ns string, name model.CacheName) error
}
