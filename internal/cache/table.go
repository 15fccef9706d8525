package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/ratemykey/internal/metrics"
	"github.com/rcliao/ratemykey/internal/model"
	"github.com/rcliao/ratemykey/internal/store"
)

// Outcome describes how a read was served.
type Outcome string

const (
	// Miss: no usable entry; the caller must recompute and write.
	Miss Outcome = "miss"
	// Hit: a fresh entry was served.
	Hit Outcome = "hit"
	// Stale: the entry had expired but another caller holds the recompute
	// lease, so the old payload was served.
	Stale Outcome = "stale"
	// Poisoned: the entry could not be decoded; treated as a miss.
	Poisoned Outcome = "poisoned"
)

// Found reports whether the read returned a payload.
func (o Outcome) Found() bool {
	return o == Hit || o == Stale
}

// PoisonError reports a cached payload with an unexpected shape.
type PoisonError struct {
	Cache   model.CacheName
	Context string
	ID      string
	Err     error
}

func (e *PoisonError) Error() string {
	return fmt.Sprintf("cache %s/%s entry %s poisoned: %v", e.Context, e.Cache, e.ID, e.Err)
}

func (e *PoisonError) Unwrap() error { return e.Err }

var errInvalidPayload = errors.New("payload failed validation")

// Options configures a Table.
type Options struct {
	Grace  time.Duration // lease given to the caller that detects expiry
	Margin time.Duration // extra validity added on top of the compute time
	Shadow *Shadow
	Logger *zap.Logger
	Now    func() time.Time
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Grace:  5 * time.Second,
		Margin: 2 * time.Second,
	}
}

// Table is a cached context-wide value of type T, JSON encoded in the store.
type Table[T any] struct {
	name   model.CacheName
	store  Store
	valid  func(T) bool
	grace  time.Duration
	margin time.Duration
	shadow *Shadow
	logger *zap.Logger
	now    func() time.Time
}

// NewTable returns the cache named name. valid, if non-nil, rejects decoded
// payloads that do not have the expected shape.
func NewTable[T any](name model.CacheName, st Store, valid func(T) bool, opts Options) *Table[T] {
	defaults := DefaultOptions()
	if opts.Grace <= 0 {
		opts.Grace = defaults.Grace
	}
	if opts.Margin < 0 {
		opts.Margin = defaults.Margin
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Table[T]{
		name:   name,
		store:  st,
		valid:  valid,
		grace:  opts.Grace,
		margin: opts.Margin,
		shadow: opts.Shadow,
		logger: opts.Logger.With(zap.String("cache", string(name))),
		now:    opts.Now,
	}
}

// Name returns the cache name.
func (t *Table[T]) Name() model.CacheName {
	return t.name
}

// Read returns the current payload for a context. Store errors are returned
// as is; a missing, expired (and leased to this caller) or undecodable entry
// yields the zero value with a non-found outcome.
func (t *Table[T]) Read(ctx context.Context, ns string) (T, Outcome, error) {
	var zero T
	now := t.now()

	e, err := t.store.LatestEntry(ctx, ns, t.name, now)
	if errors.Is(err, store.ErrNotFound) {
		return t.outcome(zero, Miss, ns)
	}
	if err != nil {
		return zero, Miss, err
	}

	outcome := Hit
	if e.Expired(now) {
		won, err := t.store.ExtendEntry(ctx, e.ID, e.ExpiresAt, now.Add(t.grace))
		if err != nil {
			return zero, Miss, err
		}
		if won {
			t.logger.Debug("cache expired, lease taken",
				zap.String("context", ns),
				zap.String("entry", e.ID),
				zap.Time("expired_at", e.ExpiresAt))
			return t.outcome(zero, Miss, ns)
		}
		outcome = Stale
	}

	v, err := t.load(ctx, e)
	if errors.Is(err, store.ErrNotFound) {
		// Purged by a concurrent writer between the two queries.
		return t.outcome(zero, Miss, ns)
	}
	var perr *PoisonError
	if errors.As(err, &perr) {
		t.logger.Warn("cache entry poisoned, recomputing",
			zap.String("context", ns),
			zap.String("entry", e.ID),
			zap.Error(perr.Err))
		return t.outcome(zero, Poisoned, ns)
	}
	if err != nil {
		return zero, Miss, err
	}
	return t.outcome(v, outcome, ns)
}

func (t *Table[T]) outcome(v T, o Outcome, ns string) (T, Outcome, error) {
	metrics.CacheReads.WithLabelValues(string(t.name), string(o)).Inc()
	t.logger.Debug("cache read", zap.String("context", ns), zap.String("outcome", string(o)))
	return v, o, nil
}

func (t *Table[T]) load(ctx context.Context, e *model.CacheEntry) (T, error) {
	var v T
	if cached, ok := t.shadow.get(e.ID); ok {
		if tv, ok := cached.(T); ok {
			return tv, nil
		}
	}

	data, err := t.store.EntryData(ctx, e.ID)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, &PoisonError{Cache: t.name, Context: e.Context, ID: e.ID, Err: err}
	}
	if t.valid != nil && !t.valid(v) {
		return v, &PoisonError{Cache: t.name, Context: e.Context, ID: e.ID, Err: errInvalidPayload}
	}

	t.shadow.add(e.ID, v)
	return v, nil
}

// Write stores v as the newest entry for a context, valid for runtime plus
// the margin, then purges the entries it supersedes. Callers must not mutate
// v afterwards.
func (t *Table[T]) Write(ctx context.Context, ns string, v T, runtime time.Duration) (model.CacheEntry, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return model.CacheEntry{}, fmt.Errorf("encode %s: %w", t.name, err)
	}

	now := t.now()
	e, err := t.store.InsertEntry(ctx, model.CacheEntry{
		Context:   ns,
		Name:      t.name,
		ExpiresAt: now.Add(runtime + t.margin),
		CreatedAt: now,
	}, data)
	if err != nil {
		return e, err
	}
	t.shadow.add(e.ID, v)
	metrics.CacheWrites.WithLabelValues(string(t.name)).Inc()

	purged, err := t.store.PurgeEntries(ctx, e, now)
	if err != nil {
		return e, err
	}
	metrics.CachePurged.WithLabelValues(string(t.name)).Add(float64(purged))

	t.logger.Debug("cache written",
		zap.String("context", ns),
		zap.String("entry", e.ID),
		zap.Time("expires_at", e.ExpiresAt),
		zap.Int64("purged", purged))
	return e, nil
}

// Flush removes every entry of this cache for a context.
func (t *Table[T]) Flush(ctx context.Context, ns string) error {
	return t.store.FlushCache(ctx, ns, t.name)
}
