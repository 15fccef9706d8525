// Package engine runs the scoring pipeline: record an action, refresh the
// context-wide tables through the cache and classify the actor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/ratemykey/internal/cache"
	"github.com/rcliao/ratemykey/internal/metrics"
	"github.com/rcliao/ratemykey/internal/model"
	"github.com/rcliao/ratemykey/internal/outlier"
	"github.com/rcliao/ratemykey/internal/score"
	"github.com/rcliao/ratemykey/internal/store"
	"github.com/rcliao/ratemykey/internal/surprisal"
)

// Store is the storage the engine needs: the ledger and the cache entries.
type Store interface {
	store.Ledger
	cache.Store
}

// Config holds the scoring parameters.
type Config struct {
	Window       time.Duration
	LedgerCap    int
	Thresholds   outlier.Thresholds
	PruneTimeout time.Duration
	// MaxSkew is how far past the current time an event may be dated. The
	// window ends at the event time, so a far-future event would prune every
	// other actor of the context.
	MaxSkew time.Duration
	Cache   cache.Options
}

// DefaultConfig returns a 24h window, the default ledger cap and thresholds
// and no shadow cache.
func DefaultConfig() Config {
	return Config{
		Window:       24 * time.Hour,
		LedgerCap:    store.DefaultLedgerCap,
		Thresholds:   outlier.DefaultThresholds(),
		PruneTimeout: 30 * time.Second,
		MaxSkew:      time.Hour,
		Cache:        cache.DefaultOptions(),
	}
}

type Engine struct {
	ledger store.Ledger
	lookup *cache.Table[model.SurprisalTable]
	scores *cache.Table[model.ScoreTable]
	shadow *cache.Shadow
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	prunes sync.WaitGroup
}

// New returns an engine over st. logger may be nil.
func New(st Store, cfg Config, logger *zap.Logger) *Engine {
	d := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = d.Window
	}
	if cfg.LedgerCap <= 0 {
		cfg.LedgerCap = d.LedgerCap
	}
	if cfg.PruneTimeout <= 0 {
		cfg.PruneTimeout = d.PruneTimeout
	}
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = d.MaxSkew
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Cache.Logger = logger
	now := cfg.Cache.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		ledger: st,
		lookup: cache.NewTable(model.LookupCache, st, surprisal.Valid, cfg.Cache),
		scores: cache.NewTable(model.ScoreCache, st, score.Valid, cfg.Cache),
		shadow: cfg.Cache.Shadow,
		cfg:    cfg,
		logger: logger,
		now:    now,
	}
}

// Validate checks an event before it is recorded.
func Validate(ev model.ActionEvent) error {
	fields := []struct{ name, value string }{
		{"context", ev.Context},
		{"key", ev.Key},
		{"action", ev.Action},
	}
	for _, f := range fields {
		if f.value == "" {
			return &ValidationError{Field: f.name, Reason: "is required"}
		}
		if f.value == model.DefaultContext {
			return &ValidationError{Field: f.name, Reason: "reserved value " + model.DefaultContext}
		}
	}
	if ev.Timestamp.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	return nil
}

// RecordAndScore appends the event to the ledger and rates its actor against
// every actor of the context active in the window ending at the event time.
func (e *Engine) RecordAndScore(ctx context.Context, ev model.ActionEvent) (*model.Result, error) {
	start := time.Now()
	if err := Validate(ev); err != nil {
		return nil, err
	}
	if limit := e.now().Add(e.cfg.MaxSkew); ev.Timestamp.After(limit) {
		return nil, &ValidationError{
			Field:  "date",
			Reason: fmt.Sprintf("%s is more than %s in the future", ev.Timestamp.UTC().Format(time.RFC3339), e.cfg.MaxSkew),
		}
	}
	ev.Timestamp = ev.Timestamp.UTC()
	log := e.logger.With(zap.String("context", ev.Context), zap.String("key", ev.Key))

	n, err := e.ledger.AppendAction(ctx, store.AppendParams{
		Context: ev.Context,
		Key:     ev.Key,
		Action:  ev.Action,
		Now:     ev.Timestamp,
		Cap:     e.cfg.LedgerCap,
	})
	if err != nil {
		return nil, &StoreError{Op: "append action", Err: err}
	}
	if n == 0 {
		return nil, &StoreError{Op: "append action", Err: errNotRecorded}
	}
	metrics.ActionsRecorded.Inc()

	since := ev.Timestamp.Add(-e.cfg.Window)

	lookup, lookupRuntime, err := e.lookupTable(ctx, ev, since, start)
	if err != nil {
		return nil, err
	}
	table, scoreRuntime, err := e.scoreTable(ctx, ev, since, lookup)
	if err != nil {
		return nil, err
	}

	e.prune(ctx, ev.Context, since)

	rating, err := outlier.Classify(table, ev.Key, e.cfg.Thresholds)
	if err != nil {
		metrics.ContractViolations.Inc()
		log.Error("actor missing from score table",
			zap.Int("rows", len(table.Rows)),
			zap.Time("since", since),
			zap.Error(err))
	}
	if rating.Outlier {
		metrics.OutliersTotal.Inc()
		log.Info("outlier detected",
			zap.String("action", ev.Action),
			zap.Float64("xz", rating.XZ),
			zap.Float64("nz", rating.NZ))
	}

	return &model.Result{
		Context:      ev.Context,
		Key:          ev.Key,
		Action:       ev.Action,
		Date:         ev.Timestamp,
		Runtime:      time.Since(start).Seconds(),
		CacheRuntime: (lookupRuntime + scoreRuntime).Seconds(),
		Rating:       rating,
	}, nil
}

// lookupTable returns the surprisal table of the context, rebuilding it when
// the cache has none or it does not know the action being scored. The
// returned duration is the rebuild time.
func (e *Engine) lookupTable(ctx context.Context, ev model.ActionEvent, since, start time.Time) (model.SurprisalTable, time.Duration, error) {
	t, outcome, err := e.lookup.Read(ctx, ev.Context)
	if err != nil {
		return nil, 0, &StoreError{Op: "read lookup cache", Err: err}
	}
	if outcome.Found() && t.Has(ev.Action) {
		return t, 0, nil
	}

	begin := time.Now()
	hist, err := e.ledger.Histogram(ctx, ev.Context, since)
	if err != nil {
		return nil, 0, &StoreError{Op: "aggregate actions", Err: err}
	}
	t = surprisal.Build(hist)
	took := time.Since(begin)
	metrics.RecomputeDuration.WithLabelValues(string(model.LookupCache), "full").Observe(took.Seconds())

	if len(t) > 0 {
		// Valid for at least as long as this whole request has taken so far.
		if _, err := e.lookup.Write(context.WithoutCancel(ctx), ev.Context, t, time.Since(start)); err != nil {
			return nil, 0, &StoreError{Op: "write lookup cache", Err: err}
		}
	}
	return t, took, nil
}

// scoreTable patches the cached score table with the actor's fresh row, or
// rebuilds and caches the whole table on a miss. Only full rebuilds are
// written back. The returned duration is the rebuild time.
func (e *Engine) scoreTable(ctx context.Context, ev model.ActionEvent, since time.Time, lookup model.SurprisalTable) (model.ScoreTable, time.Duration, error) {
	cached, outcome, err := e.scores.Read(ctx, ev.Context)
	if err != nil {
		return model.ScoreTable{}, 0, &StoreError{Op: "read score cache", Err: err}
	}

	begin := time.Now()
	if outcome.Found() {
		entry, err := e.ledger.QueryKey(ctx, ev.Context, ev.Key, since)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return model.ScoreTable{}, 0, &StoreError{Op: "query actor", Err: err}
		}
		t := score.Patch(cached, ev.Key, entry, lookup)
		metrics.RecomputeDuration.WithLabelValues(string(model.ScoreCache), "incremental").Observe(time.Since(begin).Seconds())
		return t, 0, nil
	}

	entries, err := e.ledger.QueryWindow(ctx, ev.Context, since)
	if err != nil {
		return model.ScoreTable{}, 0, &StoreError{Op: "query window", Err: err}
	}
	t := score.Build(entries, lookup)
	took := time.Since(begin)
	metrics.RecomputeDuration.WithLabelValues(string(model.ScoreCache), "full").Observe(took.Seconds())

	if len(t.Rows) > 0 {
		if _, err := e.scores.Write(context.WithoutCancel(ctx), ev.Context, t, took); err != nil {
			return model.ScoreTable{}, 0, &StoreError{Op: "write score cache", Err: err}
		}
	}
	return t, took, nil
}

// prune drops actors that fell out of the window without delaying the caller.
func (e *Engine) prune(ctx context.Context, ns string, cutoff time.Time) {
	e.prunes.Add(1)
	go func() {
		defer e.prunes.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PruneTimeout)
		defer cancel()

		n, err := e.ledger.PruneOlderThan(ctx, ns, cutoff)
		if err != nil {
			metrics.PruneFailures.Inc()
			e.logger.Warn("prune failed", zap.String("context", ns), zap.Time("cutoff", cutoff), zap.Error(err))
			return
		}
		if n > 0 {
			metrics.PrunedActors.Add(float64(n))
			e.logger.Debug("pruned ledger", zap.String("context", ns), zap.Int64("actors", n))
		}
	}()
}

// ResetContext wipes the ledger and both caches of a context.
func (e *Engine) ResetContext(ctx context.Context, ns string) error {
	if ns == "" {
		return &ValidationError{Field: "context", Reason: "is required"}
	}
	if ns == model.DefaultContext {
		return &ValidationError{Field: "context", Reason: "reserved value " + model.DefaultContext}
	}

	if err := e.ledger.FlushContext(ctx, ns); err != nil {
		return &StoreError{Op: "flush ledger", Err: err}
	}
	if err := e.lookup.Flush(ctx, ns); err != nil {
		return &StoreError{Op: "flush lookup cache", Err: err}
	}
	if err := e.scores.Flush(ctx, ns); err != nil {
		return &StoreError{Op: "flush score cache", Err: err}
	}
	e.shadow.Purge()

	e.logger.Info("context reset", zap.String("context", ns))
	return nil
}

// Close waits for background prunes to finish.
func (e *Engine) Close() {
	e.prunes.Wait()
}
