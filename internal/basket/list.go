// Package basket holds the session cache: the in-memory item collection,
// its staleness window, the dirty flag and the queue of writes waiting to be
// flushed to the record store.
package basket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/basket/internal/metrics"
	"github.com/mesh-intelligence/basket/internal/resolve"
	"github.com/mesh-intelligence/basket/internal/store"
	"github.com/mesh-intelligence/basket/pkg/types"
)

// DefaultFlushTimeout bounds a flush started by the batch timer.
const DefaultFlushTimeout = 30 * time.Second

// Options configure a List. Zero values fall back to the types.Config defaults.
type Options struct {
	SyncStrategy  types.SyncStrategy
	BatchSize     int
	BatchInterval time.Duration
	CacheTTL      time.Duration
	MatchPolicy   types.MatchPolicy
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// OptionsFromConfig maps a validated config onto list options.
func OptionsFromConfig(cfg types.Config) Options {
	return Options{
		SyncStrategy:  cfg.GetSyncStrategy(),
		BatchSize:     cfg.GetBatchSize(),
		BatchInterval: cfg.GetBatchInterval(),
		CacheTTL:      cfg.GetCacheTTL(),
		MatchPolicy:   cfg.GetMatchPolicy(),
	}
}

// List is the session cache. It is safe for concurrent use; every operation
// holds the list lock for the whole load-resolve-flush pass.
type List struct {
	mu       sync.Mutex
	adapter  *store.Adapter
	resolver *resolve.Resolver
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	syncStrategy  types.SyncStrategy
	batchSize     int
	batchInterval time.Duration
	ttl           time.Duration

	items    []types.Item
	loaded   bool
	loadedAt time.Time
	stale    bool
	keyed    bool
	degraded bool
	closed   bool

	// needsReplace is set when the next flush must rewrite the whole sheet.
	needsReplace  bool
	pendingWrites []pendingWrite
	batchTimer    *time.Timer
}

// pendingWrite is a targeted write waiting for a flush.
type pendingWrite struct {
	operation string // store.OpAppend, OpUpdate or OpDelete
	id        string
	persist   func(ctx context.Context) error
}

// Status is a point-in-time view of the cache state.
type Status struct {
	Items    int       `json:"items"`
	Pending  int       `json:"pending"`
	Dirty    bool      `json:"dirty"`
	Degraded bool      `json:"degraded"`
	Keyed    bool      `json:"keyed"`
	LoadedAt time.Time `json:"loaded_at"`
}

// New returns a list over adapter. Nothing is loaded until first use.
func New(adapter *store.Adapter, opts Options) (*List, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SyncStrategy == "" {
		opts.SyncStrategy = types.SyncImmediate
	}
	switch opts.SyncStrategy {
	case types.SyncImmediate, types.SyncOnClose, types.SyncBatch:
	default:
		return nil, types.ErrSyncStrategyUnknown
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = types.DefaultBatchSize
	}
	if opts.CacheTTL < 0 {
		return nil, types.ErrCacheTTLInvalid
	}
	r, err := resolve.New(opts.MatchPolicy, opts.Logger)
	if err != nil {
		return nil, err
	}

	l := &List{
		adapter:       adapter,
		resolver:      r,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Now,
		syncStrategy:  opts.SyncStrategy,
		batchSize:     opts.BatchSize,
		batchInterval: opts.BatchInterval,
		ttl:           opts.CacheTTL,
		keyed:         true,
	}
	if l.syncStrategy == types.SyncBatch && l.batchInterval > 0 {
		l.startBatchTimer()
	}
	return l, nil
}

// Items returns a copy of the collection, loading it first when the cache
// is empty, invalidated or older than the TTL.
func (l *List) Items(ctx context.Context) ([]types.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, types.ErrListClosed
	}
	l.ensureLoadedLocked(ctx)
	return l.copyItemsLocked(), nil
}

// Apply resolves a against the cached collection, queues the resulting
// write and flushes according to the sync strategy. The outcome is valid
// even when the flush fails; the edit then stays dirty.
func (l *List) Apply(ctx context.Context, a types.Action) (resolve.Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return resolve.Outcome{Action: a}, types.ErrListClosed
	}
	l.ensureLoadedLocked(ctx)

	items, oc := l.resolver.Resolve(l.items, a)
	if !oc.Applied {
		l.metrics.Actions.WithLabelValues(string(a.Kind), metrics.ResultIgnored).Inc()
		return oc, nil
	}
	l.metrics.Actions.WithLabelValues(string(a.Kind), metrics.ResultApplied).Inc()
	l.items = items

	for _, it := range oc.Changed {
		l.queueUpdateLocked(it)
	}
	for _, it := range oc.Removed {
		l.queueDeleteLocked(it.ID)
	}
	l.logger.Info("applied action",
		zap.String("kind", string(a.Kind)),
		zap.String("id", oc.ID),
		zap.Int("changed", len(oc.Changed)),
		zap.Int("removed", len(oc.Removed)))
	return oc, l.afterMutationLocked(ctx)
}

// Add appends a new item with a fresh identifier. The returned item is in
// the cache even when the flush fails.
func (l *List) Add(ctx context.Context, name, category, storeName string) (types.Item, error) {
	it := types.Item{Name: name, Category: category, Store: storeName}
	if err := it.Normalize(); err != nil {
		return types.Item{}, err
	}
	id, err := store.NewID()
	if err != nil {
		return types.Item{}, err
	}
	it.ID = id

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return types.Item{}, types.ErrListClosed
	}
	l.ensureLoadedLocked(ctx)

	l.items = append(l.items, it)
	l.queueAppendLocked(it)
	l.logger.Info("added item", zap.String("id", it.ID), zap.String("name", it.Name))
	return it, l.afterMutationLocked(ctx)
}

// Flush writes every pending edit. On failure the unwritten edits stay
// queued and the list stays dirty.
func (l *List) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked(ctx)
}

// Save is the explicit user save. It flushes pending edits and rewrites a
// sheet that still lacks identifiers.
func (l *List) Save(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return types.ErrListClosed
	}
	l.ensureLoadedLocked(ctx)
	if !l.keyed && !l.degraded {
		l.needsReplace = true
	}
	return l.flushLocked(ctx)
}

// Refresh flushes pending edits and reloads from the store. When the flush
// fails the cache is kept and the error returned, except for ErrDegraded:
// edits made on top of a failed load are dropped by the reload.
func (l *List) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return types.ErrListClosed
	}
	if err := l.flushLocked(ctx); err != nil {
		if !errors.Is(err, types.ErrDegraded) {
			return err
		}
		l.logger.Warn("dropping edits made while the store was unreadable", zap.Int("items", len(l.items)))
	}
	l.loadLocked(ctx)
	return nil
}

// Invalidate marks the cache stale. The next access reloads unless there
// are unflushed edits.
func (l *List) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stale = true
}

// Dirty reports whether edits are waiting to be flushed.
func (l *List) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirtyLocked()
}

// Status returns the current cache state without loading.
func (l *List) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Items:    len(l.items),
		Pending:  len(l.pendingWrites),
		Dirty:    l.dirtyLocked(),
		Degraded: l.degraded,
		Keyed:    l.keyed,
		LoadedAt: l.loadedAt,
	}
}

// Close stops the batch timer and flushes. Close is idempotent. If the
// flush fails the list stays open so the caller can retry.
func (l *List) Close(ctx context.Context) error {
	l.stopBatchTimer()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	if err := l.flushLocked(ctx); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}
	l.closed = true
	return nil
}

func (l *List) dirtyLocked() bool {
	return l.needsReplace || len(l.pendingWrites) > 0
}

func (l *List) ensureLoadedLocked(ctx context.Context) {
	if l.loaded && !l.stale && !l.degraded && !l.expiredLocked() {
		return
	}
	if l.loaded && l.dirtyLocked() {
		l.logger.Debug("cache is stale but has unflushed edits; keeping it")
		return
	}
	l.loadLocked(ctx)
}

func (l *List) expiredLocked() bool {
	return l.ttl > 0 && l.now().Sub(l.loadedAt) >= l.ttl
}

func (l *List) loadLocked(ctx context.Context) {
	snap := l.adapter.Load(ctx)
	l.items = snap.Items
	l.keyed = snap.Keyed
	l.degraded = snap.Degraded
	l.loaded = true
	l.stale = false
	l.loadedAt = l.now()
	l.pendingWrites = nil
	l.needsReplace = false
	l.updateGaugesLocked()
}

func (l *List) copyItemsLocked() []types.Item {
	out := make([]types.Item, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List) queueAppendLocked(it types.Item) {
	l.queueWriteLocked(store.OpAppend, it.ID, func(ctx context.Context) error {
		return l.adapter.Append(ctx, it)
	})
}

func (l *List) queueUpdateLocked(it types.Item) {
	l.queueWriteLocked(store.OpUpdate, it.ID, func(ctx context.Context) error {
		return l.adapter.Update(ctx, it)
	})
}

func (l *List) queueDeleteLocked(id string) {
	l.queueWriteLocked(store.OpDelete, id, func(ctx context.Context) error {
		return l.adapter.Delete(ctx, id)
	})
}

// queueWriteLocked records a targeted write. A sheet that needs migrating
// gets a full replace instead, which covers every queued edit.
func (l *List) queueWriteLocked(operation, id string, persist func(context.Context) error) {
	if !l.keyed {
		l.needsReplace = true
		return
	}
	l.pendingWrites = append(l.pendingWrites, pendingWrite{operation: operation, id: id, persist: persist})
}

// afterMutationLocked applies the sync strategy after an edit.
func (l *List) afterMutationLocked(ctx context.Context) error {
	defer l.updateGaugesLocked()
	switch l.syncStrategy {
	case types.SyncOnClose:
		return nil
	case types.SyncBatch:
		if len(l.pendingWrites) < l.batchSize && !l.needsReplace {
			return nil
		}
	}
	return l.flushLocked(ctx)
}

func (l *List) flushLocked(ctx context.Context) error {
	defer l.updateGaugesLocked()
	if l.needsReplace {
		return l.replaceLocked(ctx)
	}
	for len(l.pendingWrites) > 0 {
		pw := l.pendingWrites[0]
		if err := pw.persist(ctx); err != nil {
			if errors.Is(err, types.ErrUnkeyed) {
				l.logger.Info("sheet has no identifier column; rewriting it")
				l.needsReplace = true
				return l.replaceLocked(ctx)
			}
			l.logger.Warn("flush failed; edits kept for retry",
				zap.String("operation", pw.operation),
				zap.String("id", pw.id),
				zap.Int("pending", len(l.pendingWrites)),
				zap.Error(err))
			return fmt.Errorf("flush %s %s: %w", pw.operation, pw.id, err)
		}
		l.pendingWrites = l.pendingWrites[1:]
	}
	l.pendingWrites = nil
	return nil
}

// replaceLocked rewrites the whole sheet from the cache. It refuses to when
// the cache came from a failed load.
func (l *List) replaceLocked(ctx context.Context) error {
	if l.degraded {
		return types.ErrDegraded
	}
	if err := l.adapter.Save(ctx, l.items); err != nil {
		l.logger.Warn("full save failed; edits kept for retry", zap.Error(err))
		return fmt.Errorf("flush replace: %w", err)
	}
	l.needsReplace = false
	l.keyed = true
	l.pendingWrites = nil
	return nil
}

func (l *List) updateGaugesLocked() {
	l.metrics.Items.Set(float64(len(l.items)))
	l.metrics.PendingWrites.Set(float64(len(l.pendingWrites)))
	l.metrics.Dirty.Set(metrics.Bool(l.dirtyLocked()))
}

// startBatchTimer flushes every batchInterval until the timer is stopped.
func (l *List) startBatchTimer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.batchTimer != nil {
		return
	}
	l.batchTimer = time.AfterFunc(l.batchInterval, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.closed || l.batchTimer == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), DefaultFlushTimeout)
		if err := l.flushLocked(ctx); err != nil {
			l.logger.Warn("batch flush failed", zap.Error(err))
		}
		cancel()
		l.batchTimer.Reset(l.batchInterval)
	})
}

func (l *List) stopBatchTimer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.batchTimer != nil {
		l.batchTimer.Stop()
		l.batchTimer = nil
	}
}
