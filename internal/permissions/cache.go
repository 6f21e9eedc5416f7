package permissions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultFreshFor is how long a snapshot is served without a network call.
	DefaultFreshFor = 25 * time.Second
	// DefaultRefreshInterval is the background refresh cadence for subscribed keys.
	DefaultRefreshInterval = 30 * time.Second
	// DefaultEvictAfter is how long an unaccessed entry is retained.
	DefaultEvictAfter = 60 * time.Second
	// DefaultFetchTimeout bounds a single shared permission fetch.
	DefaultFetchTimeout = 30 * time.Second
)

// ErrClosed is returned after the cache has been closed.
var ErrClosed = errors.New("permission cache closed")

// Fetcher resolves a snapshot for key from the backend.
type Fetcher interface {
	FetchPermissions(ctx context.Context, key Key) (*Snapshot, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key Key) (*Snapshot, error)

func (f FetcherFunc) FetchPermissions(ctx context.Context, key Key) (*Snapshot, error) {
	return f(ctx, key)
}

// FetchError wraps a failed snapshot fetch.
type FetchError struct {
	Key Key
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch permissions for %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// State is what a consumer sees for a key at a point in time. Err set means
// deny, even when an older Snapshot is still present.
type State struct {
	Key       Key
	Snapshot  *Snapshot
	Err       error
	Loading   bool
	FetchedAt time.Time
}

type entry struct {
	snapshot   *Snapshot
	err        error
	fetchedAt  time.Time
	lastAccess time.Time
	generation uint64
	loading    bool
}

func (e *entry) state(key Key) State {
	return State{
		Key:       key,
		Snapshot:  e.snapshot,
		Err:       e.err,
		Loading:   e.loading,
		FetchedAt: e.fetchedAt,
	}
}

// Option configures a Cache.
type Option func(*Cache)

// WithFreshFor overrides DefaultFreshFor.
func WithFreshFor(d time.Duration) Option {
	return func(c *Cache) { c.freshFor = d }
}

// WithRefreshInterval overrides DefaultRefreshInterval.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Cache) { c.refreshInterval = d }
}

// WithEvictAfter overrides DefaultEvictAfter.
func WithEvictAfter(d time.Duration) Option {
	return func(c *Cache) { c.evictAfter = d }
}

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) { c.fetchTimeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache holds permission snapshots keyed by team selection.
type Cache struct {
	fetcher         Fetcher
	freshFor        time.Duration
	refreshInterval time.Duration
	evictAfter      time.Duration
	fetchTimeout    time.Duration
	now             func() time.Time
	metrics         *telemetry.Metrics

	group singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	entries    map[Key]*entry
	epoch      uint64
	generation uint64
	subs       map[Key]map[*Subscription]struct{}
	loopCancel context.CancelFunc
	closed     bool
}

// New creates a cache using fetcher to resolve snapshots.
func New(fetcher Fetcher, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Cache{
		fetcher:         fetcher,
		freshFor:        DefaultFreshFor,
		refreshInterval: DefaultRefreshInterval,
		evictAfter:      DefaultEvictAfter,
		fetchTimeout:    DefaultFetchTimeout,
		now:             time.Now,
		metrics:         telemetry.GetMetrics(),
		ctx:             ctx,
		cancel:          cancel,
		entries:         make(map[Key]*entry),
		subs:            make(map[Key]map[*Subscription]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the snapshot for key, fetching it unless a fresh entry exists.
func (c *Cache) Get(ctx context.Context, key Key) (*Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	now := c.now()
	c.evictIdleLocked(now)
	if e, ok := c.entries[key]; ok {
		e.lastAccess = now
		if c.freshLocked(e, now) {
			snap := e.snapshot
			c.mu.Unlock()
			c.metrics.PermissionCacheHits.Add(ctx, 1, keyAttr(key))
			return snap, nil
		}
	}
	c.mu.Unlock()

	c.metrics.PermissionCacheMisses.Add(ctx, 1, keyAttr(key))

	return c.fetch(ctx, key)
}

// Query returns the current state for key without blocking. A missing or stale
// entry starts a background fetch; a missing entry reports Loading.
func (c *Cache) Query(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return State{Key: key, Err: ErrClosed}
	}

	now := c.now()
	c.evictIdleLocked(now)

	e, ok := c.entries[key]
	if !ok {
		e = &entry{lastAccess: now}
		c.entries[key] = e
	}
	e.lastAccess = now

	if !c.freshLocked(e, now) && !e.loading {
		e.loading = true
		c.startBackgroundLocked(key)
	}

	return e.state(key)
}

// Invalidate drops the entry for key.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Reset drops every entry. Fetches already in flight are discarded when they complete.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.entries = make(map[Key]*entry)

	log.Debug().Uint64("epoch", c.epoch).Msg("permission cache reset")
}

// Close stops the refresh loop and background fetches and closes all subscriptions.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for key, set := range c.subs {
		for sub := range set {
			close(sub.updates)
		}
		delete(c.subs, key)
	}
	c.stopLoopLocked()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// Len returns the number of entries, for diagnostics and tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) freshLocked(e *entry, now time.Time) bool {
	return e.snapshot != nil && e.err == nil && now.Sub(e.fetchedAt) < c.freshFor
}

// startBackgroundLocked runs a fetch on the cache lifecycle context.
func (c *Cache) startBackgroundLocked(key Key) {
	epoch := c.epoch
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _ = c.fetchEpoch(c.ctx, key, epoch)
	}()
}

func (c *Cache) fetch(ctx context.Context, key Key) (*Snapshot, error) {
	c.mu.Lock()
	epoch := c.epoch
	e, ok := c.entries[key]
	if !ok {
		e = &entry{lastAccess: c.now()}
		c.entries[key] = e
	}
	e.loading = true
	c.mu.Unlock()

	return c.fetchEpoch(ctx, key, epoch)
}

// fetchEpoch performs a fetch, collapsed with any other fetch for the same key
// and epoch, and records the result if it is still current. The shared fetch
// outlives the caller that started it, bounded by the fetch timeout and the
// cache lifetime; each caller stops waiting when its own ctx is done.
func (c *Cache) fetchEpoch(ctx context.Context, key Key, epoch uint64) (*Snapshot, error) {
	flightKey := fmt.Sprintf("%d/%s", epoch, key)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		stop := context.AfterFunc(c.ctx, cancel)
		defer stop()

		c.mu.Lock()
		c.generation++
		gen := c.generation
		c.mu.Unlock()

		started := time.Now()
		c.metrics.PermissionFetches.Add(fctx, 1, keyAttr(key))

		snap, err := c.fetcher.FetchPermissions(fctx, key)

		c.metrics.PermissionFetchDuration.Record(fctx,
			float64(time.Since(started).Milliseconds()), keyAttr(key))

		if err != nil && c.ctx.Err() != nil {
			// the cache closed, nothing was learned about the key
			c.abandon(key, epoch)
			return nil, &FetchError{Key: key, Err: err}
		}

		if err != nil {
			c.metrics.PermissionFetchErrors.Add(fctx, 1, keyAttr(key))
			log.Warn().Err(err).Str("key", key.String()).Msg("permission fetch failed")
			err = &FetchError{Key: key, Err: err}
		} else if snap == nil {
			err = &FetchError{Key: key, Err: errors.New("empty permission snapshot")}
		}

		c.record(key, epoch, gen, snap, err)

		return snap, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, &FetchError{Key: key, Err: ctx.Err()}
	}
}

// record stores a fetch result under the key it was issued for, unless a reset
// or a newer result superseded it.
func (c *Cache) record(key Key, epoch, gen uint64, snap *Snapshot, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || epoch != c.epoch {
		c.metrics.PermissionStaleDiscarded.Add(context.Background(), 1, keyAttr(key))
		log.Debug().Str("key", key.String()).Msg("discarding permission result from before reset")
		return
	}

	now := c.now()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{lastAccess: now}
		c.entries[key] = e
	}

	if gen < e.generation {
		c.metrics.PermissionStaleDiscarded.Add(context.Background(), 1, keyAttr(key))
		log.Debug().Str("key", key.String()).Msg("discarding superseded permission result")
		return
	}

	e.generation = gen
	e.loading = false
	if err != nil {
		// the previous snapshot stays readable, Err forces a deny
		e.err = err
	} else {
		e.snapshot = snap
		e.err = nil
		e.fetchedAt = now
	}

	c.notifyLocked(key, e.state(key))
}

func (c *Cache) abandon(key Key, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return
	}
	if e, ok := c.entries[key]; ok {
		e.loading = false
	}
}

// evictIdleLocked drops entries that were not accessed within evictAfter.
// Subscribed keys and entries with a fetch in flight are kept.
func (c *Cache) evictIdleLocked(now time.Time) {
	for key, e := range c.entries {
		if len(c.subs[key]) > 0 || e.loading {
			continue
		}
		if now.Sub(e.lastAccess) >= c.evictAfter {
			delete(c.entries, key)
			c.metrics.PermissionEvictions.Add(context.Background(), 1, keyAttr(key))
			log.Debug().Str("key", key.String()).Msg("evicted idle permission entry")
		}
	}
}

func keyAttr(key Key) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("key", key.String()))
}
