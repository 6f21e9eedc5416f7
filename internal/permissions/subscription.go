package permissions

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Subscription keeps a key refreshed in the background until closed.
type Subscription struct {
	cache   *Cache
	key     Key
	updates chan State
	once    sync.Once
}

// Key returns the subscribed key.
func (s *Subscription) Key() Key { return s.key }

// Updates delivers the latest state after every fetch for the key. Only the
// most recent state is buffered. The channel is closed by Close.
func (s *Subscription) Updates() <-chan State { return s.updates }

// Close removes the subscription. The refresh loop stops when no subscriptions remain.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cache.unsubscribe(s)
	})
}

// Subscribe starts refreshing key every refresh interval, regardless of
// freshness, until the returned subscription is closed. The current state is
// delivered immediately when the cache already holds one.
func (c *Cache) Subscribe(key Key) *Subscription {
	sub := &Subscription{
		cache:   c,
		key:     key,
		updates: make(chan State, 1),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(sub.updates)
		sub.once.Do(func() {})
		return sub
	}

	set, ok := c.subs[key]
	if !ok {
		set = make(map[*Subscription]struct{})
		c.subs[key] = set
	}
	set[sub] = struct{}{}

	if c.loopCancel == nil {
		c.startLoopLocked()
	}

	if e, ok := c.entries[key]; ok && (e.snapshot != nil || e.err != nil) {
		sub.offer(e.state(key))
	}
	c.mu.Unlock()

	// warm the entry, a missing key starts loading now rather than on the first tick
	c.Query(key)

	log.Debug().Str("key", key.String()).Msg("permission subscription opened")

	return sub
}

func (c *Cache) unsubscribe(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.subs[sub.key]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}

	delete(set, sub)
	close(sub.updates)
	if len(set) == 0 {
		delete(c.subs, sub.key)
	}

	if len(c.subs) == 0 {
		c.stopLoopLocked()
	}

	log.Debug().Str("key", sub.key.String()).Msg("permission subscription closed")
}

// offer replaces any undelivered state with st. Must be called with the cache mu held.
func (s *Subscription) offer(st State) {
	select {
	case s.updates <- st:
		return
	default:
	}

	select {
	case <-s.updates:
	default:
	}

	select {
	case s.updates <- st:
	default:
	}
}

func (c *Cache) notifyLocked(key Key, st State) {
	for sub := range c.subs[key] {
		sub.offer(st)
	}
}

func (c *Cache) startLoopLocked() {
	ctx, cancel := context.WithCancel(c.ctx)
	c.loopCancel = cancel

	c.wg.Add(1)
	go c.refreshLoop(ctx)

	log.Debug().Dur("interval", c.refreshInterval).Msg("permission refresh loop started")
}

func (c *Cache) stopLoopLocked() {
	if c.loopCancel == nil {
		return
	}
	c.loopCancel()
	c.loopCancel = nil
}

// refreshLoop re-fetches every subscribed key on each tick and sweeps idle entries.
func (c *Cache) refreshLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("permission refresh loop stopped")
			return

		case <-ticker.C:
			c.refreshSubscribed(ctx)
		}
	}
}

func (c *Cache) refreshSubscribed(ctx context.Context) {
	c.mu.Lock()
	now := c.now()
	keys := make([]Key, 0, len(c.subs))
	for key := range c.subs {
		keys = append(keys, key)
		if e, ok := c.entries[key]; ok {
			e.lastAccess = now
		}
	}
	c.evictIdleLocked(now)
	c.mu.Unlock()

	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.fetch(ctx, key); err != nil {
			log.Debug().Err(err).Str("key", key.String()).Msg("background permission refresh failed")
		}
	}
}
