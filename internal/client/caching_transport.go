package client

import (
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/rs/zerolog/log"
)

// resettableCache is an httpcache.Cache that can be emptied when the session
// identity changes, so one user's cached records are never served to another.
type resettableCache struct {
	dir string

	mu    sync.RWMutex
	cache httpcache.Cache
}

var _ httpcache.Cache = (*resettableCache)(nil)

// newResettableCache uses a disk cache under dir, or memory when dir is empty.
func newResettableCache(dir string) (*resettableCache, error) {
	c := &resettableCache{dir: dir}
	if err := c.Reset(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *resettableCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Get(key)
}

func (c *resettableCache) Set(key string, responseBytes []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.cache.Set(key, responseBytes)
}

func (c *resettableCache) Delete(key string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.cache.Delete(key)
}

// Reset replaces the backing cache with an empty one.
func (c *resettableCache) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dir == "" {
		c.cache = httpcache.NewMemoryCache()
		return nil
	}

	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("failed to clear response cache: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create response cache directory: %w", err)
	}
	c.cache = diskcache.New(c.dir)

	log.Debug().Str("dir", c.dir).Msg("response cache reset")

	return nil
}

// transport returns an httpcache transport over next. Cached responses carry
// the httpcache.XFromCache header.
func (c *resettableCache) transport(next http.RoundTripper) http.RoundTripper {
	t := httpcache.NewTransport(c)
	t.Transport = next
	t.MarkCachedResponses = true
	return t
}
