package server

import (
	"strconv"
	"sync"
	"time"
)

type cacheEntry struct {
	data        []byte
	contentType string
	created     time.Time
}

// resultCache keeps rendered spot results for a short time so repeated
// requests for the same page do not start a browser tab each time.
type resultCache struct {
	mu   sync.RWMutex
	now  func() time.Time
	ttl  time.Duration
	data map[string]cacheEntry
}

func newResultCache(now func() time.Time, ttl time.Duration) *resultCache {
	if now == nil {
		now = time.Now
	}
	return &resultCache{
		now:  now,
		ttl:  ttl,
		data: make(map[string]cacheEntry),
	}
}

func cacheKey(target, format string, minSize int) string {
	return target + "|" + format + ":min=" + strconv.Itoa(minSize)
}

func (c *resultCache) Store(key string, data []byte, contentType string) {
	if c.ttl <= 0 || len(data) == 0 {
		return
	}
	entry := cacheEntry{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		created:     c.now(),
	}
	c.mu.Lock()
	c.data[key] = entry
	c.mu.Unlock()
}

func (c *resultCache) Get(key string) ([]byte, string, bool) {
	if c.ttl <= 0 {
		return nil, "", false
	}
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, "", false
	}
	if c.now().Sub(entry.created) > c.ttl {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return nil, "", false
	}
	return append([]byte(nil), entry.data...), entry.contentType, true
}
