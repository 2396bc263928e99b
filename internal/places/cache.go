package places

import (
	"sync"
	"time"
)

// DetailCacheTTL bounds how long a POI detail record is served from
// cache. City coordinates are stable and cached for the process
// lifetime; opening hours and ratings drift, so details expire.
const DetailCacheTTL = 7 * 24 * time.Hour

// cityCache caches successful geocode lookups keyed by
// "city|language" with no eviction.
type cityCache struct {
	mu sync.Mutex
	m  map[string]*GeocodeResult
}

func newCityCache() *cityCache {
	return &cityCache{m: map[string]*GeocodeResult{}}
}

func (c *cityCache) get(key string) (*GeocodeResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *cityCache) put(key string, v *GeocodeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = v
}

type detailEntry struct {
	at     time.Time
	detail *Detail
}

// detailCache caches POI detail lookups with a TTL. Expired entries
// are dropped lazily on read.
type detailCache struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	m   map[string]detailEntry
}

func newDetailCache(ttl time.Duration) *detailCache {
	return &detailCache{ttl: ttl, now: time.Now, m: map[string]detailEntry{}}
}

func (c *detailCache) get(placeID string) (*Detail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[placeID]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.at) >= c.ttl {
		delete(c.m, placeID)
		return nil, false
	}
	return e.detail, true
}

func (c *detailCache) put(placeID string, d *Detail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[placeID] = detailEntry{at: c.now(), detail: d}
}
