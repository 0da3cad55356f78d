// Package cache keeps computed route responses for a few minutes and
// collapses identical in-flight computations into one.
package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kass/go-eco-route/pkg/geo"
	"github.com/kass/go-eco-route/pkg/models"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL     = 5 * time.Minute
	DefaultLongTTL = 15 * time.Minute
	DefaultHorizon = 3 * time.Hour

	// SlotSize is the departure-time bucket shared by one cache entry
	SlotSize = 5 * time.Minute

	keyPrecision = 7
)

// Key identifies a routing request: both endpoints at geohash precision 7,
// the profile and the 5-minute UTC slot of the departure
func Key(start, end models.Location, pref models.Preference, departure time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s",
		geo.Geohash(start, keyPrecision),
		geo.Geohash(end, keyPrecision),
		pref,
		Slot(departure),
	)
}

// Slot truncates t to its 5-minute UTC bucket
func Slot(t time.Time) string {
	return t.UTC().Truncate(SlotSize).Format(time.RFC3339)
}

type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// Cache is a TTL cache of values of type V
type Cache[V any] struct {
	store   *gocache.Cache
	group   singleflight.Group
	ttl     time.Duration
	longTTL time.Duration
	horizon time.Duration
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache. Departures more than horizon after now are kept for
// longTTL, everything else for ttl.
func New[V any](ttl, longTTL, horizon, cleanup time.Duration) *Cache[V] {
	return &Cache[V]{
		store:   gocache.New(ttl, cleanup),
		ttl:     ttl,
		longTTL: longTTL,
		horizon: horizon,
		now:     time.Now,
	}
}

// TTLFor picks the lifetime of an entry for the given departure. A zero
// departure means "now".
func (c *Cache[V]) TTLFor(departure time.Time) time.Duration {
	if departure.IsZero() || departure.Sub(c.now()) <= c.horizon {
		return c.ttl
	}
	return c.longTTL
}

// TTLs returns the near-term and far-future entry lifetimes
func (c *Cache[V]) TTLs() (time.Duration, time.Duration) {
	return c.ttl, c.longTTL
}

func (c *Cache[V]) Get(key string) (V, bool) {
	if v, ok := c.store.Get(key); ok {
		c.hits.Add(1)
		return v.(V), true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

func (c *Cache[V]) Set(key string, v V, ttl time.Duration) {
	c.store.Set(key, v, ttl)
}

// GetOrCompute returns the cached value for key, or runs compute once for
// all concurrent callers of the same key and caches its result for ttl.
// Errors are not cached. The boolean reports a cache hit.
func (c *Cache[V]) GetOrCompute(key string, ttl time.Duration, compute func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.store.Get(key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.store.Set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), false, nil
}

func (c *Cache[V]) Flush() {
	c.store.Flush()
}

func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.store.ItemCount(),
	}
}
