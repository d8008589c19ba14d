package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CacheStore persists resolved locations across processes.
type CacheStore interface {
	// GetGeocode returns the cached location for key; found is false on a
	// miss.
	GetGeocode(ctx context.Context, key string) (loc *Location, found bool, err error)
	// PutGeocode stores a location under key.
	PutGeocode(ctx context.Context, key, address string, loc *Location) error
}

// LookupFunc observes cache lookups; tier is "memory" or "store".
type LookupFunc func(tier string, hit bool)

// Cached wraps a Resolver with an in-memory LRU and an optional persistent
// store. Only successful resolutions with a full locality are cached, so a
// transient Nominatim failure is retried on the next run.
type Cached struct {
	next   Resolver
	mem    *lru.Cache[string, Location]
	store  CacheStore
	lookup LookupFunc
}

// NewCached creates a cache of size entries in front of next. store and
// lookup may be nil.
func NewCached(next Resolver, size int, store CacheStore, lookup LookupFunc) (*Cached, error) {
	if size <= 0 {
		size = 256
	}
	mem, err := lru.New[string, Location](size)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create lru")
	}
	return &Cached{next: next, mem: mem, store: store, lookup: lookup}, nil
}

// Resolve returns a cached location or delegates to the wrapped resolver.
func (c *Cached) Resolve(ctx context.Context, address string) (*Location, error) {
	key := cacheKey(address)

	if loc, ok := c.mem.Get(key); ok {
		c.observe("memory", true)
		return &loc, nil
	}
	c.observe("memory", false)

	if c.store != nil {
		loc, found, err := c.store.GetGeocode(ctx, key)
		switch {
		case err != nil:
			zap.L().Warn("geocode: cache store lookup failed", zap.Error(err))
		case found:
			c.observe("store", true)
			c.mem.Add(key, *loc)
			return loc, nil
		default:
			c.observe("store", false)
		}
	}

	loc, err := c.next.Resolve(ctx, address)
	if err != nil {
		return nil, err
	}
	if loc.HasLocality() {
		c.mem.Add(key, *loc)
		if c.store != nil {
			if err := c.store.PutGeocode(ctx, key, address, loc); err != nil {
				zap.L().Warn("geocode: cache store write failed", zap.Error(err))
			}
		}
	}
	return loc, nil
}

func (c *Cached) observe(tier string, hit bool) {
	if c.lookup != nil {
		c.lookup(tier, hit)
	}
}

// cacheKey returns SHA-256 hex of the normalized address.
func cacheKey(address string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(address)), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}
