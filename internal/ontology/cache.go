package ontology

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"statforge/internal/statement"
)

const (
	defaultCacheTTL     = 30 * time.Minute
	defaultCacheCleanup = 10 * time.Minute
)

// CachedComparator memoizes comparison results by shallow fingerprint pair.
// Pairwise linking revisits the same contents across batches and incremental
// runs, so the same query recurs often.
type CachedComparator struct {
	inner Comparator
	cache *gocache.Cache
}

func NewCachedComparator(inner Comparator) *CachedComparator {
	return &CachedComparator{
		inner: inner,
		cache: gocache.New(defaultCacheTTL, defaultCacheCleanup),
	}
}

func (c *CachedComparator) Compare(a, b statement.Content) Result {
	fa := statement.ShallowFingerprint(a)
	fb := statement.ShallowFingerprint(b)

	// One cache entry serves both orientations of a pair.
	key := fmt.Sprintf("%d|%d", fa, fb)
	inverted := false
	if fb < fa {
		key = fmt.Sprintf("%d|%d", fb, fa)
		inverted = true
	}

	if cached, ok := c.cache.Get(key); ok {
		res := cached.(Result)
		if inverted {
			return res.Invert()
		}
		return res
	}

	res := c.inner.Compare(a, b)
	stored := res
	if inverted {
		stored = res.Invert()
	}
	c.cache.Set(key, stored, gocache.DefaultExpiration)
	return res
}
