package util

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// viewCache keeps computed dashboard views keyed by the refresh versions they
// were computed at. A mutation bumps a version, so stale entries are simply
// never read again and expire on their own.
var (
	viewCache   *cache.Cache
	viewCacheMu sync.RWMutex
)

// InitViewCache initializes the in-memory view cache. A ttl <= 0 disables caching.
func InitViewCache(ttl time.Duration) {
	viewCacheMu.Lock()
	defer viewCacheMu.Unlock()
	if ttl <= 0 {
		viewCache = nil
		return
	}
	viewCache = cache.New(ttl, 2*ttl)
}

// ViewCacheGet returns the cached value and true if present.
func ViewCacheGet(key string) (interface{}, bool) {
	viewCacheMu.RLock()
	defer viewCacheMu.RUnlock()
	if viewCache == nil {
		return nil, false
	}
	return viewCache.Get(key)
}

// ViewCacheSet stores value under key with the default expiration.
func ViewCacheSet(key string, value interface{}) {
	viewCacheMu.RLock()
	defer viewCacheMu.RUnlock()
	if viewCache == nil {
		return
	}
	viewCache.Set(key, value, cache.DefaultExpiration)
}

// ViewCacheFlush drops every cached view.
func ViewCacheFlush() {
	viewCacheMu.RLock()
	defer viewCacheMu.RUnlock()
	if viewCache != nil {
		viewCache.Flush()
	}
}
