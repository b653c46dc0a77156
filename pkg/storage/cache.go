package storage

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/vjranagit/timeseries/pkg/timeseries"
	"github.com/vjranagit/timeseries/pkg/types"
)

// SeriesCache implements an LRU cache of loaded series with a TTL.
// It stores and hands out clones, so cached series never alias a caller's.
type SeriesCache struct {
	capacity int
	ttl      time.Duration
	mu       sync.Mutex
	cache    map[types.SeriesRef]*cacheEntry
	lru      *list.List
}

// cacheEntry represents a cached series
type cacheEntry struct {
	ref       types.SeriesRef
	series    *timeseries.TimeSeries
	timestamp time.Time
	element   *list.Element
}

// NewSeriesCache creates a new series cache
func NewSeriesCache(capacity int, ttl time.Duration) *SeriesCache {
	return &SeriesCache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[types.SeriesRef]*cacheEntry),
		lru:      list.New(),
	}
}

// Get retrieves a copy of a cached series
func (sc *SeriesCache) Get(ref types.SeriesRef) (*timeseries.TimeSeries, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	entry, exists := sc.cache[ref]
	if !exists {
		return nil, false
	}

	if sc.ttl > 0 && time.Since(entry.timestamp) > sc.ttl {
		sc.removeLocked(ref)
		return nil, false
	}

	sc.lru.MoveToFront(entry.element)
	return entry.series.Clone(), true
}

// Put stores a copy of ts
func (sc *SeriesCache) Put(ts *timeseries.TimeSeries) {
	if sc.capacity <= 0 {
		return
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	ref := types.SeriesRef{Key: ts.Key, Metric: ts.Metric}
	snapshot := ts.Clone()

	if entry, exists := sc.cache[ref]; exists {
		entry.series = snapshot
		entry.timestamp = time.Now()
		sc.lru.MoveToFront(entry.element)
		return
	}

	entry := &cacheEntry{
		ref:       ref,
		series:    snapshot,
		timestamp: time.Now(),
	}
	entry.element = sc.lru.PushFront(entry)
	sc.cache[ref] = entry

	if sc.lru.Len() > sc.capacity {
		if oldest := sc.lru.Back(); oldest != nil {
			sc.removeLocked(oldest.Value.(*cacheEntry).ref)
		}
	}
}

// Remove drops a cached series
func (sc *SeriesCache) Remove(ref types.SeriesRef) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.removeLocked(ref)
}

// removeLocked removes an entry from the cache (must hold lock)
func (sc *SeriesCache) removeLocked(ref types.SeriesRef) {
	if entry, exists := sc.cache[ref]; exists {
		sc.lru.Remove(entry.element)
		delete(sc.cache, ref)
	}
}

// Clear clears all cache entries
func (sc *SeriesCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.cache = make(map[types.SeriesRef]*cacheEntry)
	sc.lru = list.New()
}

// Size returns the current cache size
func (sc *SeriesCache) Size() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.cache)
}

// Stats returns cache statistics
func (sc *SeriesCache) Stats() CacheStats {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	expired := 0
	if sc.ttl > 0 {
		for _, entry := range sc.cache {
			if time.Since(entry.timestamp) > sc.ttl {
				expired++
			}
		}
	}

	return CacheStats{
		Size:     len(sc.cache),
		Capacity: sc.capacity,
		Expired:  expired,
	}
}

// CacheStats contains cache statistics
type CacheStats struct {
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Expired  int    `json:"expired"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

// CachedStorage wraps a storage with a series cache
type CachedStorage struct {
	storage Storage
	cache   *SeriesCache
	hits    uint64
	misses  uint64
	mu      sync.Mutex
}

// NewCachedStorage creates a cached storage wrapper
func NewCachedStorage(storage Storage, cacheCapacity int, cacheTTL time.Duration) *CachedStorage {
	return &CachedStorage{
		storage: storage,
		cache:   NewSeriesCache(cacheCapacity, cacheTTL),
	}
}

// Save writes through to the underlying storage and refreshes the cache
func (cs *CachedStorage) Save(ctx context.Context, ts *timeseries.TimeSeries) error {
	if err := cs.storage.Save(ctx, ts); err != nil {
		cs.cache.Remove(types.SeriesRef{Key: ts.Key, Metric: ts.Metric})
		return err
	}
	cs.cache.Put(ts)
	return nil
}

// Load checks the cache before reading storage
func (cs *CachedStorage) Load(ctx context.Context, key, metric string) (*timeseries.TimeSeries, error) {
	if ts, ok := cs.cache.Get(types.SeriesRef{Key: key, Metric: metric}); ok {
		cs.mu.Lock()
		cs.hits++
		cs.mu.Unlock()
		return ts, nil
	}

	cs.mu.Lock()
	cs.misses++
	cs.mu.Unlock()

	ts, err := cs.storage.Load(ctx, key, metric)
	if err != nil {
		return nil, err
	}
	cs.cache.Put(ts)
	return ts, nil
}

// Delete removes the series from storage and cache
func (cs *CachedStorage) Delete(ctx context.Context, key, metric string) error {
	cs.cache.Remove(types.SeriesRef{Key: key, Metric: metric})
	return cs.storage.Delete(ctx, key, metric)
}

// List passes through to underlying storage
func (cs *CachedStorage) List(ctx context.Context) ([]types.SeriesInfo, error) {
	return cs.storage.List(ctx)
}

// ApplyRetention enforces retention on the underlying storage and drops
// the cache, since any series may have been trimmed
func (cs *CachedStorage) ApplyRetention(ctx context.Context, cutoff int64) (int, error) {
	r, ok := cs.storage.(Retainer)
	if !ok {
		return 0, nil
	}
	defer cs.cache.Clear()
	return r.ApplyRetention(ctx, cutoff)
}

// Close closes the underlying storage
func (cs *CachedStorage) Close() error {
	return cs.storage.Close()
}

// CacheStats returns cache statistics including hit/miss counters
func (cs *CachedStorage) CacheStats() CacheStats {
	stats := cs.cache.Stats()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	stats.Hits = cs.hits
	stats.Misses = cs.misses
	return stats
}

// CacheHitRate returns the cache hit rate as a percentage
func (cs *CachedStorage) CacheHitRate() float64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	total := cs.hits + cs.misses
	if total == 0 {
		return 0.0
	}

	return float64(cs.hits) / float64(total) * 100.0
}
