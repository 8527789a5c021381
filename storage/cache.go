// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package storage

import (
	"context"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/framesrv/framesrv/frame"
)

// bytesPerEntryMB is the rule of thumb used to turn a configured cache
// size (in GB) into a bounded entry count: about 10 MB per cached
// Frame on average.
const bytesPerEntryMB = 10

// CacheBackend is the hot tier: an in-memory, entry-count-bounded LRU
// over Frame values. load promotes the accessed key to most-recently
// used; store evicts the least-recently used entry only when the
// cache is already at capacity, never on key replacement.
//
// Concurrency follows a single-writer/multi-reader discipline on the
// underlying map, but because a load also mutates recency, every
// operation takes the same exclusive lock (see spec §5).
type CacheBackend struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, *frame.Frame]
	hits  int64
	misses int64
}

var _ Backend = (*CacheBackend)(nil)

// NewCacheBackend returns a CacheBackend sized to hold roughly
// maxSizeGB gigabytes, assuming ~10 MB per cached entry. The capacity
// is never less than one entry.
func NewCacheBackend(maxSizeGB float64) *CacheBackend {
	capacity := int(maxSizeGB * 1024 / bytesPerEntryMB)
	if capacity < 1 {
		capacity = 1
	}
	c, _ := lru.NewWithEvict[string, *frame.Frame](capacity, func(_ string, evicted *frame.Frame) {
		evicted.Release()
	})
	return &CacheBackend{lru: c}
}

// Store inserts f under key, retaining a reference. Replacing an
// existing key releases the prior value but does not count as an
// eviction.
func (c *CacheBackend) Store(_ context.Context, key string, f *frame.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.Retain()
	if old, ok := c.lru.Peek(key); ok {
		old.Release()
	}
	c.lru.Add(key, f)
	return nil
}

// Load returns a retained reference to the cached Frame for key, or
// (nil, false, nil) on a miss.
func (c *CacheBackend) Load(_ context.Context, key string) (*frame.Frame, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.lru.Get(key)
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false, nil
	}
	atomic.AddInt64(&c.hits, 1)
	f.Retain()
	return f, true, nil
}

// ListKeys returns every key currently cached, in LRU order (least
// to most recently used).
func (c *CacheBackend) ListKeys(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys(), nil
}

// Delete removes key if present; a missing key is not an error.
// The cache's reference is released by the eviction callback that
// Remove invokes.
func (c *CacheBackend) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
	return nil
}

// Stats reports the current entry count and hit/miss counters.
// TotalSizeBytes is a rough estimate (entry count * 10MB), and
// CompressionRatio is not applicable to the in-memory tier (1.0).
func (c *CacheBackend) Stats(_ context.Context) (Stats, error) {
	c.mu.Lock()
	n := c.lru.Len()
	c.mu.Unlock()
	return Stats{
		TotalKeys:        n,
		TotalSizeBytes:   int64(n) * bytesPerEntryMB * 1024 * 1024,
		CacheHits:        atomic.LoadInt64(&c.hits),
		CacheMisses:      atomic.LoadInt64(&c.misses),
		CompressionRatio: 1.0,
	}, nil
}

// HitRate returns hits / (hits + misses), or 0 when the cache has
// never been accessed.
func (c *CacheBackend) HitRate() float64 {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
