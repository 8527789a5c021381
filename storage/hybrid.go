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

	"github.com/framesrv/framesrv/frame"
	"github.com/framesrv/framesrv/frerr"
)

// SQLEngine is the optional read-through query interface for the
// hybrid store's query(sql) operation. framesrv ships no bundled
// engine (no SQL execution library appears anywhere in the pack this
// was built from); HybridStorage.Query returns Unsupported when none
// is registered.
type SQLEngine interface {
	Query(ctx context.Context, sql string) (*frame.Frame, error)
}

// HybridStorage composes a CacheBackend (hot) and a ParquetBackend
// (cold): store writes through both tiers, load checks the cache
// first and warms it on a cold hit, and list_keys treats the Parquet
// tier as authoritative.
type HybridStorage struct {
	cache *CacheBackend
	cold  *ParquetBackend
	sql   SQLEngine
}

// NewHybridStorage composes an existing cache and cold-storage tier.
// sql may be nil, in which case Query always fails Unsupported.
func NewHybridStorage(cache *CacheBackend, cold *ParquetBackend, sql SQLEngine) *HybridStorage {
	return &HybridStorage{cache: cache, cold: cold, sql: sql}
}

var _ Backend = (*HybridStorage)(nil)

// Store writes f to the cache first, then to cold storage. If either
// tier fails, the operation fails with PartialStore, carrying which
// tier (if any) succeeded.
func (h *HybridStorage) Store(ctx context.Context, key string, f *frame.Frame) error {
	if err := h.cache.Store(ctx, key, f); err != nil {
		return frerr.Wrap("storage.HybridStorage.Store", frerr.PartialStore, err)
	}
	if err := h.cold.Store(ctx, key, f); err != nil {
		return frerr.Wrapf("storage.HybridStorage.Store", frerr.PartialStore, err, "cache succeeded, cold storage failed for key %q", key)
	}
	return nil
}

// Load returns a cache hit directly; on a cache miss it loads from
// cold storage, warms the cache with the result, and returns it.
// Returns (nil, false, nil) if the key exists in neither tier.
func (h *HybridStorage) Load(ctx context.Context, key string) (*frame.Frame, bool, error) {
	if f, ok, err := h.cache.Load(ctx, key); err != nil {
		return nil, false, err
	} else if ok {
		return f, true, nil
	}

	f, ok, err := h.cold.Load(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	if err := h.cache.Store(ctx, key, f); err != nil {
		f.Release()
		return nil, false, frerr.Wrap("storage.HybridStorage.Load", frerr.PartialStore, err)
	}
	return f, true, nil
}

// Query delegates to the registered SQL engine, if any.
func (h *HybridStorage) Query(ctx context.Context, sql string) (*frame.Frame, error) {
	if h.sql == nil {
		return nil, frerr.New("storage.HybridStorage.Query", frerr.Unsupported, "no SQL engine registered")
	}
	return h.sql.Query(ctx, sql)
}

// ListKeys returns the authoritative key list from cold storage.
func (h *HybridStorage) ListKeys(ctx context.Context) ([]string, error) {
	return h.cold.ListKeys(ctx)
}

// Delete removes key from both tiers. A missing key in either tier is
// not an error.
func (h *HybridStorage) Delete(ctx context.Context, key string) error {
	if err := h.cache.Delete(ctx, key); err != nil {
		return err
	}
	return h.cold.Delete(ctx, key)
}

// Stats reports authoritative key/size/compression figures from cold
// storage plus hit/miss counters from the cache.
func (h *HybridStorage) Stats(ctx context.Context) (Stats, error) {
	cacheStats, err := h.cache.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	coldStats, err := h.cold.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalKeys:        coldStats.TotalKeys,
		TotalSizeBytes:   coldStats.TotalSizeBytes,
		CacheHits:        cacheStats.CacheHits,
		CacheMisses:      cacheStats.CacheMisses,
		CompressionRatio: coldStats.CompressionRatio,
	}, nil
}
