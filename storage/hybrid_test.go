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
	"testing"

	"github.com/framesrv/framesrv/frerr"
)

func newTestHybrid(t *testing.T) *HybridStorage {
	t.Helper()
	cold, err := NewParquetBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewParquetBackend: %v", err)
	}
	return NewHybridStorage(NewCacheBackend(0.1), cold, nil)
}

func TestHybridStorageLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newTestHybrid(t)

	f := testFrame(t, 5)
	defer f.Release()
	if err := h.Store(ctx, "test_key", f); err != nil {
		t.Fatalf("Store: %v", err)
	}

	loaded, ok, err := h.Load(ctx, "test_key")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	loaded.Release()

	stats, err := h.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalKeys != 1 {
		t.Fatalf("TotalKeys = %d, want 1", stats.TotalKeys)
	}
	if stats.CacheHits != 1 {
		t.Fatalf("CacheHits = %d, want 1", stats.CacheHits)
	}

	if err := h.Delete(ctx, "test_key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := h.Load(ctx, "test_key"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestHybridStorageWarmsCacheOnColdHit(t *testing.T) {
	ctx := context.Background()
	h := newTestHybrid(t)

	f := testFrame(t, 1)
	defer f.Release()
	// store directly in cold storage only, bypassing the cache
	if err := h.cold.Store(ctx, "cold_only", f); err != nil {
		t.Fatalf("cold.Store: %v", err)
	}

	if _, ok, _ := h.cache.Load(ctx, "cold_only"); ok {
		t.Fatal("precondition: should not be cached yet")
	}

	loaded, ok, err := h.Load(ctx, "cold_only")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	loaded.Release()

	warmed, ok, err := h.cache.Load(ctx, "cold_only")
	if err != nil || !ok {
		t.Fatal("expected cache to be warmed after a cold hit")
	}
	warmed.Release()
}

func TestHybridStorageQueryUnsupportedByDefault(t *testing.T) {
	ctx := context.Background()
	h := newTestHybrid(t)
	_, err := h.Query(ctx, "select 1")
	if frerr.Of(err) != frerr.Unsupported {
		t.Fatalf("Query error kind = %v, want Unsupported", frerr.Of(err))
	}
}
