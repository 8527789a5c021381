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
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/framesrv/framesrv/frame"
)

func testFrame(t *testing.T, value int64) *frame.Frame {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{{Name: "value", Type: arrow.PrimitiveTypes.Int64}}, nil)
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).Append(value)
	rec := b.NewRecord()
	defer rec.Release()
	f, err := frame.New(schema, []arrow.Record{rec})
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

func TestCacheHitMiss(t *testing.T) {
	ctx := context.Background()
	c := NewCacheBackend(0.1) // 100 MB

	if _, ok, err := c.Load(ctx, "key1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	f := testFrame(t, 42)
	if err := c.Store(ctx, "key1", f); err != nil {
		t.Fatalf("Store: %v", err)
	}
	f.Release()

	got, ok, err := c.Load(ctx, "key1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	got.Release()

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.CacheHits != 1 || stats.CacheMisses != 1 {
		t.Fatalf("stats = %+v, want 1 hit / 1 miss", stats)
	}
	if rate := c.HitRate(); rate < 0.49 || rate > 0.51 {
		t.Fatalf("HitRate() = %f, want ~0.5", rate)
	}
}

func TestCacheLRUEviction(t *testing.T) {
	ctx := context.Background()
	c := NewCacheBackend(0.001) // very small, rounds up to 1 entry min but 0.001*1024/10 < 1

	for i := 0; i < 100; i++ {
		f := testFrame(t, int64(i))
		key := fmt.Sprintf("key%d", i)
		if err := c.Store(ctx, key, f); err != nil {
			t.Fatalf("Store(%s): %v", key, err)
		}
		f.Release()
	}

	keys, err := c.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) >= 100 {
		t.Fatalf("expected eviction to bound key count, got %d", len(keys))
	}
}

func TestCacheEvictionOrder(t *testing.T) {
	ctx := context.Background()
	// capacity estimate: maxSizeGB*1024/10 -> want capacity 2
	c := NewCacheBackend(2.0 * 10.0 / 1024.0)

	keys := []string{"k0", "k1", "k2"}
	for _, k := range keys {
		f := testFrame(t, 1)
		if err := c.Store(ctx, k, f); err != nil {
			t.Fatalf("Store(%s): %v", k, err)
		}
		f.Release()
	}

	// k0 should have been evicted (least recently used), k1/k2 remain.
	if _, ok, _ := c.Load(ctx, "k0"); ok {
		t.Fatal("expected k0 to be evicted")
	}
	for _, k := range []string{"k1", "k2"} {
		f, ok, err := c.Load(ctx, k)
		if err != nil || !ok {
			t.Fatalf("expected hit for %s, got ok=%v err=%v", k, ok, err)
		}
		f.Release()
	}
}

func TestCacheReplaceDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c := NewCacheBackend(2.0 * 10.0 / 1024.0) // capacity 2

	f1 := testFrame(t, 1)
	c.Store(ctx, "a", f1)
	f1.Release()
	f2 := testFrame(t, 2)
	c.Store(ctx, "b", f2)
	f2.Release()

	// replace "a" — should not evict "b"
	f3 := testFrame(t, 3)
	if err := c.Store(ctx, "a", f3); err != nil {
		t.Fatalf("Store: %v", err)
	}
	f3.Release()

	if _, ok, _ := c.Load(ctx, "b"); !ok {
		t.Fatal("expected b to survive a replacement of a")
	}
}

func TestCacheDelete(t *testing.T) {
	ctx := context.Background()
	c := NewCacheBackend(0.1)
	f := testFrame(t, 1)
	c.Store(ctx, "key", f)
	f.Release()

	if err := c.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Load(ctx, "key"); ok {
		t.Fatal("expected key to be gone after Delete")
	}
	// deleting a missing key is not an error
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete(missing): %v", err)
	}
}
