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

package parquetio

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/framesrv/framesrv/frame"
	"github.com/framesrv/framesrv/memmgr"
)

func TestAdaptiveReaderTotals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adaptive.parquet")
	writeTestParquet(t, path, [][]int64{{1, 2, 3, 4, 5}})

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	mgr := memmgr.New(func() int64 { return 1 << 30 })
	ar := NewAdaptiveReader(r, mgr, nil, nil)

	var total int64
	ctx := context.Background()
	for {
		f, ok, err := ar.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		total += f.Height()
		f.Release()
	}
	if total != r.TotalRows() {
		t.Fatalf("sum of batch heights = %d, want %d", total, r.TotalRows())
	}
	if mgr.TrackedBytes() == 0 {
		t.Fatal("expected tracked bytes to be reported")
	}
}

func TestAdaptiveReaderCollect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collect.parquet")
	writeTestParquet(t, path, [][]int64{{1, 2}, {3, 4, 5}})

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	ar := NewAdaptiveReader(r, nil, nil, nil)
	f, err := ar.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	defer f.Release()
	if f.Height() != 5 {
		t.Fatalf("Height() = %d, want 5", f.Height())
	}
}

func TestAdaptiveReaderPushdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pushdown.parquet")
	writeTestParquet(t, path, [][]int64{{1, 2, 3, 4}})

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	keepEven := func(f *frame.Frame) ([]bool, error) {
		cols, err := f.Column("id")
		if err != nil {
			return nil, err
		}
		mask := make([]bool, 0, f.Height())
		for _, col := range cols {
			ints := col.(interface{ Value(int) int64 })
			for i := 0; i < col.Len(); i++ {
				mask = append(mask, ints.Value(i)%2 == 0)
			}
		}
		return mask, nil
	}

	ar := NewAdaptiveReader(r, nil, nil, keepEven)
	f, err := ar.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	defer f.Release()
	if f.Height() != 2 {
		t.Fatalf("Height() = %d, want 2 (only even values)", f.Height())
	}
}
