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

// Package parquetio reads Parquet files the way the adaptive and
// parallel readers need: memory-mapped, row-group at a time, with real
// footer metadata driving size estimates rather than file-size
// heuristics (spec §4.H/I/J).
package parquetio

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/framesrv/framesrv/frame"
	"github.com/framesrv/framesrv/frerr"
)

// MmapReader opens one Parquet file via memory map and serves
// individual row groups as Frames. The underlying mapping is released
// only once every Frame derived from it has been released, and once
// Close has been called — see onRelease below (spec §9 "cyclic
// ownership"/"mmap lifetime").
type MmapReader struct {
	path string
	raw  *file.Reader
	arrw *pqarrow.FileReader
	schm *arrow.Schema

	closeOnce sync.Once
	refs      int32 // frames currently holding a share of the mapping
	closed    int32 // 1 once Close has been called by the owner
}

// Open memory-maps path and parses its Parquet footer.
func Open(path string) (*MmapReader, error) {
	raw, err := file.OpenParquetFile(path, true)
	if err != nil {
		return nil, frerr.Wrap("parquetio.Open", frerr.Compute, err)
	}
	arrw, err := pqarrow.NewFileReader(raw, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		raw.Close()
		return nil, frerr.Wrap("parquetio.Open", frerr.Compute, err)
	}
	schm, err := arrw.Schema()
	if err != nil {
		raw.Close()
		return nil, frerr.Wrap("parquetio.Open", frerr.Compute, err)
	}
	return &MmapReader{path: path, raw: raw, arrw: arrw, schm: schm, refs: 1}, nil
}

// Schema returns the file's Arrow schema.
func (r *MmapReader) Schema() *arrow.Schema { return r.schm }

// NumRowGroups returns the number of row groups in the file, read from
// the real Parquet footer metadata.
func (r *MmapReader) NumRowGroups() int { return r.raw.NumRowGroups() }

// RowGroupNumRows returns the row count of row group i, from the
// footer's row-group metadata.
func (r *MmapReader) RowGroupNumRows(i int) (int64, error) {
	if i < 0 || i >= r.NumRowGroups() {
		return 0, frerr.New("parquetio.RowGroupNumRows", frerr.InvalidConfig, "row group index out of range")
	}
	return r.raw.RowGroup(i).NumRows(), nil
}

// TotalRows sums RowGroupNumRows across every row group.
func (r *MmapReader) TotalRows() int64 {
	var n int64
	for i := 0; i < r.NumRowGroups(); i++ {
		n += r.raw.RowGroup(i).NumRows()
	}
	return n
}

// EstimateRowSize returns the file's average uncompressed bytes per
// row, sampling the first row group's metadata, or 0 if the file has
// no rows (callers fall back to a constant, per spec §4.G).
func (r *MmapReader) EstimateRowSize() int64 {
	if r.NumRowGroups() == 0 {
		return 0
	}
	rg := r.raw.RowGroup(0)
	rows := rg.NumRows()
	if rows == 0 {
		return 0
	}
	return rg.ByteSize() / rows
}

// ReadRowGroup decodes row group i into a Frame. The Frame shares the
// reader's memory mapping: it is not released until both the reader's
// owner calls Close and every Frame derived from any row group has
// itself been released.
func (r *MmapReader) ReadRowGroup(ctx context.Context, i int) (*frame.Frame, error) {
	if i < 0 || i >= r.NumRowGroups() {
		return nil, frerr.New("parquetio.ReadRowGroup", frerr.InvalidConfig, "row group index out of range")
	}
	rr, err := r.arrw.GetRecordReader(ctx, nil, []int{i})
	if err != nil {
		return nil, frerr.Wrap("parquetio.ReadRowGroup", frerr.Compute, err)
	}
	defer rr.Release()

	var batches []arrow.Record
	for rr.Next() {
		rec := rr.Record()
		rec.Retain()
		batches = append(batches, rec)
	}
	if err := rr.Err(); err != nil {
		for _, b := range batches {
			b.Release()
		}
		return nil, frerr.Wrap("parquetio.ReadRowGroup", frerr.Compute, err)
	}

	f, err := frame.New(r.schm, batches)
	for _, b := range batches {
		b.Release()
	}
	if err != nil {
		return nil, err
	}

	atomic.AddInt32(&r.refs, 1)
	frame.WithOnRelease(f, r.releaseShare)
	return f, nil
}

func (r *MmapReader) releaseShare() {
	if atomic.AddInt32(&r.refs, -1) == 0 {
		r.raw.Close()
	}
}

// Close releases the reader's own reference to the mapping; the
// mapping is actually unmapped once every Frame produced by
// ReadRowGroup has also been released.
func (r *MmapReader) Close() error {
	r.closeOnce.Do(func() {
		atomic.StoreInt32(&r.closed, 1)
		r.releaseShare()
	})
	return nil
}
