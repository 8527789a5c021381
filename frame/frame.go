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

// Package frame defines the in-memory columnar value that every other
// framesrv package passes around: an immutable, reference-counted,
// possibly multi-batch table built on top of Arrow arrays.
package frame

import (
	"fmt"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/framesrv/framesrv/frerr"
)

// Frame is an ordered sequence of Arrow record batches that all share
// the same schema. It behaves like a table: Height is the sum of the
// batches' row counts, Width is the number of schema fields. Frames are
// immutable once constructed and are released with Release, which
// drops the underlying Arrow buffers (and, for mmap-backed frames, the
// memory mapping) once the last reference goes away.
type Frame struct {
	schema  *arrow.Schema
	batches []arrow.Record

	refs      int32
	onRelease func()
}

// New constructs a Frame from a schema and a set of batches that must
// already conform to it (every batch's schema equal to schema). The
// Frame takes ownership of the batches: it calls Retain on each of them
// and will call Release when the Frame itself is released.
func New(schema *arrow.Schema, batches []arrow.Record) (*Frame, error) {
	for i, b := range batches {
		if !b.Schema().Equal(schema) {
			return nil, frerr.New("frame.New", frerr.Compute, fmt.Sprintf("batch %d schema does not match frame schema", i))
		}
	}
	for _, b := range batches {
		b.Retain()
	}
	return &Frame{schema: schema, batches: batches, refs: 1}, nil
}

// WithOnRelease attaches a callback invoked exactly once, when f's
// reference count drops to zero. Used by mmap-backed readers to tie
// the lifetime of an OS memory mapping to the frames built from it.
func WithOnRelease(f *Frame, fn func()) {
	f.onRelease = fn
}

// Schema returns the frame's shared schema.
func (f *Frame) Schema() *arrow.Schema { return f.schema }

// Batches returns the frame's underlying record batches. Callers must
// not mutate or Release the returned records directly; use Retain/Release
// on the Frame itself.
func (f *Frame) Batches() []arrow.Record { return f.batches }

// Width is the number of columns (schema fields).
func (f *Frame) Width() int { return len(f.schema.Fields()) }

// Height is the total number of rows across all batches.
func (f *Frame) Height() int64 {
	var n int64
	for _, b := range f.batches {
		n += b.NumRows()
	}
	return n
}

// EstimatedBytes returns the approximate in-memory size of the frame,
// summing the byte length of every buffer backing every column of
// every batch. It is an estimate: it does not discount shared buffers
// (e.g. dictionary values) used by more than one batch.
func (f *Frame) EstimatedBytes() int64 {
	var n int64
	for _, b := range f.batches {
		for i := 0; i < int(b.NumCols()); i++ {
			col := b.Column(i)
			data := col.Data()
			for _, buf := range data.Buffers() {
				if buf != nil {
					n += int64(buf.Len())
				}
			}
		}
	}
	return n
}

// Column returns, for each batch in order, the chunk of the named
// column's data living in that batch.
func (f *Frame) Column(name string) ([]arrow.Array, error) {
	idx := f.schema.FieldIndices(name)
	if len(idx) == 0 {
		return nil, frerr.New("frame.Column", frerr.Compute, fmt.Sprintf("no such column %q", name))
	}
	i := idx[0]
	cols := make([]arrow.Array, len(f.batches))
	for bi, b := range f.batches {
		cols[bi] = b.Column(i)
	}
	return cols, nil
}

// Slice returns a new Frame containing length rows starting at offset,
// zero-copy where batch boundaries allow it. It retains (and the
// caller must Release) shares of the same underlying Arrow buffers as
// f, so slicing never touches the parent's reference count.
func (f *Frame) Slice(offset, length int64) (*Frame, error) {
	if offset < 0 || length < 0 || offset+length > f.Height() {
		return nil, frerr.New("frame.Slice", frerr.Compute, "slice bounds out of range")
	}
	var out []arrow.Record
	var skipped int64
	remaining := length
	for _, b := range f.batches {
		n := b.NumRows()
		if skipped+n <= offset {
			skipped += n
			continue
		}
		if remaining <= 0 {
			break
		}
		start := int64(0)
		if skipped < offset {
			start = offset - skipped
		}
		avail := n - start
		take := avail
		if take > remaining {
			take = remaining
		}
		if take > 0 {
			out = append(out, b.NewSlice(start, start+take))
		}
		remaining -= take
		skipped += n
	}
	sliced, err := New(f.schema, out)
	for _, r := range out {
		r.Release() // New retained its own reference; drop the NewSlice one
	}
	return sliced, err
}

// Concat builds a single Frame containing every batch of every input
// frame, in order. All frames must share an equal schema, or Concat
// returns a Compute error. Concat does not physically merge batches:
// the result is simply the union of batch lists, which is how framesrv
// represents multi-batch tables throughout (see spec §4.A).
func Concat(frames []*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return nil, frerr.New("frame.Concat", frerr.NoData, "no frames to concatenate")
	}
	schema := frames[0].schema
	var batches []arrow.Record
	for i, fr := range frames {
		if !fr.schema.Equal(schema) {
			return nil, frerr.New("frame.Concat", frerr.Compute, fmt.Sprintf("frame %d schema mismatch", i))
		}
		batches = append(batches, fr.batches...)
	}
	return New(schema, batches)
}

// Retain increments f's reference count.
func (f *Frame) Retain() { atomic.AddInt32(&f.refs, 1) }

// Release decrements f's reference count. Once the count reaches zero
// it releases every underlying batch and invokes the onRelease
// callback, e.g. to unmap a memory-mapped Parquet file.
func (f *Frame) Release() {
	if atomic.AddInt32(&f.refs, -1) != 0 {
		return
	}
	for _, b := range f.batches {
		b.Release()
	}
	if f.onRelease != nil {
		f.onRelease()
	}
}

// Clone returns a Frame sharing the same underlying batches as f,
// incrementing the reference count rather than copying any data; it
// grounds the handle package's structural clone() operation (spec §4.D).
// The clone holds a reference on f, which is released when the clone's
// own count reaches zero.
func (f *Frame) Clone() *Frame {
	f.Retain()
	for _, b := range f.batches {
		b.Retain()
	}
	return &Frame{schema: f.schema, batches: f.batches, refs: 1, onRelease: f.Release}
}

// Equal reports whether a and b have equal schemas and, batch for
// batch, equal column data. It is used by round-trip tests: Arrow IPC
// preserves batch boundaries exactly, so a and b produced from an
// encode/decode round trip will have the same batch count.
func Equal(a, b *Frame) bool {
	if !a.schema.Equal(b.schema) {
		return false
	}
	if len(a.batches) != len(b.batches) {
		return false
	}
	for i := range a.batches {
		ba, bb := a.batches[i], b.batches[i]
		if ba.NumRows() != bb.NumRows() || ba.NumCols() != bb.NumCols() {
			return false
		}
		for c := 0; c < int(ba.NumCols()); c++ {
			if !arrayEqual(ba.Column(c), bb.Column(c)) {
				return false
			}
		}
	}
	return true
}
