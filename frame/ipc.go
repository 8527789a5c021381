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

package frame

import (
	"bytes"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/framesrv/framesrv/frerr"
)

// EncodeTo writes f to w as an Arrow IPC stream, one message per batch,
// in order. This is the wire codec named in spec §4.B: anything that
// reads the stream back with Decode reconstructs an equal Frame.
func EncodeTo(f *Frame, w io.Writer) error {
	wr := ipc.NewWriter(w, ipc.WithSchema(f.schema), ipc.WithAllocator(memory.NewGoAllocator()))
	for _, b := range f.batches {
		if err := wr.Write(b); err != nil {
			return frerr.Wrap("frame.Encode", frerr.Io, err)
		}
	}
	if err := wr.Close(); err != nil {
		return frerr.Wrap("frame.Encode", frerr.Io, err)
	}
	return nil
}

// Encode returns f serialized as an Arrow IPC stream.
func Encode(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(f, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads an Arrow IPC stream produced by Encode/EncodeTo and
// reconstructs the Frame it represents. A stream with no schema or a
// truncated/corrupt header is reported as a Compute error; a stream
// that simply contains zero record batches produces a valid, empty
// Frame (height 0), not an error — NoData is reserved for operations
// that explicitly require rows to exist (see §4.I, §4.J).
func Decode(r io.Reader) (*Frame, error) {
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, frerr.Wrap("frame.Decode", frerr.Compute, err)
	}
	defer rdr.Release()

	var batches []arrow.Record
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		batches = append(batches, rec)
	}
	if err := rdr.Err(); err != nil && err != io.EOF {
		for _, b := range batches {
			b.Release()
		}
		return nil, frerr.Wrap("frame.Decode", frerr.Compute, err)
	}

	f, err := New(rdr.Schema(), batches)
	for _, b := range batches {
		b.Release() // New retained its own references
	}
	return f, err
}
