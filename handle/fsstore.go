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

package handle

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/framesrv/framesrv/compr"
	"github.com/framesrv/framesrv/frame"
	"github.com/framesrv/framesrv/frerr"
)

// FSStore is the external Store variant: each Frame is serialized to
// Arrow IPC, framed with a fast s2 compressor, and written under
// baseDir, one file per key. Writes are atomic (write to
// "<key>.ipc.tmp", then rename over "<key>.ipc"), the same idiom the
// teacher's on-disk cache uses for populating a new entry.
//
// On-disk layout: 8 bytes little-endian uncompressed length, followed
// by the s2-compressed Arrow IPC stream. The length prefix exists
// because compr's Decompress wants an exact-sized destination buffer.
type FSStore struct {
	baseDir string
}

const fsStoreCodec = "s2"

// NewFSStore returns an FSStore rooted at baseDir, creating it if
// necessary.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, frerr.Wrap("handle.NewFSStore", frerr.Io, err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.baseDir, key+".ipc")
}

// Put serializes f to Arrow IPC and atomically writes it to
// baseDir/<uuid>.ipc, returning the generated key (the uuid, without
// the ext:fs: prefix — that's added by the Provider).
func (s *FSStore) Put(_ context.Context, f *frame.Frame) (string, error) {
	key := uuid.NewString()
	target := s.path(key)
	tmp := target + ".tmp"

	var raw bytes.Buffer
	if err := frame.EncodeTo(f, &raw); err != nil {
		return "", err
	}
	comp := compr.Compression(fsStoreCodec)
	framed := comp.Compress(raw.Bytes(), nil)

	out, err := os.Create(tmp)
	if err != nil {
		return "", frerr.Wrap("handle.FSStore.Put", frerr.Io, err)
	}
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(raw.Len()))
	if _, err := out.Write(hdr[:]); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", frerr.Wrap("handle.FSStore.Put", frerr.Io, err)
	}
	if _, err := out.Write(framed); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", frerr.Wrap("handle.FSStore.Put", frerr.Io, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", frerr.Wrap("handle.FSStore.Put", frerr.Io, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", frerr.Wrap("handle.FSStore.Put", frerr.Io, err)
	}
	return key, nil
}

// Get reads, decompresses and decodes the Arrow IPC file stored under
// key.
func (s *FSStore) Get(_ context.Context, key string) (*frame.Frame, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, frerr.New("handle.FSStore.Get", frerr.HandleNotFound, key)
		}
		return nil, frerr.Wrap("handle.FSStore.Get", frerr.Io, err)
	}
	if len(raw) < 8 {
		return nil, frerr.New("handle.FSStore.Get", frerr.Io, "truncated handle file: "+key)
	}
	uncompressedLen := binary.LittleEndian.Uint64(raw[:8])
	dst := make([]byte, uncompressedLen)
	decomp := compr.Decompression(fsStoreCodec)
	if err := decomp.Decompress(raw[8:], dst); err != nil {
		return nil, frerr.Wrap("handle.FSStore.Get", frerr.Io, err)
	}
	return frame.Decode(bytes.NewReader(dst))
}

// Delete unlinks the file stored under key. A missing file is not an
// error.
func (s *FSStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return frerr.Wrap("handle.FSStore.Delete", frerr.Io, err)
	}
	return nil
}
