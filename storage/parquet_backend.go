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
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/framesrv/framesrv/frame"
	"github.com/framesrv/framesrv/frerr"
)

const maxRowGroupLength = 1_000_000

// ParquetBackend is the cold tier: one Parquet file per key under a
// base directory, written with zstd level 19, dictionary encoding, and
// page-level statistics. Writes are atomic from a reader's perspective
// (write-temp-then-rename) and serialized by a single process-wide
// lock, since Parquet writers are not safe for concurrent use.
type ParquetBackend struct {
	baseDir string
	wlock   sync.Mutex
}

// NewParquetBackend returns a ParquetBackend rooted at baseDir,
// creating it if necessary.
func NewParquetBackend(baseDir string) (*ParquetBackend, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, frerr.Wrap("storage.NewParquetBackend", frerr.Io, err)
	}
	return &ParquetBackend{baseDir: baseDir}, nil
}

var _ Backend = (*ParquetBackend)(nil)

// unsafeKeyChars matches any run of path separators, ".." sequences,
// or whitespace, each collapsed to a single "_".
var unsafeKeyChars = regexp.MustCompile(`[/\\]+|\.\.+|\s+`)

// sanitizeKey collapses path separators, "..", and whitespace into
// "_", rejecting a key that becomes empty.
func sanitizeKey(key string) (string, error) {
	sanitized := unsafeKeyChars.ReplaceAllString(key, "_")
	if sanitized == "" {
		return "", frerr.New("storage.sanitizeKey", frerr.InvalidConfig, "empty key after sanitization")
	}
	return sanitized, nil
}

func (p *ParquetBackend) path(key string) (string, error) {
	sanitized, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(p.baseDir, sanitized+".parquet"), nil
}

func writerProperties() *parquet.WriterProperties {
	return parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithCompressionLevel(19),
		parquet.WithDictionaryDefault(true),
		parquet.WithStats(true),
		parquet.WithMaxRowGroupLength(maxRowGroupLength),
	)
}

// Store writes f to baseDir/<sanitized(key)>.parquet, replacing any
// prior contents atomically.
func (p *ParquetBackend) Store(_ context.Context, key string, f *frame.Frame) error {
	target, err := p.path(key)
	if err != nil {
		return err
	}

	p.wlock.Lock()
	defer p.wlock.Unlock()

	tmp := target + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return frerr.Wrap("storage.ParquetBackend.Store", frerr.Io, err)
	}

	arrProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	w, err := pqarrow.NewFileWriter(f.Schema(), out, writerProperties(), arrProps)
	if err != nil {
		out.Close()
		os.Remove(tmp)
		return frerr.Wrap("storage.ParquetBackend.Store", frerr.Io, err)
	}
	for _, batch := range f.Batches() {
		if err := w.WriteBuffered(batch); err != nil {
			w.Close()
			out.Close()
			os.Remove(tmp)
			return frerr.Wrap("storage.ParquetBackend.Store", frerr.Io, err)
		}
	}
	if err := w.Close(); err != nil {
		out.Close()
		os.Remove(tmp)
		return frerr.Wrap("storage.ParquetBackend.Store", frerr.Io, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return frerr.Wrap("storage.ParquetBackend.Store", frerr.Io, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return frerr.Wrap("storage.ParquetBackend.Store", frerr.Io, err)
	}
	return nil
}

// Load reads every row group of baseDir/<sanitized(key)>.parquet and
// concatenates them in file order. Returns (nil, false, nil) if no
// file exists for key.
func (p *ParquetBackend) Load(ctx context.Context, key string) (*frame.Frame, bool, error) {
	target, err := p.path(key)
	if err != nil {
		return nil, false, err
	}
	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, frerr.Wrap("storage.ParquetBackend.Load", frerr.Io, err)
	}

	raw, err := file.OpenParquetFile(target, false)
	if err != nil {
		return nil, false, frerr.Wrap("storage.ParquetBackend.Load", frerr.Io, err)
	}
	defer raw.Close()

	rdr, err := pqarrow.NewFileReader(raw, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		return nil, false, frerr.Wrap("storage.ParquetBackend.Load", frerr.Io, err)
	}
	schema, err := rdr.Schema()
	if err != nil {
		return nil, false, frerr.Wrap("storage.ParquetBackend.Load", frerr.Io, err)
	}

	rr, err := rdr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, false, frerr.Wrap("storage.ParquetBackend.Load", frerr.Io, err)
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
		return nil, false, frerr.Wrap("storage.ParquetBackend.Load", frerr.Io, err)
	}
	if len(batches) == 0 {
		return nil, false, nil
	}

	f, err := frame.New(schema, batches)
	for _, b := range batches {
		b.Release()
	}
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// ListKeys returns the sanitized key (filename minus ".parquet") for
// every file in baseDir.
func (p *ParquetBackend) ListKeys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.baseDir)
	if err != nil {
		return nil, frerr.Wrap("storage.ParquetBackend.ListKeys", frerr.Io, err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".parquet" {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), ".parquet"))
	}
	return keys, nil
}

// Delete removes baseDir/<sanitized(key)>.parquet. A missing file is
// not an error.
func (p *ParquetBackend) Delete(_ context.Context, key string) error {
	target, err := p.path(key)
	if err != nil {
		return err
	}
	p.wlock.Lock()
	defer p.wlock.Unlock()
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return frerr.Wrap("storage.ParquetBackend.Delete", frerr.Io, err)
	}
	return nil
}

// Stats reports file count, total on-disk size, and an estimated
// compression ratio sampled from the first ten files' row-group
// metadata (sum(uncompressed)/sum(compressed), defaulting to 1.0 when
// there are no files or no compressed bytes to sample).
func (p *ParquetBackend) Stats(_ context.Context) (Stats, error) {
	entries, err := os.ReadDir(p.baseDir)
	if err != nil {
		return Stats{}, frerr.Wrap("storage.ParquetBackend.Stats", frerr.Io, err)
	}

	var files []string
	var totalSize int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".parquet" {
			continue
		}
		files = append(files, filepath.Join(p.baseDir, e.Name()))
		if info, err := e.Info(); err == nil {
			totalSize += info.Size()
		}
	}

	ratio := p.estimateCompressionRatio(files)
	return Stats{
		TotalKeys:        len(files),
		TotalSizeBytes:   totalSize,
		CompressionRatio: ratio,
	}, nil
}

func (p *ParquetBackend) estimateCompressionRatio(files []string) float64 {
	const sampleLimit = 10
	var compressed, uncompressed int64
	for i, path := range files {
		if i >= sampleLimit {
			break
		}
		raw, err := file.OpenParquetFile(path, false)
		if err != nil {
			continue
		}
		meta := raw.MetaData()
		for rg := 0; rg < raw.NumRowGroups(); rg++ {
			rgMeta := meta.RowGroup(rg)
			compressed += rgMeta.TotalCompressedSize()
			uncompressed += rgMeta.TotalByteSize()
		}
		raw.Close()
	}
	if compressed == 0 {
		return 1.0
	}
	return float64(uncompressed) / float64(compressed)
}
