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
	"io/fs"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/framesrv/framesrv/chunk"
	"github.com/framesrv/framesrv/frame"
	"github.com/framesrv/framesrv/frerr"
	"github.com/framesrv/framesrv/fsutil"
	"github.com/framesrv/framesrv/memmgr"
)

// Item is one element of a ParallelReader's output sequence: either a
// successfully read Frame, or the error encountered reading one file
// (per-file failures are items, not aggregate failures — spec §4.J/§7).
type Item struct {
	Frame *frame.Frame
	Err   error
	Path  string
}

// ParallelReader fans an AdaptiveReader out across many files with
// bounded backpressure: a channel of capacity BufferSize, drained by
// the caller, fed by up to MaxConcurrent worker goroutines each
// driving its own §4.I reader. Within one file, batches arrive in
// row-group order; across files, order is unspecified.
type ParallelReader struct {
	MaxConcurrent int
	BufferSize    int

	mgr      *memmgr.Manager
	pushdown Pushdown
}

// NewParallelReader returns a reader with sane defaults: MaxConcurrent
// = GOMAXPROCS, BufferSize = 2*MaxConcurrent, matching spec §4.J.
func NewParallelReader(mgr *memmgr.Manager, pushdown Pushdown) *ParallelReader {
	n := runtime.GOMAXPROCS(0)
	return &ParallelReader{MaxConcurrent: n, BufferSize: 2 * n, mgr: mgr, pushdown: pushdown}
}

// Glob resolves pattern (interpreted relative to root, using
// fs.FS/path.Match semantics the way fsutil.OpenGlob does for the
// teacher's own file discovery) into the ordered list of matching
// paths this reader will stream.
func Glob(root, pattern string) ([]string, error) {
	fsys := osRootFS(root)
	files, err := fsutil.OpenGlob(fsys, pattern)
	if err != nil {
		return nil, frerr.Wrap("parquetio.Glob", frerr.Io, err)
	}
	out := make([]string, len(files))
	for i, f := range files {
		f.Close()
		out[i] = filepath.Join(root, f.Path())
	}
	return out, nil
}

// Stream launches the fan-out and returns a receive-only channel of
// Items. The channel is closed once every file has been fully read
// (or has produced its error item). Cancelling ctx causes every
// in-flight worker to stop at its next suspension point and the
// channel to close promptly without delivering further items.
func (p *ParallelReader) Stream(ctx context.Context, paths []string) <-chan Item {
	out := make(chan Item, p.BufferSize)

	go func() {
		defer close(out)

		sem := make(chan struct{}, p.MaxConcurrent)
		var wg sync.WaitGroup
		for _, path := range paths {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				defer func() { <-sem }()
				p.readOne(ctx, path, out)
			}(path)
		}
		wg.Wait()
	}()

	return out
}

func (p *ParallelReader) readOne(ctx context.Context, path string, out chan<- Item) {
	r, err := Open(path)
	if err != nil {
		select {
		case out <- Item{Path: path, Err: err}:
		case <-ctx.Done():
		}
		return
	}
	defer r.Close()

	var strategy *chunk.Strategy
	if p.mgr != nil {
		strategy = chunk.New(p.mgr)
	}
	reader := NewAdaptiveReader(r, p.mgr, strategy, p.pushdown)
	for {
		f, ok, err := reader.Next(ctx)
		if err != nil {
			select {
			case out <- Item{Path: path, Err: err}:
			case <-ctx.Done():
			}
			return
		}
		if !ok {
			return
		}
		select {
		case out <- Item{Path: path, Frame: f}:
		case <-ctx.Done():
			f.Release()
			return
		}
	}
}

// CollectConcatenated drains ch, vertically stacking every
// successfully produced Frame. It fails NoData if nothing arrives, and
// fails with the first error item encountered (after releasing
// whatever Frames had already arrived).
func CollectConcatenated(ch <-chan Item) (*frame.Frame, error) {
	var parts []*frame.Frame
	defer func() {
		for _, p := range parts {
			p.Release()
		}
	}()
	var firstErr error
	for item := range ch {
		if item.Err != nil {
			if firstErr == nil {
				firstErr = item.Err
			}
			continue
		}
		parts = append(parts, item.Frame)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if len(parts) == 0 {
		return nil, frerr.New("parquetio.CollectConcatenated", frerr.NoData, "no frames produced")
	}
	return frame.Concat(parts)
}

// osRootFS is split out so tests can swap in an in-memory fs.FS
// without touching Glob's signature.
var osRootFS = func(root string) fs.FS { return osDirFS(root) }
