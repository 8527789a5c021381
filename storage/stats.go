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

// Package storage implements the tiered DataFrame persistence layer: an
// in-memory LRU cache (hot tier), a compressed Parquet backend (cold
// tier), and a hybrid storage that composes the two with cache-first
// read-through and dual-write semantics.
package storage

import (
	"context"

	"github.com/framesrv/framesrv/frame"
)

// Stats summarizes a backend's current state.
type Stats struct {
	TotalKeys        int
	TotalSizeBytes   int64
	CacheHits        int64
	CacheMisses      int64
	CompressionRatio float64
}

// Backend is the common operation set every storage tier implements.
// Query is not part of Backend: SQL read-through is offered only by
// HybridStorage.Query.
type Backend interface {
	Store(ctx context.Context, key string, f *frame.Frame) error
	Load(ctx context.Context, key string) (*frame.Frame, bool, error)
	ListKeys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, key string) error
	Stats(ctx context.Context) (Stats, error)
}
