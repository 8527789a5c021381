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

// Package chunk sizes the row batches the adaptive reader pulls from
// Parquet row groups, biased toward shrinking quickly under memory
// pressure and growing slowly when there's headroom (spec §4.G).
package chunk

import "github.com/framesrv/framesrv/memmgr"

const (
	defaultMinRows           = 1_000
	defaultMaxRows           = 1_000_000
	defaultCurrentRows       = 10_000
	defaultTargetMemoryRatio = 0.7
	estimatedRowSize         = 100 // bytes, fallback used when no better estimate exists
)

// Strategy holds the adaptive chunk-sizing state for a single reader.
// It is not safe for concurrent use: each adaptive reader owns its own
// Strategy.
type Strategy struct {
	mgr *memmgr.Manager

	currentRows       int
	minRows           int
	maxRows           int
	targetMemoryRatio float64
}

// Option configures a Strategy at construction time.
type Option func(*Strategy)

// WithMinRows overrides the minimum chunk size (default 1,000 rows).
func WithMinRows(n int) Option { return func(s *Strategy) { s.minRows = n } }

// WithMaxRows overrides the maximum chunk size (default 1,000,000 rows).
func WithMaxRows(n int) Option { return func(s *Strategy) { s.maxRows = n } }

// WithTargetMemoryRatio overrides the target memory ratio, clamped to
// [0.1, 0.9] (default 0.7).
func WithTargetMemoryRatio(ratio float64) Option {
	return func(s *Strategy) {
		if ratio < 0.1 {
			ratio = 0.1
		}
		if ratio > 0.9 {
			ratio = 0.9
		}
		s.targetMemoryRatio = ratio
	}
}

// New returns a Strategy reading memory pressure from mgr.
func New(mgr *memmgr.Manager, opts ...Option) *Strategy {
	s := &Strategy{
		mgr:               mgr,
		currentRows:       defaultCurrentRows,
		minRows:           defaultMinRows,
		maxRows:           defaultMaxRows,
		targetMemoryRatio: defaultTargetMemoryRatio,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CalculateChunkSize estimates how many rows fit in targetMemoryRatio
// of availableBytes, assuming estimatedRowSize bytes per row, clamped
// to [minRows, maxRows].
func (s *Strategy) CalculateChunkSize(availableBytes int64) int {
	target := float64(availableBytes) * s.targetMemoryRatio
	rows := int(target / estimatedRowSize)
	return clamp(rows, s.minRows, s.maxRows)
}

// CurrentRows returns the strategy's current chunk size, as last set
// by Adjust (or the default, before the first Adjust call).
func (s *Strategy) CurrentRows() int { return s.currentRows }

// Adjust updates CurrentRows from the memory manager's current
// pressure reading: above 85% utilization it shrinks the chunk size by
// 20% (floored at minRows); below 50% utilization with a fast last
// batch (under 100ms) it grows the chunk size by 20% (capped at
// maxRows). Anywhere in between, the chunk size is left unchanged —
// the bias is toward shrinking quickly and growing slowly.
func (s *Strategy) Adjust(lastBatchProcessingMs int64) {
	ratio := s.mgr.MemoryRatio()
	switch {
	case ratio > 0.85:
		s.currentRows = clamp(s.currentRows*8/10, s.minRows, s.maxRows)
	case ratio < 0.5 && lastBatchProcessingMs < 100:
		s.currentRows = clamp(s.currentRows*12/10, s.minRows, s.maxRows)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
