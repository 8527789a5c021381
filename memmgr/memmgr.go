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

// Package memmgr tracks how much memory framesrv itself believes it is
// using against an estimate of how much is actually available, and
// exposes the ratio the chunk package uses to size its batches (spec §4.F).
package memmgr

import "sync/atomic"

// Manager tracks bytes attributed to in-flight framesrv work
// (tracked_bytes) against an estimate of the memory budget available to
// the process (available_bytes), both read without locking.
type Manager struct {
	tracked   int64 // atomic
	available func() int64
}

// New returns a Manager whose available-memory estimate comes from
// availableBytesFn. Pass nil to use the default estimator, which
// prefers a cgroupv2 memory limit and falls back to /proc/meminfo
// (DefaultAvailableBytes).
func New(availableBytesFn func() int64) *Manager {
	if availableBytesFn == nil {
		availableBytesFn = DefaultAvailableBytes
	}
	return &Manager{available: availableBytesFn}
}

// Track adds delta (which may be negative) to the bytes the manager
// considers attributed to framesrv's own in-flight work.
func (m *Manager) Track(delta int64) {
	atomic.AddInt64(&m.tracked, delta)
}

// TrackedBytes returns the current tracked-bytes total.
func (m *Manager) TrackedBytes() int64 {
	return atomic.LoadInt64(&m.tracked)
}

// AvailableBytes returns the estimated memory budget.
func (m *Manager) AvailableBytes() int64 {
	return m.available()
}

// MemoryRatio returns TrackedBytes / AvailableBytes, clamped to [0, 1].
// An available-bytes estimate of zero or less is treated as "unknown",
// returning 0 (no memory pressure) rather than dividing by zero.
func (m *Manager) MemoryRatio() float64 {
	avail := m.AvailableBytes()
	if avail <= 0 {
		return 0
	}
	r := float64(m.TrackedBytes()) / float64(avail)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
