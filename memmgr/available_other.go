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

//go:build !linux

package memmgr

// DefaultAvailableBytes returns 0 on non-Linux platforms: neither
// cgroupv2 nor /proc/meminfo is available, so MemoryRatio treats the
// budget as unknown and reports 0 (no memory pressure).
func DefaultAvailableBytes() int64 { return 0 }
