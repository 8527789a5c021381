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

package memmgr

import "testing"

func TestMemoryRatio(t *testing.T) {
	cases := []struct {
		name      string
		available int64
		tracked   int64
		want      float64
	}{
		{"half", 1000, 500, 0.5},
		{"zero-available", 0, 500, 0},
		{"over-100-percent-clamped", 100, 300, 1},
		{"no-usage", 1000, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := New(func() int64 { return c.available })
			m.Track(c.tracked)
			if got := m.MemoryRatio(); got != c.want {
				t.Fatalf("MemoryRatio() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestTrackNegativeDelta(t *testing.T) {
	m := New(func() int64 { return 1000 })
	m.Track(500)
	m.Track(-200)
	if got := m.TrackedBytes(); got != 300 {
		t.Fatalf("TrackedBytes() = %d, want 300", got)
	}
}
