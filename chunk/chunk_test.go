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

package chunk

import (
	"testing"

	"github.com/framesrv/framesrv/memmgr"
)

func TestCalculateChunkSizeClamped(t *testing.T) {
	mgr := memmgr.New(func() int64 { return 1 << 30 })
	s := New(mgr)

	if got := s.CalculateChunkSize(1); got != defaultMinRows {
		t.Fatalf("CalculateChunkSize(1) = %d, want min %d", got, defaultMinRows)
	}
	if got := s.CalculateChunkSize(1 << 40); got != defaultMaxRows {
		t.Fatalf("CalculateChunkSize(huge) = %d, want max %d", got, defaultMaxRows)
	}
}

func TestAdjustShrinksUnderPressure(t *testing.T) {
	avail := int64(1000)
	mgr := memmgr.New(func() int64 { return avail })
	mgr.Track(900) // ratio 0.9 > 0.85
	s := New(mgr)
	before := s.CurrentRows()

	s.Adjust(50)
	if s.CurrentRows() >= before {
		t.Fatalf("CurrentRows() = %d, want less than %d after shrink", s.CurrentRows(), before)
	}
}

func TestAdjustGrowsWhenIdleAndFast(t *testing.T) {
	avail := int64(1000)
	mgr := memmgr.New(func() int64 { return avail })
	mgr.Track(100) // ratio 0.1 < 0.5
	s := New(mgr)
	before := s.CurrentRows()

	s.Adjust(10) // fast, < 100ms
	if s.CurrentRows() <= before {
		t.Fatalf("CurrentRows() = %d, want more than %d after grow", s.CurrentRows(), before)
	}
}

func TestAdjustNoOpInDeadZone(t *testing.T) {
	avail := int64(1000)
	mgr := memmgr.New(func() int64 { return avail })
	mgr.Track(600) // ratio 0.6, neither >0.85 nor <0.5
	s := New(mgr)
	before := s.CurrentRows()

	s.Adjust(10)
	if s.CurrentRows() != before {
		t.Fatalf("CurrentRows() = %d, want unchanged %d", s.CurrentRows(), before)
	}
}

func TestAdjustRespectsBounds(t *testing.T) {
	mgr := memmgr.New(func() int64 { return 1000 })
	mgr.Track(950) // heavy pressure, repeated shrinks should floor at minRows
	s := New(mgr, WithMinRows(5000))

	for i := 0; i < 50; i++ {
		s.Adjust(10)
	}
	if s.CurrentRows() < 5000 {
		t.Fatalf("CurrentRows() = %d, want >= min 5000", s.CurrentRows())
	}
}
