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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/framesrv/framesrv/frerr"
)

func TestDecodeExternalHandleRoundTrip(t *testing.T) {
	s := EncodeExternalHandle("fs", "abc-123")
	ref, err := DecodeExternalHandle(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ref.Backend != "fs" || ref.Key != "abc-123" {
		t.Fatalf("Decode = %+v, want backend=fs key=abc-123", ref)
	}
}

func TestDecodeExternalHandleInvalid(t *testing.T) {
	cases := []string{"", "fs:abc", "nope:fs:abc", "ext::abc", "ext:fs:"}
	for _, c := range cases {
		if _, err := DecodeExternalHandle(c); frerr.Of(err) != frerr.InvalidHandleFormat {
			t.Errorf("DecodeExternalHandle(%q) err = %v, want InvalidHandleFormat", c, err)
		}
	}
}

func TestInMemoryProviderRoundTrip(t *testing.T) {
	reg := NewRegistry(time.Hour)
	p := NewInMemoryProvider(reg)
	ctx := context.Background()

	f := testFrame(t)
	id, err := p.CreateHandle(ctx, f)
	f.Release()
	if err != nil {
		t.Fatalf("CreateHandle: %v", err)
	}

	got, err := p.GetDataframe(ctx, id)
	if err != nil {
		t.Fatalf("GetDataframe: %v", err)
	}
	got.Release()

	if err := p.DropHandle(ctx, id); err != nil {
		t.Fatalf("DropHandle: %v", err)
	}
	if _, err := p.GetDataframe(ctx, id); frerr.Of(err) != frerr.HandleNotFound {
		t.Fatalf("GetDataframe after drop err = %v, want HandleNotFound", err)
	}
}

func TestExternalProviderRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	p := NewExternalProvider(store)
	ctx := context.Background()

	f := testFrame(t)
	id, err := p.CreateHandle(ctx, f)
	f.Release()
	if err != nil {
		t.Fatalf("CreateHandle: %v", err)
	}

	ref, err := DecodeExternalHandle(id)
	if err != nil {
		t.Fatalf("DecodeExternalHandle: %v", err)
	}
	if ref.Backend != backendTag {
		t.Fatalf("backend = %q, want %q", ref.Backend, backendTag)
	}
	onDisk := filepath.Join(dir, ref.Key+".ipc")
	if _, err := os.Stat(onDisk); err != nil {
		t.Fatalf("expected %s to exist: %v", onDisk, err)
	}

	got, err := p.GetDataframe(ctx, id)
	if err != nil {
		t.Fatalf("GetDataframe: %v", err)
	}
	if got.Height() != 3 {
		t.Fatalf("Height() = %d, want 3", got.Height())
	}
	got.Release()

	if err := p.Heartbeat(ctx, id); err != nil {
		t.Fatalf("Heartbeat (external no-op): %v", err)
	}

	if err := p.DropHandle(ctx, id); err != nil {
		t.Fatalf("DropHandle: %v", err)
	}
	if _, err := os.Stat(onDisk); err == nil {
		t.Fatalf("expected %s to be removed after DropHandle", onDisk)
	}
}
