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

// Package handle implements the handle lifecycle subsystem: a state
// store that persists Frame values under generated keys, a registry
// that maps handle strings to those values with TTL-based expiry, and
// a provider that presents both as one uniform facade (spec §4.C/D/E).
package handle

import (
	"context"

	"github.com/framesrv/framesrv/frame"
)

// Store persists Frame values under server-generated keys. It has two
// concrete implementations: MemoryStore (in-process) and FSStore
// (external, one Arrow IPC file per key) — see spec §4.C.
type Store interface {
	// Put assigns a fresh key, persists f under it, and returns the key.
	Put(ctx context.Context, f *frame.Frame) (key string, err error)
	// Get loads the Frame stored under key, or fails HandleNotFound.
	Get(ctx context.Context, key string) (*frame.Frame, error)
	// Delete removes the object stored under key. Deleting an absent
	// key is not an error.
	Delete(ctx context.Context, key string) error
}
