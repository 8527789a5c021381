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
	"fmt"
	"strings"

	"github.com/framesrv/framesrv/frame"
	"github.com/framesrv/framesrv/frerr"
)

// storeMode selects which of Provider's two backends is active. Both
// are known at compile time, so Provider dispatches on this tag rather
// than through an interface value — the sum-type shape spec §9 asks
// for in place of open-ended dynamic dispatch.
type storeMode int

const (
	modeInMemory storeMode = iota
	modeExternal
)

// backendTag is the only value ever used in an external handle string;
// "fs" is the sole backend this package ships.
const backendTag = "fs"

// Provider is the uniform facade over the Handle Registry and the
// State Store: in memory mode, handle strings are opaque registry IDs
// backed by live Frame references; in external mode, handle strings
// are `ext:<backend>:<key>` strings backed by a durable Store, and
// serialization work is offloaded to a blocking-task pool (spec §4.E).
type Provider struct {
	mode     storeMode
	registry *Registry // memory mode only
	store    Store     // external mode only
	pool     *blockPool
}

// NewInMemoryProvider returns a Provider whose handles live entirely
// in the process, backed by reg.
func NewInMemoryProvider(reg *Registry) *Provider {
	return &Provider{mode: modeInMemory, registry: reg}
}

// NewExternalProvider returns a Provider whose handles are backed by
// store, with serialization offloaded to a dedicated blocking pool.
func NewExternalProvider(store Store) *Provider {
	return &Provider{mode: modeExternal, store: store, pool: newBlockPool()}
}

// CreateHandle registers f and returns its handle string.
func (p *Provider) CreateHandle(ctx context.Context, f *frame.Frame) (string, error) {
	switch p.mode {
	case modeInMemory:
		return p.registry.Create(f), nil
	case modeExternal:
		key, err := run(ctx, p.pool, func() (string, error) {
			return p.store.Put(ctx, f)
		})
		if err != nil {
			return "", err
		}
		return EncodeExternalHandle(backendTag, key), nil
	default:
		panic("handle: unknown store mode")
	}
}

// GetDataframe resolves handle to its Frame.
func (p *Provider) GetDataframe(ctx context.Context, handleStr string) (*frame.Frame, error) {
	switch p.mode {
	case modeInMemory:
		return p.registry.Get(handleStr)
	case modeExternal:
		ref, err := DecodeExternalHandle(handleStr)
		if err != nil {
			return nil, err
		}
		return run(ctx, p.pool, func() (*frame.Frame, error) {
			return p.store.Get(ctx, ref.Key)
		})
	default:
		panic("handle: unknown store mode")
	}
}

// DropHandle removes handle and its underlying Frame.
func (p *Provider) DropHandle(ctx context.Context, handleStr string) error {
	switch p.mode {
	case modeInMemory:
		return p.registry.Drop(handleStr)
	case modeExternal:
		ref, err := DecodeExternalHandle(handleStr)
		if err != nil {
			return err
		}
		_, err = run(ctx, p.pool, func() (struct{}, error) {
			return struct{}{}, p.store.Delete(ctx, ref.Key)
		})
		return err
	default:
		panic("handle: unknown store mode")
	}
}

// Heartbeat refreshes handle's liveness. In external mode this is a
// no-op: the store governs its own object lifecycle, not the registry.
func (p *Provider) Heartbeat(_ context.Context, handleStr string) error {
	switch p.mode {
	case modeInMemory:
		return p.registry.Heartbeat(handleStr)
	case modeExternal:
		return nil
	default:
		panic("handle: unknown store mode")
	}
}

// ExternalHandleRef is the parsed form of an `ext:<backend>:<key>`
// handle string.
type ExternalHandleRef struct {
	Backend string
	Key     string
}

// EncodeExternalHandle formats backend and key as an external handle
// string. The arguments are not validated; callers only ever pass the
// fixed backendTag and a uuid.NewString() key, neither of which
// contains ':', and DecodeExternalHandle rejects a key that does.
func EncodeExternalHandle(backend, key string) string {
	return fmt.Sprintf("ext:%s:%s", backend, key)
}

// DecodeExternalHandle parses an `ext:<backend>:<key>` string,
// failing InvalidHandleFormat for anything else (wrong scheme, wrong
// field count, or an embedded ':' in backend/key).
func DecodeExternalHandle(s string) (ExternalHandleRef, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "ext" {
		return ExternalHandleRef{}, frerr.New("handle.DecodeExternalHandle", frerr.InvalidHandleFormat, s)
	}
	backend, key := parts[1], parts[2]
	if backend == "" || key == "" || strings.Contains(key, ":") {
		return ExternalHandleRef{}, frerr.New("handle.DecodeExternalHandle", frerr.InvalidHandleFormat, s)
	}
	return ExternalHandleRef{Backend: backend, Key: key}, nil
}
