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
	"sync"

	"github.com/google/uuid"

	"github.com/framesrv/framesrv/frame"
	"github.com/framesrv/framesrv/frerr"
)

// MemoryStore is the in-process Store variant: frames are held by
// reference, never serialized.
type MemoryStore struct {
	mu      sync.RWMutex
	frames  map[string]*frame.Frame
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{frames: make(map[string]*frame.Frame)}
}

// Put retains f and stores it under a fresh UUID key.
func (s *MemoryStore) Put(_ context.Context, f *frame.Frame) (string, error) {
	key := uuid.NewString()
	f.Retain()
	s.mu.Lock()
	s.frames[key] = f
	s.mu.Unlock()
	return key, nil
}

// Get returns the frame stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) (*frame.Frame, error) {
	s.mu.RLock()
	f, ok := s.frames[key]
	s.mu.RUnlock()
	if !ok {
		return nil, frerr.New("handle.MemoryStore.Get", frerr.HandleNotFound, key)
	}
	return f, nil
}

// Delete releases and forgets the frame stored under key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	f, ok := s.frames[key]
	if ok {
		delete(s.frames, key)
	}
	s.mu.Unlock()
	if ok {
		f.Release()
	}
	return nil
}
