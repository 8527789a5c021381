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
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/framesrv/framesrv/frame"
	"github.com/framesrv/framesrv/frerr"
)

// Record is the registry's bookkeeping entry for one handle: a shared
// reference to its Frame plus the timestamps that govern TTL expiry
// (spec §3 HandleRecord).
type Record struct {
	HandleID     string
	Frame        *frame.Frame
	CreatedAt    time.Time
	LastAccessed time.Time
	TTL          time.Duration
}

func (r *Record) expired(now time.Time) bool {
	return now.Sub(r.LastAccessed) > r.TTL
}

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	records map[string]*Record
}

func shardFor(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32()) % shardCount
}

// Registry owns the concurrent handle_id -> Record mapping, sharded so
// that operations on independent handles never contend on the same
// lock (spec §5: "one mutation lock per shard ... readers are
// non-exclusive" is approximated here by keeping each shard's critical
// section as short as possible).
type Registry struct {
	shards     [shardCount]shard
	defaultTTL time.Duration
}

// NewRegistry returns a Registry whose records expire after
// defaultTTL of inactivity.
func NewRegistry(defaultTTL time.Duration) *Registry {
	r := &Registry{defaultTTL: defaultTTL}
	for i := range r.shards {
		r.shards[i].records = make(map[string]*Record)
	}
	return r
}

// Create generates a fresh handle ID, retains f, and inserts a live
// record for it. Create never fails.
func (r *Registry) Create(f *frame.Frame) string {
	id := uuid.NewString()
	now := time.Now()
	f.Retain()
	sh := &r.shards[shardFor(id)]
	sh.mu.Lock()
	sh.records[id] = &Record{
		HandleID:     id,
		Frame:        f,
		CreatedAt:    now,
		LastAccessed: now,
		TTL:          r.defaultTTL,
	}
	sh.mu.Unlock()
	return id
}

// Get returns a shared reference to the Frame registered under id,
// refreshing its last-accessed time. It fails HandleNotFound if id was
// never registered (or was already dropped/expired), and
// HandleExpired — removing the record — if the TTL has lapsed.
func (r *Registry) Get(id string) (*frame.Frame, error) {
	sh := &r.shards[shardFor(id)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[id]
	if !ok {
		return nil, frerr.New("handle.Registry.Get", frerr.HandleNotFound, id)
	}
	now := time.Now()
	if rec.expired(now) {
		delete(sh.records, id)
		rec.Frame.Release()
		return nil, frerr.New("handle.Registry.Get", frerr.HandleExpired, id)
	}
	rec.LastAccessed = now
	rec.Frame.Retain()
	return rec.Frame, nil
}

// Drop removes the record for id, failing HandleNotFound if absent.
func (r *Registry) Drop(id string) error {
	sh := &r.shards[shardFor(id)]
	sh.mu.Lock()
	rec, ok := sh.records[id]
	if ok {
		delete(sh.records, id)
	}
	sh.mu.Unlock()
	if !ok {
		return frerr.New("handle.Registry.Drop", frerr.HandleNotFound, id)
	}
	rec.Frame.Release()
	return nil
}

// Clone inserts a new record sharing the same underlying Frame as id
// (a cheap structural clone, not a data copy), returning the new
// handle's ID.
func (r *Registry) Clone(id string) (string, error) {
	sh := &r.shards[shardFor(id)]
	sh.mu.Lock()
	rec, ok := sh.records[id]
	var f *frame.Frame
	if ok {
		now := time.Now()
		if rec.expired(now) {
			delete(sh.records, id)
			sh.mu.Unlock()
			rec.Frame.Release()
			return "", frerr.New("handle.Registry.Clone", frerr.HandleExpired, id)
		}
		rec.LastAccessed = now
		f = rec.Frame.Clone()
	}
	sh.mu.Unlock()
	if !ok {
		return "", frerr.New("handle.Registry.Clone", frerr.HandleNotFound, id)
	}
	cloneID := r.Create(f)
	f.Release()
	return cloneID, nil
}

// Heartbeat refreshes last-accessed for id without touching the
// Frame's reference count, failing the same way Get does on
// absence/expiry.
func (r *Registry) Heartbeat(id string) error {
	sh := &r.shards[shardFor(id)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[id]
	if !ok {
		return frerr.New("handle.Registry.Heartbeat", frerr.HandleNotFound, id)
	}
	now := time.Now()
	if rec.expired(now) {
		delete(sh.records, id)
		rec.Frame.Release()
		return frerr.New("handle.Registry.Heartbeat", frerr.HandleExpired, id)
	}
	rec.LastAccessed = now
	return nil
}

// IsAlive reports whether id names a live (non-expired) record,
// without mutating any state.
func (r *Registry) IsAlive(id string) bool {
	sh := &r.shards[shardFor(id)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[id]
	return ok && !rec.expired(time.Now())
}

// CleanupExpired scans every shard, removing and releasing every
// expired record, and returns the number removed. Safe to call
// concurrently with any other Registry method, and meant to be driven
// by a periodic ticker (spec: every 300 seconds).
func (r *Registry) CleanupExpired() int {
	now := time.Now()
	var n int
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		var toRelease []*frame.Frame
		for id, rec := range sh.records {
			if rec.expired(now) {
				delete(sh.records, id)
				toRelease = append(toRelease, rec.Frame)
			}
		}
		sh.mu.Unlock()
		for _, f := range toRelease {
			f.Release()
		}
		n += len(toRelease)
	}
	return n
}
