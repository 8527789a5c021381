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
	"runtime"
)

// blockPool is a fixed-size pool of goroutines that run blocking
// filesystem and codec work, the Go-idiomatic stand-in for the
// "dedicated blocking-task pool" spec §5 requires external-mode
// operations to cross into explicitly. Sized to GOMAXPROCS, the same
// choice the teacher's on-disk cache worker pool makes.
type blockPool struct {
	sem chan struct{}
}

func newBlockPool() *blockPool {
	n := runtime.GOMAXPROCS(0)
	return &blockPool{sem: make(chan struct{}, n)}
}

// run executes fn on its own goroutine, bounded to the pool's size,
// and waits for it to finish or ctx to be cancelled. Cancellation does
// not stop fn (there is no preemption point inside blocking I/O); it
// only stops the caller from waiting on it.
func run[T any](ctx context.Context, p *blockPool, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	defer func() { <-p.sem }()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		// the goroutine keeps running to completion in the
		// background (blocking I/O can't be preempted) but the
		// caller stops waiting on it.
		return zero, ctx.Err()
	}
}
