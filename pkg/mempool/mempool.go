// Copyright 2019 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mempool implements a fixed-size, pre-allocated object cache, the
// Go analogue of the DPDK rte_mempool used by openNetVM for packet
// buffers, NF message objects and NF info structs. No allocation happens
// on the data path after New(): every object handed out by Get came from
// the arena built at construction time. Put does not check where an
// object came from.
package mempool

import (
	"errors"
	"sync"
)

// ErrExhausted is returned by Get when every object in the pool is
// currently checked out.
var ErrExhausted = errors.New("mempool: exhausted")

// Pool is a fixed-capacity cache of zero-initialized objects of type T.
type Pool[T any] struct {
	mu    sync.Mutex
	free  []*T
	arena []T
}

// New builds a Pool with exactly n pre-allocated objects. reset is called
// once per slot to construct the zero value (e.g. to size an internal
// slice); it may be nil, in which case Go's own zero value is used.
func New[T any](n int, reset func(*T)) *Pool[T] {
	if n < 0 {
		n = 0
	}
	p := &Pool[T]{
		arena: make([]T, n),
		free:  make([]*T, 0, n),
	}
	for i := range p.arena {
		if reset != nil {
			reset(&p.arena[i])
		}
		p.free = append(p.free, &p.arena[i])
	}
	return p
}

// Get removes and returns an object from the pool. Returns ErrExhausted
// if none is available; the caller owns the returned pointer until it
// calls Put.
func (p *Pool[T]) Get() (*T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil, ErrExhausted
	}
	obj := p.free[n-1]
	p.free = p.free[:n-1]
	return obj, nil
}

// Put returns an object to the pool, making it available to future Get
// calls. Putting an object not obtained from this Pool is a programming
// error and is not detected (mirroring rte_mempool_put's lack of origin
// checking).
func (p *Pool[T]) Put(obj *T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, obj)
}

// Available reports how many objects can currently be obtained via Get.
func (p *Pool[T]) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Capacity reports the pool's fixed total size.
func (p *Pool[T]) Capacity() int {
	return len(p.arena)
}
