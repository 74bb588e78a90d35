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

// Package ring implements a fixed-capacity, lock-free, multi-producer/
// single-consumer FIFO queue of object references, modeled after the DPDK
// rte_ring used by openNetVM to pass packet and message pointers between
// the manager and NF processes.
package ring

import (
	"sync/atomic"
)

// Ring is a fixed-capacity MPSC queue of object references. Producers may
// call Enqueue/EnqueueBurst concurrently from any number of goroutines;
// Dequeue/DequeueBurst must only ever be called from a single consumer
// goroutine, matching the RING_F_SC_DEQ convention the teacher rings were
// created with.
type Ring struct {
	mask uint64
	buf  []unsafe_Pointer

	head     uint64 // next free production slot, CAS'd by producers
	prodTail uint64 // highest production slot fully written and visible to the consumer
	tail     uint64 // next slot to hand to the consumer, single-writer
}

// unsafe_Pointer avoids importing "unsafe" directly in the exported API
// surface while keeping the backing array untyped; items are stored as
// interface{} to remain safe Go instead of raw pointers.
type unsafe_Pointer = interface{}

// New creates a Ring with the given capacity, rounded up to the next
// power of two (mirroring rte_ring_create's requirement).
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	n := uint64(1)
	for n < uint64(capacity) {
		n <<= 1
	}
	return &Ring{
		mask: n - 1,
		buf:  make([]unsafe_Pointer, n),
	}
}

// Capacity returns the ring's fixed capacity.
func (r *Ring) Capacity() int {
	return int(r.mask + 1)
}

// Count returns the number of items currently queued. It is a snapshot;
// concurrent producers may change it immediately after it is read.
func (r *Ring) Count() int {
	prodTail := atomic.LoadUint64(&r.prodTail)
	tail := atomic.LoadUint64(&r.tail)
	return int(prodTail - tail)
}

// Enqueue inserts a single item. Returns false if the ring is full.
func (r *Ring) Enqueue(item interface{}) bool {
	n, _ := r.EnqueueBurst([]interface{}{item})
	return n == 1
}

// EnqueueBurst inserts up to len(items) entries, stopping at the first
// point the ring would overflow. It returns the number actually enqueued.
// Safe for concurrent callers (multi-producer).
func (r *Ring) EnqueueBurst(items []interface{}) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	cap64 := r.mask + 1
	for {
		oldHead := atomic.LoadUint64(&r.head)
		tail := atomic.LoadUint64(&r.tail)
		free := cap64 - (oldHead - tail)
		n := uint64(len(items))
		if free < n {
			n = free
		}
		if n == 0 {
			return 0, ErrFull
		}
		newHead := oldHead + n
		if !atomic.CompareAndSwapUint64(&r.head, oldHead, newHead) {
			continue
		}
		for i := uint64(0); i < n; i++ {
			r.buf[(oldHead+i)&r.mask] = items[i]
		}
		r.commit(oldHead, newHead)
		return int(n), nil
	}
}

// commit makes a producer's writes visible to the consumer. It mirrors
// rte_ring's update_tail: a producer must wait for every earlier-
// reserved range to be committed before advancing prodTail itself, so
// the consumer never observes a reserved-but-not-yet-written slot.
func (r *Ring) commit(oldHead, newHead uint64) {
	for atomic.LoadUint64(&r.prodTail) != oldHead {
		// a preempted earlier producer hasn't finished writing yet.
	}
	atomic.StoreUint64(&r.prodTail, newHead)
}

// EnqueueBulk inserts all of items, or none at all if the ring cannot fit
// the whole batch.
func (r *Ring) EnqueueBulk(items []interface{}) error {
	cap64 := r.mask + 1
	for {
		oldHead := atomic.LoadUint64(&r.head)
		tail := atomic.LoadUint64(&r.tail)
		free := cap64 - (oldHead - tail)
		n := uint64(len(items))
		if free < n {
			return ErrFull
		}
		newHead := oldHead + n
		if !atomic.CompareAndSwapUint64(&r.head, oldHead, newHead) {
			continue
		}
		for i := uint64(0); i < n; i++ {
			r.buf[(oldHead+i)&r.mask] = items[i]
		}
		r.commit(oldHead, newHead)
		return nil
	}
}

// Dequeue removes and returns a single item. The second return is false
// if the ring was empty. Single-consumer only.
func (r *Ring) Dequeue() (interface{}, bool) {
	out := make([]interface{}, 1)
	n, _ := r.DequeueBurst(out)
	if n == 0 {
		return nil, false
	}
	return out[0], true
}

// DequeueBurst removes up to len(out) items into out, returning the count
// actually dequeued. Single-consumer only (no synchronization against
// other consumers is performed, matching RING_F_SC_DEQ rings).
func (r *Ring) DequeueBurst(out []interface{}) (int, error) {
	tail := r.tail
	prodTail := atomic.LoadUint64(&r.prodTail)
	avail := prodTail - tail
	n := uint64(len(out))
	if avail < n {
		n = avail
	}
	if n == 0 {
		return 0, ErrEmpty
	}
	for i := uint64(0); i < n; i++ {
		idx := (tail + i) & r.mask
		out[i] = r.buf[idx]
		r.buf[idx] = nil
	}
	atomic.StoreUint64(&r.tail, tail+n)
	return int(n), nil
}

// DequeueBulk removes exactly len(out) items, or none if that many are
// not currently available. Single-consumer only.
func (r *Ring) DequeueBulk(out []interface{}) error {
	tail := r.tail
	prodTail := atomic.LoadUint64(&r.prodTail)
	avail := prodTail - tail
	n := uint64(len(out))
	if avail < n {
		return ErrEmpty
	}
	for i := uint64(0); i < n; i++ {
		idx := (tail + i) & r.mask
		out[i] = r.buf[idx]
		r.buf[idx] = nil
	}
	atomic.StoreUint64(&r.tail, tail+n)
	return nil
}

// DrainFunc repeatedly bursts up to burstSize items out of the ring,
// invoking fn on each, until the ring reports empty. It is the Go
// equivalent of the teacher's drain-while-dequeue-burst-returns-nonzero
// loops used to free leftover rx/tx/msg ring contents on NF teardown.
func (r *Ring) DrainFunc(burstSize int, fn func(interface{})) int {
	if burstSize < 1 {
		burstSize = 1
	}
	buf := make([]interface{}, burstSize)
	total := 0
	for {
		n, err := r.DequeueBurst(buf)
		if n == 0 {
			if err != nil {
				return total
			}
			return total
		}
		for i := 0; i < n; i++ {
			fn(buf[i])
		}
		total += n
	}
}
