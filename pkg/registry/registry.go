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

// Package registry implements the fixed NF slot table (spec component C3)
// and the atomic parent/child bookkeeping used by supervision (C8). It is
// the Go analogue of the `nfs[MAX_NFS]` array and `onvm_nf_next_instance_id`
// in openNetVM's onvm_nf.c.
package registry

import (
	"sync/atomic"

	"github.com/sdnfv/nfresmgr/pkg/ring"
)

// Status is the lifecycle state of an NF slot (spec.md §4.5).
type Status int

const (
	// Empty is the state of a slot with no NF assigned (equivalent to
	// Stopped for reallocation purposes).
	Empty Status = iota
	Starting
	Running
	Paused
	Stopping
	Stopped
)

func (s Status) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// HasRings reports whether a slot in this status owns live rings
// (invariant 1 of spec.md §3).
func (s Status) HasRings() bool {
	switch s {
	case Starting, Running, Paused, Stopping:
		return true
	default:
		return false
	}
}

// Counters are the per-NF statistics mutated only by the owning NF
// process and read without locking by the controller (spec.md §3/§5).
type Counters struct {
	RXPackets uint64
	TXPackets uint64
	Drops     uint64
}

// AddRX atomically increments the rx packet counter.
func (c *Counters) AddRX(n uint64) { atomic.AddUint64(&c.RXPackets, n) }

// AddTX atomically increments the tx packet counter.
func (c *Counters) AddTX(n uint64) { atomic.AddUint64(&c.TXPackets, n) }

// AddDrops atomically increments the drop counter.
func (c *Counters) AddDrops(n uint64) { atomic.AddUint64(&c.Drops, n) }

// LoadRX atomically reads the rx packet counter.
func (c *Counters) LoadRX() uint64 { return atomic.LoadUint64(&c.RXPackets) }

// Slot is one entry of the NF table (spec.md §3).
type Slot struct {
	InstanceID uint16
	ServiceID  uint16
	Status     Status
	Tag        string
	Core       int
	HandleRate uint64

	RXRing  *ring.Ring
	TXRing  *ring.Ring
	MsgRing *ring.Ring

	Counters Counters

	// Supervision (C8).
	ParentID     uint16
	childrenCnt  int32 // atomic, incremented when a child naming this parent is admitted, decremented on child stop

	// Sleep/idle bookkeeping (C7), only meaningful on slots that are
	// themselves a parent for sleep_instance/sleep_count/wait fields.
	SleepFlag     bool
	IdleTicks     int
	SleepInstance []uint16 // LIFO stack, bounded by MaxChild
	WaitCounter   int
	WaitFlag      bool
}

// IsValid mirrors onvm_nf_is_valid: a slot is a live NF if its status is
// not Empty/Stopped.
func (s *Slot) IsValid() bool {
	return s.Status != Empty && s.Status != Stopped
}

// ChildrenCount atomically reads the live-children count.
func (s *Slot) ChildrenCount() int32 {
	return atomic.LoadInt32(&s.childrenCnt)
}

// IncChildren atomically increments the live-children count; called by
// lifecycle.Admit on the parent's slot when it admits a child naming that
// parent (spec.md §4.8).
func (s *Slot) IncChildren() int32 {
	return atomic.AddInt32(&s.childrenCnt, 1)
}

// DecChildren atomically decrements the live-children count; called on
// child stop.
func (s *Slot) DecChildren() int32 {
	return atomic.AddInt32(&s.childrenCnt, -1)
}

// Registry is the fixed NF slot table. Slots are written only by the
// lifecycle state machine (the controller's single writer discipline);
// the Counters field of a slot is written only by the owning NF.
type Registry struct {
	maxNFs            uint16
	startingInstance  uint16
	slots             []Slot
	nextInstanceID    uint16
	numNFs            int
}

// New creates a Registry sized for maxNFs instances. Instance id 0 is
// reserved as "no NF", matching spec.md's MAX_NFS semantics: valid ids
// range over [1, maxNFs).
func New(maxNFs uint16) *Registry {
	if maxNFs < 2 {
		maxNFs = 2
	}
	r := &Registry{
		maxNFs:           maxNFs,
		startingInstance: 1,
		nextInstanceID:   1,
		slots:            make([]Slot, maxNFs),
	}
	for i := range r.slots {
		r.slots[i].InstanceID = uint16(i)
	}
	return r
}

// MaxNFs returns the table's fixed size (including the reserved id 0).
func (r *Registry) MaxNFs() uint16 { return r.maxNFs }

// NumNFs returns the count of slots in {Running, Paused} (invariant 2).
func (r *Registry) NumNFs() int { return r.numNFs }

// Slot returns a pointer to the slot for id, or nil if id is out of range.
// The zero id and ids >= MaxNFs always return nil (id 0 is reserved).
func (r *Registry) Slot(id uint16) *Slot {
	if id == 0 || id >= r.maxNFs {
		return nil
	}
	return &r.slots[id]
}

// IncNumNFs/DecNumNFs adjust the running/paused NF count; only the
// lifecycle package should call these, as part of Ready/Stop transitions.
func (r *Registry) IncNumNFs() { r.numNFs++ }
func (r *Registry) DecNumNFs() {
	if r.numNFs > 0 {
		r.numNFs--
	}
}

// NextInstanceID implements the two-pass rotating scan of
// onvm_nf_next_instance_id: scan from the last allocation point to the
// end of the table, and if that fails, reset and scan again from
// startingInstance. Returns MaxNFs() if the table is full. This method
// does not itself mark the slot occupied; callers must set its Status
// away from Empty/Stopped once consumed.
func (r *Registry) NextInstanceID() uint16 {
	for r.nextInstanceID < r.maxNFs {
		id := r.nextInstanceID
		r.nextInstanceID++
		if !r.slots[id].IsValid() {
			return id
		}
	}

	r.nextInstanceID = r.startingInstance
	for r.nextInstanceID < r.maxNFs {
		id := r.nextInstanceID
		r.nextInstanceID++
		if !r.slots[id].IsValid() {
			return id
		}
	}

	return r.maxNFs
}

// Reset clears a slot back to its zero/Empty state, used by lifecycle.Stop
// to make a stopped NF's slot reusable.
func (r *Registry) Reset(id uint16) {
	s := r.Slot(id)
	if s == nil {
		return
	}
	instanceID := s.InstanceID
	*s = Slot{InstanceID: instanceID, Status: Empty}
}

// ForEachValid calls fn for every currently valid (non-Empty, non-Stopped)
// slot, in ascending instance id order, matching the iteration openNetVM
// performs over nfs[0..MAX_NFS) in onvm_nf_scaling.
func (r *Registry) ForEachValid(fn func(*Slot)) {
	for i := range r.slots {
		if r.slots[i].IsValid() {
			fn(&r.slots[i])
		}
	}
}
