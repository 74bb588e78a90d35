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

// Package lifecycle implements the NF lifecycle state machine (spec
// component C5): admit, ready, sleep, wake and stop, wired to the slot
// table (C3), the service map (C4), the core allocator (C2) and the
// message/packet pools. It is the Go analogue of onvm_nf_start,
// onvm_nf_ready, onvm_nf_sleep_instance, onvm_nf_instance_wakeup and
// onvm_nf_stop in openNetVM's onvm_nf.c.
package lifecycle

import (
	"sync"

	logger "github.com/sdnfv/nfresmgr/pkg/log"

	"github.com/sdnfv/nfresmgr/pkg/cpuallocator"
	"github.com/sdnfv/nfresmgr/pkg/nfmsg"
	"github.com/sdnfv/nfresmgr/pkg/registry"
	"github.com/sdnfv/nfresmgr/pkg/ring"
	"github.com/sdnfv/nfresmgr/pkg/servicemap"
)

const logSource = "lifecycle"

var log = logger.NewLogger(logSource)

// PacketFreer returns a leftover packet buffer to whatever pool backs the
// data plane; the packet buffer type itself is an external collaborator
// out of scope for this module (spec.md §2 Non-goals), so it is handled
// opaquely here exactly as the rx/tx ring payloads are.
type PacketFreer interface {
	FreePacket(pkt interface{})
}

// Sender delivers a control message to instance id dest; the dispatcher
// (C6) implements this so the state machine can emit CHANGE_CORE without
// importing the dispatch package (spec.md §4.5 step 9).
type Sender interface {
	Send(dest uint16, t nfmsg.Type, payload interface{}) error
}

// MessageFreer returns a message drained from an NF's msg ring to the
// shared message pool; the dispatcher (C6) implements this so Stop's
// msg-ring drain does not leak pool capacity (spec.md §4.5 step 6).
type MessageFreer interface {
	FreeMessage(msg interface{})
}

// Config holds the fixed sizing parameters read once at manager start,
// mirroring onvm_nf.h's compile-time constants.
type Config struct {
	RXRingSize               int
	TXRingSize               int
	MsgRingSize              int
	PacketReadSize           int
	ShutdownCoreReassignment bool
}

// Machine owns the NF slot table, service map and core allocator and is
// the single writer of every field they expose (spec.md §5 "disjoint
// writer discipline"). It is not safe for concurrent use by more than one
// caller; the manager serializes all lifecycle calls onto its own poll
// loop goroutine.
type Machine struct {
	logger.Logger

	mu sync.Mutex

	cfg  Config
	reg  *registry.Registry
	svc  *servicemap.ServiceMap
	cpus *cpuallocator.CoreAllocator
	pkts PacketFreer

	sender Sender
	msgs   MessageFreer
}

// New builds a Machine over the given sub-components. sender may be nil
// until the dispatcher is constructed; SetSender must be called before
// any Stop() that could trigger a shutdown core reassignment.
func New(cfg Config, reg *registry.Registry, svc *servicemap.ServiceMap, cpus *cpuallocator.CoreAllocator, pkts PacketFreer) *Machine {
	return &Machine{
		Logger: log,
		cfg:    cfg,
		reg:    reg,
		svc:    svc,
		cpus:   cpus,
		pkts:   pkts,
	}
}

// SetSender wires the control-message sender used to emit CHANGE_CORE
// messages on shutdown core reassignment.
func (m *Machine) SetSender(s Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sender = s
}

// SetMessageFreer wires the pool that a stopped NF's still-queued msg
// ring contents are returned to.
func (m *Machine) SetMessageFreer(f MessageFreer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = f
}

// Admit implements admit(): validate service/id bounds, allocate a core
// and create the NF's rings, moving the slot to Starting. On any
// rejection cfg.Status is set to the corresponding AdmitStatus and an
// error is returned; no table or core state is mutated on failure
// (spec.md §4.5 admit()).
func (m *Machine) Admit(cfg *nfmsg.InitCfg) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(cfg.ServiceID) >= m.svc.MaxServices() {
		cfg.Status = nfmsg.ServiceMax
		return registry.ErrUnknownInstance
	}
	if m.svc.Count(cfg.ServiceID) >= m.svc.MaxPerService() {
		cfg.Status = nfmsg.ServiceCountMax
		return servicemap.ErrServiceCountMax
	}

	id := cfg.InstanceID
	if id == nfmsg.NoID {
		id = m.reg.NextInstanceID()
		if id >= m.reg.MaxNFs() {
			cfg.Status = nfmsg.NoIDs
			return registry.ErrNoIDs
		}
	} else {
		slot := m.reg.Slot(id)
		if slot == nil || id >= m.reg.MaxNFs() {
			cfg.Status = nfmsg.NoIDs
			return registry.ErrUnknownInstance
		}
		if slot.IsValid() {
			cfg.Status = nfmsg.IDConflict
			return registry.ErrIDConflict
		}
	}

	core, err := m.cpus.Acquire(cpuallocator.Options{
		Dedicated:     cfg.Dedicated,
		PreferredCore: cfg.PreferredCore,
	})
	if err != nil {
		cfg.Status = nfmsg.NoCoreCapacity
		return err
	}

	if cfg.ParentID != 0 {
		if parent := m.reg.Slot(cfg.ParentID); parent != nil {
			parent.IncChildren()
		}
	}

	slot := m.reg.Slot(id)
	*slot = registry.Slot{
		InstanceID: id,
		ServiceID:  cfg.ServiceID,
		Status:     registry.Starting,
		Tag:        cfg.Tag,
		Core:       core,
		HandleRate: cfg.HandleRate,
		ParentID:   cfg.ParentID,
		RXRing:     ring.New(m.cfg.RXRingSize),
		TXRing:     ring.New(m.cfg.TXRingSize),
		MsgRing:    ring.New(m.cfg.MsgRingSize),
	}

	cfg.InstanceID = id
	cfg.Status = nfmsg.StartingOK
	m.Info("admitted nf %d (service %d, core %d, dedicated=%v)", id, cfg.ServiceID, core, cfg.Dedicated)
	return nil
}

// Ready implements ready(): a Starting NF transitions to Running and, if
// it is not itself marked as a sleeping child, is inserted into the
// service map (spec.md §4.5 ready()).
func (m *Machine) Ready(id uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot := m.reg.Slot(id)
	if slot == nil || slot.Status != registry.Starting {
		return ErrInvalidTransition
	}

	slot.Status = registry.Running
	m.reg.IncNumNFs()
	if !slot.SleepFlag {
		if err := m.svc.Add(slot.ServiceID, id); err != nil {
			return err
		}
	}
	m.Info("nf %d ready (service %d)", id, slot.ServiceID)
	return nil
}

// Sleep implements the Running -> Paused half of sleep_instance(): the NF
// is removed from the service map, pushed onto its parent's sleep stack
// and flagged asleep (spec.md §4.7 rule 2).
func (m *Machine) Sleep(id uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot := m.reg.Slot(id)
	if slot == nil || slot.Status != registry.Running {
		return ErrInvalidTransition
	}

	slot.Status = registry.Paused
	m.svc.Remove(slot.ServiceID, id)
	slot.SleepFlag = true

	if slot.ParentID != 0 {
		if parent := m.reg.Slot(slot.ParentID); parent != nil {
			parent.SleepInstance = append(parent.SleepInstance, id)
		}
	}
	m.Info("nf %d put to sleep (service %d)", id, slot.ServiceID)
	return nil
}

// Wake implements instance_wakeup(): pop the most recently slept child off
// parentID's sleep stack (LIFO, matching onvm_nf_instance_wakeup), clear
// its sleep flag and idle_ticks (spec.md §5 open question: idle_ticks
// resets on any wake) and reinsert it into the service map.
func (m *Machine) Wake(parentID uint16) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent := m.reg.Slot(parentID)
	if parent == nil {
		return 0, ErrUnknownInstance
	}
	n := len(parent.SleepInstance)
	if n == 0 {
		return 0, ErrNoSleepers
	}

	childID := parent.SleepInstance[n-1]
	parent.SleepInstance = parent.SleepInstance[:n-1]

	child := m.reg.Slot(childID)
	if child == nil {
		return 0, ErrUnknownInstance
	}
	child.Status = registry.Running
	child.SleepFlag = false
	child.IdleTicks = 0
	if err := m.svc.Add(child.ServiceID, childID); err != nil {
		return 0, err
	}
	m.Info("woke nf %d (parent %d)", childID, parentID)
	return childID, nil
}

// Stop implements the nine-step teardown order of onvm_nf_stop (spec.md
// §4.5 step-by-step): mark Stopping, remove from the service map, free the
// tag, decrement the parent's live-children count, release the core,
// drain and free ring contents, reset the slot, adjust NumNFs and, if
// configured, relocate the busiest NF on another core onto the now-free
// one. Calling Stop on an already-Empty/Stopped slot is a no-op success
// (idempotent). Stopping a parent whose children_cnt has not yet reached
// zero is rejected with ErrParentHasChildren and has no side effects
// (spec.md §9 open question #2).
func (m *Machine) Stop(id uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot := m.reg.Slot(id)
	if slot == nil {
		return ErrUnknownInstance
	}
	if slot.Status == registry.Empty || slot.Status == registry.Stopped {
		return nil
	}
	if slot.ChildrenCount() > 0 {
		return ErrParentHasChildren
	}

	prevStatus := slot.Status
	slot.Status = registry.Stopping // step 1

	if !slot.SleepFlag { // step 2
		m.svc.Remove(slot.ServiceID, id)
	}
	slot.Tag = "" // step 3

	if slot.ParentID != 0 { // step 4
		if parent := m.reg.Slot(slot.ParentID); parent != nil {
			parent.DecChildren()
		}
	}

	freedCore := slot.Core
	m.cpus.Release(freedCore) // step 5

	if m.pkts != nil { // step 6
		if slot.RXRing != nil {
			slot.RXRing.DrainFunc(m.burstSize(), m.pkts.FreePacket)
		}
		if slot.TXRing != nil {
			slot.TXRing.DrainFunc(m.burstSize(), m.pkts.FreePacket)
		}
	}
	if slot.MsgRing != nil { // step 6
		if m.msgs != nil {
			slot.MsgRing.DrainFunc(m.burstSize(), m.msgs.FreeMessage)
		} else {
			slot.MsgRing.DrainFunc(m.burstSize(), func(interface{}) {})
		}
	}

	m.reg.Reset(id) // step 7

	if prevStatus == registry.Running || prevStatus == registry.Paused { // step 8
		m.reg.DecNumNFs()
	}

	if m.cfg.ShutdownCoreReassignment { // step 9
		m.reassignAfterRelease(freedCore)
	}

	m.Info("stopped nf %d (freed core %d)", id, freedCore)
	return nil
}

// reassignAfterRelease implements onvm_threading_find_nf_to_reassign_core
// plus onvm_nf_relocate_nf: if another core now carries more than one NF,
// move its lowest-instance-id occupant onto the just-freed core.
func (m *Machine) reassignAfterRelease(freedCore int) {
	instanceOnCore := make(map[int]uint16)
	m.reg.ForEachValid(func(s *registry.Slot) {
		if _, ok := instanceOnCore[s.Core]; !ok {
			instanceOnCore[s.Core] = s.InstanceID
		}
	})

	candidate := m.cpus.FindReassignmentCandidate(freedCore, instanceOnCore)
	if candidate == 0 {
		return
	}

	cslot := m.reg.Slot(candidate)
	if cslot == nil {
		return
	}
	oldCore := cslot.Core
	m.cpus.Relocate(oldCore, freedCore)
	cslot.Core = freedCore

	if m.sender != nil {
		if err := m.sender.Send(candidate, nfmsg.ChangeCore, nfmsg.ChangeCoreData{NewCore: freedCore}); err != nil {
			m.Warn("failed to notify nf %d of core change: %v", candidate, err)
		}
	}
	m.Info("relocated nf %d from core %d to core %d", candidate, oldCore, freedCore)
}

func (m *Machine) burstSize() int {
	if m.cfg.PacketReadSize < 1 {
		return 1
	}
	return m.cfg.PacketReadSize
}

// Registry exposes the underlying slot table for read-only inspection by
// the dispatcher and autoscaling controller (spec.md §5: the controller
// is the only writer, but many readers are expected).
func (m *Machine) Registry() *registry.Registry { return m.reg }

// ServiceMap exposes the underlying service map for read-only inspection.
func (m *Machine) ServiceMap() *servicemap.ServiceMap { return m.svc }

// CoreAllocator exposes the underlying core allocator for read-only
// inspection (e.g. metrics collection).
func (m *Machine) CoreAllocator() *cpuallocator.CoreAllocator { return m.cpus }
