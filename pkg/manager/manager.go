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

// Package manager wires together the slot table, service map, core
// allocator, lifecycle state machine, control message dispatcher and
// autoscaling controller into the single top-level object a binary
// starts and stops, the Go analogue of openNetVM's onvm_mgr process: the
// one address space that owns every NF's rings and drives the per-tick
// dispatch/scaling loop onvm_mgr_main otherwise implements as a poll over
// shared memory.
package manager

import (
	"fmt"
	"sync"
	"time"

	logger "github.com/sdnfv/nfresmgr/pkg/log"
	"github.com/sdnfv/nfresmgr/pkg/pidfile"

	"github.com/sdnfv/nfresmgr/pkg/autoscale"
	"github.com/sdnfv/nfresmgr/pkg/cpuallocator"
	"github.com/sdnfv/nfresmgr/pkg/dispatch"
	"github.com/sdnfv/nfresmgr/pkg/lifecycle"
	"github.com/sdnfv/nfresmgr/pkg/nfmsg"
	"github.com/sdnfv/nfresmgr/pkg/registry"
	"github.com/sdnfv/nfresmgr/pkg/servicemap"
)

const logSource = "manager"

var log = logger.NewLogger(logSource)

// PacketFreer is re-exported from lifecycle so callers constructing a
// Manager never need to import pkg/lifecycle directly.
type PacketFreer = lifecycle.PacketFreer

// TableInitializer is re-exported from dispatch for the same reason.
type TableInitializer = dispatch.TableInitializer

// Manager is the top-level object a binary constructs, starts and stops.
// It owns the registry, service map, core allocator, lifecycle machine,
// dispatcher and autoscaling controller on a single value and drives
// their per-tick interaction from one goroutine, matching the "disjoint
// writer discipline" the lifecycle package documents.
type Manager struct {
	logger.Logger
	sync.Mutex

	cfg Config

	reg  *registry.Registry
	svc  *servicemap.ServiceMap
	cpus *cpuallocator.CoreAllocator
	lc   *lifecycle.Machine
	disp *dispatch.Dispatcher
	auto *autoscale.Controller

	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// Config collects every tunable needed to build a Manager, mirroring
// openNetVM's onvm_nf.h compile-time constants (MAX_NFS, MAX_SERVICES,
// MAX_NFS_PER_SERVICE, Max_Child, NF_QUEUE_RINGSIZE, NF_MSG_QUEUE_SIZE,
// PACKET_READ_SIZE) and the wall-clock tick period onvm_nf_scaling is
// invoked at.
type Config struct {
	MaxNFs             uint16
	MaxServices        int
	MaxNFsPerService   int
	MaxChildren        int32
	NumCores           int
	RXRingSize         int
	TXRingSize         int
	MsgRingSize        int
	MsgInboxSize       int
	MsgPoolSize        int
	MsgBulkSize        int
	PacketReadSize     int
	ShutdownRealloc    bool
	TickInterval       time.Duration
	WaitCounterInit    int
	IdleTicksThreshold int
}

func (c Config) withDefaults() Config {
	if c.MaxNFs == 0 {
		c.MaxNFs = 1024
	}
	if c.MaxServices == 0 {
		c.MaxServices = 32
	}
	if c.MaxNFsPerService == 0 {
		c.MaxNFsPerService = 64
	}
	if c.MaxChildren == 0 {
		c.MaxChildren = 7
	}
	if c.NumCores == 0 {
		c.NumCores = 4
	}
	if c.RXRingSize == 0 {
		c.RXRingSize = 1024
	}
	if c.TXRingSize == 0 {
		c.TXRingSize = 1024
	}
	if c.MsgRingSize == 0 {
		c.MsgRingSize = 128
	}
	if c.MsgInboxSize == 0 {
		c.MsgInboxSize = 2048
	}
	if c.MsgPoolSize == 0 {
		c.MsgPoolSize = 2048
	}
	if c.MsgBulkSize == 0 {
		c.MsgBulkSize = 32
	}
	if c.PacketReadSize == 0 {
		c.PacketReadSize = 32
	}
	if c.TickInterval == 0 {
		c.TickInterval = time.Second
	}
	return c
}

// New builds a Manager; it does not start any goroutines until Start is
// called. pkts handles packets orphaned by Stop/sleep reclamation; tables
// services REQUEST_LPM/REQUEST_FT and may be nil.
func New(cfg Config, pkts PacketFreer, tables TableInitializer) *Manager {
	cfg = cfg.withDefaults()

	reg := registry.New(cfg.MaxNFs)
	svc := servicemap.New(cfg.MaxServices, cfg.MaxNFsPerService)
	cpus := cpuallocator.NewCoreAllocator(cfg.NumCores)

	lc := lifecycle.New(lifecycle.Config{
		RXRingSize:               cfg.RXRingSize,
		TXRingSize:               cfg.TXRingSize,
		MsgRingSize:              cfg.MsgRingSize,
		PacketReadSize:           cfg.PacketReadSize,
		ShutdownCoreReassignment: cfg.ShutdownRealloc,
	}, reg, svc, cpus, pkts)

	disp := dispatch.New(dispatch.Config{
		InboxSize:   cfg.MsgInboxSize,
		PoolSize:    cfg.MsgPoolSize,
		BulkSize:    cfg.MsgBulkSize,
		EventBuffer: 256,
	}, lc, tables)

	auto := autoscale.New(autoscale.Config{
		MaxChildren:        cfg.MaxChildren,
		WaitCounterInit:    cfg.WaitCounterInit,
		IdleTicksThreshold: cfg.IdleTicksThreshold,
	}, lc, disp, nil)

	return &Manager{
		Logger: logger.NewLogger(logSource),
		cfg:    cfg,
		reg:    reg,
		svc:    svc,
		cpus:   cpus,
		lc:     lc,
		disp:   disp,
		auto:   auto,
	}
}

// Registry returns the manager's slot table.
func (m *Manager) Registry() *registry.Registry { return m.reg }

// ServiceMap returns the manager's service map.
func (m *Manager) ServiceMap() *servicemap.ServiceMap { return m.svc }

// CoreAllocator returns the manager's core allocator.
func (m *Manager) CoreAllocator() *cpuallocator.CoreAllocator { return m.cpus }

// Dispatcher returns the manager's control message dispatcher, the
// attachment point NFs use for Init/Send/Post (spec.md §6).
func (m *Manager) Dispatcher() *dispatch.Dispatcher { return m.disp }

// Autoscale returns the manager's autoscaling controller.
func (m *Manager) Autoscale() *autoscale.Controller { return m.auto }

// Admit mirrors onvm_nf_start: validates and admits an NF requesting
// InstanceID/ServiceID in cfg, same as would happen were the NF_STARTING
// message routed through the dispatcher, but callable directly by a
// manager-embedded test harness or CLI tool.
func (m *Manager) Admit(cfg *nfmsg.InitCfg) error {
	return m.lc.Admit(cfg)
}

// SetBackPressure installs (or replaces) the hook invoked when a service
// is overloaded and can neither wake a sleeper nor request a new child,
// either because its child budget is exhausted or because a spawn is
// still pending (spec.md §9 open question #3).
func (m *Manager) SetBackPressure(fn autoscale.BackPressureFunc) {
	m.auto.SetBackPressure(fn)
}

// Start replaces any existing process pidfile with one naming this
// process and then begins the manager's per-tick dispatch/scaling loop.
// Calling Start on a running manager is a no-op.
func (m *Manager) Start() error {
	m.Lock()
	defer m.Unlock()

	if m.running {
		return nil
	}

	m.Info("starting...")

	if err := pidfile.Remove(); err != nil {
		return managerError("failed to remove stale pidfile: %v", err)
	}
	if err := pidfile.Write(); err != nil {
		return managerError("failed to write pidfile: %v", err)
	}

	m.stop = make(chan struct{})
	m.wg.Add(1)
	go m.pollTick()

	m.running = true
	m.Info("up and running")
	return nil
}

// Stop halts the tick loop and removes the pidfile, mirroring resmgr.Stop.
func (m *Manager) Stop() {
	m.Lock()
	defer m.Unlock()

	if !m.running {
		return
	}

	m.Info("shutting down...")

	close(m.stop)
	m.wg.Wait()

	if err := pidfile.Remove(); err != nil {
		m.Error("failed to remove pidfile: %v", err)
	}

	m.running = false
}

// pollTick is the Go analogue of onvm_mgr_main's packet-processing loop
// reduced to its control-plane half: every TickInterval, drain and route
// pending NF control messages, then run one autoscaling pass over the
// resulting counters.
func (m *Manager) pollTick() {
	defer m.wg.Done()

	m.Info("starting tick loop (period %s)", m.cfg.TickInterval)
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-m.stop:
			m.Info("stopping tick loop")
			return
		case now := <-ticker.C:
			m.disp.Tick()
			m.auto.Tick(now.Sub(last))
			last = now
		}
	}
}

func managerError(format string, args ...interface{}) error {
	return fmt.Errorf("manager: "+format, args...)
}
