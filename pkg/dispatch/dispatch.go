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

// Package dispatch implements the control message dispatcher (spec
// component C6): a single inbox ring fed by every NF, drained in bulk
// once per manager tick and routed by message type to the lifecycle state
// machine or to table-initialization hooks. It is the Go analogue of
// onvm_nf_check_status and onvm_nf_send_msg in openNetVM's onvm_nf.c.
package dispatch

import (
	logger "github.com/sdnfv/nfresmgr/pkg/log"

	"github.com/sdnfv/nfresmgr/pkg/lifecycle"
	"github.com/sdnfv/nfresmgr/pkg/mempool"
	"github.com/sdnfv/nfresmgr/pkg/nfmsg"
	"github.com/sdnfv/nfresmgr/pkg/registry"
	"github.com/sdnfv/nfresmgr/pkg/ring"
)

const logSource = "dispatch"

var log = logger.NewLogger(logSource)

// Event is a stats-worthy occurrence emitted while routing a message, the
// Go analogue of openNetVM's onvm_stats_gen_event_* calls (spec.md §4
// supplemented features: stats-event emission was part of the original
// check_status loop but dropped from the distilled spec).
type Event struct {
	Kind       string
	InstanceID uint16
}

// TableInitializer services REQUEST_LPM/REQUEST_FT messages, an external
// collaborator (the longest-prefix-match and flow-table subsystems are
// out of scope for this module) invoked opaquely by type-switch routing,
// mirroring onvm_nf_init_lpm_region/onvm_nf_init_ft.
type TableInitializer interface {
	InitLPM(req *nfmsg.LPMRequest) error
	InitFT(req *nfmsg.FTRequest) error
}

// Dispatcher owns the manager's single control-message inbox and the
// shared message pool, and implements lifecycle.Sender by posting
// directly into a destination NF's own msg ring.
type Dispatcher struct {
	inbox    *ring.Ring
	pool     *mempool.Pool[nfmsg.Message]
	reg      *registry.Registry
	machine  *lifecycle.Machine
	tables   TableInitializer
	events   chan Event
	bulkSize int
}

// Config sizes the inbox ring, message pool and event channel.
type Config struct {
	InboxSize   int
	PoolSize    int
	BulkSize    int
	EventBuffer int
}

// New builds a Dispatcher over machine's registry. tables may be nil, in
// which case REQUEST_LPM/REQUEST_FT messages are answered with failure
// status and otherwise ignored.
func New(cfg Config, machine *lifecycle.Machine, tables TableInitializer) *Dispatcher {
	bulk := cfg.BulkSize
	if bulk < 1 {
		bulk = 32
	}
	evtBuf := cfg.EventBuffer
	if evtBuf < 1 {
		evtBuf = 64
	}
	d := &Dispatcher{
		inbox:    ring.New(cfg.InboxSize),
		pool:     mempool.New[nfmsg.Message](cfg.PoolSize, nil),
		reg:      machine.Registry(),
		machine:  machine,
		tables:   tables,
		events:   make(chan Event, evtBuf),
		bulkSize: bulk,
	}
	machine.SetSender(d)
	machine.SetMessageFreer(d)
	return d
}

// FreeMessage implements lifecycle.MessageFreer: it returns a message
// drained from a stopped NF's msg ring to the shared pool.
func (d *Dispatcher) FreeMessage(item interface{}) {
	if msg, ok := item.(*nfmsg.Message); ok {
		d.pool.Put(msg)
	}
}

// Events returns the channel stats-worthy events are published on.
// Consumers must drain it; Tick drops events rather than blocking when
// the channel is full.
func (d *Dispatcher) Events() <-chan Event { return d.events }

// Post enqueues a message from an NF into the manager's inbox, the Go
// analogue of an NF thread doing rte_ring_enqueue(incoming_msg_queue, ...).
func (d *Dispatcher) Post(t nfmsg.Type, payload interface{}) error {
	msg, err := d.pool.Get()
	if err != nil {
		return err
	}
	msg.Type = t
	msg.DestID = 0
	msg.Payload = payload
	if !d.inbox.Enqueue(msg) {
		d.pool.Put(msg)
		return ring.ErrFull
	}
	return nil
}

// Send implements lifecycle.Sender: it delivers a message directly to
// dest's own msg ring (mirrors onvm_nf_send_msg, which enqueues into
// nfs[dest].msg_q rather than the shared inbox).
func (d *Dispatcher) Send(dest uint16, t nfmsg.Type, payload interface{}) error {
	slot := d.reg.Slot(dest)
	if slot == nil || slot.MsgRing == nil {
		return registry.ErrUnknownInstance
	}
	msg, err := d.pool.Get()
	if err != nil {
		log.Warn("msg pool exhausted sending %s to nf %d", t, dest)
		return err
	}
	msg.Type = t
	msg.DestID = dest
	msg.Payload = payload
	if !slot.MsgRing.Enqueue(msg) {
		d.pool.Put(msg)
		return ring.ErrFull
	}
	return nil
}

// Tick drains up to the configured bulk size of messages queued on the
// inbox in one bulk dequeue and routes each by type, mirroring
// onvm_nf_check_status: read the count, cap it at the bulk size, dequeue
// exactly that many, process, and return each message to the pool.
// Messages beyond the cap, or arriving after the count snapshot, wait for
// the next Tick.
func (d *Dispatcher) Tick() {
	count := d.inbox.Count()
	if count == 0 {
		return
	}
	if count > d.bulkSize {
		count = d.bulkSize
	}
	buf := make([]interface{}, count)
	if err := d.inbox.DequeueBulk(buf); err != nil {
		return
	}

	for _, item := range buf {
		msg, ok := item.(*nfmsg.Message)
		if !ok || msg == nil {
			continue
		}
		d.route(msg)
		d.pool.Put(msg)
	}
}

func (d *Dispatcher) route(msg *nfmsg.Message) {
	switch msg.Type {
	case nfmsg.RequestLPM:
		req, ok := msg.Payload.(*nfmsg.LPMRequest)
		if !ok {
			return
		}
		if d.tables == nil {
			req.Status = -1
			return
		}
		if err := d.tables.InitLPM(req); err != nil {
			req.Status = -1
			log.Warn("lpm init failed for %q: %v", req.Name, err)
		} else {
			req.Status = 0
		}

	case nfmsg.RequestFT:
		req, ok := msg.Payload.(*nfmsg.FTRequest)
		if !ok {
			return
		}
		if d.tables == nil {
			req.Status = -1
			return
		}
		if err := d.tables.InitFT(req); err != nil {
			req.Status = -1
			log.Warn("ft init failed for %q: %v", req.Name, err)
		} else {
			req.Status = 0
		}

	case nfmsg.NFStarting:
		cfg, ok := msg.Payload.(*nfmsg.InitCfg)
		if !ok {
			return
		}
		if err := d.machine.Admit(cfg); err == nil {
			d.emit(Event{Kind: "NF Starting", InstanceID: cfg.InstanceID})
		}

	case nfmsg.NFReady:
		req, ok := msg.Payload.(*nfmsg.ReadyRequest)
		if !ok {
			return
		}
		if err := d.machine.Ready(req.InstanceID); err != nil {
			req.Status = err.Error()
			log.Warn("nf %d ready rejected: %v", req.InstanceID, err)
			return
		}
		d.emit(Event{Kind: "NF Ready", InstanceID: req.InstanceID})

	case nfmsg.NFStopping:
		req, ok := msg.Payload.(*nfmsg.StopRequest)
		if !ok {
			return
		}
		if err := d.machine.Stop(req.InstanceID); err != nil {
			req.Status = err.Error()
			log.Warn("nf %d stop rejected: %v", req.InstanceID, err)
			return
		}
		d.emit(Event{Kind: "NF Stopping", InstanceID: req.InstanceID})
	}
}

func (d *Dispatcher) emit(e Event) {
	select {
	case d.events <- e:
	default:
		log.Warn("event channel full, dropping %s event for nf %d", e.Kind, e.InstanceID)
	}
}
