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

// Package nfapi is the NF-facing collaborator API (spec.md §6): the
// surface an NF goroutine uses to announce itself to the manager, run its
// packet loop, exchange control messages and tear itself down. It is the
// Go analogue of openNetVM's onvm_nflib_* functions, adapted from
// per-process shared-memory attachment to a goroutine talking to the
// manager's dispatcher in the same address space.
package nfapi

import (
	"context"
	"sync/atomic"
	"time"

	logger "github.com/sdnfv/nfresmgr/pkg/log"

	"github.com/sdnfv/nfresmgr/pkg/dispatch"
	"github.com/sdnfv/nfresmgr/pkg/nfmsg"
	"github.com/sdnfv/nfresmgr/pkg/registry"
	"github.com/sdnfv/nfresmgr/pkg/ring"
)

const logSource = "nfapi"

var log = logger.NewLogger(logSource)

// Action is a packet metadata action (spec.md §6 "Packet metadata").
type Action int

const (
	// ActionDrop discards the packet.
	ActionDrop Action = iota
	// ActionToNF forwards the packet to a specific NF named by Destination.
	ActionToNF
	// ActionOut sends the packet out a NIC port named by Destination.
	ActionOut
	// ActionPara dispatches the packet to multiple NFs, Destination
	// holding a bitmask of target instance ids.
	ActionPara
)

// Meta flag bits (spec.md §6).
const (
	FlagPayloadRead  uint8 = 1 << 0
	FlagPayloadWrite uint8 = 1 << 1
)

// PacketMeta is the per-packet metadata a pkt_handler sets to steer the
// external dataplane router (out of scope for this module) once the
// packet reaches the NF's tx ring.
type PacketMeta struct {
	Action      Action
	Destination uint32
	Flags       uint8
}

// PktHandler processes one packet and fills in its routing decision.
type PktHandler func(pkt interface{}, meta *PacketMeta, ctx *Context)

// FunctionTable bundles the callbacks an NF supplies to Run, the Go
// analogue of onvm_nf_function_table.
type FunctionTable struct {
	PktHandler PktHandler
}

// PollConfig tunes how Init waits for the manager to process NF_STARTING.
type PollConfig struct {
	Interval time.Duration
	Attempts int
}

func (p PollConfig) withDefaults() PollConfig {
	if p.Interval <= 0 {
		p.Interval = time.Millisecond
	}
	if p.Attempts <= 0 {
		p.Attempts = 1000
	}
	return p
}

// Context is an NF's local handle, the Go analogue of
// onvm_nf_local_ctx/onvm_nf. It is created by InitLocalCtx and populated
// by Init once the manager has admitted the NF.
type Context struct {
	disp       *dispatch.Dispatcher
	reg        *registry.Registry
	instanceID uint16
	tag        string
	fnTable    FunctionTable
	burstSize  int

	exitFlag int32 // atomic, set by Run on receipt of MSG_STOP
}

// InitLocalCtx allocates an empty, unattached NF context (mirrors
// onvm_nflib_init_nf_local_ctx).
func InitLocalCtx() *Context {
	return &Context{}
}

// Init sends NF_STARTING and blocks (polling, like the original's
// shared-memory busy-wait on nf_init_cfg->status) until the manager's
// dispatcher has processed the request, returning once the slot has
// moved to Starting. Init takes its settings from its arguments only; it
// parses no command-line arguments and returns no argument offset.
func (c *Context) Init(disp *dispatch.Dispatcher, reg *registry.Registry, tag string, initCfg nfmsg.InitCfg, fn FunctionTable, burstSize int, poll PollConfig) error {
	poll = poll.withDefaults()

	initCfg.Tag = tag
	initCfg.Status = nfmsg.WaitingForID
	if err := disp.Post(nfmsg.NFStarting, &initCfg); err != nil {
		return err
	}

	for i := 0; i < poll.Attempts; i++ {
		// Read without synchronization, matching the original's plain
		// polling loop over shared memory: the dispatcher tick is the
		// sole writer of initCfg.Status and this goroutine is its sole
		// reader.
		if initCfg.Status != nfmsg.WaitingForID {
			break
		}
		time.Sleep(poll.Interval)
	}

	switch initCfg.Status {
	case nfmsg.StartingOK:
		c.disp = disp
		c.reg = reg
		c.tag = tag
		c.fnTable = fn
		c.instanceID = initCfg.InstanceID
		if burstSize < 1 {
			burstSize = 32
		}
		c.burstSize = burstSize
		log.Info("nf %d (%s) initialized", c.instanceID, tag)
		return nil
	case nfmsg.WaitingForID:
		return ErrInitTimeout
	default:
		return &AdmitError{Status: initCfg.Status}
	}
}

// AdmitError reports why the manager refused to admit an NF.
type AdmitError struct {
	Status nfmsg.AdmitStatus
}

func (e *AdmitError) Error() string { return "nfapi: admit rejected: " + e.Status.String() }

// InstanceID returns the id assigned by the manager; valid only after Init
// returns successfully.
func (c *Context) InstanceID() uint16 { return c.instanceID }

// NFReady sends NF_READY, the Go analogue of onvm_nflib_nf_ready. It does
// not wait for the manager to process the request; a rejection (e.g. an
// invalid state transition) is written into the message's Status field
// and logged by the dispatcher, matching the fire-and-forget notification
// the original issues from the NF's own thread.
func (c *Context) NFReady() error {
	if c.disp == nil {
		return ErrNotRunning
	}
	return c.disp.Post(nfmsg.NFReady, &nfmsg.ReadyRequest{InstanceID: c.instanceID})
}

// SendMsg delivers a control message to another NF (spec.md §6 send_msg).
func (c *Context) SendMsg(dest uint16, t nfmsg.Type, payload interface{}) error {
	if c.disp == nil {
		return ErrNotRunning
	}
	return c.disp.Send(dest, t, payload)
}

// ReturnPkt enqueues pkt onto this NF's tx ring (spec.md §6 return_pkt).
func (c *Context) ReturnPkt(pkt interface{}) error {
	slot := c.slot()
	if slot == nil || slot.TXRing == nil {
		return ErrNotRunning
	}
	if !slot.TXRing.Enqueue(pkt) {
		return ring.ErrFull
	}
	return nil
}

// RXRing, TXRing and MsgRing expose the raw ring handles for NFs that
// bypass Run and consume their rings directly (spec.md §6 "Advanced
// mode"), mirroring dispatch.c's hand-rolled burst loop.
func (c *Context) RXRing() *ring.Ring {
	if slot := c.slot(); slot != nil {
		return slot.RXRing
	}
	return nil
}

func (c *Context) TXRing() *ring.Ring {
	if slot := c.slot(); slot != nil {
		return slot.TXRing
	}
	return nil
}

func (c *Context) MsgRing() *ring.Ring {
	if slot := c.slot(); slot != nil {
		return slot.MsgRing
	}
	return nil
}

func (c *Context) slot() *registry.Slot {
	if c.reg == nil {
		return nil
	}
	return c.reg.Slot(c.instanceID)
}

// Run is the default data loop (spec.md §6 run): drain any pending
// control messages (exiting on STOP), burst-dequeue up to burstSize
// packets from rx_q, invoke the packet handler on each, and return each
// packet to tx_q unless its action is ActionDrop (the default when no
// handler changes it), in which case it is counted as a drop. It returns
// when a STOP message is received or ctx is cancelled.
func (c *Context) Run(ctx context.Context) error {
	if c.disp == nil {
		return ErrNotRunning
	}
	slot := c.slot()
	if slot == nil {
		return ErrNotRunning
	}

	pkts := make([]interface{}, c.burstSize)
	for atomic.LoadInt32(&c.exitFlag) == 0 {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		c.drainControlMessages(slot)
		if atomic.LoadInt32(&c.exitFlag) != 0 {
			return nil
		}

		n, err := slot.RXRing.DequeueBurst(pkts)
		if n == 0 {
			if err != nil {
				time.Sleep(time.Microsecond)
			}
			continue
		}
		slot.Counters.AddRX(uint64(n))

		for i := 0; i < n; i++ {
			pkt := pkts[i]
			meta := &PacketMeta{}
			if c.fnTable.PktHandler != nil {
				c.fnTable.PktHandler(pkt, meta, c)
			}
			if meta.Action == ActionDrop {
				slot.Counters.AddDrops(1)
				continue
			}
			if err := c.ReturnPkt(pkt); err != nil {
				slot.Counters.AddDrops(1)
			}
		}
	}
	return nil
}

// drainControlMessages processes any messages queued on this NF's own
// msg ring, setting the exit flag on STOP and logging anything else
// (mirroring thread_main_loop's inline msg_q check in ndpi_stats.c).
func (c *Context) drainControlMessages(slot *registry.Slot) {
	if slot.MsgRing == nil {
		return
	}
	slot.MsgRing.DrainFunc(8, func(item interface{}) {
		msg, ok := item.(*nfmsg.Message)
		if !ok || msg == nil {
			return
		}
		switch msg.Type {
		case nfmsg.Stop:
			atomic.StoreInt32(&c.exitFlag, 1)
		default:
			log.Debug("nf %d received message %s, ignoring in default loop", c.instanceID, msg.Type)
		}
	})
}

// Stop sends NF_STOPPING and releases the context (spec.md §6 stop). As
// with NFReady, rejection (e.g. a parent NF with live children) surfaces
// through the message's Status field and the dispatcher's log, not
// through this call's return value.
func (c *Context) Stop() error {
	if c.disp == nil {
		return ErrNotRunning
	}
	return c.disp.Post(nfmsg.NFStopping, &nfmsg.StopRequest{InstanceID: c.instanceID})
}
