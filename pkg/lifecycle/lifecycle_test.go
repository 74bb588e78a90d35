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

package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sdnfv/nfresmgr/pkg/cpuallocator"
	"github.com/sdnfv/nfresmgr/pkg/nfmsg"
	"github.com/sdnfv/nfresmgr/pkg/registry"
	"github.com/sdnfv/nfresmgr/pkg/servicemap"
)

type fakePacketFreer struct{ freed int }

func (f *fakePacketFreer) FreePacket(interface{}) { f.freed++ }

type fakeMessageFreer struct{ freed int }

func (f *fakeMessageFreer) FreeMessage(interface{}) { f.freed++ }

type fakeSender struct {
	dest    uint16
	typ     nfmsg.Type
	payload interface{}
}

func (f *fakeSender) Send(dest uint16, t nfmsg.Type, payload interface{}) error {
	f.dest, f.typ, f.payload = dest, t, payload
	return nil
}

func newTestMachine(maxNFs uint16, numCores int) (*Machine, *fakePacketFreer) {
	reg := registry.New(maxNFs)
	svc := servicemap.New(8, 8)
	cpus := cpuallocator.NewCoreAllocator(numCores)
	pkts := &fakePacketFreer{}
	cfg := Config{RXRingSize: 8, TXRingSize: 8, MsgRingSize: 8, PacketReadSize: 4}
	return New(cfg, reg, svc, cpus, pkts), pkts
}

func TestAdmitReadyStopRoundtrip(t *testing.T) {
	m, _ := newTestMachine(8, 4)

	cfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 1, Tag: "nf-a", HandleRate: 100, PreferredCore: -1}
	require.NoError(t, m.Admit(cfg))
	require.Equal(t, nfmsg.StartingOK, cfg.Status)
	id := cfg.InstanceID
	require.NotEqual(t, nfmsg.NoID, id)

	slot := m.Registry().Slot(id)
	require.Equal(t, registry.Starting, slot.Status)

	require.NoError(t, m.Ready(id))
	require.Equal(t, registry.Running, m.Registry().Slot(id).Status)
	require.Equal(t, 1, m.Registry().NumNFs())
	require.Equal(t, []uint16{id}, m.ServiceMap().List(1))

	require.NoError(t, m.Stop(id))
	require.Equal(t, registry.Empty, m.Registry().Slot(id).Status)
	require.Equal(t, 0, m.Registry().NumNFs())
	require.Equal(t, 0, m.ServiceMap().Count(1))
}

func TestAdmitRejectsServiceCountMax(t *testing.T) {
	m, _ := newTestMachine(8, 4)
	sm := servicemap.New(8, 1)
	m.svc = sm

	cfg1 := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}
	require.NoError(t, m.Admit(cfg1))
	require.NoError(t, m.Ready(cfg1.InstanceID))

	cfg2 := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}
	err := m.Admit(cfg2)
	require.Error(t, err)
	require.Equal(t, nfmsg.ServiceCountMax, cfg2.Status)
}

func TestAdmitRejectsIDConflict(t *testing.T) {
	m, _ := newTestMachine(8, 4)

	cfg1 := &nfmsg.InitCfg{InstanceID: 3, ServiceID: 0, PreferredCore: -1}
	require.NoError(t, m.Admit(cfg1))

	cfg2 := &nfmsg.InitCfg{InstanceID: 3, ServiceID: 0, PreferredCore: -1}
	err := m.Admit(cfg2)
	require.Error(t, err)
	require.Equal(t, nfmsg.IDConflict, cfg2.Status)
}

func TestAdmitRejectsNoCoreCapacity(t *testing.T) {
	m, _ := newTestMachine(8, 1)

	cfg1 := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, Dedicated: true, PreferredCore: -1}
	require.NoError(t, m.Admit(cfg1))

	cfg2 := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}
	err := m.Admit(cfg2)
	require.Error(t, err)
	require.Equal(t, nfmsg.NoCoreCapacity, cfg2.Status)
}

func TestSleepWakeCycleRestoresRunning(t *testing.T) {
	m, _ := newTestMachine(8, 4)

	parentCfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 2, PreferredCore: -1}
	require.NoError(t, m.Admit(parentCfg))
	require.NoError(t, m.Ready(parentCfg.InstanceID))
	parentID := parentCfg.InstanceID

	childCfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 2, ParentID: parentID, PreferredCore: -1}
	require.NoError(t, m.Admit(childCfg))
	require.NoError(t, m.Ready(childCfg.InstanceID))
	childID := childCfg.InstanceID

	numNFsBeforeSleep := m.Registry().NumNFs()
	require.NoError(t, m.Sleep(childID))
	require.Equal(t, registry.Paused, m.Registry().Slot(childID).Status)
	require.NotContains(t, m.ServiceMap().List(2), childID)
	require.Equal(t, numNFsBeforeSleep, m.Registry().NumNFs())

	woken, err := m.Wake(parentID)
	require.NoError(t, err)
	require.Equal(t, childID, woken)
	require.Equal(t, registry.Running, m.Registry().Slot(childID).Status)
	require.False(t, m.Registry().Slot(childID).SleepFlag)
	require.Equal(t, 0, m.Registry().Slot(childID).IdleTicks)
	require.Equal(t, numNFsBeforeSleep, m.Registry().NumNFs())
}

func TestStopRejectsParentWithLiveChildren(t *testing.T) {
	m, _ := newTestMachine(8, 4)

	parentCfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}
	require.NoError(t, m.Admit(parentCfg))
	require.NoError(t, m.Ready(parentCfg.InstanceID))
	parentID := parentCfg.InstanceID

	childCfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, ParentID: parentID, PreferredCore: -1}
	require.NoError(t, m.Admit(childCfg))

	err := m.Stop(parentID)
	require.ErrorIs(t, err, ErrParentHasChildren)
	require.Equal(t, registry.Running, m.Registry().Slot(parentID).Status)
}

func TestStopIsIdempotentOnAlreadyStopped(t *testing.T) {
	m, _ := newTestMachine(8, 4)
	require.NoError(t, m.Stop(3))
	require.NoError(t, m.Stop(3))
}

func TestStopDrainsPacketsAndReleasesCore(t *testing.T) {
	m, pkts := newTestMachine(8, 4)

	cfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}
	require.NoError(t, m.Admit(cfg))
	id := cfg.InstanceID
	require.NoError(t, m.Ready(id))

	slot := m.Registry().Slot(id)
	slot.RXRing.Enqueue("pkt1")
	slot.RXRing.Enqueue("pkt2")
	slot.TXRing.Enqueue("pkt3")
	core := slot.Core

	require.NoError(t, m.Stop(id))
	require.Equal(t, 3, pkts.freed)
	require.Equal(t, 0, m.CoreAllocator().NFCount(core))
}

func TestStopReturnsPendingMsgRingContentsToMessageFreer(t *testing.T) {
	m, _ := newTestMachine(8, 4)
	msgs := &fakeMessageFreer{}
	m.SetMessageFreer(msgs)

	cfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}
	require.NoError(t, m.Admit(cfg))
	id := cfg.InstanceID
	require.NoError(t, m.Ready(id))

	slot := m.Registry().Slot(id)
	slot.MsgRing.Enqueue("pending-scale-msg")

	require.NoError(t, m.Stop(id))
	require.Equal(t, 1, msgs.freed)
}

func TestShutdownCoreReassignmentRelocatesBusiestNF(t *testing.T) {
	m, _ := newTestMachine(16, 2)
	m.cfg.ShutdownCoreReassignment = true
	sender := &fakeSender{}
	m.SetSender(sender)

	// Put three NFs on core 1 (shared), one on core 0, then stop the one on
	// core 0 so it becomes free; the busiest core (1) should give up its
	// lowest-id occupant to the freed core 0.
	var core0ID uint16
	var core1IDs []uint16
	for i := 0; i < 4; i++ {
		preferred := 1
		if i == 0 {
			preferred = 0
		}
		cfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: preferred}
		require.NoError(t, m.Admit(cfg))
		require.NoError(t, m.Ready(cfg.InstanceID))
		slot := m.Registry().Slot(cfg.InstanceID)
		if slot.Core == 0 && core0ID == 0 {
			core0ID = cfg.InstanceID
		} else {
			core1IDs = append(core1IDs, cfg.InstanceID)
		}
	}
	require.NotZero(t, core0ID)
	require.NoError(t, m.Stop(core0ID))

	require.NotZero(t, sender.dest)
	require.Equal(t, nfmsg.ChangeCore, sender.typ)
}
