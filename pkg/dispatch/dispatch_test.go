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

package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sdnfv/nfresmgr/pkg/cpuallocator"
	"github.com/sdnfv/nfresmgr/pkg/lifecycle"
	"github.com/sdnfv/nfresmgr/pkg/nfmsg"
	"github.com/sdnfv/nfresmgr/pkg/registry"
	"github.com/sdnfv/nfresmgr/pkg/servicemap"
)

type noopPacketFreer struct{}

func (noopPacketFreer) FreePacket(interface{}) {}

type fakeTables struct {
	lpmErr error
	ftErr  error
}

func (f *fakeTables) InitLPM(req *nfmsg.LPMRequest) error { return f.lpmErr }
func (f *fakeTables) InitFT(req *nfmsg.FTRequest) error   { return f.ftErr }

func newTestDispatcher(t *testing.T, tables TableInitializer) (*Dispatcher, *lifecycle.Machine) {
	t.Helper()
	reg := registry.New(8)
	svc := servicemap.New(4, 4)
	cpus := cpuallocator.NewCoreAllocator(4)
	m := lifecycle.New(lifecycle.Config{RXRingSize: 8, TXRingSize: 8, MsgRingSize: 8, PacketReadSize: 4}, reg, svc, cpus, noopPacketFreer{})
	d := New(Config{InboxSize: 16, PoolSize: 16, BulkSize: 8, EventBuffer: 8}, m, tables)
	return d, m
}

func TestTickRoutesNFStartingAndEmitsEvent(t *testing.T) {
	d, m := newTestDispatcher(t, nil)

	cfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}
	require.NoError(t, d.Post(nfmsg.NFStarting, cfg))

	d.Tick()

	require.Equal(t, nfmsg.StartingOK, cfg.Status)
	require.NotEqual(t, nfmsg.NoID, cfg.InstanceID)

	select {
	case evt := <-d.Events():
		require.Equal(t, "NF Starting", evt.Kind)
		require.Equal(t, cfg.InstanceID, evt.InstanceID)
	default:
		t.Fatal("expected an NF Starting event")
	}

	require.Equal(t, registry.Starting, m.Registry().Slot(cfg.InstanceID).Status)
}

func TestTickRoutesNFReadyAndNFStopping(t *testing.T) {
	d, m := newTestDispatcher(t, nil)

	cfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}
	require.NoError(t, d.Post(nfmsg.NFStarting, cfg))
	d.Tick()
	id := cfg.InstanceID

	readyReq := &nfmsg.ReadyRequest{InstanceID: id}
	require.NoError(t, d.Post(nfmsg.NFReady, readyReq))
	d.Tick()
	require.Equal(t, registry.Running, m.Registry().Slot(id).Status)
	require.Empty(t, readyReq.Status)
	<-d.Events() // drain "NF Starting"
	evt := <-d.Events()
	require.Equal(t, "NF Ready", evt.Kind)

	stopReq := &nfmsg.StopRequest{InstanceID: id}
	require.NoError(t, d.Post(nfmsg.NFStopping, stopReq))
	d.Tick()
	require.Equal(t, registry.Empty, m.Registry().Slot(id).Status)
	evt = <-d.Events()
	require.Equal(t, "NF Stopping", evt.Kind)
}

func TestTickMarksReadyRejectionStatus(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)

	req := &nfmsg.ReadyRequest{InstanceID: 1} // never admitted, so Starting check fails
	require.NoError(t, d.Post(nfmsg.NFReady, req))
	d.Tick()

	require.NotEmpty(t, req.Status)
}

func TestTickMarksStopRejectionStatusForParentWithChildren(t *testing.T) {
	d, m := newTestDispatcher(t, nil)

	parentCfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}
	require.NoError(t, d.Post(nfmsg.NFStarting, parentCfg))
	d.Tick()
	<-d.Events()
	parentID := parentCfg.InstanceID

	childCfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, ParentID: parentID, PreferredCore: -1}
	require.NoError(t, d.Post(nfmsg.NFStarting, childCfg))
	d.Tick()
	<-d.Events()

	stopReq := &nfmsg.StopRequest{InstanceID: parentID}
	require.NoError(t, d.Post(nfmsg.NFStopping, stopReq))
	d.Tick()

	require.Equal(t, lifecycle.ErrParentHasChildren.Error(), stopReq.Status)
	require.Equal(t, registry.Starting, m.Registry().Slot(parentID).Status)
}

func TestTickRoutesLPMRequestThroughTableInitializer(t *testing.T) {
	tables := &fakeTables{}
	d, _ := newTestDispatcher(t, tables)

	req := &nfmsg.LPMRequest{Name: "lpm0"}
	require.NoError(t, d.Post(nfmsg.RequestLPM, req))
	d.Tick()

	require.Equal(t, 0, req.Status)
}

func TestTickMarksLPMFailureStatus(t *testing.T) {
	tables := &fakeTables{lpmErr: errors.New("boom")}
	d, _ := newTestDispatcher(t, tables)

	req := &nfmsg.LPMRequest{Name: "lpm0"}
	require.NoError(t, d.Post(nfmsg.RequestLPM, req))
	d.Tick()

	require.Equal(t, -1, req.Status)
}

func TestSendDeliversToDestinationMsgRing(t *testing.T) {
	d, m := newTestDispatcher(t, nil)

	cfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}
	require.NoError(t, d.Post(nfmsg.NFStarting, cfg))
	d.Tick()
	id := cfg.InstanceID

	require.NoError(t, d.Send(id, nfmsg.ChangeCore, nfmsg.ChangeCoreData{NewCore: 2}))

	slot := m.Registry().Slot(id)
	item, ok := slot.MsgRing.Dequeue()
	require.True(t, ok)
	msg := item.(*nfmsg.Message)
	require.Equal(t, nfmsg.ChangeCore, msg.Type)
	require.Equal(t, nfmsg.ChangeCoreData{NewCore: 2}, msg.Payload)
}

func TestTickIsNoopWhenInboxEmpty(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	d.Tick() // must not panic
}
