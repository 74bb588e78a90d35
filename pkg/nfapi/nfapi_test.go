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

package nfapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sdnfv/nfresmgr/pkg/cpuallocator"
	"github.com/sdnfv/nfresmgr/pkg/dispatch"
	"github.com/sdnfv/nfresmgr/pkg/lifecycle"
	"github.com/sdnfv/nfresmgr/pkg/nfmsg"
	"github.com/sdnfv/nfresmgr/pkg/registry"
	"github.com/sdnfv/nfresmgr/pkg/servicemap"
)

type noopPacketFreer struct{}

func (noopPacketFreer) FreePacket(interface{}) {}

func newTestDispatcher(t *testing.T) (*dispatch.Dispatcher, *registry.Registry, func()) {
	t.Helper()
	reg := registry.New(16)
	svc := servicemap.New(4, 4)
	cpus := cpuallocator.NewCoreAllocator(4)
	m := lifecycle.New(lifecycle.Config{RXRingSize: 8, TXRingSize: 8, MsgRingSize: 8, PacketReadSize: 4}, reg, svc, cpus, noopPacketFreer{})
	d := dispatch.New(dispatch.Config{InboxSize: 16, PoolSize: 16, BulkSize: 8, EventBuffer: 8}, m, nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.Tick()
			}
		}
	}()
	return d, reg, func() { close(stop); wg.Wait() }
}

func TestInitBlocksUntilAdmittedThenSucceeds(t *testing.T) {
	disp, reg, cancel := newTestDispatcher(t)
	defer cancel()

	ctx := InitLocalCtx()
	err := ctx.Init(disp, reg, "test-nf", nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}, FunctionTable{}, 8, PollConfig{Interval: time.Millisecond, Attempts: 500})
	require.NoError(t, err)
	require.NotEqual(t, nfmsg.NoID, ctx.InstanceID())
	require.Equal(t, registry.Starting, reg.Slot(ctx.InstanceID()).Status)
}

func TestInitReturnsAdmitErrorOnRejection(t *testing.T) {
	disp, reg, cancel := newTestDispatcher(t)
	defer cancel()

	ctx := InitLocalCtx()
	err := ctx.Init(disp, reg, "bad-service", nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 9999, PreferredCore: -1}, FunctionTable{}, 8, PollConfig{Interval: time.Millisecond, Attempts: 500})
	require.Error(t, err)
	var admitErr *AdmitError
	require.ErrorAs(t, err, &admitErr)
	require.Equal(t, nfmsg.ServiceMax, admitErr.Status)
}

func TestNFReadySendMsgAndStopRoundtrip(t *testing.T) {
	disp, reg, cancel := newTestDispatcher(t)
	defer cancel()

	ctx := InitLocalCtx()
	require.NoError(t, ctx.Init(disp, reg, "nf-a", nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}, FunctionTable{}, 8, PollConfig{Interval: time.Millisecond, Attempts: 500}))

	require.NoError(t, ctx.NFReady())
	require.Eventually(t, func() bool {
		return reg.Slot(ctx.InstanceID()).Status == registry.Running
	}, time.Second, time.Millisecond)

	require.NoError(t, ctx.Stop())
	require.Eventually(t, func() bool {
		return reg.Slot(ctx.InstanceID()).Status == registry.Empty
	}, time.Second, time.Millisecond)
}

func TestRunInvokesHandlerAndForwardsToTXRing(t *testing.T) {
	disp, reg, cancel := newTestDispatcher(t)
	defer cancel()

	ctx := InitLocalCtx()
	require.NoError(t, ctx.Init(disp, reg, "nf-run", nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}, FunctionTable{
		PktHandler: func(pkt interface{}, meta *PacketMeta, c *Context) {
			meta.Action = ActionOut
		},
	}, 8, PollConfig{Interval: time.Millisecond, Attempts: 500}))
	require.NoError(t, ctx.NFReady())

	slot := reg.Slot(ctx.InstanceID())
	slot.RXRing.Enqueue("pkt")

	runCtx, runCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer runCancel()

	done := make(chan struct{})
	go func() {
		_ = ctx.Run(runCtx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return slot.TXRing.Count() == 1
	}, time.Second, time.Millisecond)

	runCancel()
	<-done
}

func TestRunExitsOnStopMessage(t *testing.T) {
	disp, reg, cancel := newTestDispatcher(t)
	defer cancel()

	ctx := InitLocalCtx()
	require.NoError(t, ctx.Init(disp, reg, "nf-stop", nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}, FunctionTable{}, 8, PollConfig{Interval: time.Millisecond, Attempts: 500}))
	require.NoError(t, ctx.NFReady())

	require.NoError(t, disp.Send(ctx.InstanceID(), nfmsg.Stop, nil))

	done := make(chan struct{})
	go func() {
		_ = ctx.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after STOP message")
	}
}

func TestReturnPktFailsBeforeInit(t *testing.T) {
	ctx := InitLocalCtx()
	require.ErrorIs(t, ctx.ReturnPkt("pkt"), ErrNotRunning)
}
