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

package autoscale

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sdnfv/nfresmgr/pkg/cpuallocator"
	"github.com/sdnfv/nfresmgr/pkg/lifecycle"
	"github.com/sdnfv/nfresmgr/pkg/nfmsg"
	"github.com/sdnfv/nfresmgr/pkg/registry"
	"github.com/sdnfv/nfresmgr/pkg/servicemap"
)

type noopPacketFreer struct{}

func (noopPacketFreer) FreePacket(interface{}) {}

type recordingSender struct {
	sent []nfmsg.Type
	dest []uint16
}

func (r *recordingSender) Send(dest uint16, t nfmsg.Type, payload interface{}) error {
	r.sent = append(r.sent, t)
	r.dest = append(r.dest, dest)
	return nil
}

func newTestController(t *testing.T, cfg Config) (*Controller, *lifecycle.Machine, *recordingSender) {
	t.Helper()
	reg := registry.New(32)
	svc := servicemap.New(4, 8)
	cpus := cpuallocator.NewCoreAllocator(8)
	m := lifecycle.New(lifecycle.Config{RXRingSize: 8, TXRingSize: 8, MsgRingSize: 8, PacketReadSize: 4}, reg, svc, cpus, noopPacketFreer{})
	sender := &recordingSender{}
	m.SetSender(sender)
	c := New(cfg, m, sender, nil)
	return c, m, sender
}

func admitAndReady(t *testing.T, m *lifecycle.Machine, serviceID, parentID uint16, handleRate uint64) uint16 {
	t.Helper()
	cfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: serviceID, ParentID: parentID, HandleRate: handleRate, PreferredCore: -1}
	require.NoError(t, m.Admit(cfg))
	require.NoError(t, m.Ready(cfg.InstanceID))
	return cfg.InstanceID
}

func TestScaleUpSendsSCALEWhenOverloadedAndRoomToGrow(t *testing.T) {
	c, m, sender := newTestController(t, Config{})

	parentID := admitAndReady(t, m, 0, 0, 100)
	m.Registry().Slot(parentID).Counters.AddRX(1000) // pps = 1000 > H(100*1)=100

	c.Tick(time.Second)

	require.Contains(t, sender.sent, nfmsg.Scale)
	require.True(t, m.Registry().Slot(parentID).WaitFlag)
	require.Equal(t, 10, m.Registry().Slot(parentID).WaitCounter)
}

func TestScaleUpPrefersWakeOverSpawn(t *testing.T) {
	c, m, sender := newTestController(t, Config{})

	parentID := admitAndReady(t, m, 0, 0, 100)
	childID := admitAndReady(t, m, 0, parentID, 0)
	require.NoError(t, m.Sleep(childID))

	m.Registry().Slot(parentID).Counters.AddRX(1000)

	c.Tick(time.Second)

	require.NotContains(t, sender.sent, nfmsg.Scale)
	require.Equal(t, registry.Running, m.Registry().Slot(childID).Status)
	require.False(t, m.Registry().Slot(childID).SleepFlag)
}

func TestScaleDownHonoursWaitCounterGracePeriod(t *testing.T) {
	c, m, _ := newTestController(t, Config{WaitCounterInit: 3})

	parentID := admitAndReady(t, m, 0, 0, 1000)
	childID := admitAndReady(t, m, 0, parentID, 0)
	m.Registry().Slot(parentID).WaitCounter = 3

	c.Tick(time.Second) // pps=0 < L threshold, but wait_counter > 0

	require.Equal(t, registry.Running, m.Registry().Slot(childID).Status)
	require.Equal(t, 2, m.Registry().Slot(parentID).WaitCounter)
}

func TestScaleDownSleepsNewestChildAfterGracePeriod(t *testing.T) {
	c, m, _ := newTestController(t, Config{WaitCounterInit: 1})

	parentID := admitAndReady(t, m, 0, 0, 1000)
	childID := admitAndReady(t, m, 0, parentID, 0)

	c.Tick(time.Second) // wait_counter starts at 0 -> sleeps immediately

	require.True(t, m.Registry().Slot(childID).SleepFlag)
	require.Equal(t, registry.Paused, m.Registry().Slot(childID).Status)
}

func TestIdleExpiredSleeperIsPermanentlyReclaimed(t *testing.T) {
	c, m, sender := newTestController(t, Config{IdleTicksThreshold: 2})

	parentID := admitAndReady(t, m, 0, 0, 1000)
	childID := admitAndReady(t, m, 0, parentID, 0)
	require.NoError(t, m.Sleep(childID))

	m.Registry().Slot(childID).IdleTicks = 2

	c.Tick(time.Second)

	require.Contains(t, sender.sent, nfmsg.Stop)
	require.Empty(t, m.Registry().Slot(parentID).SleepInstance)
	require.True(t, m.Registry().Slot(parentID).WaitFlag)
}

func TestQuickMultiplyMatchesPlainMultiplicationForEveryMultiplier(t *testing.T) {
	for _, n := range []uint64{0, 1, 2, 3, 4, 5, 6, 10} {
		require.Equal(t, uint64(7)*n, quickMultiply(7, n))
	}
}

func TestSmoothedPPSIsDiagnosticOnly(t *testing.T) {
	c, m, _ := newTestController(t, Config{})
	id := admitAndReady(t, m, 0, 0, 100)

	require.Equal(t, float64(0), c.SmoothedPPS(id))
	m.Registry().Slot(id).Counters.AddRX(500)
	c.Tick(time.Second)
	// EWMA warms up after 10 samples (metricsring contract); a single
	// tick must not panic or produce a contract-relevant side effect.
	_ = c.SmoothedPPS(id)
}
