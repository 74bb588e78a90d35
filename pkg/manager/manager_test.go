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

package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sdnfv/nfresmgr/pkg/nfmsg"
	"github.com/sdnfv/nfresmgr/pkg/pidfile"
	"github.com/sdnfv/nfresmgr/pkg/registry"
)

type noopFreer struct{}

func (noopFreer) FreePacket(interface{}) {}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	pidfile.SetPath(t.TempDir() + "/test.pid")
	cfg := Config{
		MaxNFs:           8,
		MaxServices:      4,
		MaxNFsPerService: 4,
		NumCores:         4,
		RXRingSize:       8,
		TXRingSize:       8,
		MsgRingSize:      8,
		MsgInboxSize:     16,
		MsgPoolSize:      16,
		MsgBulkSize:      8,
		PacketReadSize:   4,
		TickInterval:     2 * time.Millisecond,
	}
	return New(cfg, noopFreer{}, nil)
}

func TestStartStopIsIdempotentAndWritesPidfile(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Start())
	require.NoError(t, m.Start())

	pid, err := pidfile.Read()
	require.NoError(t, err)
	require.NotZero(t, pid)

	m.Stop()
	m.Stop()

	pid, err = pidfile.Read()
	require.NoError(t, err)
	require.Zero(t, pid)
}

func TestAdmitThenTickRoutesNFReady(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	defer m.Stop()

	initCfg := &nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: 0, PreferredCore: -1}
	require.NoError(t, m.Admit(initCfg))
	require.Equal(t, nfmsg.StartingOK, initCfg.Status)

	id := initCfg.InstanceID
	require.NoError(t, m.Dispatcher().Post(nfmsg.NFReady, &nfmsg.ReadyRequest{InstanceID: id}))

	require.Eventually(t, func() bool {
		return m.Registry().Slot(id).Status == registry.Running
	}, time.Second, time.Millisecond)
}

func TestAutoscaleTickRunsWithoutPanicOnEmptyRegistry(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	time.Sleep(20 * time.Millisecond)
	m.Stop()
}
