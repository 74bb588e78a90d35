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

// example-nf-scaling is the Go analogue of openNetVM's advanced-rings
// ndpi_stats example: a parent NF admits a configurable number of
// children (spec.md §4.3 "Parent/child relationships") and each child
// drains its own rx/msg rings directly instead of going through
// nfapi.Context.Run, the "advanced mode" bypass path of spec.md §6.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	logger "github.com/sdnfv/nfresmgr/pkg/log"
	"github.com/sdnfv/nfresmgr/pkg/manager"
	"github.com/sdnfv/nfresmgr/pkg/nfapi"
	"github.com/sdnfv/nfresmgr/pkg/nfmsg"
)

var log = logger.NewLogger("example-nf-scaling")

type discardingFreer struct{}

func (*discardingFreer) FreePacket(interface{}) {}

func main() {
	destination := flag.Uint("d", uint(nfmsg.NoID), "destination NF to forward packets to")
	numChildren := flag.Uint("children", 1, "number of child NFs to spawn")
	serviceID := flag.Uint("service", 0, "service id to register under")
	flag.Parse()

	m := manager.New(manager.DefaultConfig(), new(discardingFreer), nil)
	if err := m.Start(); err != nil {
		log.Fatal("failed to start manager: %v", err)
	}
	defer m.Stop()

	runCtx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Info("got termination signal, stopping...")
		cancel()
	}()

	parent := nfapi.InitLocalCtx()
	err := parent.Init(m.Dispatcher(), m.Registry(), "ndpi_stat",
		nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: uint16(*serviceID), PreferredCore: -1},
		nfapi.FunctionTable{}, 32, nfapi.PollConfig{})
	if err != nil {
		log.Fatal("failed to initialize parent: %v", err)
	}
	if err := parent.NFReady(); err != nil {
		log.Fatal("failed to signal parent readiness: %v", err)
	}

	var wg sync.WaitGroup
	for i := uint(0); i < *numChildren; i++ {
		wg.Add(1)
		go runChild(runCtx, &wg, m, parent.InstanceID(), uint16(*destination), uint16(*serviceID), i)
	}

	<-runCtx.Done()
	_ = parent.Stop()
	wg.Wait()
	log.Info("if we reach here, program is ending")
}

// runChild mirrors thread_main_loop's advanced-rings loop: it never calls
// Run, instead draining its msg ring for a stop signal and bursting
// packets off its own rx ring. When a destination was given every packet
// is written straight to its tx ring via ReturnPkt; otherwise packets are
// dropped. The destination id itself is not recorded on the packets.
func runChild(ctx context.Context, wg *sync.WaitGroup, m *manager.Manager, parentID uint16, destination, serviceID uint16, index uint) {
	defer wg.Done()

	child := nfapi.InitLocalCtx()
	err := child.Init(m.Dispatcher(), m.Registry(), "ndpi_stat",
		nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: serviceID, ParentID: parentID, PreferredCore: -1},
		nfapi.FunctionTable{}, 32, nfapi.PollConfig{})
	if err != nil {
		log.Error("child %d: failed to initialize: %v", index, err)
		return
	}
	if err := child.NFReady(); err != nil {
		log.Error("child %d: failed to signal readiness: %v", index, err)
		return
	}
	log.Info("child %d ready as nf %d", index, child.InstanceID())

	pkts := make([]interface{}, 32)
	rx := child.RXRing()
	slot := m.Registry().Slot(child.InstanceID())
	var forwarded uint64
	for {
		select {
		case <-ctx.Done():
			_ = child.Stop()
			log.Info("child %d forwarded %d packets", index, atomic.LoadUint64(&forwarded))
			return
		default:
		}

		stop := false
		if msgs := child.MsgRing(); msgs != nil {
			msgs.DrainFunc(len(pkts), func(item interface{}) {
				if msg, ok := item.(*nfmsg.Message); ok && msg.Type == nfmsg.Stop {
					stop = true
				}
				m.Dispatcher().FreeMessage(item)
			})
		}
		if stop {
			_ = child.Stop()
			log.Info("child %d forwarded %d packets", index, atomic.LoadUint64(&forwarded))
			return
		}

		if rx == nil {
			time.Sleep(time.Millisecond)
			rx = child.RXRing()
			continue
		}

		n, err := rx.DequeueBurst(pkts)
		if n == 0 {
			if err != nil {
				time.Sleep(time.Millisecond)
			}
			continue
		}
		if slot != nil {
			slot.Counters.AddRX(uint64(n))
		}

		for i := 0; i < n; i++ {
			if destination == nfmsg.NoID {
				continue
			}
			if err := child.ReturnPkt(pkts[i]); err != nil {
				log.Debug("child %d: dropping packet, tx ring full", index)
				continue
			}
			atomic.AddUint64(&forwarded, 1)
		}
	}
}
