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

// example-nf-dispatch is the Go analogue of openNetVM's sample_dispatch
// example: an NF whose packet handler fans every packet out to multiple
// downstream NFs (ActionPara) instead of picking a single next hop,
// demonstrating the parallel-dispatch bit of spec.md §6's packet
// metadata. It builds and drives its own in-process manager rather than
// attaching to a separately-running one, since there is no shared-memory
// process boundary to attach across in this Go port.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	logger "github.com/sdnfv/nfresmgr/pkg/log"
	"github.com/sdnfv/nfresmgr/pkg/manager"
	"github.com/sdnfv/nfresmgr/pkg/nfapi"
	"github.com/sdnfv/nfresmgr/pkg/nfmsg"
)

var log = logger.NewLogger("example-nf-dispatch")

// downstreamMask mirrors dispatch.c's packet_handler: fan out to the NFs
// at bit positions 2 and 3 of the destination mask.
const downstreamMask uint32 = 1<<2 | 1<<3

type discardingFreer struct{}

func (*discardingFreer) FreePacket(interface{}) {}

func main() {
	printDelay := flag.Uint64("print-delay", 1000000, "number of packets between each print")
	serviceID := flag.Uint("service", 0, "service id to register under")
	flag.Parse()

	m := manager.New(manager.DefaultConfig(), new(discardingFreer), nil)
	if err := m.Start(); err != nil {
		log.Fatal("failed to start manager: %v", err)
	}
	defer m.Stop()

	var seen uint64

	ctx := nfapi.InitLocalCtx()
	err := ctx.Init(m.Dispatcher(), m.Registry(), "dispatch",
		nfmsg.InitCfg{InstanceID: nfmsg.NoID, ServiceID: uint16(*serviceID), HandleRate: 10000000, PreferredCore: -1},
		nfapi.FunctionTable{
			PktHandler: func(pkt interface{}, meta *nfapi.PacketMeta, c *nfapi.Context) {
				meta.Flags |= nfapi.FlagPayloadRead | nfapi.FlagPayloadWrite
				meta.Action = nfapi.ActionPara
				meta.Destination = downstreamMask

				n := atomic.AddUint64(&seen, 1)
				if *printDelay != 0 && n%*printDelay == 0 {
					log.Info("dispatched %d packets so far", n)
				}
			},
		}, 32, nfapi.PollConfig{})
	if err != nil {
		log.Fatal("failed to initialize: %v", err)
	}

	if err := ctx.NFReady(); err != nil {
		log.Fatal("failed to signal readiness: %v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Info("got termination signal, stopping...")
		_ = ctx.Stop()
		cancel()
	}()

	if err := ctx.Run(runCtx); err != nil {
		log.Error("run loop exited with error: %v", err)
	}
	log.Info("if we reach here, the program is ending")
}
