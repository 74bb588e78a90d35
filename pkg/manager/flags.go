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
	"strconv"

	"github.com/sdnfv/nfresmgr/pkg/config"
)

// opt holds the command-line/config-file configurable defaults for a
// Manager built via DefaultConfig. Changes only take effect for Managers
// constructed after the change; an already-running Manager's sizing is
// fixed at construction time, matching openNetVM's compile-time-constant
// ring and table sizes.
var opt = defaultOpt()

func defaultOpt() *Config {
	cfg := Config{}.withDefaults()
	return &cfg
}

// DefaultConfig returns a copy of the current command-line/config-file
// configured defaults, for binaries that want to override a few fields
// before calling New.
func DefaultConfig() Config {
	return *opt
}

func init() {
	m := config.GetModule("manager")
	m.Var(&uint16Var{&opt.MaxNFs}, "max-nfs", "maximum number of concurrently admitted NFs")
	m.IntVar(&opt.MaxServices, "max-services", opt.MaxServices, "maximum number of distinct services")
	m.IntVar(&opt.MaxNFsPerService, "max-nfs-per-service", opt.MaxNFsPerService,
		"maximum number of NF instances (including sleepers) per service")
	m.Var(&int32Var{&opt.MaxChildren}, "max-children", "maximum number of children a parent NF may spawn")
	m.IntVar(&opt.NumCores, "num-cores", opt.NumCores, "number of cores available for NF pinning")
	m.IntVar(&opt.RXRingSize, "rx-ring-size", opt.RXRingSize, "per-NF rx ring capacity")
	m.IntVar(&opt.TXRingSize, "tx-ring-size", opt.TXRingSize, "per-NF tx ring capacity")
	m.IntVar(&opt.MsgRingSize, "msg-ring-size", opt.MsgRingSize, "per-NF control message ring capacity")
	m.IntVar(&opt.MsgInboxSize, "msg-inbox-size", opt.MsgInboxSize, "manager control message inbox capacity")
	m.IntVar(&opt.MsgBulkSize, "msg-bulk-size", opt.MsgBulkSize, "maximum control messages routed per dispatcher tick")
	m.IntVar(&opt.PacketReadSize, "packet-read-size", opt.PacketReadSize, "packets read per rx ring burst")
	m.BoolVar(&opt.ShutdownRealloc, "shutdown-core-reassignment", opt.ShutdownRealloc,
		"when a stopped NF leaves its core empty, move an NF there from the most-loaded core")
	m.DurationVar(&opt.TickInterval, "tick-interval", opt.TickInterval,
		"interval between dispatch/autoscale ticks")
	m.IntVar(&opt.WaitCounterInit, "scale-wait-ticks", opt.WaitCounterInit,
		"ticks a scale-down decision is held off for after a scale-up or wake")
	m.IntVar(&opt.IdleTicksThreshold, "idle-ticks-threshold", opt.IdleTicksThreshold,
		"consecutive idle ticks after which the oldest sleeper is reclaimed")
}

// uint16Var and int32Var adapt *uint16/*int32 fields to flag.Value, which
// the standard library only provides Int/Int64/Uint/Uint64 Var helpers
// for among the fixed-width integer kinds.
type uint16Var struct{ p *uint16 }

func (v *uint16Var) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.FormatUint(uint64(*v.p), 10)
}

func (v *uint16Var) Set(value string) error {
	n, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return err
	}
	*v.p = uint16(n)
	return nil
}

type int32Var struct{ p *int32 }

func (v *int32Var) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.FormatInt(int64(*v.p), 10)
}

func (v *int32Var) Set(value string) error {
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return err
	}
	*v.p = int32(n)
	return nil
}
