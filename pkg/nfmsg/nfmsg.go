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

// Package nfmsg defines the control message wire types shared by the
// lifecycle state machine (C5), the control message dispatcher (C6) and
// the autoscaling controller (C7), mirroring the message types and
// payload structs of openNetVM's onvm_nf.h/onvm_nf.c.
package nfmsg

// Type is a control message type (spec.md §3 "Messages").
type Type uint8

const (
	// RequestLPM asks the manager to create a longest-prefix-match table.
	RequestLPM Type = iota
	// RequestFT asks the manager to create a flow-table hash.
	RequestFT
	// NFStarting announces that an NF wants to be admitted.
	NFStarting
	// NFReady announces that a Starting NF has finished its own setup.
	NFReady
	// NFStopping requests teardown of a Running/Paused/Starting NF.
	NFStopping
	// Stop instructs an NF to exit its data loop at the next iteration.
	Stop
	// Scale instructs a parent NF to thread-spawn a new child.
	Scale
	// ChangeCore instructs an NF to rebind to a new core.
	ChangeCore
)

func (t Type) String() string {
	switch t {
	case RequestLPM:
		return "REQUEST_LPM"
	case RequestFT:
		return "REQUEST_FT"
	case NFStarting:
		return "NF_STARTING"
	case NFReady:
		return "NF_READY"
	case NFStopping:
		return "NF_STOPPING"
	case Stop:
		return "STOP"
	case Scale:
		return "SCALE"
	case ChangeCore:
		return "CHANGE_CORE"
	default:
		return "UNKNOWN"
	}
}

// Message is a control message drawn from the fixed message pool
// (spec.md §3). Payload is one of the payload types below (InitCfg,
// LPMRequest, FTRequest, ChangeCoreData, ReadyRequest, StopRequest), or
// nil for message types that carry no data (Stop, Scale).
type Message struct {
	Type    Type
	DestID  uint16
	Payload interface{}
}

// AdmitStatus is the result written back into an InitCfg.Status field,
// mirroring onvm_nf_init_cfg->status.
type AdmitStatus int

const (
	// WaitingForID is the initial status of an InitCfg before admit runs.
	WaitingForID AdmitStatus = iota
	// StartingOK means the NF was admitted and is now in the Starting state.
	StartingOK
	// NoIDs means the NF table had no free instance id.
	NoIDs
	// ServiceMax means the requested service id is out of range.
	ServiceMax
	// ServiceCountMax means the service's per-service NF limit was reached.
	ServiceCountMax
	// IDConflict means a caller-supplied instance id is already in use.
	IDConflict
	// NoCoreCapacity means no core could satisfy the core request.
	NoCoreCapacity
)

func (s AdmitStatus) String() string {
	switch s {
	case WaitingForID:
		return "WAITING_FOR_ID"
	case StartingOK:
		return "STARTING"
	case NoIDs:
		return "NO_IDS"
	case ServiceMax:
		return "SERVICE_MAX"
	case ServiceCountMax:
		return "SERVICE_COUNT_MAX"
	case IDConflict:
		return "ID_CONFLICT"
	case NoCoreCapacity:
		return "NO_CORE_CAPACITY"
	default:
		return "UNKNOWN"
	}
}

// NoID is the sentinel InitCfg.InstanceID meaning "assign me any id"
// (mirrors (uint16_t)NF_NO_ID in onvm_nf.c).
const NoID uint16 = 0xFFFF

// InitCfg is the NF_STARTING payload (spec.md §4.5 admit()).
type InitCfg struct {
	InstanceID    uint16 // NoID to request allocation
	ServiceID     uint16
	Tag           string
	HandleRate    uint64
	Dedicated     bool
	PreferredCore int
	ParentID      uint16 // 0 if this NF has no parent
	TimeToLive    int
	PktLimit      int64

	Status AdmitStatus
}

// LPMRequest is the REQUEST_LPM payload.
type LPMRequest struct {
	Name        string
	SocketID    int
	MaxRules    int
	NumTbl8s    int
	Status      int // 0 on success, -1 on failure
}

// FTRequest is the REQUEST_FT payload.
type FTRequest struct {
	Name   string
	Status int // 0 on success, -1 on failure
}

// ChangeCoreData is the CHANGE_CORE payload.
type ChangeCoreData struct {
	NewCore int
}

// ReadyRequest is the NF_READY payload.
type ReadyRequest struct {
	InstanceID uint16
	Status     string // empty on success, else the rejection reason
}

// StopRequest is the NF_STOPPING payload.
type StopRequest struct {
	InstanceID uint16
	Status     string // empty on success, else the rejection reason
}
