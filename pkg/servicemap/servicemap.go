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

// Package servicemap implements the per-service ordered list of live,
// non-sleeping instance ids (spec component C4), the Go analogue of
// openNetVM's `services[MAX_SERVICES][MAX_NFS_PER_SERVICE]` array and
// `nf_per_service_count`.
package servicemap

import "errors"

// ErrServiceCountMax is returned by Add when the service's list is
// already at capacity.
var ErrServiceCountMax = errors.New("servicemap: per-service NF count at maximum")

// ServiceMap holds, for each service id, the ordered list of live
// instance ids. services[s][0] is the parent instance for service s
// (spec.md §4.4).
type ServiceMap struct {
	perService int
	services   [][]uint16 // fixed-capacity per service, 0-terminated logically via counts
	counts     []int
}

// New creates a ServiceMap for maxServices services, each holding up to
// maxNFsPerService instance ids.
func New(maxServices, maxNFsPerService int) *ServiceMap {
	if maxServices < 1 {
		maxServices = 1
	}
	if maxNFsPerService < 1 {
		maxNFsPerService = 1
	}
	sm := &ServiceMap{
		perService: maxNFsPerService,
		services:   make([][]uint16, maxServices),
		counts:     make([]int, maxServices),
	}
	for i := range sm.services {
		sm.services[i] = make([]uint16, maxNFsPerService)
	}
	return sm
}

// MaxServices returns the configured number of service ids.
func (sm *ServiceMap) MaxServices() int { return len(sm.services) }

// MaxPerService returns the configured per-service capacity.
func (sm *ServiceMap) MaxPerService() int { return sm.perService }

// Count returns nf_per_service_count[s].
func (sm *ServiceMap) Count(s uint16) int {
	if int(s) >= len(sm.counts) {
		return 0
	}
	return sm.counts[s]
}

// Parent returns services[s][0], or 0 if the service has no members.
func (sm *ServiceMap) Parent(s uint16) uint16 {
	if sm.Count(s) == 0 {
		return 0
	}
	return sm.services[s][0]
}

// List returns a copy of the live, ordered instance ids for service s.
func (sm *ServiceMap) List(s uint16) []uint16 {
	n := sm.Count(s)
	out := make([]uint16, n)
	copy(out, sm.services[s][:n])
	return out
}

// Last returns the last (most recently added) entry for service s, or 0
// if empty — this is services[s][nf_per_service_count[s]-1].
func (sm *ServiceMap) Last(s uint16) uint16 {
	n := sm.Count(s)
	if n == 0 {
		return 0
	}
	return sm.services[s][n-1]
}

// Add appends id to the end of service s's list, incrementing its count.
// Mirrors the commented-out append in onvm_nf_ready (spec.md §4.5 ready()).
func (sm *ServiceMap) Add(s uint16, id uint16) error {
	if int(s) >= len(sm.services) {
		return ErrServiceCountMax
	}
	n := sm.counts[s]
	if n >= sm.perService {
		return ErrServiceCountMax
	}
	sm.services[s][n] = id
	sm.counts[s] = n + 1
	return nil
}

// Remove deletes id from service s's list if present, shifting every
// subsequent entry left by one slot to preserve contiguity (invariant 3),
// mirroring the shift loop in onvm_nf_stop.
func (sm *ServiceMap) Remove(s uint16, id uint16) bool {
	if int(s) >= len(sm.services) {
		return false
	}
	n := sm.counts[s]
	idx := -1
	for i := 0; i < n; i++ {
		if sm.services[s][i] == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	for i := idx; i < n-1; i++ {
		sm.services[s][i] = sm.services[s][i+1]
	}
	sm.services[s][n-1] = 0
	sm.counts[s] = n - 1
	return true
}

// RemoveLast removes and returns the last entry of service s's list, or 0
// if the list is empty. The autoscaling controller's sleep decision does
// not call it: it reads Last and lets lifecycle.Sleep remove the entry.
func (sm *ServiceMap) RemoveLast(s uint16) uint16 {
	id := sm.Last(s)
	if id == 0 {
		return 0
	}
	sm.Remove(s, id)
	return id
}
