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

// Package cpuallocator tracks per-core NF occupancy and hands out core
// assignments to newly admitted NF instances (spec component C2).
package cpuallocator

import (
	"flag"
	"sync"

	logger "github.com/sdnfv/nfresmgr/pkg/log"
)

const (
	logSource = "cpuallocator"
	debugFlag = "cpu-allocator-debug"
)

func init() {
	flag.BoolVar(&debug, debugFlag, false, "enable core allocator debug log")
}

var debug bool
var log = logger.NewLogger(logSource)

// Options describes the allocation preferences a caller passes to
// Acquire, mirroring the init_options a NF hands the manager on start.
type Options struct {
	// Dedicated requests a core with no other NF instance on it. A core
	// that already hosts any NF fails this check, and Acquire moves on to
	// the other cores.
	Dedicated bool
	// PreferredCore, when non-negative, is the core the caller would
	// like to be assigned; CoreAllocator tries it first and falls back to
	// another core if the preferred one fails the dedicated/shared check.
	PreferredCore int
}

// core tracks occupancy for a single logical CPU core.
type core struct {
	nfCount     int
	isDedicated bool
}

// CoreAllocator implements C2: per-core NF counts and dedicated-core
// flags, core acquisition/release, and shutdown reassignment candidate
// selection.
type CoreAllocator struct {
	logger.Logger
	mu    sync.Mutex
	cores []core
}

// NewCoreAllocator creates an allocator tracking numCores logical cores,
// all initially empty and shared.
func NewCoreAllocator(numCores int) *CoreAllocator {
	if numCores < 1 {
		numCores = 1
	}
	return &CoreAllocator{
		Logger: log,
		cores:  make([]core, numCores),
	}
}

// NumCores returns the number of logical cores this allocator manages.
func (a *CoreAllocator) NumCores() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cores)
}

// NFCount returns the number of NF instances currently assigned to core c.
func (a *CoreAllocator) NFCount(c int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c < 0 || c >= len(a.cores) {
		return 0
	}
	return a.cores[c].nfCount
}

// IsDedicated reports whether core c is currently held by a dedicated-core
// NF.
func (a *CoreAllocator) IsDedicated(c int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c < 0 || c >= len(a.cores) {
		return false
	}
	return a.cores[c].isDedicated
}

// Acquire assigns a core to a new NF instance per opts. A dedicated
// request needs a core with no NF on it; a shared request needs a core
// that is not dedicated to another NF. opts.PreferredCore is tried first
// when it is in range; if it is out of range or fails that check, the
// lowest-numbered core satisfying the request is used instead (falling
// back the way onvm_threading_get_core picks any free core when no hint
// is given). When no core satisfies the request Acquire returns
// ErrNoCapacity; it never returns ErrCorePolicyViolation.
func (a *CoreAllocator) Acquire(opts Options) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c := opts.PreferredCore; c >= 0 && c < len(a.cores) {
		if err := a.tryAssign(c, opts.Dedicated); err == nil {
			a.debug("assigned preferred core %d (dedicated=%v)", c, opts.Dedicated)
			return c, nil
		}
	}

	for c := range a.cores {
		if err := a.tryAssign(c, opts.Dedicated); err == nil {
			a.debug("assigned core %d (dedicated=%v)", c, opts.Dedicated)
			return c, nil
		}
	}

	return 0, ErrNoCapacity
}

// tryAssign attempts to assign core c under the lock already held by the
// caller, mutating occupancy on success.
func (a *CoreAllocator) tryAssign(c int, dedicated bool) error {
	cc := &a.cores[c]
	if dedicated {
		if cc.nfCount > 0 {
			return ErrCorePolicyViolation
		}
		cc.isDedicated = true
		cc.nfCount = 1
		return nil
	}
	if cc.isDedicated {
		return ErrCorePolicyViolation
	}
	cc.nfCount++
	return nil
}

// Release decrements the occupancy of core c, clearing its dedicated flag
// once it becomes empty.
func (a *CoreAllocator) Release(c int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c < 0 || c >= len(a.cores) {
		return
	}
	cc := &a.cores[c]
	if cc.nfCount > 0 {
		cc.nfCount--
	}
	if cc.nfCount == 0 {
		cc.isDedicated = false
	}
}

// FindReassignmentCandidate selects the instance id that should migrate
// onto freedCore to rebalance load, after freedCore has just become empty.
// instanceOnCore maps a core id to the instance id currently assigned to
// it that is the best migration candidate for that core (the caller -
// the lifecycle package, which knows about instances - supplies this,
// since CoreAllocator itself only tracks counts, not identities). It
// mirrors onvm_threading_find_nf_to_reassign_core: pick the most-loaded
// core and return the instance recorded for it, or 0 if no core has more
// than one NF to spare.
func (a *CoreAllocator) FindReassignmentCandidate(freedCore int, instanceOnCore map[int]uint16) uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if freedCore < 0 || freedCore >= len(a.cores) || a.cores[freedCore].nfCount != 0 {
		return 0
	}

	bestCore := -1
	bestCount := 0
	for c := range a.cores {
		if c == freedCore {
			continue
		}
		if a.cores[c].isDedicated {
			continue
		}
		if a.cores[c].nfCount > bestCount {
			bestCount = a.cores[c].nfCount
			bestCore = c
		}
	}

	if bestCore < 0 || bestCount <= 1 {
		return 0
	}

	return instanceOnCore[bestCore]
}

// Relocate moves accounting for one NF from core `from` to core `to`,
// used when a CHANGE_CORE message has been sent (spec.md §4.5 step 9 /
// onvm_nf_relocate_nf).
func (a *CoreAllocator) Relocate(from, to int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if from >= 0 && from < len(a.cores) && a.cores[from].nfCount > 0 {
		a.cores[from].nfCount--
	}
	if to >= 0 && to < len(a.cores) {
		a.cores[to].nfCount++
	}
}

func (a *CoreAllocator) debug(format string, args ...interface{}) {
	if !debug {
		return
	}
	a.Info(format, args...)
}
