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

package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func markOccupied(r *Registry, id uint16, status Status) {
	s := r.Slot(id)
	s.Status = status
}

func TestNextInstanceIDSkipsOccupiedSlots(t *testing.T) {
	r := New(4) // valid ids: 1,2,3

	id1 := r.NextInstanceID()
	require.Equal(t, uint16(1), id1)
	markOccupied(r, id1, Running)

	id2 := r.NextInstanceID()
	require.Equal(t, uint16(2), id2)
	markOccupied(r, id2, Running)

	id3 := r.NextInstanceID()
	require.Equal(t, uint16(3), id3)
	markOccupied(r, id3, Running)

	full := r.NextInstanceID()
	require.Equal(t, r.MaxNFs(), full)
}

func TestNextInstanceIDRotatesAndReusesHoles(t *testing.T) {
	// S6: with MAX_NFS=4, admit ids filling {1,2,3}; stop 2; next admit
	// returns 2 (reusing the hole), not 4.
	r := New(4)

	for i := 0; i < 3; i++ {
		id := r.NextInstanceID()
		markOccupied(r, id, Running)
	}

	r.Slot(2).Status = Stopped

	reused := r.NextInstanceID()
	require.Equal(t, uint16(2), reused)
}

func TestZeroIDReservedAndOutOfRangeNil(t *testing.T) {
	r := New(4)
	require.Nil(t, r.Slot(0))
	require.Nil(t, r.Slot(4))
	require.NotNil(t, r.Slot(1))
}

func TestResetReturnsSlotToEmpty(t *testing.T) {
	r := New(4)
	s := r.Slot(1)
	s.Status = Running
	s.Tag = "nf-a"
	s.HandleRate = 100

	r.Reset(1)

	got := r.Slot(1)
	require.Equal(t, Empty, got.Status)
	require.Equal(t, "", got.Tag)
	require.Equal(t, uint64(0), got.HandleRate)
	require.Equal(t, uint16(1), got.InstanceID)
}

func TestChildrenCountAtomics(t *testing.T) {
	r := New(4)
	s := r.Slot(1)

	require.Equal(t, int32(1), s.IncChildren())
	require.Equal(t, int32(2), s.IncChildren())
	require.Equal(t, int32(1), s.DecChildren())
	require.Equal(t, int32(1), s.ChildrenCount())
}

func TestForEachValidVisitsInOrder(t *testing.T) {
	r := New(6)
	r.Slot(3).Status = Running
	r.Slot(1).Status = Paused
	r.Slot(5).Status = Stopping

	var seen []uint16
	r.ForEachValid(func(s *Slot) { seen = append(seen, s.InstanceID) })

	require.Equal(t, []uint16{1, 3, 5}, seen)
}
