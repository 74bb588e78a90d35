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

package servicemap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAppendsAndCountsParent(t *testing.T) {
	sm := New(8, 8)

	require.NoError(t, sm.Add(5, 1))
	require.NoError(t, sm.Add(5, 2))
	require.NoError(t, sm.Add(5, 3))

	require.Equal(t, 3, sm.Count(5))
	require.Equal(t, uint16(1), sm.Parent(5))
	require.Equal(t, []uint16{1, 2, 3}, sm.List(5))
}

func TestRemoveMiddlePreservesContiguity(t *testing.T) {
	sm := New(8, 8)
	sm.Add(5, 1)
	sm.Add(5, 2)
	sm.Add(5, 3)

	require.True(t, sm.Remove(5, 2))
	require.Equal(t, 2, sm.Count(5))
	require.Equal(t, []uint16{1, 3}, sm.List(5))
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	sm := New(8, 8)
	sm.Add(5, 1)
	require.False(t, sm.Remove(5, 99))
	require.Equal(t, 1, sm.Count(5))
}

func TestRemoveLastPopsTail(t *testing.T) {
	sm := New(8, 8)
	sm.Add(5, 1)
	sm.Add(5, 2)
	sm.Add(5, 3)

	id := sm.RemoveLast(5)
	require.Equal(t, uint16(3), id)
	require.Equal(t, []uint16{1, 2}, sm.List(5))
}

func TestAddAtCapacityFails(t *testing.T) {
	sm := New(8, 2)
	require.NoError(t, sm.Add(0, 1))
	require.NoError(t, sm.Add(0, 2))
	require.ErrorIs(t, sm.Add(0, 3), ErrServiceCountMax)
}

func TestEmptyServiceHasNoParent(t *testing.T) {
	sm := New(8, 8)
	require.Equal(t, uint16(0), sm.Parent(3))
	require.Equal(t, uint16(0), sm.RemoveLast(3))
}
