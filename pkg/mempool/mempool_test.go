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

package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type msg struct {
	Type int
	Data interface{}
}

func TestGetExhaustsThenPutReplenishes(t *testing.T) {
	p := New[msg](2, nil)
	require.Equal(t, 2, p.Capacity())

	a, err := p.Get()
	require.NoError(t, err)
	b, err := p.Get()
	require.NoError(t, err)

	_, err = p.Get()
	require.ErrorIs(t, err, ErrExhausted)

	p.Put(a)
	require.Equal(t, 1, p.Available())

	c, err := p.Get()
	require.NoError(t, err)
	require.Equal(t, a, c)

	p.Put(b)
	p.Put(c)
	require.Equal(t, 2, p.Available())
}

func TestResetFnAppliedAtConstruction(t *testing.T) {
	p := New[msg](1, func(m *msg) { m.Type = -1 })
	obj, err := p.Get()
	require.NoError(t, err)
	require.Equal(t, -1, obj.Type)
}

func TestNoAllocationOnDataPath(t *testing.T) {
	p := New[msg](3, nil)
	var got []*msg
	for i := 0; i < 3; i++ {
		o, err := p.Get()
		require.NoError(t, err)
		got = append(got, o)
	}
	for _, o := range got {
		p.Put(o)
	}
	// every pointer handed out must come from the arena, never a fresh
	// heap allocation made by Get itself.
	for _, o := range got {
		found := false
		for i := range p.arena {
			if &p.arena[i] == o {
				found = true
				break
			}
		}
		require.True(t, found)
	}
}
