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

package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapacityRoundsToPowerOfTwo(t *testing.T) {
	r := New(5)
	require.Equal(t, 8, r.Capacity())
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	r := New(4)
	require.True(t, r.Enqueue("a"))
	require.True(t, r.Enqueue("b"))

	v, ok := r.Dequeue()
	require.True(t, ok)
	require.Equal(t, "a", v)

	v, ok = r.Dequeue()
	require.True(t, ok)
	require.Equal(t, "b", v)

	_, ok = r.Dequeue()
	require.False(t, ok)
}

func TestEnqueueBurstPartial(t *testing.T) {
	r := New(2)
	n, err := r.EnqueueBurst([]interface{}{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = r.EnqueueBurst([]interface{}{4})
	require.ErrorIs(t, err, ErrFull)
}

func TestEnqueueBulkAllOrNothing(t *testing.T) {
	r := New(2)
	err := r.EnqueueBulk([]interface{}{1, 2, 3})
	require.ErrorIs(t, err, ErrFull)
	require.Equal(t, 0, r.Count())

	require.NoError(t, r.EnqueueBulk([]interface{}{1, 2}))
	require.Equal(t, 2, r.Count())
}

func TestDequeueBulkRequiresFullCount(t *testing.T) {
	r := New(4)
	require.NoError(t, r.EnqueueBulk([]interface{}{1}))

	out := make([]interface{}, 2)
	err := r.DequeueBulk(out)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestDrainFuncVisitsEverythingInOrder(t *testing.T) {
	r := New(8)
	for i := 0; i < 5; i++ {
		require.True(t, r.Enqueue(i))
	}

	var got []int
	n := r.DrainFunc(2, func(v interface{}) {
		got = append(got, v.(int))
	})

	require.Equal(t, 5, n)
	require.Equal(t, []int{0, 1, 2, 3, 4}, got)
	require.Equal(t, 0, r.Count())
}

func TestConcurrentProducersSingleConsumer(t *testing.T) {
	r := New(1024)
	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !r.Enqueue(id*perProducer + i) {
					// spin until the consumer drains room; bounded by
					// the test's own draining goroutine below.
				}
			}
		}(p)
	}

	seen := make(map[int]bool, producers*perProducer)
	var mu sync.Mutex
	received := 0
	done := make(chan struct{})
	go func() {
		buf := make([]interface{}, 32)
		for received < producers*perProducer {
			n, err := r.DequeueBurst(buf)
			if err != nil {
				continue
			}
			mu.Lock()
			for i := 0; i < n; i++ {
				v, ok := buf[i].(int)
				require.True(t, ok, "dequeued a non-int/nil value: %v", buf[i])
				require.False(t, seen[v], "dequeued duplicate value %d", v)
				seen[v] = true
			}
			mu.Unlock()
			received += n
		}
		close(done)
	}()

	wg.Wait()
	<-done
	require.Equal(t, producers*perProducer, received)
	require.Len(t, seen, producers*perProducer)
}
