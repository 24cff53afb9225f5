/*
 *     Copyright 2023 The Balancer Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package gather

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/history"
)

func TestLocalGroup_AllGather(t *testing.T) {
	assert := assert.New(t)
	nodeIDs := []int{2, 0, 1}
	gatherers := NewLocalGroup(nodeIDs)

	results := make([][]history.IterationSample, len(gatherers))
	var wg sync.WaitGroup
	for i, g := range gatherers {
		wg.Add(1)
		go func(i int, g Gatherer) {
			defer wg.Done()
			samples, err := g.AllGather(context.Background(), history.IterationSample{
				Iteration:     5,
				IterationTime: 0.1,
				Throughput:    float64(100 * (i + 1)),
			})
			assert.NoError(err)
			results[i] = samples
		}(i, g)
	}
	wg.Wait()

	// Every participant sees the same set, sorted by node id.
	for _, samples := range results {
		assert.Len(samples, 3)
		assert.Equal(0, samples[0].NodeID)
		assert.Equal(1, samples[1].NodeID)
		assert.Equal(2, samples[2].NodeID)
		assert.Equal(results[0], samples)
	}
}

func TestLocalGroup_MultipleRounds(t *testing.T) {
	assert := assert.New(t)
	gatherers := NewLocalGroup([]int{0, 1})

	for round := 1; round <= 3; round++ {
		var wg sync.WaitGroup
		for _, g := range gatherers {
			wg.Add(1)
			go func(g Gatherer) {
				defer wg.Done()
				samples, err := g.AllGather(context.Background(), history.IterationSample{Iteration: round})
				assert.NoError(err)
				assert.Len(samples, 2)
				assert.Equal(round, samples[0].Iteration)
			}(g)
		}
		wg.Wait()
	}
}

func TestLocalGroup_ContextCancel(t *testing.T) {
	assert := assert.New(t)
	gatherers := NewLocalGroup([]int{0, 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Only one member arrives, the round never completes.
	_, err := gatherers[0].AllGather(ctx, history.IterationSample{Iteration: 1})
	assert.ErrorIs(err, context.DeadlineExceeded)
}

func TestLocalGroup_DuplicateContribution(t *testing.T) {
	assert := assert.New(t)
	gatherers := NewLocalGroup([]int{0, 1, 2})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := gatherers[0].AllGather(context.Background(), history.IterationSample{Iteration: 1})
		assert.NoError(err)
	}()

	// Wait until node 0's contribution is registered, then contribute
	// again from node 0 while the round is still open.
	for {
		g := gatherers[0].(*localGatherer)
		g.group.mu.Lock()
		_, contributed := g.group.pending[0]
		g.group.mu.Unlock()
		if contributed {
			break
		}
		time.Sleep(time.Millisecond)
	}

	_, err := gatherers[0].AllGather(context.Background(), history.IterationSample{Iteration: 1})
	assert.Error(err)

	for _, g := range gatherers[1:] {
		wg.Add(1)
		go func(g Gatherer) {
			defer wg.Done()
			_, err := g.AllGather(context.Background(), history.IterationSample{Iteration: 1})
			assert.NoError(err)
		}(g)
	}
	wg.Wait()
}
