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

// Package gather exchanges iteration samples between training replicas so
// every replica runs the balancer over the same input and reaches the same
// assignment. The transport is pluggable; replicas on collective frameworks
// implement Gatherer over their own all-gather primitive.
package gather

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/history"
)

// Gatherer collects the local sample of every participant and returns the
// combined set, sorted by node id, identical on all participants.
type Gatherer interface {
	// AllGather blocks until every participant has contributed a sample
	// for the round, then returns all of them.
	AllGather(ctx context.Context, local history.IterationSample) ([]history.IterationSample, error)
}

// group is the state shared by the participants of one in-process gatherer.
type group struct {
	mu      sync.Mutex
	round   int
	pending map[int]history.IterationSample
	result  []history.IterationSample
	done    chan struct{}
	members int
}

// localGatherer is a Gatherer for replicas running in one process, used by
// the simulator and by single-host multi-worker training.
type localGatherer struct {
	group  *group
	nodeID int
}

// NewLocalGroup returns one Gatherer per member. All members must call
// AllGather once per round; the call completes when the last member arrives.
func NewLocalGroup(nodeIDs []int) []Gatherer {
	g := &group{
		pending: map[int]history.IterationSample{},
		done:    make(chan struct{}),
		members: len(nodeIDs),
	}

	gatherers := make([]Gatherer, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		gatherers = append(gatherers, &localGatherer{group: g, nodeID: id})
	}

	return gatherers
}

func (l *localGatherer) AllGather(ctx context.Context, local history.IterationSample) ([]history.IterationSample, error) {
	l.group.mu.Lock()
	if _, ok := l.group.pending[l.nodeID]; ok {
		l.group.mu.Unlock()
		return nil, errors.Errorf("node %d contributed twice in round %d", l.nodeID, l.group.round)
	}

	local.NodeID = l.nodeID
	l.group.pending[l.nodeID] = local
	done := l.group.done

	// The last member closes the round and resets the group for the next.
	if len(l.group.pending) == l.group.members {
		samples := collect(l.group.pending)
		l.group.round++
		l.group.pending = map[int]history.IterationSample{}
		l.group.done = make(chan struct{})
		l.group.result = samples
		close(done)
		l.group.mu.Unlock()
		return samples, nil
	}
	l.group.mu.Unlock()

	select {
	case <-done:
		l.group.mu.Lock()
		samples := l.group.result
		l.group.mu.Unlock()
		return samples, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "all-gather interrupted")
	}
}

// collect flattens the round's samples sorted by node id.
func collect(pending map[int]history.IterationSample) []history.IterationSample {
	samples := make([]history.IterationSample, 0, len(pending))
	for _, sample := range pending {
		samples = append(samples, sample)
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].NodeID < samples[j].NodeID
	})

	return samples
}
