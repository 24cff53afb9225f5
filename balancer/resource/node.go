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

package resource

import (
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/atomic"

	logger "github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/internal/dflog"
)

const (
	// NodeStateActive is the state when the node reports valid samples.
	NodeStateActive = "Active"

	// NodeStateSuspect is the state after one or more consecutive invalid
	// cycles, before the unresponsive threshold is reached.
	NodeStateSuspect = "Suspect"

	// NodeStateUnresponsive is the state after the configured number of
	// consecutive invalid cycles.
	NodeStateUnresponsive = "Unresponsive"
)

const (
	// NodeEventInvalidSample is the event when an invalid sample is
	// excluded from a rebalance cycle.
	NodeEventInvalidSample = "InvalidSample"

	// NodeEventUnresponsive is the event when the invalid cycle count
	// reaches the unresponsive threshold.
	NodeEventUnresponsive = "Unresponsive"

	// NodeEventRecover is the event when a valid sample arrives again.
	NodeEventRecover = "Recover"
)

// NodeProfile is the static capability record of one worker, produced by
// hardware discovery before training starts. Benchmarks carries auxiliary
// benchmark numbers that are passed through untouched.
type NodeProfile struct {
	// ID is the unique ordinal of the node, stable for the training run.
	ID int `json:"node_id"`

	// Name is the device name.
	Name string `json:"name,omitempty"`

	// ComputeScore is the relative throughput capability normalized
	// against a reference node.
	ComputeScore float64 `json:"compute_score"`

	// MemoryCapacity is the total memory in megabytes.
	MemoryCapacity float64 `json:"total_memory_mb"`

	// BandwidthGbps is the memory bandwidth in gigabits per second.
	BandwidthGbps float64 `json:"memory_bandwidth_gbps,omitempty"`

	// Benchmarks is auxiliary benchmark numbers, not used by the balancer.
	Benchmarks map[string]float64 `json:"benchmarks,omitempty"`
}

// Node is a registered worker with its profile and health state.
type Node struct {
	// Profile is the immutable capability profile.
	Profile NodeProfile

	// FSM is the node health state machine.
	FSM *fsm.FSM

	// InvalidCycleCount is the number of consecutive rebalance cycles in
	// which the node's sample was excluded.
	InvalidCycleCount *atomic.Int32

	// UpdatedAt is the node last update time.
	UpdatedAt *atomic.Time

	// Log is the node logger.
	Log *logger.SugaredLoggerOnWith
}

// NewNode returns a new node in the active state.
func NewNode(profile NodeProfile) *Node {
	n := &Node{
		Profile:           profile,
		InvalidCycleCount: atomic.NewInt32(0),
		UpdatedAt:         atomic.NewTime(time.Now()),
		Log:               logger.WithNode(profile.ID),
	}

	n.FSM = fsm.NewFSM(
		NodeStateActive,
		fsm.Events{
			{Name: NodeEventInvalidSample, Src: []string{NodeStateActive, NodeStateSuspect}, Dst: NodeStateSuspect},
			{Name: NodeEventUnresponsive, Src: []string{NodeStateSuspect}, Dst: NodeStateUnresponsive},
			{Name: NodeEventRecover, Src: []string{NodeStateSuspect, NodeStateUnresponsive}, Dst: NodeStateActive},
		},
		fsm.Callbacks{
			NodeEventInvalidSample: func(e *fsm.Event) {
				n.UpdatedAt.Store(time.Now())
				n.Log.Warnf("node state is %s, invalid cycle count is %d", e.FSM.Current(), n.InvalidCycleCount.Load())
			},
			NodeEventUnresponsive: func(e *fsm.Event) {
				n.UpdatedAt.Store(time.Now())
				n.Log.Errorf("node state is %s", e.FSM.Current())
			},
			NodeEventRecover: func(e *fsm.Event) {
				n.UpdatedAt.Store(time.Now())
				n.Log.Infof("node state is %s", e.FSM.Current())
			},
		},
	)

	return n
}

// MarkInvalidCycle records one excluded rebalance cycle and returns the new
// consecutive invalid cycle count.
func (n *Node) MarkInvalidCycle() int {
	count := int(n.InvalidCycleCount.Inc())
	if n.FSM.Is(NodeStateActive) {
		if err := n.FSM.Event(NodeEventInvalidSample); err != nil {
			n.Log.Errorf("node fsm event failed: %s", err.Error())
		}
	}

	return count
}

// MarkValidCycle resets the invalid cycle streak.
func (n *Node) MarkValidCycle() {
	n.InvalidCycleCount.Store(0)
	if !n.FSM.Is(NodeStateActive) {
		if err := n.FSM.Event(NodeEventRecover); err != nil {
			n.Log.Errorf("node fsm event failed: %s", err.Error())
		}
	}
}

// MarkUnresponsive transitions the node to the unresponsive state.
func (n *Node) MarkUnresponsive() {
	if n.FSM.Is(NodeStateSuspect) {
		if err := n.FSM.Event(NodeEventUnresponsive); err != nil {
			n.Log.Errorf("node fsm event failed: %s", err.Error())
		}
	}
}

// MemoryCap returns the maximum feasible batch size derived from the node's
// memory capacity, given the estimated per-sample footprint in megabytes and
// the usable memory fraction. The cap is never below one sample.
func (n *Node) MemoryCap(sampleMemoryMB, memoryFraction float64) int {
	cap := int(n.Profile.MemoryCapacity * memoryFraction / sampleMemoryMB)
	if cap < 1 {
		cap = 1
	}

	return cap
}
