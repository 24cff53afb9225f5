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

package scheduling

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/config"
	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/history"
	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/resource"
	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/scheduling/evaluator"
	logger "github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/internal/dflog"
)

// Scheduling owns the node registry and the performance history, and
// answers what batch size each node should use. All computation is a pure
// function of registered profiles, recorded samples and configuration, so
// replicas fed the same gathered samples reach the same assignment.
type Scheduling interface {
	// RegisterNode adds a node before training starts. It returns
	// ErrDuplicateNode if the node id is already registered. It has no
	// effect on an in-progress assignment.
	RegisterNode(profile resource.NodeProfile) error

	// InitialAssignment computes batch sizes proportional to compute
	// scores across all registered nodes, clipped to memory caps, with
	// the remainder distributed to preserve the exact requested global
	// batch size. Called once, before the first iteration.
	InitialAssignment(globalBatchSize int) (Assignment, error)

	// RecordSample appends a sample to the node's history window. It
	// never blocks and is O(1). It returns ErrUnknownNode for an
	// unregistered node and ErrInvalidSample for a non-positive
	// throughput or iteration time; the latter is recoverable and the
	// sample is only excluded from weighting.
	RecordSample(nodeID int, sample history.IterationSample) error

	// MaybeRebalance returns a nil assignment except when the iteration
	// is a multiple of the rebalance interval. On interval boundaries it
	// recomputes the assignment with the configured policy, falling back
	// to proportional weights until every node has recorded the warm-up
	// sample count. It returns ErrNodeUnresponsive, together with the
	// recomputed assignment, when a node reaches the consecutive invalid
	// cycle threshold.
	MaybeRebalance(currentIteration int) (Assignment, error)

	// BatchSize returns the node's batch size in the current assignment.
	BatchSize(nodeID int) (int, bool)

	// CurrentAssignment returns a copy of the current assignment.
	CurrentAssignment() Assignment

	// StragglerFlags returns the straggler verdicts of the last rebalance
	// cycle.
	StragglerFlags() map[int]bool

	// ScalingEfficiency returns the cluster scaling efficiency in [0, 1],
	// the ratio of the fastest node's mean iteration time to the
	// slowest's.
	ScalingEfficiency() float64

	// LoadImbalance returns (max - min) / max over the nodes' mean
	// iteration times, 0 meaning perfect balance.
	LoadImbalance() float64

	// Snapshot returns a serializable snapshot of the balancer state.
	Snapshot() *Snapshot

	// Restore replaces the balancer state with a snapshot.
	Restore(snapshot *Snapshot) error
}

type scheduling struct {
	mu sync.Mutex

	config      config.BalancerConfig
	nodeManager resource.NodeManager
	history     history.History
	evaluator   evaluator.Evaluator

	// globalBatchSize is fixed by InitialAssignment for the run.
	globalBatchSize int

	// current is the assignment in effect, replaced atomically on every
	// rebalance.
	current Assignment

	// prevWeights is the weight vector that produced the current
	// assignment, blended into the next dynamic computation.
	prevWeights map[int]float64

	// stragglers is the verdict of the last rebalance cycle.
	stragglers map[int]bool

	// lastIteration is the iteration of the last rebalance decision.
	lastIteration int
}

// New returns a scheduling instance for the given balancer configuration.
func New(cfg config.BalancerConfig) Scheduling {
	return &scheduling{
		config:      cfg,
		nodeManager: resource.NewNodeManager(),
		history:     history.New(cfg.WindowSize),
		evaluator:   evaluator.New(cfg.StragglerK),
		prevWeights: map[int]float64{},
		stragglers:  map[int]bool{},
	}
}

func (s *scheduling) RegisterNode(profile resource.NodeProfile) error {
	if profile.ComputeScore <= 0 {
		return errors.Errorf("node %d requires a positive compute score", profile.ID)
	}

	node := resource.NewNode(profile)
	if _, loaded := s.nodeManager.LoadOrStore(node); loaded {
		return errors.Wrapf(ErrDuplicateNode, "node %d", profile.ID)
	}

	node.Log.Infof("registered node, compute score %.2f, memory %.0fMB", profile.ComputeScore, profile.MemoryCapacity)
	return nil
}

func (s *scheduling) InitialAssignment(globalBatchSize int) (Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.nodeManager.IDs()
	if len(ids) == 0 {
		return nil, ErrNoRegisteredNodes
	}

	weights := s.proportionalWeights(ids)
	assignment, err := apportion(ids, weights, globalBatchSize, s.memoryCaps(ids))
	if err != nil {
		return nil, err
	}

	s.globalBatchSize = globalBatchSize
	s.applyAssignment(assignment)
	logger.WithPolicy(config.PolicyProportional).Infof("initial assignment: %v", assignment)
	return assignment.Clone(), nil
}

func (s *scheduling) RecordSample(nodeID int, sample history.IterationSample) error {
	node, ok := s.nodeManager.Load(nodeID)
	if !ok {
		return errors.Wrapf(ErrUnknownNode, "node %d", nodeID)
	}

	sample.NodeID = nodeID
	s.history.Push(sample)
	node.UpdatedAt.Store(time.Now())
	if !sample.Valid() {
		node.Log.Warnf("iteration %d sample has non-positive measurement, it is excluded from weighting", sample.Iteration)
		return errors.Wrapf(ErrInvalidSample, "node %d iteration %d", nodeID, sample.Iteration)
	}

	return nil
}

func (s *scheduling) MaybeRebalance(currentIteration int) (Assignment, error) {
	if currentIteration <= 0 || currentIteration%s.config.RebalanceInterval != 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, ErrNoInitialAssignment
	}
	s.lastIteration = currentIteration

	ids := s.nodeManager.IDs()
	caps := s.memoryCaps(ids)

	// Warm-up: until every node has the minimum sample count, the dynamic
	// and hybrid policies behave like the proportional baseline.
	if s.config.Policy == config.PolicyProportional || !s.warmedUp(ids) {
		assignment, err := apportion(ids, s.proportionalWeights(ids), s.globalBatchSize, caps)
		if err != nil {
			return nil, err
		}

		s.applyAssignment(assignment)
		return assignment.Clone(), nil
	}

	// The newest sample of each node forms the cycle the straggler
	// detector and the invalid-sample protocol operate on.
	cycle := make([]history.IterationSample, 0, len(ids))
	for _, id := range ids {
		samples := s.history.Recent(id, 1)
		if len(samples) == 0 {
			cycle = append(cycle, history.IterationSample{NodeID: id})
			continue
		}

		cycle = append(cycle, samples[0])
	}

	var unresponsive error
	frozen := map[int]bool{}
	for i, id := range ids {
		node, _ := s.nodeManager.Load(id)
		if cycle[i].Valid() {
			node.MarkValidCycle()
			continue
		}

		// The node keeps its previous batch size for this cycle.
		frozen[id] = true
		if count := node.MarkInvalidCycle(); count >= s.config.MaxInvalidCycles {
			node.MarkUnresponsive()
			unresponsive = errors.Wrapf(ErrNodeUnresponsive, "node %d excluded for %d consecutive cycles", id, count)
		}
	}

	stragglers := map[int]bool{}
	for _, result := range s.evaluator.Evaluate(cycle) {
		stragglers[result.NodeID] = result.Straggler
		if result.Straggler {
			logger.WithNodeAndIteration(result.NodeID, currentIteration).Warnf("straggler detected, severity %.2f", result.Severity)
		}
	}

	assignment, err := s.rebalance(ids, caps, frozen, stragglers)
	if err != nil {
		return nil, err
	}

	s.applyAssignment(assignment)
	s.stragglers = stragglers
	logger.WithPolicy(s.config.Policy).Infof("iteration %d assignment: %v", currentIteration, assignment)
	return assignment.Clone(), unresponsive
}

// rebalance computes the next assignment with the configured policy. Nodes
// in frozen keep their previous batch size; the remaining capacity is
// apportioned among the others. A flagged straggler holds exactly its
// previous share for the cycle, so a transient slowdown neither gains
// capacity nor collapses the node's share; it regains share once no longer
// flagged.
func (s *scheduling) rebalance(ids []int, caps map[int]int, frozen map[int]bool, stragglers map[int]bool) (Assignment, error) {
	var activeIDs []int
	remaining := s.globalBatchSize
	assignment := Assignment{}
	for _, id := range ids {
		if frozen[id] || stragglers[id] {
			assignment[id] = s.current[id]
			remaining -= s.current[id]
			continue
		}

		activeIDs = append(activeIDs, id)
	}

	// Every node is frozen, keep the previous assignment unchanged.
	if len(activeIDs) == 0 {
		return s.current.Clone(), nil
	}

	apportioned, err := apportion(activeIDs, s.policyWeights(activeIDs), remaining, caps)
	if err != nil {
		return nil, err
	}

	for id, batch := range apportioned {
		assignment[id] = batch
	}

	return assignment, nil
}

// policyWeights dispatches to the configured policy.
func (s *scheduling) policyWeights(ids []int) map[int]float64 {
	switch s.config.Policy {
	case config.PolicyDynamic:
		return s.dynamicWeights(ids)
	case config.PolicyHybrid:
		proportional := s.proportionalWeights(ids)
		dynamic := s.dynamicWeights(ids)
		weights := make(map[int]float64, len(ids))
		for _, id := range ids {
			weights[id] = s.config.HybridMix*proportional[id] + (1-s.config.HybridMix)*dynamic[id]
		}

		return weights
	default:
		return s.proportionalWeights(ids)
	}
}

// proportionalWeights derives weights from static compute scores.
func (s *scheduling) proportionalWeights(ids []int) map[int]float64 {
	var sumScore float64
	for _, id := range ids {
		if node, ok := s.nodeManager.Load(id); ok {
			sumScore += node.Profile.ComputeScore
		}
	}

	weights := make(map[int]float64, len(ids))
	for _, id := range ids {
		node, ok := s.nodeManager.Load(id)
		if !ok || sumScore <= 0 {
			weights[id] = 0
			continue
		}

		weights[id] = node.Profile.ComputeScore / sumScore
	}

	return weights
}

// dynamicWeights derives weights from observed mean throughput, blended
// with the previous weights to damp single-window measurement noise.
func (s *scheduling) dynamicWeights(ids []int) map[int]float64 {
	var sumThroughput float64
	throughputs := make(map[int]float64, len(ids))
	for _, id := range ids {
		if throughput, ok := s.history.MeanThroughput(id); ok {
			throughputs[id] = throughput
			sumThroughput += throughput
		}
	}

	if sumThroughput <= 0 {
		return s.proportionalWeights(ids)
	}

	weights := make(map[int]float64, len(ids))
	for _, id := range ids {
		target := throughputs[id] / sumThroughput
		previous, ok := s.prevWeights[id]
		if !ok {
			previous = target
		}

		weights[id] = s.config.Alpha*target + (1-s.config.Alpha)*previous
	}

	return weights
}

// applyAssignment replaces the current assignment and derives the weight
// vector the next dynamic cycle blends against.
func (s *scheduling) applyAssignment(assignment Assignment) {
	s.current = assignment
	s.prevWeights = map[int]float64{}
	sum := assignment.Sum()
	if sum <= 0 {
		return
	}

	for id, batch := range assignment {
		s.prevWeights[id] = float64(batch) / float64(sum)
	}
}

// warmedUp reports whether every node has the minimum sample count.
func (s *scheduling) warmedUp(ids []int) bool {
	for _, id := range ids {
		if s.history.Len(id) < s.config.MinSamplesPerNode {
			return false
		}
	}

	return true
}

// memoryCaps derives the memory cap of each node.
func (s *scheduling) memoryCaps(ids []int) map[int]int {
	caps := make(map[int]int, len(ids))
	for _, id := range ids {
		if node, ok := s.nodeManager.Load(id); ok {
			caps[id] = node.MemoryCap(s.config.SampleMemoryMB, s.config.MemoryFraction)
		}
	}

	return caps
}

func (s *scheduling) BatchSize(nodeID int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.current[nodeID]
	return batch, ok
}

func (s *scheduling) CurrentAssignment() Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current.Clone()
}

func (s *scheduling) StragglerFlags() map[int]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	flags := make(map[int]bool, len(s.stragglers))
	for id, straggler := range s.stragglers {
		flags[id] = straggler
	}

	return flags
}

func (s *scheduling) ScalingEfficiency() float64 {
	fastest, slowest, ok := s.iterationTimeBounds()
	if !ok || slowest <= 0 {
		return 0
	}

	return fastest / slowest
}

func (s *scheduling) LoadImbalance() float64 {
	fastest, slowest, ok := s.iterationTimeBounds()
	if !ok || slowest <= 0 {
		return 0
	}

	return (slowest - fastest) / slowest
}

// iterationTimeBounds returns the fastest and slowest mean iteration time
// across nodes with measurements.
func (s *scheduling) iterationTimeBounds() (fastest, slowest float64, ok bool) {
	for _, id := range s.nodeManager.IDs() {
		mean, valid := s.history.MeanIterationTime(id)
		if !valid {
			continue
		}

		if !ok {
			fastest, slowest, ok = mean, mean, true
			continue
		}

		if mean < fastest {
			fastest = mean
		}
		if mean > slowest {
			slowest = mean
		}
	}

	return fastest, slowest, ok
}
