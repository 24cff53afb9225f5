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

package history

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/montanaflynn/stats"
)

// PhaseBreakdown is the per-phase time breakdown of one training step.
// The sum of all phases is at most the iteration time.
type PhaseBreakdown struct {
	// DataLoadTime is the data loading time in seconds.
	DataLoadTime float64 `json:"data_load_time"`

	// ForwardTime is the forward pass time in seconds.
	ForwardTime float64 `json:"forward_time"`

	// BackwardTime is the backward pass time in seconds.
	BackwardTime float64 `json:"backward_time"`

	// OptimizerTime is the optimizer step time in seconds.
	OptimizerTime float64 `json:"optimizer_time"`
}

// IterationSample is the measurement one node reports after completing one
// training step. Samples are never mutated after creation.
type IterationSample struct {
	// NodeID is the reporting node id.
	NodeID int `json:"node_id"`

	// Iteration is the iteration index, monotonically increasing per node.
	Iteration int `json:"iteration"`

	// IterationTime is the wall-clock seconds of the full step.
	IterationTime float64 `json:"iteration_time"`

	// BatchSize is the batch size the node actually processed.
	BatchSize int `json:"batch_size"`

	// Throughput is the samples processed per second.
	Throughput float64 `json:"throughput"`

	// Loss is the training loss of the step, recorded for diagnostics.
	Loss float64 `json:"loss"`

	// Phases is the per-phase time breakdown.
	Phases PhaseBreakdown `json:"phases"`
}

// Valid reports whether the sample can participate in weight computation.
func (s IterationSample) Valid() bool {
	return s.IterationTime > 0 && s.Throughput > 0
}

// History is the bounded per-node rolling window of iteration samples.
// It is owned exclusively by the load balancer.
type History interface {
	// Push appends a sample to the node's window, evicting the oldest
	// sample when the window is full. O(1) amortized.
	Push(sample IterationSample)

	// Recent returns up to the last n samples of the node in arrival
	// order. Callers must handle partial windows during warm-up.
	Recent(nodeID int, n int) []IterationSample

	// Len returns the number of samples currently held for the node.
	Len(nodeID int) int

	// MeanThroughput returns the mean throughput over the node's window.
	// The second return value is false when the window is empty.
	MeanThroughput(nodeID int) (float64, bool)

	// MeanIterationTime returns the mean iteration time over the node's
	// window. The second return value is false when the window is empty.
	MeanIterationTime(nodeID int) (float64, bool)
}

type history struct {
	mu         sync.RWMutex
	windowSize int
	windows    map[int]*deque.Deque[IterationSample]
}

// New returns a new history store with the given per-node window capacity.
func New(windowSize int) History {
	return &history{
		windowSize: windowSize,
		windows:    map[int]*deque.Deque[IterationSample]{},
	}
}

func (h *history) Push(sample IterationSample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	window, ok := h.windows[sample.NodeID]
	if !ok {
		window = deque.New[IterationSample](h.windowSize)
		h.windows[sample.NodeID] = window
	}

	if window.Len() >= h.windowSize {
		window.PopFront()
	}
	window.PushBack(sample)
}

func (h *history) Recent(nodeID int, n int) []IterationSample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	window, ok := h.windows[nodeID]
	if !ok {
		return nil
	}

	if n > window.Len() {
		n = window.Len()
	}

	samples := make([]IterationSample, 0, n)
	for i := window.Len() - n; i < window.Len(); i++ {
		samples = append(samples, window.At(i))
	}

	return samples
}

func (h *history) Len(nodeID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	window, ok := h.windows[nodeID]
	if !ok {
		return 0
	}

	return window.Len()
}

func (h *history) MeanThroughput(nodeID int) (float64, bool) {
	return h.mean(nodeID, func(sample IterationSample) float64 {
		return sample.Throughput
	})
}

func (h *history) MeanIterationTime(nodeID int) (float64, bool) {
	return h.mean(nodeID, func(sample IterationSample) float64 {
		return sample.IterationTime
	})
}

func (h *history) mean(nodeID int, value func(IterationSample) float64) (float64, bool) {
	var values []float64
	for _, sample := range h.Recent(nodeID, h.windowSize) {
		if !sample.Valid() {
			continue
		}

		values = append(values, value(sample))
	}

	if len(values) == 0 {
		return 0, false
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return 0, false
	}

	return mean, true
}
