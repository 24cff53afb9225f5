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

package storage

// Record is one per-node training measurement persisted after a rebalance
// cycle, flat so it serializes to both JSON lines and CSV.
type Record struct {
	// Iteration is the training iteration of the measurement.
	Iteration int `json:"iteration" csv:"iteration"`

	// NodeID is the reporting node.
	NodeID int `json:"node_id" csv:"node_id"`

	// CreatedAt is the record creation time in unix nanoseconds.
	CreatedAt int64 `json:"created_at" csv:"created_at"`

	// BatchSize is the batch size the node used for the iteration.
	BatchSize int `json:"batch_size" csv:"batch_size"`

	// IterationTime is the wall time of the iteration in seconds.
	IterationTime float64 `json:"iteration_time" csv:"iteration_time"`

	// Throughput is the measured samples per second.
	Throughput float64 `json:"throughput" csv:"throughput"`

	// Loss is the training loss reported for the iteration.
	Loss float64 `json:"loss" csv:"loss"`

	// DataLoadTime is the time spent loading data in seconds.
	DataLoadTime float64 `json:"data_load_time" csv:"data_load_time"`

	// ForwardTime is the time spent in the forward pass in seconds.
	ForwardTime float64 `json:"forward_time" csv:"forward_time"`

	// BackwardTime is the time spent in the backward pass in seconds.
	BackwardTime float64 `json:"backward_time" csv:"backward_time"`

	// OptimizerTime is the time spent in the optimizer step in seconds.
	OptimizerTime float64 `json:"optimizer_time" csv:"optimizer_time"`

	// Straggler reports whether the node was flagged as a straggler in
	// the cycle the record belongs to.
	Straggler bool `json:"straggler" csv:"straggler"`
}
