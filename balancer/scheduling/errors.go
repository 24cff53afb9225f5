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
	"github.com/pkg/errors"
)

var (
	// ErrDuplicateNode is returned when a node id is registered twice.
	// Registration errors indicate a caller bug and are fatal.
	ErrDuplicateNode = errors.New("node is already registered")

	// ErrUnknownNode is returned when a sample is reported for an
	// unregistered node, which indicates a coordination bug.
	ErrUnknownNode = errors.New("node is not registered")

	// ErrInvalidSample is returned when a node reports a non-positive
	// throughput or iteration time. The sample is excluded from weight
	// computation for the cycle; the condition is recoverable.
	ErrInvalidSample = errors.New("sample has non-positive throughput or iteration time")

	// ErrNodeUnresponsive is returned after the configured number of
	// consecutive excluded cycles for the same node. The node's batch
	// size stays frozen at its last known value; whether training
	// continues without the node is the caller's decision.
	ErrNodeUnresponsive = errors.New("node is unresponsive")

	// ErrCapacityInfeasible is returned when no valid integer assignment
	// exists for the requested global batch size, either because the sum
	// of memory caps is below it or because it can not give every node
	// at least one sample.
	ErrCapacityInfeasible = errors.New("no feasible assignment for the requested global batch size")

	// ErrNoInitialAssignment is returned when a rebalance is requested
	// before the initial assignment was computed.
	ErrNoInitialAssignment = errors.New("initial assignment has not been computed")

	// ErrNoRegisteredNodes is returned when an assignment is requested
	// with an empty registry.
	ErrNoRegisteredNodes = errors.New("no nodes registered")
)
