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

// Assignment maps a node id to the integer batch size the node should use.
// Every registered node has exactly one entry and the values sum to the
// global batch size.
type Assignment map[int]int

// Sum returns the total batch size of the assignment.
func (a Assignment) Sum() int {
	var sum int
	for _, batch := range a {
		sum += batch
	}

	return sum
}

// Clone returns a copy of the assignment.
func (a Assignment) Clone() Assignment {
	clone := make(Assignment, len(a))
	for id, batch := range a {
		clone[id] = batch
	}

	return clone
}
