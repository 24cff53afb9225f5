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
	"math"
	"sort"
)

// Redistribution after clipping runs until stable or until this cap is hit.
const maxApportionIterations = 8

// apportion converts fractional weights into integer batch sizes over ids,
// summing exactly to total and honoring per-node caps. Units left over by
// flooring go to the largest fractional remainders first; equal remainders
// are broken by lowest node id. Nodes clipped to [1, cap] are fixed and the
// shortfall or excess is redistributed among the remaining nodes.
func apportion(ids []int, weights map[int]float64, total int, caps map[int]int) (Assignment, error) {
	if len(ids) == 0 {
		return nil, ErrNoRegisteredNodes
	}

	// Every node must process at least one sample.
	if total < len(ids) {
		return nil, ErrCapacityInfeasible
	}

	var sumCaps int
	for _, id := range ids {
		sumCaps += caps[id]
	}
	if sumCaps < total {
		return nil, ErrCapacityInfeasible
	}

	result := Assignment{}
	active := append([]int(nil), ids...)
	remaining := total

	for i := 0; i < maxApportionIterations && len(active) > 0; i++ {
		batches := largestRemainder(active, weights, remaining)

		var nextActive []int
		for _, id := range active {
			switch {
			case batches[id] < 1:
				result[id] = 1
				remaining--
			case batches[id] > caps[id]:
				result[id] = caps[id]
				remaining -= caps[id]
			default:
				nextActive = append(nextActive, id)
			}
		}

		// Stable, nothing was clipped.
		if len(nextActive) == len(active) {
			for _, id := range active {
				result[id] = batches[id]
			}
			active = nil
			break
		}

		active = nextActive
	}

	// Iteration cap was hit with nodes still unassigned. Take the current
	// split clamped per node and reconcile the sum below.
	if len(active) > 0 {
		batches := largestRemainder(active, weights, remaining)
		for _, id := range active {
			batch := batches[id]
			if batch < 1 {
				batch = 1
			}
			if batch > caps[id] {
				batch = caps[id]
			}
			result[id] = batch
		}
	}

	// Reconcile so the sum matches total exactly. Feasibility was checked
	// up front, so both loops terminate.
	for sum := result.Sum(); sum != total; {
		if sum < total {
			for _, id := range ids {
				if result[id] < caps[id] {
					result[id]++
					sum++
					break
				}
			}
		} else {
			for _, id := range ids {
				if result[id] > 1 {
					result[id]--
					sum--
					break
				}
			}
		}
	}

	return result, nil
}

// largestRemainder splits total into integers proportional to weights,
// assigning floored shares first and the leftover units to the largest
// fractional remainders, lowest node id winning ties.
func largestRemainder(ids []int, weights map[int]float64, total int) map[int]int {
	batches := make(map[int]int, len(ids))

	var sumWeight float64
	for _, id := range ids {
		if weights[id] > 0 {
			sumWeight += weights[id]
		}
	}

	// Degenerate weights fall back to an equal split.
	if sumWeight <= 0 {
		base := total / len(ids)
		leftover := total % len(ids)
		for i, id := range ids {
			batches[id] = base
			if i < leftover {
				batches[id]++
			}
		}

		return batches
	}

	type remainder struct {
		id   int
		frac float64
	}

	var (
		remainders []remainder
		allocated  int
	)
	for _, id := range ids {
		weight := weights[id]
		if weight < 0 {
			weight = 0
		}

		raw := weight / sumWeight * float64(total)
		floor := int(math.Floor(raw))
		batches[id] = floor
		allocated += floor
		remainders = append(remainders, remainder{id: id, frac: raw - float64(floor)})
	}

	sort.SliceStable(remainders, func(i, j int) bool {
		if remainders[i].frac != remainders[j].frac {
			return remainders[i].frac > remainders[j].frac
		}

		return remainders[i].id < remainders[j].id
	})

	for i := 0; i < total-allocated; i++ {
		batches[remainders[i%len(remainders)].id]++
	}

	return batches
}
