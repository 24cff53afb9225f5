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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApportion(t *testing.T) {
	unlimited := func(ids []int) map[int]int {
		caps := map[int]int{}
		for _, id := range ids {
			caps[id] = 1 << 20
		}

		return caps
	}

	tests := []struct {
		name    string
		ids     []int
		weights map[int]float64
		total   int
		caps    map[int]int
		expect  func(t *testing.T, assignment Assignment, err error)
	}{
		{
			name:    "2:1 weights split 30 into 20 and 10",
			ids:     []int{0, 1},
			weights: map[int]float64{0: 2.0, 1: 1.0},
			total:   30,
			caps:    unlimited([]int{0, 1}),
			expect: func(t *testing.T, assignment Assignment, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(Assignment{0: 20, 1: 10}, assignment)
			},
		},
		{
			name:    "largest remainder wins the leftover unit",
			ids:     []int{0, 1, 2},
			weights: map[int]float64{0: 1, 1: 1, 2: 1.9},
			total:   10,
			caps:    unlimited([]int{0, 1, 2}),
			expect: func(t *testing.T, assignment Assignment, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				// Raw shares are 2.56, 2.56, 4.87: floors allocate 8,
				// the two leftover units go to 2 (0.87) and then 0
				// (0.56, tie with 1 broken by lowest id).
				assert.Equal(Assignment{0: 3, 1: 2, 2: 5}, assignment)
				assert.Equal(10, assignment.Sum())
			},
		},
		{
			name:    "equal remainders break ties by lowest node id",
			ids:     []int{3, 1, 2},
			weights: map[int]float64{1: 1, 2: 1, 3: 1},
			total:   10,
			caps:    unlimited([]int{1, 2, 3}),
			expect: func(t *testing.T, assignment Assignment, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(Assignment{1: 4, 2: 3, 3: 3}, assignment)
			},
		},
		{
			name:    "cap clips and redistributes to the others",
			ids:     []int{0, 1, 2},
			weights: map[int]float64{0: 2, 1: 1, 2: 1},
			total:   40,
			caps:    map[int]int{0: 8, 1: 100, 2: 100},
			expect: func(t *testing.T, assignment Assignment, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(8, assignment[0])
				assert.Equal(16, assignment[1])
				assert.Equal(16, assignment[2])
				assert.Equal(40, assignment.Sum())
			},
		},
		{
			name:    "zero weight node still receives one sample",
			ids:     []int{0, 1},
			weights: map[int]float64{0: 1, 1: 0},
			total:   10,
			caps:    unlimited([]int{0, 1}),
			expect: func(t *testing.T, assignment Assignment, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(Assignment{0: 9, 1: 1}, assignment)
			},
		},
		{
			name:    "all-zero weights fall back to an equal split",
			ids:     []int{0, 1, 2},
			weights: map[int]float64{},
			total:   10,
			caps:    unlimited([]int{0, 1, 2}),
			expect: func(t *testing.T, assignment Assignment, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(Assignment{0: 4, 1: 3, 2: 3}, assignment)
			},
		},
		{
			name:    "sum of caps below total is infeasible",
			ids:     []int{0, 1},
			weights: map[int]float64{0: 1, 1: 1},
			total:   30,
			caps:    map[int]int{0: 10, 1: 10},
			expect: func(t *testing.T, assignment Assignment, err error) {
				assert := assert.New(t)
				assert.ErrorIs(err, ErrCapacityInfeasible)
			},
		},
		{
			name:    "total below node count is infeasible",
			ids:     []int{0, 1, 2},
			weights: map[int]float64{0: 1, 1: 1, 2: 1},
			total:   2,
			caps:    unlimited([]int{0, 1, 2}),
			expect: func(t *testing.T, assignment Assignment, err error) {
				assert := assert.New(t)
				assert.ErrorIs(err, ErrCapacityInfeasible)
			},
		},
		{
			name:    "no nodes",
			ids:     nil,
			weights: map[int]float64{},
			total:   10,
			caps:    map[int]int{},
			expect: func(t *testing.T, assignment Assignment, err error) {
				assert := assert.New(t)
				assert.ErrorIs(err, ErrNoRegisteredNodes)
			},
		},
		{
			name:    "tight caps remain exact",
			ids:     []int{0, 1, 2},
			weights: map[int]float64{0: 10, 1: 1, 2: 1},
			total:   12,
			caps:    map[int]int{0: 4, 1: 4, 2: 4},
			expect: func(t *testing.T, assignment Assignment, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(Assignment{0: 4, 1: 4, 2: 4}, assignment)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assignment, err := apportion(tc.ids, tc.weights, tc.total, tc.caps)
			tc.expect(t, assignment, err)
		})
	}
}
