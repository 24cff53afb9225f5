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
	"testing"

	"github.com/stretchr/testify/assert"
)

func mockSample(nodeID, iteration int, iterationTime, throughput float64) IterationSample {
	return IterationSample{
		NodeID:        nodeID,
		Iteration:     iteration,
		IterationTime: iterationTime,
		BatchSize:     32,
		Throughput:    throughput,
	}
}

func TestHistory_Push(t *testing.T) {
	tests := []struct {
		name       string
		windowSize int
		pushes     int
		expect     func(t *testing.T, h History)
	}{
		{
			name:       "partial window",
			windowSize: 5,
			pushes:     3,
			expect: func(t *testing.T, h History) {
				assert := assert.New(t)
				assert.Equal(3, h.Len(0))
				samples := h.Recent(0, 5)
				assert.Len(samples, 3)
				assert.Equal(0, samples[0].Iteration)
				assert.Equal(2, samples[2].Iteration)
			},
		},
		{
			name:       "full window evicts oldest first",
			windowSize: 5,
			pushes:     8,
			expect: func(t *testing.T, h History) {
				assert := assert.New(t)
				assert.Equal(5, h.Len(0))
				samples := h.Recent(0, 5)
				assert.Equal(3, samples[0].Iteration)
				assert.Equal(7, samples[4].Iteration)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := New(tc.windowSize)
			for i := 0; i < tc.pushes; i++ {
				h.Push(mockSample(0, i, 0.1, 320))
			}
			tc.expect(t, h)
		})
	}
}

func TestHistory_Recent(t *testing.T) {
	assert := assert.New(t)
	h := New(10)

	assert.Nil(h.Recent(0, 5))

	for i := 0; i < 4; i++ {
		h.Push(mockSample(0, i, 0.1, 320))
	}

	samples := h.Recent(0, 2)
	assert.Len(samples, 2)
	assert.Equal(2, samples[0].Iteration)
	assert.Equal(3, samples[1].Iteration)
}

func TestHistory_MeanThroughput(t *testing.T) {
	assert := assert.New(t)
	h := New(10)

	_, ok := h.MeanThroughput(0)
	assert.False(ok)

	h.Push(mockSample(0, 0, 0.1, 300))
	h.Push(mockSample(0, 1, 0.1, 100))

	// Invalid samples are excluded from the aggregate.
	h.Push(mockSample(0, 2, 0.1, -1))

	mean, ok := h.MeanThroughput(0)
	assert.True(ok)
	assert.Equal(200.0, mean)
}

func TestHistory_MeanIterationTime(t *testing.T) {
	assert := assert.New(t)
	h := New(10)

	h.Push(mockSample(1, 0, 0.1, 320))
	h.Push(mockSample(1, 1, 0.3, 320))

	mean, ok := h.MeanIterationTime(1)
	assert.True(ok)
	assert.InDelta(0.2, mean, 1e-9)

	_, ok = h.MeanIterationTime(2)
	assert.False(ok)
}

func TestIterationSample_Valid(t *testing.T) {
	assert := assert.New(t)

	assert.True(mockSample(0, 0, 0.1, 320).Valid())
	assert.False(mockSample(0, 0, 0, 320).Valid())
	assert.False(mockSample(0, 0, 0.1, 0).Valid())
	assert.False(mockSample(0, 0, 0.1, -5).Valid())
}
