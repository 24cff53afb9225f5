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

package profiler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProfiler_Profile(t *testing.T) {
	assert := assert.New(t)
	p := New(3, WithBenchmarkDuration(20*time.Millisecond))

	profile, err := p.Profile(context.Background())
	assert.NoError(err)
	assert.Equal(3, profile.ID)
	assert.NotEmpty(profile.Name)
	assert.Greater(profile.ComputeScore, 0.0)
	assert.Greater(profile.MemoryCapacity, 0.0)
	assert.Greater(profile.Benchmarks["gflops"], 0.0)
	assert.GreaterOrEqual(profile.Benchmarks["logical_cores"], 1.0)
}

func TestProfiler_ReferenceNormalization(t *testing.T) {
	assert := assert.New(t)

	fast := New(0, WithBenchmarkDuration(20*time.Millisecond), WithReferenceGFlops(1))
	slow := New(0, WithBenchmarkDuration(20*time.Millisecond), WithReferenceGFlops(100))

	fastProfile, err := fast.Profile(context.Background())
	assert.NoError(err)
	slowProfile, err := slow.Profile(context.Background())
	assert.NoError(err)

	// Same hardware against a hundredfold reference scores roughly a
	// hundredth. Benchmarks jitter, so only the order is asserted.
	assert.Greater(fastProfile.ComputeScore, slowProfile.ComputeScore)
}
