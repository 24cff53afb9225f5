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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_New(t *testing.T) {
	assert := assert.New(t)
	cfg := New()

	assert.Equal(PolicyHybrid, cfg.Balancer.Policy)
	assert.Equal(DefaultGlobalBatchSize, cfg.Balancer.GlobalBatchSize)
	assert.Equal(DefaultRebalanceInterval, cfg.Balancer.RebalanceInterval)
	assert.Equal(DefaultWindowSize, cfg.Balancer.WindowSize)
	assert.Equal(DefaultMinSamplesPerNode, cfg.Balancer.MinSamplesPerNode)
	assert.Equal(DefaultAlpha, cfg.Balancer.Alpha)
	assert.Equal(DefaultStragglerK, cfg.Balancer.StragglerK)
	assert.NoError(cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mock   func(cfg *Config)
		expect func(t *testing.T, err error)
	}{
		{
			name: "valid default config",
			mock: func(cfg *Config) {},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.NoError(err)
			},
		},
		{
			name: "unknown policy",
			mock: func(cfg *Config) {
				cfg.Balancer.Policy = "fastest"
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "unknown policy \"fastest\"")
			},
		},
		{
			name: "non-positive global batch size",
			mock: func(cfg *Config) {
				cfg.Balancer.GlobalBatchSize = 0
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "globalBatchSize requires a positive value")
			},
		},
		{
			name: "non-positive rebalance interval",
			mock: func(cfg *Config) {
				cfg.Balancer.RebalanceInterval = -1
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "rebalanceInterval requires a positive value")
			},
		},
		{
			name: "warm-up exceeds window",
			mock: func(cfg *Config) {
				cfg.Balancer.WindowSize = 5
				cfg.Balancer.MinSamplesPerNode = 6
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "minSamplesPerNode can not exceed windowSize")
			},
		},
		{
			name: "alpha out of range",
			mock: func(cfg *Config) {
				cfg.Balancer.Alpha = 1.5
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "alpha requires a value in [0, 1]")
			},
		},
		{
			name: "hybrid mix out of range",
			mock: func(cfg *Config) {
				cfg.Balancer.HybridMix = -0.1
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "hybridMix requires a value in [0, 1]")
			},
		},
		{
			name: "non-positive straggler threshold",
			mock: func(cfg *Config) {
				cfg.Balancer.StragglerK = 0
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "stragglerK requires a positive value")
			},
		},
		{
			name: "memory fraction out of range",
			mock: func(cfg *Config) {
				cfg.Balancer.MemoryFraction = 0
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "memoryFraction requires a value in (0, 1]")
			},
		},
		{
			name: "metrics enabled without addr",
			mock: func(cfg *Config) {
				cfg.Metrics.Enable = true
				cfg.Metrics.Addr = ""
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "metrics requires parameter addr")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := New()
			tc.mock(cfg)
			tc.expect(t, cfg.Validate())
		})
	}
}
