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
	"github.com/pkg/errors"
)

// DefaultConfigFilePath is the default path of the balancer config file.
const DefaultConfigFilePath = "/etc/balancer/balancer.yaml"

type Config struct {
	// Console shows log on console.
	Console bool `yaml:"console" mapstructure:"console"`

	// Verbose prints debug level log.
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`

	// LogDir is the directory to store log files.
	LogDir string `yaml:"logDir" mapstructure:"logDir"`

	// Balancer configuration.
	Balancer BalancerConfig `yaml:"balancer" mapstructure:"balancer"`

	// Storage configuration.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Metrics configuration.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

type BalancerConfig struct {
	// Policy is the batch size policy, one of proportional, dynamic and hybrid.
	Policy string `yaml:"policy" mapstructure:"policy"`

	// GlobalBatchSize is the total number of samples processed across all
	// nodes in one synchronized training step.
	GlobalBatchSize int `yaml:"globalBatchSize" mapstructure:"globalBatchSize"`

	// RebalanceInterval is the number of iterations between two rebalance
	// cycles.
	RebalanceInterval int `yaml:"rebalanceInterval" mapstructure:"rebalanceInterval"`

	// WindowSize is the capacity of the per-node rolling window of
	// iteration samples.
	WindowSize int `yaml:"windowSize" mapstructure:"windowSize"`

	// MinSamplesPerNode is the number of samples every node must have
	// recorded before the dynamic and hybrid policies take effect.
	MinSamplesPerNode int `yaml:"minSamplesPerNode" mapstructure:"minSamplesPerNode"`

	// Alpha is the blend factor between the observed throughput share and
	// the previous assignment weight, in [0, 1].
	Alpha float64 `yaml:"alpha" mapstructure:"alpha"`

	// HybridMix is the mix ratio between the hardware-based weight and the
	// performance-based weight used by the hybrid policy, in [0, 1].
	HybridMix float64 `yaml:"hybridMix" mapstructure:"hybridMix"`

	// StragglerK is the MAD multiplier of the straggler threshold.
	StragglerK float64 `yaml:"stragglerK" mapstructure:"stragglerK"`

	// MaxInvalidCycles is the number of consecutive invalid cycles after
	// which a node is reported unresponsive.
	MaxInvalidCycles int `yaml:"maxInvalidCycles" mapstructure:"maxInvalidCycles"`

	// SampleMemoryMB is the estimated memory footprint of one training
	// sample, used to derive the maximum feasible batch size per node.
	SampleMemoryMB float64 `yaml:"sampleMemoryMB" mapstructure:"sampleMemoryMB"`

	// MemoryFraction is the fraction of a node's memory capacity usable
	// for batch data.
	MemoryFraction float64 `yaml:"memoryFraction" mapstructure:"memoryFraction"`
}

type StorageConfig struct {
	// BaseDir is the directory to store iteration records.
	BaseDir string `yaml:"baseDir" mapstructure:"baseDir"`

	// MaxSize is the maximum size in megabytes of one record file.
	MaxSize int `yaml:"maxSize" mapstructure:"maxSize"`

	// MaxBackups is the maximum number of rotated record files to retain.
	MaxBackups int `yaml:"maxBackups" mapstructure:"maxBackups"`
}

type MetricsConfig struct {
	// Enable metrics service.
	Enable bool `yaml:"enable" mapstructure:"enable"`

	// Addr is the metrics service listening address.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

const (
	// PolicyProportional distributes batch sizes by static compute scores.
	PolicyProportional = "proportional"

	// PolicyDynamic distributes batch sizes by observed throughput.
	PolicyDynamic = "dynamic"

	// PolicyHybrid averages the proportional and dynamic weights.
	PolicyHybrid = "hybrid"
)

const (
	// DefaultRebalanceInterval is the default number of iterations between
	// rebalance cycles.
	DefaultRebalanceInterval = 10

	// DefaultWindowSize is the default per-node sample window capacity.
	DefaultWindowSize = 20

	// DefaultMinSamplesPerNode is the default warm-up sample count.
	DefaultMinSamplesPerNode = 3

	// DefaultAlpha is the default throughput blend factor.
	DefaultAlpha = 0.3

	// DefaultHybridMix is the default hybrid mix ratio.
	DefaultHybridMix = 0.5

	// DefaultStragglerK is the default MAD multiplier.
	DefaultStragglerK = 2.5

	// DefaultMaxInvalidCycles is the default unresponsive threshold.
	DefaultMaxInvalidCycles = 3

	// DefaultSampleMemoryMB is the default estimated per-sample memory
	// footprint in megabytes.
	DefaultSampleMemoryMB = 64

	// DefaultMemoryFraction is the default usable fraction of node memory.
	DefaultMemoryFraction = 0.9

	// DefaultGlobalBatchSize is the default global batch size.
	DefaultGlobalBatchSize = 128
)

// New returns a config with default values.
func New() *Config {
	return &Config{
		LogDir: "logs",
		Balancer: BalancerConfig{
			Policy:            PolicyHybrid,
			GlobalBatchSize:   DefaultGlobalBatchSize,
			RebalanceInterval: DefaultRebalanceInterval,
			WindowSize:        DefaultWindowSize,
			MinSamplesPerNode: DefaultMinSamplesPerNode,
			Alpha:             DefaultAlpha,
			HybridMix:         DefaultHybridMix,
			StragglerK:        DefaultStragglerK,
			MaxInvalidCycles:  DefaultMaxInvalidCycles,
			SampleMemoryMB:    DefaultSampleMemoryMB,
			MemoryFraction:    DefaultMemoryFraction,
		},
		Storage: StorageConfig{
			BaseDir:    "records",
			MaxSize:    100,
			MaxBackups: 10,
		},
		Metrics: MetricsConfig{
			Enable: false,
			Addr:   ":8000",
		},
	}
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	switch c.Balancer.Policy {
	case PolicyProportional, PolicyDynamic, PolicyHybrid:
	default:
		return errors.Errorf("unknown policy %q", c.Balancer.Policy)
	}

	if c.Balancer.GlobalBatchSize <= 0 {
		return errors.New("globalBatchSize requires a positive value")
	}

	if c.Balancer.RebalanceInterval <= 0 {
		return errors.New("rebalanceInterval requires a positive value")
	}

	if c.Balancer.WindowSize <= 0 {
		return errors.New("windowSize requires a positive value")
	}

	if c.Balancer.MinSamplesPerNode <= 0 {
		return errors.New("minSamplesPerNode requires a positive value")
	}

	if c.Balancer.MinSamplesPerNode > c.Balancer.WindowSize {
		return errors.New("minSamplesPerNode can not exceed windowSize")
	}

	if c.Balancer.Alpha < 0 || c.Balancer.Alpha > 1 {
		return errors.New("alpha requires a value in [0, 1]")
	}

	if c.Balancer.HybridMix < 0 || c.Balancer.HybridMix > 1 {
		return errors.New("hybridMix requires a value in [0, 1]")
	}

	if c.Balancer.StragglerK <= 0 {
		return errors.New("stragglerK requires a positive value")
	}

	if c.Balancer.MaxInvalidCycles <= 0 {
		return errors.New("maxInvalidCycles requires a positive value")
	}

	if c.Balancer.SampleMemoryMB <= 0 {
		return errors.New("sampleMemoryMB requires a positive value")
	}

	if c.Balancer.MemoryFraction <= 0 || c.Balancer.MemoryFraction > 1 {
		return errors.New("memoryFraction requires a value in (0, 1]")
	}

	if c.Metrics.Enable && c.Metrics.Addr == "" {
		return errors.New("metrics requires parameter addr")
	}

	return nil
}
