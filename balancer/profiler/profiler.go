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

// Package profiler discovers the local node's hardware capabilities and
// produces the capability profile the balancer seeds its initial assignment
// from. Discovery runs once before training, never on the iteration path.
package profiler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/resource"
	logger "github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/internal/dflog"
)

const (
	// defaultBenchmarkDuration is how long the compute benchmark runs.
	defaultBenchmarkDuration = 500 * time.Millisecond

	// defaultReferenceGFlops normalizes the compute score so a reference
	// node scores 1.0.
	defaultReferenceGFlops = 10.0

	// bandwidthBufferSize is the working set of the memory bandwidth
	// benchmark, large enough to defeat the last level cache.
	bandwidthBufferSize = 64 * 1024 * 1024
)

// Profiler measures the local node and returns its capability profile.
type Profiler interface {
	Profile(ctx context.Context) (resource.NodeProfile, error)
}

type profiler struct {
	nodeID            int
	benchmarkDuration time.Duration
	referenceGFlops   float64
}

// Option is a functional option for configuring the Profiler.
type Option func(p *profiler)

// WithBenchmarkDuration sets how long the compute benchmark runs.
func WithBenchmarkDuration(d time.Duration) Option {
	return func(p *profiler) {
		p.benchmarkDuration = d
	}
}

// WithReferenceGFlops sets the GFLOPS figure that maps to compute score 1.0.
func WithReferenceGFlops(gflops float64) Option {
	return func(p *profiler) {
		p.referenceGFlops = gflops
	}
}

// New returns a Profiler for the given node id.
func New(nodeID int, options ...Option) Profiler {
	p := &profiler{
		nodeID:            nodeID,
		benchmarkDuration: defaultBenchmarkDuration,
		referenceGFlops:   defaultReferenceGFlops,
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

func (p *profiler) Profile(ctx context.Context) (resource.NodeProfile, error) {
	virtualMemory, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return resource.NodeProfile{}, errors.Wrap(err, "read memory info")
	}

	logicalCount, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return resource.NodeProfile{}, errors.Wrap(err, "read cpu count")
	}

	name := fmt.Sprintf("node-%d", p.nodeID)
	if info, err := host.InfoWithContext(ctx); err == nil {
		name = info.Hostname
	}

	var mhz float64
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		mhz = infos[0].Mhz
	}

	gflops := p.computeBenchmark()
	bandwidth := p.bandwidthBenchmark()

	profile := resource.NodeProfile{
		ID:             p.nodeID,
		Name:           name,
		ComputeScore:   gflops / p.referenceGFlops,
		MemoryCapacity: float64(virtualMemory.Total) / (1024 * 1024),
		BandwidthGbps:  bandwidth,
		Benchmarks: map[string]float64{
			"gflops":        gflops,
			"logical_cores": float64(logicalCount),
			"cpu_mhz":       mhz,
		},
	}

	logger.WithNode(p.nodeID).Infof("profiled %s: score %.2f, memory %.0fMB, bandwidth %.1fGbps",
		profile.Name, profile.ComputeScore, profile.MemoryCapacity, profile.BandwidthGbps)
	return profile, nil
}

// computeBenchmark runs fused multiply-adds for the configured duration and
// returns the measured GFLOPS.
func (p *profiler) computeBenchmark() float64 {
	const opsPerPass = 1 << 20

	var (
		acc        = 1.0
		x          = 1.0000001
		operations float64
	)

	start := time.Now()
	deadline := start.Add(p.benchmarkDuration)
	for time.Now().Before(deadline) {
		for i := 0; i < opsPerPass; i++ {
			acc = acc*x + 1e-12
		}
		operations += 2 * opsPerPass
	}
	elapsed := time.Since(start).Seconds()

	// Keep acc observable so the loop is not eliminated.
	if acc == 0 {
		return 0
	}
	if elapsed <= 0 {
		return 0
	}

	return operations / elapsed / 1e9
}

// bandwidthBenchmark measures a large sequential copy and returns gigabits
// per second.
func (p *profiler) bandwidthBenchmark() float64 {
	src := make([]byte, bandwidthBufferSize)
	dst := make([]byte, bandwidthBufferSize)

	start := time.Now()
	passes := 4
	for i := 0; i < passes; i++ {
		copy(dst, src)
	}
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		return 0
	}

	bytesMoved := float64(passes) * bandwidthBufferSize
	return bytesMoved * 8 / elapsed / 1e9
}
