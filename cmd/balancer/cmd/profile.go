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

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/profiler"
	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/resource"
)

var profileFlags = struct {
	nodeID            int
	output            string
	referenceGFlops   float64
	benchmarkDuration time.Duration
}{}

var profileCmd = &cobra.Command{
	Use:          "profile",
	Short:        "benchmark the local node and write its capability profile",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initRun(); err != nil {
			return err
		}

		return runProfile(cmd.Context())
	},
}

func init() {
	flagSet := profileCmd.Flags()
	flagSet.IntVar(&profileFlags.nodeID, "node-id", 0, "the node id to record in the profile")
	flagSet.StringVar(&profileFlags.output, "output", "profiles.json", "the profile file to create or extend")
	flagSet.Float64Var(&profileFlags.referenceGFlops, "reference-gflops", 10, "the GFLOPS figure that maps to compute score 1.0")
	flagSet.DurationVar(&profileFlags.benchmarkDuration, "benchmark-duration", 500*time.Millisecond, "how long the compute benchmark runs")
}

func runProfile(ctx context.Context) error {
	p := profiler.New(profileFlags.nodeID,
		profiler.WithReferenceGFlops(profileFlags.referenceGFlops),
		profiler.WithBenchmarkDuration(profileFlags.benchmarkDuration),
	)

	profile, err := p.Profile(ctx)
	if err != nil {
		return errors.Wrap(err, "profile node")
	}

	// Extend an existing profile file in place, replacing an entry with
	// the same node id.
	var profiles []resource.NodeProfile
	if _, err := os.Stat(profileFlags.output); err == nil {
		existing, err := resource.LoadProfiles(profileFlags.output)
		if err != nil {
			return errors.Wrap(err, "load existing profiles")
		}

		for _, p := range existing {
			if p.ID != profile.ID {
				profiles = append(profiles, p)
			}
		}
	}
	profiles = append(profiles, profile)

	if err := resource.WriteProfiles(profileFlags.output, profiles); err != nil {
		return errors.Wrap(err, "write profiles")
	}

	fmt.Printf("node %d: score %.2f, memory %.0fMB, bandwidth %.1fGbps, written to %s\n",
		profile.ID, profile.ComputeScore, profile.MemoryCapacity, profile.BandwidthGbps, profileFlags.output)
	return nil
}
