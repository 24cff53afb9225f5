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
	"net/http"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/gather"
	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/history"
	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/metrics"
	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/resource"
	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/scheduling"
	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/storage"
	logger "github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/internal/dflog"
)

var simulateFlags = struct {
	nodes             int
	iterations        int
	profiles          string
	exportCSV         string
	snapshot          string
	stragglerNode     int
	stragglerAfter    int
	stragglerDuration int
	dropoutNode       int
	dropoutAfter      int
}{}

var simulateCmd = &cobra.Command{
	Use:          "simulate",
	Short:        "run the balancer against synthetic training replicas",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initRun(); err != nil {
			return err
		}

		return runSimulation(cmd.Context())
	},
}

func init() {
	flagSet := simulateCmd.Flags()
	flagSet.IntVar(&simulateFlags.nodes, "nodes", 4, "number of synthetic nodes when no profile file is given")
	flagSet.IntVar(&simulateFlags.iterations, "iterations", 100, "number of training iterations to simulate")
	flagSet.StringVar(&simulateFlags.profiles, "profiles", "", "a node profile file produced by the profile command")
	flagSet.StringVar(&simulateFlags.exportCSV, "export-csv", "", "write the recorded iteration history to this csv file")
	flagSet.StringVar(&simulateFlags.snapshot, "snapshot", "", "write the final balancer state to this file")
	flagSet.IntVar(&simulateFlags.stragglerNode, "straggler-node", -1, "node to slow down mid-run")
	flagSet.IntVar(&simulateFlags.stragglerAfter, "straggler-after", 50, "iteration after which the straggler slows down")
	flagSet.IntVar(&simulateFlags.stragglerDuration, "straggler-duration", 20, "number of iterations the slowdown lasts")
	flagSet.IntVar(&simulateFlags.dropoutNode, "dropout-node", -1, "node that stops reporting valid samples mid-run")
	flagSet.IntVar(&simulateFlags.dropoutAfter, "dropout-after", 70, "iteration after which the dropout node fails")
}

// replica is one simulated training process: its own balancer instance fed
// the gathered samples, so every replica derives the assignment locally.
type replica struct {
	nodeID     int
	leader     bool
	speed      float64
	scheduling scheduling.Scheduling
	gatherer   gather.Gatherer
}

func runSimulation(ctx context.Context) error {
	profiles, err := simulationProfiles()
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.Storage.BaseDir,
		storage.WithMaxSize(uint(cfg.Storage.MaxSize)),
		storage.WithMaxBackups(uint(cfg.Storage.MaxBackups)),
	)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enable {
		svr := metrics.New(cfg.Metrics)
		go func() {
			if err := svr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server exited: %s", err.Error())
			}
		}()
		defer svr.Shutdown(context.Background()) //nolint:errcheck
	}

	nodeIDs := make([]int, 0, len(profiles))
	for _, profile := range profiles {
		nodeIDs = append(nodeIDs, profile.ID)
	}
	gatherers := gather.NewLocalGroup(nodeIDs)

	replicas := make([]*replica, 0, len(profiles))
	for i, profile := range profiles {
		s := scheduling.New(cfg.Balancer)
		for _, p := range profiles {
			if err := s.RegisterNode(p); err != nil {
				return err
			}
		}

		if _, err := s.InitialAssignment(cfg.Balancer.GlobalBatchSize); err != nil {
			return err
		}

		replicas = append(replicas, &replica{
			nodeID:     profile.ID,
			leader:     i == 0,
			speed:      profile.ComputeScore * 100,
			scheduling: s,
			gatherer:   gatherers[i],
		})
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		runErr error
	)
	for _, r := range replicas {
		wg.Add(1)
		go func(r *replica) {
			defer wg.Done()
			if err := r.run(ctx, store); err != nil {
				mu.Lock()
				if runErr == nil {
					runErr = err
				}
				mu.Unlock()
			}
		}(r)
	}
	wg.Wait()
	if runErr != nil {
		return runErr
	}

	// Replicas computed independently: identical assignments confirm the
	// computation is deterministic over the gathered samples.
	reference := replicas[0].scheduling.CurrentAssignment()
	for _, r := range replicas[1:] {
		assignment := r.scheduling.CurrentAssignment()
		for id, batch := range reference {
			if assignment[id] != batch {
				return errors.Errorf("replica %d diverged: node %d has batch %d, expected %d",
					r.nodeID, id, assignment[id], batch)
			}
		}
	}

	return report(replicas[0], store)
}

// run drives one replica through the simulated training loop.
func (r *replica) run(ctx context.Context, store storage.Storage) error {
	leader := r.leader

	for iteration := 1; iteration <= simulateFlags.iterations; iteration++ {
		batch, ok := r.scheduling.BatchSize(r.nodeID)
		if !ok {
			return errors.Errorf("node %d has no batch size", r.nodeID)
		}

		local := r.measure(iteration, batch)
		samples, err := r.gatherer.AllGather(ctx, local)
		if err != nil {
			return err
		}

		for _, sample := range samples {
			if err := r.scheduling.RecordSample(sample.NodeID, sample); err != nil {
				if errors.Is(err, scheduling.ErrInvalidSample) {
					if leader {
						metrics.InvalidSampleCount.Inc()
					}
					continue
				}

				return err
			}
		}

		assignment, err := r.scheduling.MaybeRebalance(iteration)
		if err != nil && !errors.Is(err, scheduling.ErrNodeUnresponsive) {
			return err
		}

		if !leader {
			continue
		}

		if err != nil {
			logger.WithNodeAndIteration(r.nodeID, iteration).Warnf("rebalance: %s", err.Error())
			metrics.UnresponsiveNodeCount.Inc()
		}

		flags := r.scheduling.StragglerFlags()
		for _, sample := range samples {
			if err := store.Create(storage.Record{
				Iteration:     sample.Iteration,
				NodeID:        sample.NodeID,
				CreatedAt:     int64(iteration),
				BatchSize:     sample.BatchSize,
				IterationTime: sample.IterationTime,
				Throughput:    sample.Throughput,
				Loss:          sample.Loss,
				DataLoadTime:  sample.Phases.DataLoadTime,
				ForwardTime:   sample.Phases.ForwardTime,
				BackwardTime:  sample.Phases.BackwardTime,
				OptimizerTime: sample.Phases.OptimizerTime,
				Straggler:     flags[sample.NodeID],
			}); err != nil {
				return err
			}
		}

		if assignment != nil {
			metrics.RebalanceCount.WithLabelValues(cfg.Balancer.Policy).Inc()
			for id, batch := range assignment {
				metrics.AssignedBatchSizeGauge.WithLabelValues(fmt.Sprint(id)).Set(float64(batch))
			}
			for id, straggler := range flags {
				if straggler {
					logger.WithNodeAndIteration(id, iteration).Infof("straggler flagged")
					metrics.StragglerCount.Inc()
				}
			}

			metrics.ScalingEfficiencyGauge.Set(r.scheduling.ScalingEfficiency())
			metrics.LoadImbalanceGauge.Set(r.scheduling.LoadImbalance())
		}
	}

	return nil
}

// measure produces the synthetic sample of one iteration. A straggler's
// speed drops eightfold during the configured window; a dropout node reports
// unusable measurements from its failure iteration on.
func (r *replica) measure(iteration, batch int) history.IterationSample {
	if r.nodeID == simulateFlags.dropoutNode && iteration > simulateFlags.dropoutAfter {
		return history.IterationSample{Iteration: iteration, BatchSize: batch}
	}

	speed := r.speed
	if r.nodeID == simulateFlags.stragglerNode &&
		iteration > simulateFlags.stragglerAfter &&
		iteration <= simulateFlags.stragglerAfter+simulateFlags.stragglerDuration {
		speed /= 8
	}

	iterationTime := float64(batch) / speed
	return history.IterationSample{
		Iteration:     iteration,
		IterationTime: iterationTime,
		BatchSize:     batch,
		Throughput:    float64(batch) / iterationTime,
		Loss:          2.0 / float64(iteration),
		Phases: history.PhaseBreakdown{
			DataLoadTime:  iterationTime * 0.15,
			ForwardTime:   iterationTime * 0.30,
			BackwardTime:  iterationTime * 0.45,
			OptimizerTime: iterationTime * 0.10,
		},
	}
}

// simulationProfiles loads the profile file or synthesizes a heterogeneous
// cluster with descending compute scores.
func simulationProfiles() ([]resource.NodeProfile, error) {
	if simulateFlags.profiles != "" {
		return resource.LoadProfiles(simulateFlags.profiles)
	}

	if simulateFlags.nodes < 1 {
		return nil, errors.New("at least one node is required")
	}

	profiles := make([]resource.NodeProfile, 0, simulateFlags.nodes)
	for i := 0; i < simulateFlags.nodes; i++ {
		profiles = append(profiles, resource.NodeProfile{
			ID:             i,
			Name:           fmt.Sprintf("sim-%d", i),
			ComputeScore:   1.0 + float64(simulateFlags.nodes-i-1)*0.5,
			MemoryCapacity: 16 * 1024,
		})
	}

	return profiles, nil
}

// report prints the run summary and writes the optional csv and snapshot
// artifacts.
func report(r *replica, store storage.Storage) error {
	assignment := r.scheduling.CurrentAssignment()
	fmt.Printf("final assignment: %v (sum %d)\n", assignment, assignment.Sum())
	fmt.Printf("scaling efficiency: %.3f, load imbalance: %.3f, records: %d\n",
		r.scheduling.ScalingEfficiency(), r.scheduling.LoadImbalance(), store.Count())

	if simulateFlags.exportCSV != "" {
		file, err := os.Create(simulateFlags.exportCSV)
		if err != nil {
			return errors.Wrap(err, "create csv file")
		}
		defer file.Close()

		if err := store.ExportCSV(file); err != nil {
			return err
		}
		fmt.Printf("iteration history written to %s\n", simulateFlags.exportCSV)
	}

	if simulateFlags.snapshot != "" {
		if err := scheduling.SaveSnapshot(simulateFlags.snapshot, r.scheduling.Snapshot()); err != nil {
			return err
		}
		fmt.Printf("snapshot written to %s\n", simulateFlags.snapshot)
	}

	return nil
}
