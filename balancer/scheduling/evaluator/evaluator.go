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

package evaluator

import (
	"github.com/montanaflynn/stats"

	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/history"
)

const (
	// When the cycle has fewer than 2 valid samples, no statistical
	// baseline exists and no node can be flagged.
	minAvailableSampleLen = 2

	// madEpsilon keeps the severity finite when all deviations collapse
	// to zero.
	madEpsilon = 1e-9
)

// Result is the straggler verdict for one node in the current cycle.
type Result struct {
	// NodeID is the evaluated node id.
	NodeID int

	// Straggler reports whether the node's iteration time is a slow
	// outlier relative to its peers.
	Straggler bool

	// Severity is (iterationTime - median) / (k * MAD), clamped at zero.
	Severity float64
}

// Evaluator flags nodes whose current-cycle iteration time is a statistical
// outlier. It is stateless across calls.
type Evaluator interface {
	// Evaluate returns one result per input sample, in input order.
	Evaluate(samples []history.IterationSample) []Result
}

type evaluator struct {
	k float64
}

// New returns an evaluator with the given MAD multiplier.
func New(k float64) Evaluator {
	return &evaluator{k: k}
}

// Evaluate computes the median and the median absolute deviation of the
// iteration times across all valid samples in the cycle, and flags a node
// when its iteration time exceeds median + k*MAD. The median/MAD pair is
// robust to the outliers it is meant to detect, unlike mean and stddev.
func (e *evaluator) Evaluate(samples []history.IterationSample) []Result {
	results := make([]Result, 0, len(samples))
	for _, sample := range samples {
		results = append(results, Result{NodeID: sample.NodeID})
	}

	var times []float64
	for _, sample := range samples {
		if !sample.Valid() {
			continue
		}

		times = append(times, sample.IterationTime)
	}

	if len(times) < minAvailableSampleLen {
		return results
	}

	median, err := stats.Median(times)
	if err != nil {
		return results
	}

	mad, err := stats.MedianAbsoluteDeviation(times)
	if err != nil {
		return results
	}

	threshold := e.k * mad
	if threshold < madEpsilon {
		threshold = madEpsilon
	}

	for i, sample := range samples {
		if !sample.Valid() {
			continue
		}

		if sample.IterationTime > median+e.k*mad {
			results[i].Straggler = true
		}

		severity := (sample.IterationTime - median) / threshold
		if severity < 0 {
			severity = 0
		}
		results[i].Severity = severity
	}

	return results
}
