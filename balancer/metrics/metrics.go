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

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/config"
	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/pkg/types"
	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/version"
)

// Variables declared for metrics.
var (
	RebalanceCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: types.MetricsNamespace,
		Subsystem: types.BalancerMetricsName,
		Name:      "rebalance_total",
		Help:      "Counter of the number of the rebalance cycles.",
	}, []string{"policy"})

	RebalanceFailureCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: types.MetricsNamespace,
		Subsystem: types.BalancerMetricsName,
		Name:      "rebalance_failure_total",
		Help:      "Counter of the number of failed of the rebalance cycles.",
	}, []string{"policy"})

	StragglerCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: types.MetricsNamespace,
		Subsystem: types.BalancerMetricsName,
		Name:      "straggler_total",
		Help:      "Counter of the number of the straggler verdicts.",
	})

	InvalidSampleCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: types.MetricsNamespace,
		Subsystem: types.BalancerMetricsName,
		Name:      "invalid_sample_total",
		Help:      "Counter of the number of samples excluded from weighting.",
	})

	UnresponsiveNodeCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: types.MetricsNamespace,
		Subsystem: types.BalancerMetricsName,
		Name:      "unresponsive_node_total",
		Help:      "Counter of the number of nodes marked unresponsive.",
	})

	AssignedBatchSizeGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: types.MetricsNamespace,
		Subsystem: types.BalancerMetricsName,
		Name:      "assigned_batch_size",
		Help:      "Gauge of the batch size assigned to each node.",
	}, []string{"node_id"})

	ScalingEfficiencyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: types.MetricsNamespace,
		Subsystem: types.BalancerMetricsName,
		Name:      "scaling_efficiency",
		Help:      "Gauge of the cluster scaling efficiency.",
	})

	LoadImbalanceGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: types.MetricsNamespace,
		Subsystem: types.BalancerMetricsName,
		Name:      "load_imbalance",
		Help:      "Gauge of the cluster load imbalance.",
	})

	VersionGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: types.MetricsNamespace,
		Subsystem: types.BalancerMetricsName,
		Name:      "version",
		Help:      "Version info of the service.",
	}, []string{"major", "minor", "git_version", "git_commit", "platform", "build_time", "go_version", "go_tags", "go_gcflags"})
)

func New(cfg config.MetricsConfig) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	VersionGauge.WithLabelValues(version.Major, version.Minor, version.GitVersion, version.GitCommit, version.Platform, version.BuildTime, version.GoVersion, version.Gotags, version.Gogcflags).Set(1)
	return &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
}
