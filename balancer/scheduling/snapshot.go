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
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Snapshot is the serializable balancer state: enough to resume the
// assignment protocol after a restart, without the sample history.
type Snapshot struct {
	// GlobalBatchSize is the global batch size of the run.
	GlobalBatchSize int `json:"global_batch_size"`

	// Iteration is the iteration of the last rebalance decision.
	Iteration int `json:"iteration"`

	// Assignment is the assignment in effect.
	Assignment Assignment `json:"assignment"`

	// Weights is the weight vector that produced the assignment.
	Weights map[int]float64 `json:"weights"`
}

func (s *scheduling) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := &Snapshot{
		GlobalBatchSize: s.globalBatchSize,
		Iteration:       s.lastIteration,
		Assignment:      s.current.Clone(),
		Weights:         map[int]float64{},
	}
	for id, weight := range s.prevWeights {
		snapshot.Weights[id] = weight
	}

	return snapshot
}

func (s *scheduling) Restore(snapshot *Snapshot) error {
	if snapshot == nil {
		return errors.New("snapshot is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range snapshot.Assignment {
		if _, ok := s.nodeManager.Load(id); !ok {
			return errors.Wrapf(ErrUnknownNode, "snapshot references node %d", id)
		}
	}

	s.globalBatchSize = snapshot.GlobalBatchSize
	s.lastIteration = snapshot.Iteration
	s.current = snapshot.Assignment.Clone()
	s.prevWeights = map[int]float64{}
	for id, weight := range snapshot.Weights {
		s.prevWeights[id] = weight
	}

	return nil
}

// SaveSnapshot writes a snapshot to a JSON file.
func SaveSnapshot(path string, snapshot *Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "write snapshot file")
	}

	return nil
}

// LoadSnapshot reads a snapshot from a JSON file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read snapshot file")
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrap(err, "unmarshal snapshot file")
	}

	return &snapshot, nil
}
