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

package resource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfile_LoadProfiles(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		expect func(t *testing.T, profiles []NodeProfile, err error)
	}{
		{
			name: "load valid profiles sorted by node id",
			data: `[
				{"node_id": 1, "name": "GTX 1660", "compute_score": 3.0, "total_memory_mb": 6144, "memory_bandwidth_gbps": 192},
				{"node_id": 0, "name": "RTX 3080", "compute_score": 10.0, "total_memory_mb": 10240, "memory_bandwidth_gbps": 760,
					"benchmarks": {"matmul_gflops": 238.5}}
			]`,
			expect: func(t *testing.T, profiles []NodeProfile, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Len(profiles, 2)
				assert.Equal(0, profiles[0].ID)
				assert.Equal("RTX 3080", profiles[0].Name)
				assert.Equal(10.0, profiles[0].ComputeScore)
				assert.Equal(238.5, profiles[0].Benchmarks["matmul_gflops"])
				assert.Equal(1, profiles[1].ID)
			},
		},
		{
			name: "empty profile list",
			data: `[]`,
			expect: func(t *testing.T, profiles []NodeProfile, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "profile file contains no nodes")
			},
		},
		{
			name: "non-positive compute score",
			data: `[{"node_id": 0, "compute_score": 0, "total_memory_mb": 4096}]`,
			expect: func(t *testing.T, profiles []NodeProfile, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "node 0 requires a positive compute score")
			},
		},
		{
			name: "non-positive memory capacity",
			data: `[{"node_id": 0, "compute_score": 1.0, "total_memory_mb": 0}]`,
			expect: func(t *testing.T, profiles []NodeProfile, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "node 0 requires a positive memory capacity")
			},
		},
		{
			name: "duplicate node id",
			data: `[
				{"node_id": 0, "compute_score": 1.0, "total_memory_mb": 4096},
				{"node_id": 0, "compute_score": 2.0, "total_memory_mb": 8192}
			]`,
			expect: func(t *testing.T, profiles []NodeProfile, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "duplicate node id 0 in profile file")
			},
		},
		{
			name: "invalid json",
			data: `{`,
			expect: func(t *testing.T, profiles []NodeProfile, err error) {
				assert := assert.New(t)
				assert.Error(err)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "profiles.json")
			if err := os.WriteFile(path, []byte(tc.data), 0644); err != nil {
				t.Fatal(err)
			}

			profiles, err := LoadProfiles(path)
			tc.expect(t, profiles, err)
		})
	}
}

func TestProfile_WriteProfiles(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "profiles.json")

	profiles := []NodeProfile{mockNodeProfile}
	assert.NoError(WriteProfiles(path, profiles))

	loaded, err := LoadProfiles(path)
	assert.NoError(err)
	assert.Equal(profiles, loaded)
}
