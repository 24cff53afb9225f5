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
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// LoadProfiles reads node capability profiles from a JSON file produced by
// hardware discovery. Profiles are returned in ascending node id order.
func LoadProfiles(path string) ([]NodeProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read profile file")
	}

	var profiles []NodeProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, errors.Wrap(err, "unmarshal profile file")
	}

	if len(profiles) == 0 {
		return nil, errors.New("profile file contains no nodes")
	}

	seen := map[int]struct{}{}
	for _, profile := range profiles {
		if profile.ComputeScore <= 0 {
			return nil, errors.Errorf("node %d requires a positive compute score", profile.ID)
		}

		if profile.MemoryCapacity <= 0 {
			return nil, errors.Errorf("node %d requires a positive memory capacity", profile.ID)
		}

		if _, ok := seen[profile.ID]; ok {
			return nil, errors.Errorf("duplicate node id %d in profile file", profile.ID)
		}
		seen[profile.ID] = struct{}{}
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].ID < profiles[j].ID
	})

	return profiles, nil
}

// WriteProfiles writes node capability profiles to a JSON file.
func WriteProfiles(path string, profiles []NodeProfile) error {
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal profiles")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "write profile file")
	}

	return nil
}
