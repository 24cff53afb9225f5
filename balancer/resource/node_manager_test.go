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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeManager_Load(t *testing.T) {
	assert := assert.New(t)
	manager := NewNodeManager()
	node := NewNode(mockNodeProfile)

	_, ok := manager.Load(node.Profile.ID)
	assert.False(ok)

	manager.Store(node)
	loaded, ok := manager.Load(node.Profile.ID)
	assert.True(ok)
	assert.Equal(node, loaded)
}

func TestNodeManager_LoadOrStore(t *testing.T) {
	assert := assert.New(t)
	manager := NewNodeManager()
	node := NewNode(mockNodeProfile)

	stored, loaded := manager.LoadOrStore(node)
	assert.False(loaded)
	assert.Equal(node, stored)

	other := NewNode(mockNodeProfile)
	stored, loaded = manager.LoadOrStore(other)
	assert.True(loaded)
	assert.Equal(node, stored)
}

func TestNodeManager_Delete(t *testing.T) {
	assert := assert.New(t)
	manager := NewNodeManager()
	node := NewNode(mockNodeProfile)

	manager.Store(node)
	manager.Delete(node.Profile.ID)
	_, ok := manager.Load(node.Profile.ID)
	assert.False(ok)
}

func TestNodeManager_IDs(t *testing.T) {
	assert := assert.New(t)
	manager := NewNodeManager()

	for _, id := range []int{3, 0, 2, 1} {
		profile := mockNodeProfile
		profile.ID = id
		manager.Store(NewNode(profile))
	}

	assert.Equal([]int{0, 1, 2, 3}, manager.IDs())
	assert.Equal(4, manager.Len())
}
