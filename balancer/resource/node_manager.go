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
	"sort"
	"sync"
)

type NodeManager interface {
	// Load returns node for a node id.
	Load(int) (*Node, bool)

	// Store sets node.
	Store(*Node)

	// LoadOrStore returns node the node id if present.
	// Otherwise, it stores and returns the given node.
	// The loaded result is true if the node was loaded, false if stored.
	LoadOrStore(*Node) (*Node, bool)

	// Delete deletes node for a node id.
	Delete(int)

	// IDs returns registered node ids in ascending order.
	IDs() []int

	// Len returns the number of registered nodes.
	Len() int
}

type nodeManager struct {
	// Node sync map.
	*sync.Map
}

// NewNodeManager returns a new node manager interface.
func NewNodeManager() NodeManager {
	return &nodeManager{&sync.Map{}}
}

func (n *nodeManager) Load(id int) (*Node, bool) {
	rawNode, ok := n.Map.Load(id)
	if !ok {
		return nil, false
	}

	return rawNode.(*Node), ok
}

func (n *nodeManager) Store(node *Node) {
	n.Map.Store(node.Profile.ID, node)
}

func (n *nodeManager) LoadOrStore(node *Node) (*Node, bool) {
	rawNode, loaded := n.Map.LoadOrStore(node.Profile.ID, node)
	return rawNode.(*Node), loaded
}

func (n *nodeManager) Delete(id int) {
	n.Map.Delete(id)
}

// IDs collects node ids in ascending order, so every iteration over the
// registry is deterministic across replicas.
func (n *nodeManager) IDs() []int {
	var ids []int
	n.Map.Range(func(key, _ any) bool {
		ids = append(ids, key.(int))
		return true
	})

	sort.Ints(ids)
	return ids
}

func (n *nodeManager) Len() int {
	return len(n.IDs())
}
