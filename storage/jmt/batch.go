package jmt

import "sort"

// NodeEntry is one node mutation in a batch
type NodeEntry struct {
	Key  NodeKey
	Node *Node
}

// ValueEntry is one value log mutation in a batch. A tombstone
// records a deletion explicitly so that reads at earlier versions
// stay unaffected.
type ValueEntry struct {
	Version   Version
	KeyHash   KeyHash
	Value     []byte
	Tombstone bool
}

// NodeBatch collects the node and value log mutations of one
// PutValueSet call, keyed so that later mutations of the same
// position replace earlier ones
type NodeBatch struct {
	nodes  map[string]NodeEntry
	values map[KeyHash]ValueEntry
}

// NewNodeBatch returns an empty batch
func NewNodeBatch() *NodeBatch {
	return &NodeBatch{
		nodes:  map[string]NodeEntry{},
		values: map[KeyHash]ValueEntry{},
	}
}

// PutNode records a node write
func (batch *NodeBatch) PutNode(key NodeKey, node *Node) {
	batch.nodes[string(key.Marshal())] = NodeEntry{Key: key, Node: node}
}

// RemoveNode drops a pending node write, used when a node created
// earlier in the same batch becomes unreachable
func (batch *NodeBatch) RemoveNode(key NodeKey) {
	delete(batch.nodes, string(key.Marshal()))
}

// Node returns a pending node write, if one exists for this key
func (batch *NodeBatch) Node(key NodeKey) (*Node, bool) {
	entry, ok := batch.nodes[string(key.Marshal())]

	if !ok {
		return nil, false
	}

	return entry.Node, true
}

// PutValue records a value write
func (batch *NodeBatch) PutValue(version Version, keyHash KeyHash, value []byte) {
	batch.values[keyHash] = ValueEntry{Version: version, KeyHash: keyHash, Value: value}
}

// DeleteValue records a value tombstone
func (batch *NodeBatch) DeleteValue(version Version, keyHash KeyHash) {
	batch.values[keyHash] = ValueEntry{Version: version, KeyHash: keyHash, Tombstone: true}
}

// Nodes returns the node mutations ordered by encoded node key
func (batch *NodeBatch) Nodes() []NodeEntry {
	encoded := make([]string, 0, len(batch.nodes))

	for key := range batch.nodes {
		encoded = append(encoded, key)
	}

	sort.Strings(encoded)

	entries := make([]NodeEntry, len(encoded))

	for i, key := range encoded {
		entries[i] = batch.nodes[key]
	}

	return entries
}

// Values returns the value log mutations ordered by key hash
func (batch *NodeBatch) Values() []ValueEntry {
	entries := make([]ValueEntry, 0, len(batch.values))

	for _, entry := range batch.values {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		for k := range a.KeyHash {
			if a.KeyHash[k] != b.KeyHash[k] {
				return a.KeyHash[k] < b.KeyHash[k]
			}
		}

		return a.Version < b.Version
	})

	return entries
}
