package jmt

// Reader is the tree's view of previously committed state. The
// storage layer implements it over a point-in-time snapshot of the
// backing store.
type Reader interface {
	// Node returns the node stored under the given node key, or
	// nil if no such node exists
	Node(key NodeKey) (*Node, error)
	// Value returns the newest value for the key hash whose
	// version is less than or equal to maxVersion, or nil if the
	// key has no value there (never written, or tombstoned)
	Value(maxVersion Version, keyHash KeyHash) ([]byte, error)
	// RightmostLeaf returns the highest-version leaf node, or
	// nils if the tree holds no leaves
	RightmostLeaf() (*NodeKey, *Node, error)
	// Preimage returns the raw logical key that hashed to the
	// given key hash, or nil if it is not indexed
	Preimage(keyHash KeyHash) ([]byte, error)
}

// Writer persists the node batches produced by PutValueSet
type Writer interface {
	// WriteNodeBatch durably persists every node and value log
	// entry in the batch
	WriteNodeBatch(batch *NodeBatch) error
}
