package jmt

import (
	"bytes"
	"fmt"
	"sort"
)

// ValueUpdate is one entry of a value set: an upsert of a value
// or a deletion of the key hash
type ValueUpdate struct {
	KeyHash KeyHash
	Value   []byte
	Delete  bool
}

// Tree is a stateless view of a versioned Merkle tree over a
// Reader. Trees are cheap to construct; one is typically created
// per query or commit.
type Tree struct {
	reader Reader
}

// New creates a tree over the given reader
func New(reader Reader) *Tree {
	return &Tree{reader: reader}
}

// RootHash returns the root hash at the given version. It fails
// with ErrMissingRoot if no root node exists at that version.
func (t *Tree) RootHash(version Version) (RootHash, error) {
	root, ok, err := t.RootHashOption(version)

	if err != nil {
		return ZeroRootHash, err
	}

	if !ok {
		return ZeroRootHash, fmt.Errorf("%w: version %d", ErrMissingRoot, version)
	}

	return root, nil
}

// RootHashOption returns the root hash at the given version, or
// false if no root node exists there
func (t *Tree) RootHashOption(version Version) (RootHash, bool, error) {
	node, err := t.reader.Node(NodeKey{Version: version, Path: RootPath()})

	if err != nil {
		return ZeroRootHash, false, err
	}

	if node == nil {
		return ZeroRootHash, false, nil
	}

	return RootHash(node.Hash()), true, nil
}

// Get returns the value stored under the key hash at the given
// version, or nil if the key has no value there. It fails with
// ErrMissingRoot if no root node exists at that version.
func (t *Tree) Get(keyHash KeyHash, version Version) ([]byte, error) {
	node, err := t.reader.Node(NodeKey{Version: version, Path: RootPath()})

	if err != nil {
		return nil, err
	}

	if node == nil {
		return nil, fmt.Errorf("%w: version %d", ErrMissingRoot, version)
	}

	path := RootPath()

	for {
		switch node.Kind {
		case NodeKindNull:
			return nil, nil
		case NodeKindLeaf:
			if node.KeyHash != keyHash {
				return nil, nil
			}

			return t.reader.Value(version, keyHash)
		case NodeKindInternal:
			bit := keyHash.Bit(path.Len())
			ref := node.Child(bit)

			if ref == nil {
				return nil, nil
			}

			path = path.Child(bit)
			node, err = t.loadNode(NodeKey{Version: ref.Version, Path: path})

			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unknown node kind %d", ErrCorruptNode, node.Kind)
		}
	}
}

// GetWithProof returns the value stored under the raw key at the
// given version, or nil if absent, along with a commitment proof
// of inclusion or non-inclusion that verifies against the root
// hash of that version
func (t *Tree) GetWithProof(key []byte, version Version) ([]byte, *Proof, error) {
	keyHash := HashKey(key)
	node, err := t.reader.Node(NodeKey{Version: version, Path: RootPath()})

	if err != nil {
		return nil, nil, err
	}

	if node == nil {
		return nil, nil, fmt.Errorf("%w: version %d", ErrMissingRoot, version)
	}

	proof := &Proof{}
	path := RootPath()

	for {
		switch node.Kind {
		case NodeKindNull:
			// non-inclusion in an empty tree
			return nil, proof, nil
		case NodeKindLeaf:
			proof.Leaf = &ProofLeaf{KeyHash: node.KeyHash, ValueHash: node.ValueHash}

			if node.KeyHash != keyHash {
				// non-inclusion witnessed by a conflicting leaf
				return nil, proof, nil
			}

			value, err := t.reader.Value(version, keyHash)

			if err != nil {
				return nil, nil, err
			}

			if value == nil || HashValue(value) != node.ValueHash {
				return nil, nil, fmt.Errorf("%w: key hash %x at version %d", ErrCorruptValue, keyHash, version)
			}

			return value, proof, nil
		case NodeKindInternal:
			bit := keyHash.Bit(path.Len())
			ref := node.Child(bit)
			sibling := node.Child(1 - bit)
			siblingHash := placeholderHash

			if sibling != nil {
				siblingHash = sibling.Hash
			}

			proof.Siblings = append(proof.Siblings, siblingHash)

			if ref == nil {
				// non-inclusion in an empty subtree
				return nil, proof, nil
			}

			path = path.Child(bit)
			node, err = t.loadNode(NodeKey{Version: ref.Version, Path: path})

			if err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, fmt.Errorf("%w: unknown node kind %d", ErrCorruptNode, node.Kind)
		}
	}
}

// PutValueSet applies a set of updates on top of the tree at
// baseVersion and returns the root hash of newVersion together
// with the batch of node and value log mutations that realize it.
// Nothing is persisted; the caller hands the batch to a Writer.
// baseVersion may be PreGenesisVersion to build on an empty tree.
func (t *Tree) PutValueSet(updates []ValueUpdate, baseVersion, newVersion Version) (RootHash, *NodeBatch, error) {
	ctx := &putContext{batch: NewNodeBatch(), newVersion: newVersion}

	var rootRef *ChildRef

	if baseVersion != PreGenesisVersion {
		node, err := t.reader.Node(NodeKey{Version: baseVersion, Path: RootPath()})

		if err != nil {
			return ZeroRootHash, nil, err
		}

		if node == nil {
			return ZeroRootHash, nil, fmt.Errorf("%w: version %d", ErrMissingRoot, baseVersion)
		}

		if node.Kind != NodeKindNull {
			rootRef = &ChildRef{Version: baseVersion, Hash: node.Hash(), Leaf: node.IsLeaf()}
		}
	}

	sorted := make([]ValueUpdate, len(updates))

	copy(sorted, updates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].KeyHash[:], sorted[j].KeyHash[:]) < 0
	})

	for _, update := range sorted {
		ref, err := t.put(ctx, rootRef, RootPath(), update)

		if err != nil {
			return ZeroRootHash, nil, err
		}

		rootRef = ref

		if update.Delete {
			ctx.batch.DeleteValue(newVersion, update.KeyHash)
		} else {
			ctx.batch.PutValue(newVersion, update.KeyHash, update.Value)
		}
	}

	// Every committed version gets a root node, even when nothing
	// changed, so that snapshots at any committed version resolve
	// their root with a single lookup.
	rootKey := NodeKey{Version: newVersion, Path: RootPath()}

	if rootRef == nil {
		ctx.batch.PutNode(rootKey, NewNullNode())

		return ZeroRootHash, ctx.batch, nil
	}

	if rootRef.Version != newVersion {
		node, err := t.loadNode(NodeKey{Version: rootRef.Version, Path: RootPath()})

		if err != nil {
			return ZeroRootHash, nil, err
		}

		ctx.batch.PutNode(rootKey, node)
	}

	return RootHash(rootRef.Hash), ctx.batch, nil
}

type putContext struct {
	batch      *NodeBatch
	newVersion Version
}

// put applies one update to the subtree referenced by ref at the
// given path and returns a reference to the resulting subtree.
// It returns nil when the subtree becomes empty and ref itself
// when nothing changed.
func (t *Tree) put(ctx *putContext, ref *ChildRef, path Path, update ValueUpdate) (*ChildRef, error) {
	if ref == nil {
		if update.Delete {
			return nil, nil
		}

		leaf := NewLeafNode(update.KeyHash, HashValue(update.Value))

		ctx.batch.PutNode(NodeKey{Version: ctx.newVersion, Path: path}, leaf)

		return &ChildRef{Version: ctx.newVersion, Hash: leaf.Hash(), Leaf: true}, nil
	}

	node, err := t.workingNode(ctx, NodeKey{Version: ref.Version, Path: path})

	if err != nil {
		return nil, err
	}

	switch node.Kind {
	case NodeKindLeaf:
		return t.putLeaf(ctx, ref, node, path, update)
	case NodeKindInternal:
		return t.putInternal(ctx, ref, node, path, update)
	default:
		return nil, fmt.Errorf("%w: unexpected node kind %d below the root", ErrCorruptNode, node.Kind)
	}
}

func (t *Tree) putLeaf(ctx *putContext, ref *ChildRef, node *Node, path Path, update ValueUpdate) (*ChildRef, error) {
	if node.KeyHash == update.KeyHash {
		if update.Delete {
			if ref.Version == ctx.newVersion {
				ctx.batch.RemoveNode(NodeKey{Version: ref.Version, Path: path})
			}

			return nil, nil
		}

		leaf := NewLeafNode(update.KeyHash, HashValue(update.Value))

		ctx.batch.PutNode(NodeKey{Version: ctx.newVersion, Path: path}, leaf)

		return &ChildRef{Version: ctx.newVersion, Hash: leaf.Hash(), Leaf: true}, nil
	}

	if update.Delete {
		// deleting a key that isn't here changes nothing
		return ref, nil
	}

	return t.splitLeaf(ctx, node, path, update)
}

// splitLeaf moves an existing leaf down to just below the point
// where its key hash diverges from the update's, places the new
// leaf beside it, and fills the positions in between with
// single-child internal nodes
func (t *Tree) splitLeaf(ctx *putContext, existing *Node, path Path, update ValueUpdate) (*ChildRef, error) {
	divergence := firstDivergentBit(existing.KeyHash, update.KeyHash)

	existingPath := PathFromKeyHash(existing.KeyHash, divergence+1)
	newPath := PathFromKeyHash(update.KeyHash, divergence+1)

	ctx.batch.PutNode(NodeKey{Version: ctx.newVersion, Path: existingPath}, existing)

	existingRef := &ChildRef{Version: ctx.newVersion, Hash: existing.Hash(), Leaf: true}

	leaf := NewLeafNode(update.KeyHash, HashValue(update.Value))

	ctx.batch.PutNode(NodeKey{Version: ctx.newVersion, Path: newPath}, leaf)

	newRef := &ChildRef{Version: ctx.newVersion, Hash: leaf.Hash(), Leaf: true}

	var left, right *ChildRef

	if update.KeyHash.Bit(divergence) == 0 {
		left, right = newRef, existingRef
	} else {
		left, right = existingRef, newRef
	}

	branch := NewInternalNode(left, right)

	ctx.batch.PutNode(NodeKey{Version: ctx.newVersion, Path: PathFromKeyHash(update.KeyHash, divergence)}, branch)

	ref := &ChildRef{Version: ctx.newVersion, Hash: branch.Hash()}

	for depth := divergence - 1; depth >= path.Len(); depth-- {
		var left, right *ChildRef

		if update.KeyHash.Bit(depth) == 0 {
			left = ref
		} else {
			right = ref
		}

		chain := NewInternalNode(left, right)

		ctx.batch.PutNode(NodeKey{Version: ctx.newVersion, Path: PathFromKeyHash(update.KeyHash, depth)}, chain)

		ref = &ChildRef{Version: ctx.newVersion, Hash: chain.Hash()}
	}

	return ref, nil
}

func (t *Tree) putInternal(ctx *putContext, ref *ChildRef, node *Node, path Path, update ValueUpdate) (*ChildRef, error) {
	bit := update.KeyHash.Bit(path.Len())
	childRef := node.Child(bit)

	newChildRef, err := t.put(ctx, childRef, path.Child(bit), update)

	if err != nil {
		return nil, err
	}

	if newChildRef == childRef {
		return ref, nil
	}

	if newChildRef == nil {
		sibling := node.Child(1 - bit)

		if sibling == nil {
			if ref.Version == ctx.newVersion {
				ctx.batch.RemoveNode(NodeKey{Version: ref.Version, Path: path})
			}

			return nil, nil
		}

		if sibling.Leaf {
			// the remaining leaf is promoted into this position
			leaf, err := t.workingNode(ctx, NodeKey{Version: sibling.Version, Path: path.Child(1 - bit)})

			if err != nil {
				return nil, err
			}

			if sibling.Version == ctx.newVersion {
				ctx.batch.RemoveNode(NodeKey{Version: sibling.Version, Path: path.Child(1 - bit)})
			}

			ctx.batch.PutNode(NodeKey{Version: ctx.newVersion, Path: path}, leaf)

			return &ChildRef{Version: ctx.newVersion, Hash: sibling.Hash, Leaf: true}, nil
		}
	}

	if newChildRef != nil && newChildRef.Leaf && node.Child(1-bit) == nil {
		// an internal node with a lone leaf beneath it cannot
		// exist; the leaf keeps rising until it has a sibling
		leaf, err := t.workingNode(ctx, NodeKey{Version: newChildRef.Version, Path: path.Child(bit)})

		if err != nil {
			return nil, err
		}

		if newChildRef.Version == ctx.newVersion {
			ctx.batch.RemoveNode(NodeKey{Version: newChildRef.Version, Path: path.Child(bit)})
		}

		ctx.batch.PutNode(NodeKey{Version: ctx.newVersion, Path: path}, leaf)

		return &ChildRef{Version: ctx.newVersion, Hash: newChildRef.Hash, Leaf: true}, nil
	}

	next := node.withChild(bit, newChildRef)

	ctx.batch.PutNode(NodeKey{Version: ctx.newVersion, Path: path}, next)

	return &ChildRef{Version: ctx.newVersion, Hash: next.Hash()}, nil
}

// workingNode resolves a node key against the nodes pending in
// this batch first, falling back to the reader
func (t *Tree) workingNode(ctx *putContext, key NodeKey) (*Node, error) {
	if key.Version == ctx.newVersion {
		if node, ok := ctx.batch.Node(key); ok {
			return node, nil
		}
	}

	return t.loadNode(key)
}

// loadNode reads a node that is expected to exist. Absence of a
// referenced node is a data-consistency fault.
func (t *Tree) loadNode(key NodeKey) (*Node, error) {
	node, err := t.reader.Node(key)

	if err != nil {
		return nil, err
	}

	if node == nil {
		return nil, fmt.Errorf("%w: version %d, depth %d", ErrMissingNode, key.Version, key.Path.Len())
	}

	return node, nil
}
