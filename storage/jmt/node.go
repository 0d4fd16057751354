package jmt

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// NodeKind discriminates the serialized forms of a node
type NodeKind byte

const (
	// NodeKindNull is the root of an empty tree
	NodeKindNull NodeKind = iota
	// NodeKindInternal is a branch with up to two children
	NodeKindInternal
	// NodeKindLeaf holds one key hash and the digest of its value
	NodeKindLeaf
)

var (
	leafDomain     = []byte("ouzel/leaf")
	internalDomain = []byte("ouzel/node")

	// placeholderHash stands in for an empty subtree
	placeholderHash [32]byte
)

// ChildRef points an internal node at one of its children. The
// version selects which generation of the child to read; the hash
// is carried so that parents can be hashed, and proofs assembled,
// without loading the child.
type ChildRef struct {
	Version Version
	Hash    [32]byte
	Leaf    bool
}

// Node is one element of the tree: an internal branch, a leaf, or
// the null root of an empty tree
type Node struct {
	Kind NodeKind

	// leaf fields
	KeyHash   KeyHash
	ValueHash ValueHash

	// internal fields
	Left  *ChildRef
	Right *ChildRef
}

// NewNullNode returns the root node of an empty tree
func NewNullNode() *Node {
	return &Node{Kind: NodeKindNull}
}

// NewLeafNode returns a leaf for the given key hash and value hash
func NewLeafNode(keyHash KeyHash, valueHash ValueHash) *Node {
	return &Node{Kind: NodeKindLeaf, KeyHash: keyHash, ValueHash: valueHash}
}

// NewInternalNode returns a branch with the given children. At
// least one child must be present.
func NewInternalNode(left, right *ChildRef) *Node {
	return &Node{Kind: NodeKindInternal, Left: left, Right: right}
}

// IsLeaf returns true for leaf nodes
func (n *Node) IsLeaf() bool {
	return n.Kind == NodeKindLeaf
}

// Child returns the child selected by a branch choice
func (n *Node) Child(bit byte) *ChildRef {
	if bit == 0 {
		return n.Left
	}

	return n.Right
}

// withChild returns a copy of an internal node with the child
// selected by bit replaced
func (n *Node) withChild(bit byte, child *ChildRef) *Node {
	next := &Node{Kind: NodeKindInternal, Left: n.Left, Right: n.Right}

	if bit == 0 {
		next.Left = child
	} else {
		next.Right = child
	}

	return next
}

// childCount returns the number of present children of an
// internal node
func (n *Node) childCount() int {
	count := 0

	if n.Left != nil {
		count++
	}

	if n.Right != nil {
		count++
	}

	return count
}

// Hash returns the node's Merkle hash. An empty subtree hashes to
// the placeholder, so the null root hashes to the canonical
// all-zero root.
func (n *Node) Hash() [32]byte {
	switch n.Kind {
	case NodeKindNull:
		return placeholderHash
	case NodeKindLeaf:
		return leafHash(n.KeyHash, n.ValueHash)
	default:
		var left, right [32]byte = placeholderHash, placeholderHash

		if n.Left != nil {
			left = n.Left.Hash
		}

		if n.Right != nil {
			right = n.Right.Hash
		}

		return internalHash(left, right)
	}
}

func leafHash(keyHash KeyHash, valueHash ValueHash) [32]byte {
	h := sha256.New()

	h.Write(leafDomain)
	h.Write(keyHash[:])
	h.Write(valueHash[:])

	var out [32]byte

	h.Sum(out[:0])

	return out
}

func internalHash(left, right [32]byte) [32]byte {
	h := sha256.New()

	h.Write(internalDomain)
	h.Write(left[:])
	h.Write(right[:])

	var out [32]byte

	h.Sum(out[:0])

	return out
}

const (
	childFlagLeft      = 1 << 0
	childFlagRight     = 1 << 1
	childFlagLeftLeaf  = 1 << 2
	childFlagRightLeaf = 1 << 3
)

// Marshal returns the node's serialization: a kind byte followed
// by a fixed layout per kind. The layout is part of the on-disk
// contract and must stay deterministic.
func (n *Node) Marshal() []byte {
	switch n.Kind {
	case NodeKindNull:
		return []byte{byte(NodeKindNull)}
	case NodeKindLeaf:
		b := make([]byte, 1+len(n.KeyHash)+len(n.ValueHash))
		b[0] = byte(NodeKindLeaf)
		copy(b[1:], n.KeyHash[:])
		copy(b[1+len(n.KeyHash):], n.ValueHash[:])

		return b
	default:
		b := make([]byte, 2, 2+2*40)
		b[0] = byte(NodeKindInternal)

		if n.Left != nil {
			b[1] |= childFlagLeft

			if n.Left.Leaf {
				b[1] |= childFlagLeftLeaf
			}

			b = appendChildRef(b, n.Left)
		}

		if n.Right != nil {
			b[1] |= childFlagRight

			if n.Right.Leaf {
				b[1] |= childFlagRightLeaf
			}

			b = appendChildRef(b, n.Right)
		}

		return b
	}
}

func appendChildRef(b []byte, ref *ChildRef) []byte {
	var version [8]byte

	binary.BigEndian.PutUint64(version[:], ref.Version)

	b = append(b, version[:]...)
	b = append(b, ref.Hash[:]...)

	return b
}

// UnmarshalNode decodes a serialized node. Malformed input is a
// corruption error, never skipped.
func UnmarshalNode(b []byte) (*Node, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("%w: empty node bytes", ErrCorruptNode)
	}

	switch NodeKind(b[0]) {
	case NodeKindNull:
		if len(b) != 1 {
			return nil, fmt.Errorf("%w: null node must be a single byte, got %d", ErrCorruptNode, len(b))
		}

		return NewNullNode(), nil
	case NodeKindLeaf:
		if len(b) != 1+32+32 {
			return nil, fmt.Errorf("%w: leaf node must be %d bytes, got %d", ErrCorruptNode, 1+32+32, len(b))
		}

		node := &Node{Kind: NodeKindLeaf}

		copy(node.KeyHash[:], b[1:33])
		copy(node.ValueHash[:], b[33:65])

		return node, nil
	case NodeKindInternal:
		if len(b) < 2 {
			return nil, fmt.Errorf("%w: internal node missing child flags", ErrCorruptNode)
		}

		flags := b[1]
		rest := b[2:]
		node := &Node{Kind: NodeKindInternal}

		if flags&childFlagLeft != 0 {
			ref, remaining, err := readChildRef(rest, flags&childFlagLeftLeaf != 0)

			if err != nil {
				return nil, err
			}

			node.Left = ref
			rest = remaining
		}

		if flags&childFlagRight != 0 {
			ref, remaining, err := readChildRef(rest, flags&childFlagRightLeaf != 0)

			if err != nil {
				return nil, err
			}

			node.Right = ref
			rest = remaining
		}

		if len(rest) != 0 {
			return nil, fmt.Errorf("%w: %d trailing bytes after internal node", ErrCorruptNode, len(rest))
		}

		if node.childCount() == 0 {
			return nil, fmt.Errorf("%w: internal node has no children", ErrCorruptNode)
		}

		return node, nil
	default:
		return nil, fmt.Errorf("%w: unknown node kind %d", ErrCorruptNode, b[0])
	}
}

func readChildRef(b []byte, leaf bool) (*ChildRef, []byte, error) {
	if len(b) < 40 {
		return nil, nil, fmt.Errorf("%w: truncated child reference", ErrCorruptNode)
	}

	ref := &ChildRef{Version: binary.BigEndian.Uint64(b), Leaf: leaf}

	copy(ref.Hash[:], b[8:40])

	return ref, b[40:], nil
}
