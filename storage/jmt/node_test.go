package jmt

import (
	"testing"
)

func TestNullRootHashesToZero(t *testing.T) {
	if NewNullNode().Hash() != [32]byte(ZeroRootHash) {
		t.Fatalf("expected the null root to hash to the all-zero root")
	}
}

func TestInternalNodeHashUsesPlaceholderForMissingChildren(t *testing.T) {
	child := &ChildRef{Version: 3, Hash: leafHash(HashKey([]byte("k")), HashValue([]byte("v"))), Leaf: true}

	left := NewInternalNode(child, nil)
	right := NewInternalNode(nil, child)

	if left.Hash() == right.Hash() {
		t.Fatalf("expected child position to affect the hash")
	}

	if left.Hash() != internalHash(child.Hash, placeholderHash) {
		t.Fatalf("expected the missing child to hash as the placeholder")
	}
}

func TestNodeRoundTrip(t *testing.T) {
	leafChild := &ChildRef{Version: 9, Hash: HashKey([]byte("left")), Leaf: true}
	internalChild := &ChildRef{Version: 1 << 50, Hash: HashKey([]byte("right"))}

	testCases := map[string]*Node{
		"null":                NewNullNode(),
		"leaf":                NewLeafNode(HashKey([]byte("k")), HashValue([]byte("v"))),
		"internal both":       NewInternalNode(leafChild, internalChild),
		"internal left only":  NewInternalNode(leafChild, nil),
		"internal right only": NewInternalNode(nil, internalChild),
	}

	for name, node := range testCases {
		t.Run(name, func(t *testing.T) {
			decoded, err := UnmarshalNode(node.Marshal())

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if decoded.Hash() != node.Hash() {
				t.Fatalf("expected hash %x, got %x", node.Hash(), decoded.Hash())
			}

			if decoded.Kind != node.Kind {
				t.Fatalf("expected kind %d, got %d", node.Kind, decoded.Kind)
			}
		})
	}
}

func TestUnmarshalNodeRejectsMalformedInput(t *testing.T) {
	testCases := map[string][]byte{
		"empty":                     {},
		"unknown kind":              {0xee},
		"null with trailing bytes":  {byte(NodeKindNull), 1},
		"short leaf":                {byte(NodeKindLeaf), 1, 2, 3},
		"internal without flags":    {byte(NodeKindInternal)},
		"internal without children": {byte(NodeKindInternal), 0},
		"truncated child":           {byte(NodeKindInternal), 1, 9, 9},
		"trailing bytes":            append(NewLeafNode(KeyHash{}, ValueHash{}).Marshal(), 0xff),
	}

	for name, encoded := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := UnmarshalNode(encoded); err == nil {
				t.Fatalf("expected err to be non-nil")
			}
		})
	}
}
