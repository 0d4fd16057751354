package jmt

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNodeKeyRoundTrip(t *testing.T) {
	kh := HashKey([]byte("some key"))

	testCases := map[string]NodeKey{
		"root at version zero": {Version: 0, Path: RootPath()},
		"root at high version": {Version: 1 << 40, Path: RootPath()},
		"shallow path":         {Version: 7, Path: PathFromKeyHash(kh, 3)},
		"byte aligned path":    {Version: 7, Path: PathFromKeyHash(kh, 16)},
		"full depth path":      {Version: 7, Path: PathFromKeyHash(kh, 256)},
		"pre-genesis version":  {Version: PreGenesisVersion, Path: PathFromKeyHash(kh, 9)},
	}

	for name, nodeKey := range testCases {
		t.Run(name, func(t *testing.T) {
			decoded, err := UnmarshalNodeKey(nodeKey.Marshal())

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if decoded.Version != nodeKey.Version {
				t.Fatalf("expected version %d, got %d", nodeKey.Version, decoded.Version)
			}

			if !decoded.Path.Equal(nodeKey.Path) {
				t.Fatalf("expected path %#v, got %#v", nodeKey.Path, decoded.Path)
			}
		})
	}
}

func TestNodeKeyOrderPreservation(t *testing.T) {
	a := HashKey([]byte("a"))
	b := HashKey([]byte("b"))

	// any path at a lower version must encode below any path at a
	// higher version
	lower := []NodeKey{
		{Version: 0, Path: PathFromKeyHash(b, 256)},
		{Version: 1, Path: PathFromKeyHash(a, 17)},
		{Version: 1, Path: PathFromKeyHash(b, 255)},
	}
	higher := []NodeKey{
		{Version: 2, Path: RootPath()},
		{Version: 2, Path: PathFromKeyHash(a, 1)},
		{Version: 1 << 33, Path: PathFromKeyHash(a, 256)},
	}

	for _, low := range lower {
		for _, high := range higher {
			if bytes.Compare(low.Marshal(), high.Marshal()) >= 0 {
				t.Fatalf("expected %#v to encode below %#v", low, high)
			}
		}
	}
}

func TestUnmarshalNodeKeyRejectsMalformedInput(t *testing.T) {
	testCases := map[string][]byte{
		"empty":                  {},
		"shorter than a version": {0, 1, 2, 3},
		"missing path length":    {0, 0, 0, 0, 0, 0, 0, 0, 9},
		"path length too large":  append(make([]byte, 8), 0xff, 0xff),
		"truncated path bits":    append(make([]byte, 8), 0, 9, 0xaa),
		"nonzero padding bits":   append(make([]byte, 8), 0, 4, 0x0f),
	}

	for name, encoded := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := UnmarshalNodeKey(encoded); err == nil {
				t.Fatalf("expected err to be non-nil")
			}
		})
	}
}

func TestPathChildMatchesKeyHashPrefix(t *testing.T) {
	kh := HashKey([]byte("path construction"))
	path := RootPath()

	for depth := 0; depth < 64; depth++ {
		path = path.Child(kh.Bit(depth))
	}

	diff := cmp.Diff(PathFromKeyHash(kh, 64).Marshal(), path.Marshal())

	if diff != "" {
		t.Fatalf("paths differ: %s", diff)
	}
}
