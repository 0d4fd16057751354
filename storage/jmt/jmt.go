// Package jmt implements a versioned binary sparse Merkle tree in the
// jellyfish style. Keys are addressed by the hash of their preimage,
// nodes are immutable once written and are identified by the version
// that created them plus their position in the tree, and values live
// in a separate versioned value log so that point-in-time reads at
// older versions stay cheap.
//
// The tree itself holds no storage. It reads previously committed
// state through the Reader contract and emits its writes as a
// NodeBatch for a Writer to persist, so the surrounding storage layer
// decides layout, atomicity and durability.
package jmt

import (
	"crypto/sha256"
	"math"
)

// Version identifies one committed generation of a tree
type Version = uint64

// PreGenesisVersion is the version of a tree that has never been
// written to. It is the maximum representable version so that the
// first committed version, computed by wrapping addition, is 0.
const PreGenesisVersion Version = math.MaxUint64

// KeyHash is the tree's addressing unit: the digest of a raw
// logical key
type KeyHash [32]byte

// ValueHash is the digest of a raw value, stored in leaves in
// place of the value itself
type ValueHash [32]byte

// RootHash summarizes the entire authenticated state of a tree
// at one version
type RootHash [32]byte

// ZeroRootHash is the canonical root hash of an empty tree
var ZeroRootHash = RootHash{}

// HashKey computes the key hash of a raw logical key
func HashKey(key []byte) KeyHash {
	return KeyHash(sha256.Sum256(key))
}

// HashValue computes the value hash of a raw value
func HashValue(value []byte) ValueHash {
	return ValueHash(sha256.Sum256(value))
}

// Bit returns the i-th bit of the key hash, most significant
// bit first
func (kh KeyHash) Bit(i int) byte {
	return (kh[i/8] >> (7 - i%8)) & 1
}

// firstDivergentBit returns the index of the first bit at which
// a and b differ. a and b must not be equal.
func firstDivergentBit(a, b KeyHash) int {
	for i := 0; i < len(a); i++ {
		x := a[i] ^ b[i]

		if x == 0 {
			continue
		}

		n := 0

		for x&0x80 == 0 {
			x <<= 1
			n++
		}

		return i*8 + n
	}

	return -1
}
