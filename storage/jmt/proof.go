package jmt

import (
	"bytes"
	"fmt"
)

// ProofLeaf is the leaf reached while assembling a proof. For an
// inclusion proof it commits to the proven key; for a
// non-inclusion proof it is the conflicting leaf occupying the
// position where the absent key would live, if any.
type ProofLeaf struct {
	KeyHash   KeyHash
	ValueHash ValueHash
}

// Proof is a Merkle commitment proof of inclusion or
// non-inclusion. Siblings are ordered from the root down, one per
// internal node on the traversed path, with the placeholder hash
// standing in for empty subtrees.
type Proof struct {
	Leaf     *ProofLeaf
	Siblings [][32]byte
}

// VerifyInclusion checks that the proof binds the given key and
// value to the given root hash
func (p *Proof) VerifyInclusion(root RootHash, key, value []byte) error {
	keyHash := HashKey(key)

	if p.Leaf == nil {
		return fmt.Errorf("inclusion proof has no leaf")
	}

	if p.Leaf.KeyHash != keyHash {
		return fmt.Errorf("proof leaf commits to a different key")
	}

	if p.Leaf.ValueHash != HashValue(value) {
		return fmt.Errorf("proof leaf commits to a different value")
	}

	return p.verifyRoot(root, keyHash, leafHash(p.Leaf.KeyHash, p.Leaf.ValueHash))
}

// VerifyNonInclusion checks that the proof binds the absence of
// the given key to the given root hash
func (p *Proof) VerifyNonInclusion(root RootHash, key []byte) error {
	keyHash := HashKey(key)
	start := placeholderHash

	if p.Leaf != nil {
		if p.Leaf.KeyHash == keyHash {
			return fmt.Errorf("proof leaf commits to the key claimed absent")
		}

		// the conflicting leaf must actually occupy the position
		// where the absent key would live
		if firstDivergentBit(p.Leaf.KeyHash, keyHash) < len(p.Siblings) {
			return fmt.Errorf("proof leaf does not share the traversed path")
		}

		start = leafHash(p.Leaf.KeyHash, p.Leaf.ValueHash)
	}

	return p.verifyRoot(root, keyHash, start)
}

// verifyRoot folds the sibling hashes from the bottom up along the
// path selected by keyHash and compares the result to root
func (p *Proof) verifyRoot(root RootHash, keyHash KeyHash, start [32]byte) error {
	if len(p.Siblings) > maxPathBits {
		return fmt.Errorf("proof has %d siblings, more than the tree is deep", len(p.Siblings))
	}

	current := start

	for depth := len(p.Siblings) - 1; depth >= 0; depth-- {
		sibling := p.Siblings[depth]

		if keyHash.Bit(depth) == 0 {
			current = internalHash(current, sibling)
		} else {
			current = internalHash(sibling, current)
		}
	}

	if !bytes.Equal(current[:], root[:]) {
		return fmt.Errorf("proof folds to root %x, want %x", current, root)
	}

	return nil
}
