package store

import (
	"errors"
	"fmt"
	"math"

	"github.com/ouzeldb/ouzel/storage/jmt"
	"github.com/ouzeldb/ouzel/storage/kv"
	"github.com/ouzeldb/ouzel/storage/kv/keys"
)

var _ jmt.Reader = (*SubstoreSnapshot)(nil)

// SubstoreSnapshot is an immutable point-in-time view of one substore
// at one version, read through a read-only transaction. Snapshots are
// cheap; many may share the same transaction. Concurrent commits
// never perturb reads through an existing snapshot.
type SubstoreSnapshot struct {
	config      SubstoreConfig
	transaction kv.Transaction
	version     jmt.Version
}

// NewSubstoreSnapshot creates a view of the substore at the given
// version. The transaction is usually read-only; a commit reads its
// pre-commit state through its own writable transaction. The
// snapshot never writes through the transaction and never ends it.
func NewSubstoreSnapshot(config SubstoreConfig, transaction kv.Transaction, version jmt.Version) *SubstoreSnapshot {
	return &SubstoreSnapshot{
		config:      config,
		transaction: transaction,
		version:     version,
	}
}

// Version returns the version this snapshot is bound to
func (s *SubstoreSnapshot) Version() jmt.Version {
	return s.version
}

// Config returns the substore configuration this snapshot reads
func (s *SubstoreSnapshot) Config() SubstoreConfig {
	return s.config
}

// RootHash returns the substore's root hash at this snapshot's
// version. A substore with no root at this version has the canonical
// all-zero root.
func (s *SubstoreSnapshot) RootHash() (jmt.RootHash, error) {
	root, ok, err := jmt.New(s).RootHashOption(s.version)

	if err != nil {
		return jmt.ZeroRootHash, wrapError(fmt.Sprintf("could not compute root hash for substore %s", s.config.Prefix), err)
	}

	if !ok {
		return jmt.ZeroRootHash, nil
	}

	return root, nil
}

// Get returns the value stored under the key hash at this snapshot's
// version, or nil if absent. At the pre-genesis version every key is
// absent; a missing root at any other version is a genuine fault and
// propagates.
func (s *SubstoreSnapshot) Get(keyHash jmt.KeyHash) ([]byte, error) {
	value, err := jmt.New(s).Get(keyHash, s.version)

	if err != nil {
		if errors.Is(err, jmt.ErrMissingRoot) && s.version == jmt.PreGenesisVersion {
			return nil, nil
		}

		return nil, wrapError(fmt.Sprintf("could not read key in substore %s", s.config.Prefix), err)
	}

	return value, nil
}

// GetWithProof returns the value stored under the raw key at this
// snapshot's version, or nil if absent, along with a proof of
// inclusion or non-inclusion that verifies against this snapshot's
// root hash
func (s *SubstoreSnapshot) GetWithProof(key []byte) ([]byte, *jmt.Proof, error) {
	value, proof, err := jmt.New(s).GetWithProof(key, s.version)

	if err != nil {
		if errors.Is(err, jmt.ErrMissingRoot) && s.version == jmt.PreGenesisVersion {
			// non-inclusion against the all-zero root
			return nil, &jmt.Proof{}, nil
		}

		return nil, nil, wrapError(fmt.Sprintf("could not prove key in substore %s", s.config.Prefix), err)
	}

	return value, proof, nil
}

// GetNonverifiable returns side data stored outside the tree, or nil
// if absent. Non-verifiable reads see the snapshot's point-in-time
// view like everything else, but no version and no proof applies.
func (s *SubstoreSnapshot) GetNonverifiable(key []byte) ([]byte, error) {
	bucket, err := s.config.Nonverifiable(s.transaction)

	if err != nil {
		return nil, err
	}

	value, err := bucket.Get(key)

	if err != nil {
		return nil, wrapError(fmt.Sprintf("could not read non-verifiable key in substore %s", s.config.Prefix), err)
	}

	return value, nil
}

// Node implements jmt.Reader.Node
func (s *SubstoreSnapshot) Node(key jmt.NodeKey) (*jmt.Node, error) {
	nodes, err := s.config.Nodes(s.transaction)

	if err != nil {
		return nil, err
	}

	b, err := nodes.Get(key.Marshal())

	if err != nil {
		return nil, wrapError(fmt.Sprintf("could not read tree node in substore %s", s.config.Prefix), err)
	}

	if b == nil {
		return nil, nil
	}

	node, err := jmt.UnmarshalNode(b)

	if err != nil {
		return nil, fmt.Errorf("substore %q: %w", s.config.Prefix, err)
	}

	return node, nil
}

// Value implements jmt.Reader.Value. It returns the newest value for
// the key hash at or before maxVersion via a descending bounded scan
// of the value log. The maximum sentinel version has no encodable
// exclusive upper bound, so it is checked with an exact lookup first.
func (s *SubstoreSnapshot) Value(maxVersion jmt.Version, keyHash jmt.KeyHash) ([]byte, error) {
	values, err := s.config.Values(s.transaction)

	if err != nil {
		return nil, err
	}

	if maxVersion == math.MaxUint64 {
		b, err := values.Get(versionedKeyHash(keyHash, maxVersion))

		if err != nil {
			return nil, wrapError(fmt.Sprintf("could not read value log in substore %s", s.config.Prefix), err)
		}

		if b != nil {
			return s.decodeValueLog(b)
		}
	}

	upper := maxVersion

	if upper != math.MaxUint64 {
		upper++
	}

	r := keys.All().Gte(versionedKeyHash(keyHash, 0)).Lt(versionedKeyHash(keyHash, upper))
	iter, err := values.Keys(r, kv.SortOrderDesc)

	if err != nil {
		return nil, wrapError(fmt.Sprintf("could not scan value log in substore %s", s.config.Prefix), err)
	}

	if !iter.Next() {
		if err := iter.Error(); err != nil {
			return nil, wrapError(fmt.Sprintf("could not scan value log in substore %s", s.config.Prefix), err)
		}

		return nil, nil
	}

	return s.decodeValueLog(iter.Value())
}

func (s *SubstoreSnapshot) decodeValueLog(b []byte) ([]byte, error) {
	value, err := unmarshalValueLog(b)

	if err != nil {
		return nil, fmt.Errorf("substore %q: %w", s.config.Prefix, err)
	}

	return value, nil
}

// RightmostLeaf implements jmt.Reader.RightmostLeaf. It returns the
// highest-version leaf within this snapshot's view by walking
// backwards from the last entry of the tree-nodes partition, or nils
// if the tree holds no leaves. Entries past the newest leaf can only
// be the handful of nodes written by commits that removed or changed
// no leaves, so the walk is short.
func (s *SubstoreSnapshot) RightmostLeaf() (*jmt.NodeKey, *jmt.Node, error) {
	nodes, err := s.config.Nodes(s.transaction)

	if err != nil {
		return nil, nil, err
	}

	cursor := nodes.Cursor()

	for key, value := cursor.Last(); key != nil; key, value = cursor.Prev() {
		node, err := jmt.UnmarshalNode(value)

		if err != nil {
			return nil, nil, fmt.Errorf("substore %q: %w", s.config.Prefix, err)
		}

		if !node.IsLeaf() {
			continue
		}

		nodeKey, err := jmt.UnmarshalNodeKey(key)

		if err != nil {
			return nil, nil, fmt.Errorf("substore %q: %w", s.config.Prefix, err)
		}

		return &nodeKey, node, nil
	}

	return nil, nil, nil
}

// Preimage implements jmt.Reader.Preimage. It returns the raw key
// that hashed to the given key hash, or nil if it is not indexed.
func (s *SubstoreSnapshot) Preimage(keyHash jmt.KeyHash) ([]byte, error) {
	bucket, err := s.config.KeysByKeyHash(s.transaction)

	if err != nil {
		return nil, err
	}

	key, err := bucket.Get(keyHash[:])

	if err != nil {
		return nil, wrapError(fmt.Sprintf("could not read preimage in substore %s", s.config.Prefix), err)
	}

	return key, nil
}
