package store

import (
	"fmt"

	"github.com/ouzeldb/ouzel/storage/jmt"
	"github.com/ouzeldb/ouzel/storage/kv"
)

// SubstoreConfig names the five partitions owned by one substore and
// provides typed access to them. It is immutable after construction
// and shared by every snapshot and writer of the substore.
type SubstoreConfig struct {
	// Prefix identifies the substore. The empty prefix is the root
	// substore.
	Prefix string

	nodes         []byte
	keys          []byte
	values        []byte
	keysByKeyHash []byte
	nonverifiable []byte
}

// NewSubstoreConfig derives the partition names for a prefix
func NewSubstoreConfig(prefix string) SubstoreConfig {
	return SubstoreConfig{
		Prefix:        prefix,
		nodes:         partitionName(prefix, "jmt"),
		keys:          partitionName(prefix, "jmt-keys"),
		values:        partitionName(prefix, "jmt-values"),
		keysByKeyHash: partitionName(prefix, "jmt-keys-by-keyhash"),
		nonverifiable: partitionName(prefix, "nonverifiable"),
	}
}

// partitionName is the on-disk naming contract. These exact strings
// identify existing data and must never change.
func partitionName(prefix, role string) []byte {
	return []byte(fmt.Sprintf("substore-%s-%s", prefix, role))
}

// Partitions returns the names of every partition owned by this
// substore. All of them must exist before the substore is usable.
func (c SubstoreConfig) Partitions() [][]byte {
	return [][]byte{c.nodes, c.keys, c.values, c.keysByKeyHash, c.nonverifiable}
}

// Nodes returns the tree-nodes partition: encoded node key -> node
func (c SubstoreConfig) Nodes(transaction kv.Transaction) (kv.Bucket, error) {
	return c.bucket(transaction, c.nodes)
}

// Keys returns the preimage index partition: raw key -> key hash
func (c SubstoreConfig) Keys(transaction kv.Transaction) (kv.Bucket, error) {
	return c.bucket(transaction, c.keys)
}

// Values returns the value log partition: key hash and version ->
// value or tombstone
func (c SubstoreConfig) Values(transaction kv.Transaction) (kv.Bucket, error) {
	return c.bucket(transaction, c.values)
}

// KeysByKeyHash returns the reverse index partition: key hash -> raw
// key
func (c SubstoreConfig) KeysByKeyHash(transaction kv.Transaction) (kv.Bucket, error) {
	return c.bucket(transaction, c.keysByKeyHash)
}

// Nonverifiable returns the partition for side data outside the tree
func (c SubstoreConfig) Nonverifiable(transaction kv.Transaction) (kv.Bucket, error) {
	return c.bucket(transaction, c.nonverifiable)
}

func (c SubstoreConfig) bucket(transaction kv.Transaction, name []byte) (kv.Bucket, error) {
	bucket, err := transaction.Bucket(name)

	if err == kv.ErrNoSuchBucket {
		return nil, fmt.Errorf("%w: substore %q, partition %q", ErrMissingPartition, c.Prefix, name)
	}

	if err != nil {
		return nil, wrapError(fmt.Sprintf("could not open partition %s", name), err)
	}

	return bucket, nil
}

// LatestVersion returns the substore's newest committed version by
// seeking to the last entry of the tree-nodes partition. It returns
// false if the partition is empty, meaning nothing was ever
// committed. Every commit writes the root node of its version in the
// same atomic batch as the rest of its nodes, so the version of the
// last entry is always a committed version whatever kind of node it
// decodes to.
func (c SubstoreConfig) LatestVersion(transaction kv.Transaction) (jmt.Version, bool, error) {
	nodes, err := c.Nodes(transaction)

	if err != nil {
		return 0, false, err
	}

	key, value := nodes.Cursor().Last()

	if key == nil {
		return 0, false, nil
	}

	nodeKey, err := jmt.UnmarshalNodeKey(key)

	if err != nil {
		return 0, false, fmt.Errorf("substore %q: %w", c.Prefix, err)
	}

	if _, err := jmt.UnmarshalNode(value); err != nil {
		return 0, false, fmt.Errorf("substore %q: %w", c.Prefix, err)
	}

	return nodeKey.Version, true, nil
}
