package store

import (
	"fmt"

	"github.com/ouzeldb/ouzel/storage/jmt"
	"github.com/ouzeldb/ouzel/storage/kv"
)

var _ jmt.Writer = (*SubstoreWriter)(nil)

// SubstoreWriter applies one commit to one substore through a
// writable transaction. All five partitions are mutated inside that
// single transaction, so a reader never observes a partially applied
// commit and a failed commit leaves no visible effect once the
// transaction rolls back.
type SubstoreWriter struct {
	config      SubstoreConfig
	transaction kv.Transaction
}

// NewSubstoreWriter creates a writer over a writable transaction.
// The caller owns the transaction and commits or rolls it back.
func NewSubstoreWriter(config SubstoreConfig, transaction kv.Transaction) *SubstoreWriter {
	return &SubstoreWriter{
		config:      config,
		transaction: transaction,
	}
}

// Commit applies the cache on top of the snapshot as newVersion and
// returns the new root hash. The snapshot must be bound to the
// version directly preceding newVersion.
//
// The preimage and reverse indices are updated before the tree runs:
// a deleted key's preimage must stay resolvable for proofs generated
// against the prior version's snapshot, while the new version's live
// state must not resolve it. Both effects land in the same
// transaction so no intermediate state is observable.
func (w *SubstoreWriter) Commit(cache *Cache, snapshot *SubstoreSnapshot, newVersion jmt.Version) (jmt.RootHash, error) {
	changes := cache.VerifiableChanges()
	updates := make([]jmt.ValueUpdate, len(changes))

	preimages, err := w.config.Keys(w.transaction)

	if err != nil {
		return jmt.ZeroRootHash, err
	}

	byKeyHash, err := w.config.KeysByKeyHash(w.transaction)

	if err != nil {
		return jmt.ZeroRootHash, err
	}

	for i, change := range changes {
		keyHash := jmt.HashKey(change.Key)

		updates[i] = jmt.ValueUpdate{
			KeyHash: keyHash,
			Value:   change.Value,
			Delete:  change.Delete,
		}

		if change.Delete {
			if err := preimages.Delete(change.Key); err != nil {
				return jmt.ZeroRootHash, wrapError(fmt.Sprintf("could not update preimage index for substore %s", w.config.Prefix), err)
			}

			if err := byKeyHash.Delete(keyHash[:]); err != nil {
				return jmt.ZeroRootHash, wrapError(fmt.Sprintf("could not update reverse index for substore %s", w.config.Prefix), err)
			}

			continue
		}

		if err := preimages.Put(change.Key, keyHash[:]); err != nil {
			return jmt.ZeroRootHash, wrapError(fmt.Sprintf("could not update preimage index for substore %s", w.config.Prefix), err)
		}

		if err := byKeyHash.Put(keyHash[:], change.Key); err != nil {
			return jmt.ZeroRootHash, wrapError(fmt.Sprintf("could not update reverse index for substore %s", w.config.Prefix), err)
		}
	}

	root, batch, err := jmt.New(snapshot).PutValueSet(updates, snapshot.Version(), newVersion)

	if err != nil {
		return jmt.ZeroRootHash, wrapError(fmt.Sprintf("could not update tree for substore %s", w.config.Prefix), err)
	}

	if err := w.WriteNodeBatch(batch); err != nil {
		return jmt.ZeroRootHash, err
	}

	if err := w.applyNonverifiable(cache); err != nil {
		return jmt.ZeroRootHash, err
	}

	return root, nil
}

// WriteNodeBatch implements jmt.Writer.WriteNodeBatch. Nodes are
// stored under their encoded node keys and value log entries under
// versioned key hashes, deletes as explicit tombstones.
func (w *SubstoreWriter) WriteNodeBatch(batch *jmt.NodeBatch) error {
	nodes, err := w.config.Nodes(w.transaction)

	if err != nil {
		return err
	}

	values, err := w.config.Values(w.transaction)

	if err != nil {
		return err
	}

	for _, entry := range batch.Nodes() {
		if err := nodes.Put(entry.Key.Marshal(), entry.Node.Marshal()); err != nil {
			return wrapError(fmt.Sprintf("could not write tree node for substore %s", w.config.Prefix), err)
		}
	}

	for _, entry := range batch.Values() {
		key := versionedKeyHash(entry.KeyHash, entry.Version)

		if err := values.Put(key, marshalValueLog(entry.Value, entry.Tombstone)); err != nil {
			return wrapError(fmt.Sprintf("could not write value log entry for substore %s", w.config.Prefix), err)
		}
	}

	return nil
}

// applyNonverifiable writes the non-verifiable changes directly to
// their partition. These never reach the tree and contribute nothing
// to the root hash.
func (w *SubstoreWriter) applyNonverifiable(cache *Cache) error {
	bucket, err := w.config.Nonverifiable(w.transaction)

	if err != nil {
		return err
	}

	for _, change := range cache.NonverifiableChanges() {
		if change.Delete {
			if err := bucket.Delete(change.Key); err != nil {
				return wrapError(fmt.Sprintf("could not delete non-verifiable key for substore %s", w.config.Prefix), err)
			}

			continue
		}

		if err := bucket.Put(change.Key, change.Value); err != nil {
			return wrapError(fmt.Sprintf("could not write non-verifiable key for substore %s", w.config.Prefix), err)
		}
	}

	return nil
}
