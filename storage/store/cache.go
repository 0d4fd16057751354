package store

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
)

// Change is one pending update: an upsert carrying a value, or a
// delete
type Change struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Cache is the change-set consumed by one commit: pending updates to
// the verifiable store and to the non-verifiable store. Keys are
// unique within each mapping; staging a key again replaces the
// earlier pending change. Changes iterate in key order so applying a
// cache is deterministic.
type Cache struct {
	verifiable    *treemap.Map
	nonverifiable *treemap.Map
}

// NewCache returns an empty change-set
func NewCache() *Cache {
	return &Cache{
		verifiable:    treemap.NewWith(utils.StringComparator),
		nonverifiable: treemap.NewWith(utils.StringComparator),
	}
}

// Put stages an upsert of a verifiable key
func (cache *Cache) Put(key, value []byte) {
	cache.verifiable.Put(string(key), Change{Key: dup(key), Value: dup(value)})
}

// Delete stages a delete of a verifiable key
func (cache *Cache) Delete(key []byte) {
	cache.verifiable.Put(string(key), Change{Key: dup(key), Delete: true})
}

// PutNonverifiable stages an upsert of a non-verifiable key
func (cache *Cache) PutNonverifiable(key, value []byte) {
	cache.nonverifiable.Put(string(key), Change{Key: dup(key), Value: dup(value)})
}

// DeleteNonverifiable stages a delete of a non-verifiable key
func (cache *Cache) DeleteNonverifiable(key []byte) {
	cache.nonverifiable.Put(string(key), Change{Key: dup(key), Delete: true})
}

// Empty returns true if the cache stages no changes at all
func (cache *Cache) Empty() bool {
	return cache.verifiable.Empty() && cache.nonverifiable.Empty()
}

// VerifiableChanges returns the pending verifiable changes in key
// order
func (cache *Cache) VerifiableChanges() []Change {
	return changes(cache.verifiable)
}

// NonverifiableChanges returns the pending non-verifiable changes in
// key order
func (cache *Cache) NonverifiableChanges() []Change {
	return changes(cache.nonverifiable)
}

func changes(m *treemap.Map) []Change {
	out := make([]Change, 0, m.Size())
	iter := m.Iterator()

	for iter.Next() {
		out = append(out, iter.Value().(Change))
	}

	return out
}

func dup(b []byte) []byte {
	if b == nil {
		return nil
	}

	out := make([]byte, len(b))

	copy(out, b)

	return out
}
