package jmt

import (
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// memStore implements Reader over plain maps and absorbs node
// batches, standing in for the storage layer in tree tests
type memStore struct {
	nodes  map[string][]byte
	values map[KeyHash]map[Version]ValueEntry
}

var _ Reader = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		nodes:  map[string][]byte{},
		values: map[KeyHash]map[Version]ValueEntry{},
	}
}

func (store *memStore) apply(batch *NodeBatch) {
	for _, entry := range batch.Nodes() {
		store.nodes[string(entry.Key.Marshal())] = entry.Node.Marshal()
	}

	for _, entry := range batch.Values() {
		if store.values[entry.KeyHash] == nil {
			store.values[entry.KeyHash] = map[Version]ValueEntry{}
		}

		store.values[entry.KeyHash][entry.Version] = entry
	}
}

func (store *memStore) Node(key NodeKey) (*Node, error) {
	b, ok := store.nodes[string(key.Marshal())]

	if !ok {
		return nil, nil
	}

	return UnmarshalNode(b)
}

func (store *memStore) Value(maxVersion Version, keyHash KeyHash) ([]byte, error) {
	var best *ValueEntry

	for version, entry := range store.values[keyHash] {
		if version > maxVersion {
			continue
		}

		if best == nil || version > best.Version {
			entry := entry
			best = &entry
		}
	}

	if best == nil || best.Tombstone {
		return nil, nil
	}

	return best.Value, nil
}

func (store *memStore) RightmostLeaf() (*NodeKey, *Node, error) {
	encoded := make([]string, 0, len(store.nodes))

	for key := range store.nodes {
		encoded = append(encoded, key)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(encoded)))

	for _, key := range encoded {
		node, err := UnmarshalNode(store.nodes[key])

		if err != nil {
			return nil, nil, err
		}

		if !node.IsLeaf() {
			continue
		}

		nodeKey, err := UnmarshalNodeKey([]byte(key))

		if err != nil {
			return nil, nil, err
		}

		return &nodeKey, node, nil
	}

	return nil, nil, nil
}

func (store *memStore) Preimage(keyHash KeyHash) ([]byte, error) {
	return nil, nil
}

func upsert(key, value string) ValueUpdate {
	return ValueUpdate{KeyHash: HashKey([]byte(key)), Value: []byte(value)}
}

func remove(key string) ValueUpdate {
	return ValueUpdate{KeyHash: HashKey([]byte(key)), Delete: true}
}

func commit(t *testing.T, store *memStore, updates []ValueUpdate, baseVersion, newVersion Version) RootHash {
	t.Helper()

	root, batch, err := New(store).PutValueSet(updates, baseVersion, newVersion)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	store.apply(batch)

	return root
}

func TestTreeEmpty(t *testing.T) {
	store := newMemStore()
	root := commit(t, store, nil, PreGenesisVersion, 0)

	if root != ZeroRootHash {
		t.Fatalf("expected the all-zero root, got %x", root)
	}

	stored, err := New(store).RootHash(0)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if stored != ZeroRootHash {
		t.Fatalf("expected the all-zero root, got %x", stored)
	}

	value, err := New(store).Get(HashKey([]byte("anything")), 0)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if value != nil {
		t.Fatalf("expected value to be nil, got %#v", value)
	}
}

func TestTreeMissingRoot(t *testing.T) {
	store := newMemStore()

	if _, err := New(store).RootHash(42); err == nil {
		t.Fatalf("expected err to be non-nil")
	}

	if _, err := New(store).Get(HashKey([]byte("a")), 42); err == nil {
		t.Fatalf("expected err to be non-nil")
	}
}

func TestTreePutGetAcrossVersions(t *testing.T) {
	store := newMemStore()

	root0 := commit(t, store, []ValueUpdate{
		upsert("alpha", "1"),
		upsert("beta", "2"),
		upsert("gamma", "3"),
	}, PreGenesisVersion, 0)

	root1 := commit(t, store, []ValueUpdate{
		upsert("alpha", "updated"),
		remove("beta"),
	}, 0, 1)

	if root0 == root1 {
		t.Fatalf("expected roots to differ")
	}

	tree := New(store)

	testCases := []struct {
		key     string
		version Version
		value   []byte
	}{
		{key: "alpha", version: 0, value: []byte("1")},
		{key: "beta", version: 0, value: []byte("2")},
		{key: "gamma", version: 0, value: []byte("3")},
		{key: "alpha", version: 1, value: []byte("updated")},
		{key: "beta", version: 1, value: nil},
		{key: "gamma", version: 1, value: []byte("3")},
		{key: "never written", version: 1, value: nil},
	}

	for _, testCase := range testCases {
		t.Run(fmt.Sprintf("%s at version %d", testCase.key, testCase.version), func(t *testing.T) {
			value, err := tree.Get(HashKey([]byte(testCase.key)), testCase.version)

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			diff := cmp.Diff(testCase.value, value)

			if diff != "" {
				t.Fatalf("values differ: %s", diff)
			}
		})
	}
}

func TestTreeNoOpCommitKeepsRoot(t *testing.T) {
	store := newMemStore()
	root0 := commit(t, store, []ValueUpdate{upsert("a", "1"), upsert("b", "2")}, PreGenesisVersion, 0)
	root1 := commit(t, store, nil, 0, 1)

	if root0 != root1 {
		t.Fatalf("expected root %x at the new version, got %x", root0, root1)
	}

	stored, err := New(store).RootHash(1)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if stored != root0 {
		t.Fatalf("expected root %x to be stored at the new version, got %x", root0, stored)
	}
}

func TestTreeDeleteToEmpty(t *testing.T) {
	store := newMemStore()

	commit(t, store, []ValueUpdate{upsert("only", "1")}, PreGenesisVersion, 0)

	root := commit(t, store, []ValueUpdate{remove("only")}, 0, 1)

	if root != ZeroRootHash {
		t.Fatalf("expected the all-zero root, got %x", root)
	}

	value, err := New(store).Get(HashKey([]byte("only")), 1)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if value != nil {
		t.Fatalf("expected value to be nil, got %#v", value)
	}
}

// The tree's shape, and so its root, must depend only on the
// surviving set of keys and values, not on the order of the commits
// that produced it.
func TestTreeRootIsShapeIndependent(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	incremental := newMemStore()
	base := PreGenesisVersion

	for i, key := range keys {
		commit(t, incremental, []ValueUpdate{upsert(key, key)}, base, Version(i))
		base = Version(i)
	}

	removed := []string{"b", "e", "f", "h"}

	for i, key := range removed {
		commit(t, incremental, []ValueUpdate{remove(key)}, base, Version(len(keys)+i))
		base = Version(len(keys) + i)
	}

	fresh := newMemStore()
	surviving := []ValueUpdate{upsert("a", "a"), upsert("c", "c"), upsert("d", "d"), upsert("g", "g")}
	freshRoot := commit(t, fresh, surviving, PreGenesisVersion, 0)

	incrementalRoot, err := New(incremental).RootHash(base)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if incrementalRoot != freshRoot {
		t.Fatalf("expected root %x, got %x", freshRoot, incrementalRoot)
	}

	for _, key := range []string{"a", "c", "d", "g"} {
		value, err := New(incremental).Get(HashKey([]byte(key)), base)

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		diff := cmp.Diff([]byte(key), value)

		if diff != "" {
			t.Fatalf("values differ for key %s: %s", key, diff)
		}
	}
}

func TestTreeProofs(t *testing.T) {
	store := newMemStore()
	root := commit(t, store, []ValueUpdate{
		upsert("present", "value"),
		upsert("another", "thing"),
		upsert("third", "entry"),
	}, PreGenesisVersion, 0)

	tree := New(store)

	t.Run("inclusion", func(t *testing.T) {
		value, proof, err := tree.GetWithProof([]byte("present"), 0)

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if string(value) != "value" {
			t.Fatalf("expected value %q, got %q", "value", value)
		}

		if err := proof.VerifyInclusion(root, []byte("present"), value); err != nil {
			t.Fatalf("expected proof to verify, got %#v", err)
		}

		if err := proof.VerifyInclusion(root, []byte("present"), []byte("forged")); err == nil {
			t.Fatalf("expected forged value to fail verification")
		}

		if err := proof.VerifyInclusion(ZeroRootHash, []byte("present"), value); err == nil {
			t.Fatalf("expected wrong root to fail verification")
		}
	})

	t.Run("non-inclusion", func(t *testing.T) {
		value, proof, err := tree.GetWithProof([]byte("absent"), 0)

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if value != nil {
			t.Fatalf("expected value to be nil, got %#v", value)
		}

		if err := proof.VerifyNonInclusion(root, []byte("absent")); err != nil {
			t.Fatalf("expected proof to verify, got %#v", err)
		}

		if err := proof.VerifyNonInclusion(root, []byte("present")); err == nil {
			t.Fatalf("expected proof for a present key to fail verification")
		}
	})

	t.Run("non-inclusion in an empty tree", func(t *testing.T) {
		empty := newMemStore()

		commit(t, empty, nil, PreGenesisVersion, 0)

		value, proof, err := New(empty).GetWithProof([]byte("absent"), 0)

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if value != nil {
			t.Fatalf("expected value to be nil, got %#v", value)
		}

		if err := proof.VerifyNonInclusion(ZeroRootHash, []byte("absent")); err != nil {
			t.Fatalf("expected proof to verify, got %#v", err)
		}
	})
}

func TestTreeRightmostLeaf(t *testing.T) {
	store := newMemStore()

	commit(t, store, []ValueUpdate{upsert("a", "1"), upsert("b", "2")}, PreGenesisVersion, 0)
	commit(t, store, []ValueUpdate{upsert("c", "3")}, 0, 1)

	nodeKey, node, err := store.RightmostLeaf()

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if nodeKey == nil || node == nil {
		t.Fatalf("expected a rightmost leaf")
	}

	if nodeKey.Version != 1 {
		t.Fatalf("expected the rightmost leaf to be at version 1, got %d", nodeKey.Version)
	}
}
