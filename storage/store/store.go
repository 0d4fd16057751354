// Package store implements versioned, Merkle-authenticated key-value
// storage partitioned into substores. Each substore is an
// independently versioned tree identified by a string prefix; all
// substores share one physical backing store. Readers work against
// immutable point-in-time snapshots and can produce inclusion and
// non-inclusion proofs; writers advance one substore to its next
// version atomically.
package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ouzeldb/ouzel/storage/jmt"
	"github.com/ouzeldb/ouzel/storage/kv"
	"github.com/ouzeldb/ouzel/utils/log"
)

// Config contains the configuration for a store
type Config struct {
	// Logger is the logger that the store and everything descended
	// from it will use. Defaults to the global zap logger.
	Logger *zap.Logger
	// Store is the backing key-value store. It is shared and
	// thread-safe; the store does not assume exclusive ownership
	// and does not close it.
	Store kv.Store
	// Prefixes are the substore prefixes to serve, besides the root
	// substore which is always present
	Prefixes []string
	// MaxConcurrentCommits bounds how many commit bodies may run at
	// once across all substores. Defaults to 1.
	MaxConcurrentCommits int64
}

// Store serves versioned, authenticated reads and commits for a set
// of substores
type Store struct {
	logger  *zap.Logger
	kvStore kv.Store
	configs map[string]SubstoreConfig
	commits *semaphore.Weighted

	mu       sync.RWMutex
	versions map[string]jmt.Version
}

// New creates a store, creating any missing substore partitions and
// loading each substore's latest committed version
func New(config Config) (*Store, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("config.Store must not be nil")
	}

	logger := config.Logger

	if logger == nil {
		logger = zap.L()
	}

	maxCommits := config.MaxConcurrentCommits

	if maxCommits <= 0 {
		maxCommits = 1
	}

	configs := map[string]SubstoreConfig{"": NewSubstoreConfig("")}

	for _, prefix := range config.Prefixes {
		configs[prefix] = NewSubstoreConfig(prefix)
	}

	store := &Store{
		logger:   logger,
		kvStore:  config.Store,
		configs:  configs,
		commits:  semaphore.NewWeighted(maxCommits),
		versions: map[string]jmt.Version{},
	}

	if err := store.initialize(); err != nil {
		return nil, err
	}

	return store, nil
}

func (store *Store) initialize() error {
	transaction, err := store.kvStore.Begin(true)

	if err != nil {
		return wrapError("could not begin transaction", err)
	}

	defer transaction.Rollback()

	for _, config := range store.configs {
		for _, name := range config.Partitions() {
			if _, err := transaction.CreateBucket(name); err != nil {
				return wrapError(fmt.Sprintf("could not create partition %s", name), err)
			}
		}
	}

	if err := transaction.Commit(); err != nil {
		return wrapError("could not commit transaction", err)
	}

	return store.loadVersions()
}

func (store *Store) loadVersions() error {
	transaction, err := store.kvStore.Begin(false)

	if err != nil {
		return wrapError("could not begin transaction", err)
	}

	defer transaction.Rollback()

	for prefix, config := range store.configs {
		version, ok, err := config.LatestVersion(transaction)

		if err != nil {
			return err
		}

		if !ok {
			version = jmt.PreGenesisVersion
		}

		store.versions[prefix] = version

		store.logger.Debug("opened substore", zap.String("prefix", prefix), zap.Uint64("version", version))
	}

	return nil
}

// LatestVersion returns the newest committed version of the substore,
// or false if nothing was ever committed to it
func (store *Store) LatestVersion(prefix string) (jmt.Version, bool, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	version, ok := store.versions[prefix]

	if !ok {
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownSubstore, prefix)
	}

	return version, version != jmt.PreGenesisVersion, nil
}

// Snapshot captures a consistent point-in-time view across all
// substores. The caller must call Release when done with it.
func (store *Store) Snapshot() (*Snapshot, error) {
	// Versions are captured before the view begins so that every
	// bound version is contained in the view. A commit landing in
	// between only makes the view newer than the bound version,
	// which is always consistent; the other order could bind a
	// version whose root the view cannot see yet.
	store.mu.RLock()

	versions := make(map[string]jmt.Version, len(store.versions))

	for prefix, version := range store.versions {
		versions[prefix] = version
	}

	store.mu.RUnlock()

	transaction, err := store.kvStore.Begin(false)

	if err != nil {
		return nil, wrapError("could not begin transaction", err)
	}

	return &Snapshot{
		store:       store,
		transaction: transaction,
		versions:    versions,
	}, nil
}

// Commit applies the cache to the named substore, advancing it by one
// version, and returns the new root hash. The commit body runs on a
// bounded executor separate from the caller; the caller blocks until
// it finishes. Commits are not cancellable: ctx only carries log
// fields, and a commit either runs to completion or fails outright,
// leaving the prior version as the last-known-good state. Callers
// are responsible for serializing commits to the same substore.
func (store *Store) Commit(ctx context.Context, prefix string, cache *Cache) (jmt.RootHash, error) {
	config, ok := store.configs[prefix]

	if !ok {
		return jmt.ZeroRootHash, fmt.Errorf("%w: %q", ErrUnknownSubstore, prefix)
	}

	type result struct {
		root jmt.RootHash
		err  error
	}

	if err := store.commits.Acquire(context.Background(), 1); err != nil {
		return jmt.ZeroRootHash, wrapError("could not acquire commit slot", err)
	}

	done := make(chan result, 1)

	logger := log.WithContext(ctx, store.logger)

	go func() {
		defer store.commits.Release(1)

		root, err := store.commit(config, cache, logger)
		done <- result{root: root, err: err}
	}()

	r := <-done

	return r.root, r.err
}

// commit owns the cache and the pre-commit snapshot for its entire
// duration
func (store *Store) commit(config SubstoreConfig, cache *Cache, logger *zap.Logger) (jmt.RootHash, error) {
	store.mu.RLock()
	baseVersion := store.versions[config.Prefix]
	store.mu.RUnlock()

	// the pre-genesis sentinel wraps to version 0
	newVersion := baseVersion + 1

	transaction, err := store.kvStore.Begin(true)

	if err != nil {
		return jmt.ZeroRootHash, wrapError("could not begin transaction", err)
	}

	// Pre-commit state is read through the writable transaction
	// itself: it sees all committed state, and nodes and value log
	// entries of earlier versions are immutable. Holding a separate
	// read transaction open across Commit would block the commit in
	// its own goroutine whenever the driver needs to grow its map.
	snapshot := NewSubstoreSnapshot(config, transaction, baseVersion)

	root, err := NewSubstoreWriter(config, transaction).Commit(cache, snapshot, newVersion)

	if err != nil {
		transaction.Rollback()

		return jmt.ZeroRootHash, err
	}

	if err := transaction.Commit(); err != nil {
		return jmt.ZeroRootHash, wrapError("could not commit transaction", err)
	}

	store.mu.Lock()
	store.versions[config.Prefix] = newVersion
	store.mu.Unlock()

	logger.Debug(
		"committed version",
		zap.String("prefix", config.Prefix),
		zap.Uint64("version", newVersion),
		zap.String("root", hex.EncodeToString(root[:])),
	)

	return root, nil
}

// Snapshot is a consistent point-in-time view across all substores,
// each bound to its latest committed version at capture time
type Snapshot struct {
	store       *Store
	transaction kv.Transaction
	versions    map[string]jmt.Version
}

// Substore returns this snapshot's view of one substore
func (s *Snapshot) Substore(prefix string) (*SubstoreSnapshot, error) {
	config, ok := s.store.configs[prefix]

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubstore, prefix)
	}

	return NewSubstoreSnapshot(config, s.transaction, s.versions[prefix]), nil
}

// SubstoreAt returns this snapshot's view of one substore pinned to
// a version older than its latest. Tree nodes are immutable once
// written, so any committed version remains readable.
func (s *Snapshot) SubstoreAt(prefix string, version jmt.Version) (*SubstoreSnapshot, error) {
	config, ok := s.store.configs[prefix]

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubstore, prefix)
	}

	return NewSubstoreSnapshot(config, s.transaction, version), nil
}

// Release ends the snapshot's point-in-time view. Substore views
// created from this snapshot must not be used afterwards.
func (s *Snapshot) Release() error {
	return wrapError("could not release snapshot", s.transaction.Rollback())
}
