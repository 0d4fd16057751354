package kv

import (
	"errors"

	"github.com/ouzeldb/ouzel/storage/kv/keys"
)

var (
	// ErrClosed indicates that the store was closed
	ErrClosed = errors.New("store was closed")
	// ErrNoSuchBucket indicates that the named bucket doesn't exist.
	// Either it hasn't been created or it was deleted.
	ErrNoSuchBucket = errors.New("bucket does not exist")
	// ErrReadOnly is returned when a read-only transaction attempts
	// an update operation
	ErrReadOnly = errors.New("transaction is read-only")
)

// SortOrder describes the iteration order of an iterator
type SortOrder int

const (
	// SortOrderAsc iterates keys in ascending lexicographical order
	SortOrderAsc SortOrder = iota
	// SortOrderDesc iterates keys in descending lexicographical order
	SortOrderDesc
)

// Plugin represents a kv storage driver
type Plugin interface {
	// Name returns the name of the storage driver
	Name() string
	// NewStore returns an instance of the driver's store
	NewStore(options PluginOptions) (Store, error)
	// NewTempStore returns an instance of the driver's store
	// initialized with some sane defaults. It is meant for
	// tests that need an initialized instance of the driver's
	// store without knowing how to initialize it
	NewTempStore() (Store, error)
}

// PluginOptions contains driver-specific initialization options
type PluginOptions map[string]interface{}

// Store is a shared, thread-safe handle to an ordered key-value
// store partitioned into named buckets. Many components may hold
// a reference to the same store; none may assume exclusive
// ownership. All mutation goes through the store's transactions.
type Store interface {
	// Begin starts a transaction. writable should be true for
	// read-write transactions and false for read-only transactions.
	// A read-only transaction observes a consistent point-in-time
	// view of every bucket in the store: writes committed after it
	// began are never visible through it. A read-write transaction
	// applies all of its updates atomically on Commit, across any
	// number of buckets; a reader never observes a partially
	// committed transaction. An open read-only transaction must not
	// block read-write transactions, though a driver may only uphold
	// this up to a configured capacity. A transaction must only be
	// used by one goroutine at a time.
	Begin(writable bool) (Transaction, error)
	// Close closes the store. Function calls to any I/O objects
	// descended from this store occurring after Close returns
	// must have no effect and return ErrClosed. Close must not
	// return until all transactions have either rolled back or
	// committed.
	Close() error
	// Delete closes then deletes this store and all its contents
	Delete() error
}

// Transaction is a transaction spanning all buckets of a store.
// It must only be used by one goroutine at a time.
type Transaction interface {
	// Bucket returns the bucket with this name. It returns
	// ErrNoSuchBucket if no bucket with this name exists.
	Bucket(name []byte) (Bucket, error)
	// CreateBucket creates the bucket with this name if it does
	// not exist and returns it. It has no effect if the bucket
	// already exists. It must return ErrReadOnly if the transaction
	// is read-only.
	CreateBucket(name []byte) (Bucket, error)
	// Commit commits the transaction
	Commit() error
	// Rollback rolls back the transaction. Rolling back a read-only
	// transaction releases its point-in-time view.
	Rollback() error
}

// Bucket is a sorted key-value map inside a transaction. Its
// contents are ordered by the lexicographical order of the keys.
type Bucket interface {
	// Get gets a key. It must observe updates to that key made
	// previously by this transaction. It must return nil if the
	// requested key does not exist.
	Get(key []byte) ([]byte, error)
	// Put puts a key. Put must return an error if the key is nil
	// or empty.
	Put(key, value []byte) error
	// Delete deletes a key. If the key doesn't exist it has no
	// effect and returns nil.
	Delete(key []byte) error
	// Keys creates an iterator that iterates over the range
	// of keys in the given order
	Keys(keys keys.Range, order SortOrder) (Iterator, error)
	// Cursor creates a cursor positioned nowhere. Seek-to-last
	// positioning comes from Cursor().Last().
	Cursor() Cursor
}

// Iterator iterates over a set of keys. It must only be used by
// one goroutine at a time. Consumers should not attempt to use an
// iterator once its parent transaction has been rolled back.
type Iterator interface {
	// Next advances the iterator to the next key.
	// A fresh iterator must call Next once to
	// advance to the first key. Next returns false
	// if there is no next key or if it encounters an
	// error.
	Next() bool
	// Key returns the current key
	Key() []byte
	// Value returns the current value
	Value() []byte
	// Error returns the error, if any.
	Error() error
}

// Cursor moves over the keys of a bucket in lexicographical order
type Cursor interface {
	// First positions the cursor at the first key
	First() (key []byte, value []byte)
	// Last positions the cursor at the last key
	Last() (key []byte, value []byte)
	// Next positions the cursor at the next key
	Next() (key []byte, value []byte)
	// Prev positions the cursor at the previous key
	Prev() (key []byte, value []byte)
	// Seek positions the cursor at the first key >= seek
	Seek(seek []byte) (key []byte, value []byte)
}
