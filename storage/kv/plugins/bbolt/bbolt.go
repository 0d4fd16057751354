package bbolt

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ouzeldb/ouzel/storage/kv"
	"github.com/ouzeldb/ouzel/storage/kv/keys"
	"github.com/ouzeldb/ouzel/utils/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// DriverName is the name this driver registers under
	DriverName = "bbolt"

	// initialMmapSize reserves address space for the memory map up
	// front. A writer that allocates past the mapped region has to
	// remap, and remapping waits for every open read transaction,
	// so without the reservation a long-lived read transaction
	// would block writers.
	initialMmapSize = 1 << 30
)

// Plugins returns the plugins implemented by this driver
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&Plugin{},
	}
}

var _ kv.Plugin = (*Plugin)(nil)

// Plugin implements kv.Plugin for bbolt
type Plugin struct {
}

// Name implements Plugin.Name
func (plugin *Plugin) Name() string {
	return DriverName
}

// NewStore implements Plugin.NewStore
func (plugin *Plugin) NewStore(options kv.PluginOptions) (kv.Store, error) {
	var config StoreConfig

	if path, ok := options["path"]; !ok {
		return nil, fmt.Errorf("\"path\" is required")
	} else if pathString, ok := path.(string); !ok {
		return nil, fmt.Errorf("\"path\" must be a string")
	} else {
		config.Path = pathString
	}

	return New(config)
}

// NewTempStore implements Plugin.NewTempStore
func (plugin *Plugin) NewTempStore() (kv.Store, error) {
	return plugin.NewStore(kv.PluginOptions{
		"path": filepath.Join(os.TempDir(), fmt.Sprintf("bbolt-%s", uuid.MustUUID())),
	})
}

// StoreConfig contains configuration for a bbolt store
type StoreConfig struct {
	Path string
}

// New opens a bbolt store at the configured path, creating it
// if it does not exist
func New(config StoreConfig) (*Store, error) {
	db, err := bolt.Open(config.Path, 0666, &bolt.Options{InitialMmapSize: initialMmapSize})

	if err != nil {
		return nil, fmt.Errorf("could not open bbolt store at %s: %w", config.Path, err)
	}

	return &Store{db: db}, nil
}

var _ kv.Store = (*Store)(nil)

// Store implements kv.Store on top of a single bbolt database.
// Buckets map to top-level bbolt buckets. bbolt gives us the
// properties the contract asks for: read-only transactions are
// consistent point-in-time views and read-write transactions
// commit atomically across buckets. Readers stop blocking writers
// only within the reserved map size; should the data outgrow it, a
// writer that must remap waits for open read transactions to end.
type Store struct {
	db *bolt.DB
}

// Begin implements Store.Begin
func (store *Store) Begin(writable bool) (kv.Transaction, error) {
	transaction, err := store.db.Begin(writable)

	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}

	return &transactionImpl{transaction: transaction}, nil
}

// Close implements Store.Close
func (store *Store) Close() error {
	return store.db.Close()
}

// Delete implements Store.Delete
func (store *Store) Delete() error {
	path := store.db.Path()

	if err := store.Close(); err != nil {
		return fmt.Errorf("could not close store: %w", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("could not remove path %s: %w", path, err)
	}

	return nil
}

var _ kv.Transaction = (*transactionImpl)(nil)

type transactionImpl struct {
	transaction *bolt.Tx
}

// Bucket implements Transaction.Bucket
func (transaction *transactionImpl) Bucket(name []byte) (kv.Bucket, error) {
	bucket := transaction.transaction.Bucket(name)

	if bucket == nil {
		return nil, kv.ErrNoSuchBucket
	}

	return &bucketImpl{bucket: bucket}, nil
}

// CreateBucket implements Transaction.CreateBucket
func (transaction *transactionImpl) CreateBucket(name []byte) (kv.Bucket, error) {
	if !transaction.transaction.Writable() {
		return nil, kv.ErrReadOnly
	}

	bucket, err := transaction.transaction.CreateBucketIfNotExists(name)

	if err != nil {
		return nil, fmt.Errorf("could not create bucket %s: %w", name, err)
	}

	return &bucketImpl{bucket: bucket}, nil
}

// Commit implements Transaction.Commit
func (transaction *transactionImpl) Commit() error {
	return transaction.transaction.Commit()
}

// Rollback implements Transaction.Rollback
func (transaction *transactionImpl) Rollback() error {
	return transaction.transaction.Rollback()
}

var _ kv.Bucket = (*bucketImpl)(nil)

type bucketImpl struct {
	bucket *bolt.Bucket
}

// Get implements Bucket.Get
func (bucket *bucketImpl) Get(key []byte) ([]byte, error) {
	return bucket.bucket.Get(key), nil
}

// Put implements Bucket.Put
func (bucket *bucketImpl) Put(key, value []byte) error {
	return bucket.bucket.Put(key, value)
}

// Delete implements Bucket.Delete
func (bucket *bucketImpl) Delete(key []byte) error {
	return bucket.bucket.Delete(key)
}

// Keys implements Bucket.Keys
func (bucket *bucketImpl) Keys(r keys.Range, order kv.SortOrder) (kv.Iterator, error) {
	if order != kv.SortOrderAsc && order != kv.SortOrderDesc {
		order = kv.SortOrderAsc
	}

	return &iteratorImpl{cursor: bucket.bucket.Cursor(), r: r, order: order}, nil
}

// Cursor implements Bucket.Cursor
func (bucket *bucketImpl) Cursor() kv.Cursor {
	return &cursorImpl{cursor: bucket.bucket.Cursor()}
}

var _ kv.Iterator = (*iteratorImpl)(nil)

type iteratorImpl struct {
	cursor  *bolt.Cursor
	r       keys.Range
	order   kv.SortOrder
	key     []byte
	value   []byte
	started bool
}

// Next implements Iterator.Next
func (iterator *iteratorImpl) Next() bool {
	var key, value []byte

	if iterator.order == kv.SortOrderDesc {
		key, value = iterator.prev()
	} else {
		key, value = iterator.next()
	}

	iterator.started = true

	if key == nil || !iterator.r.Contains(key) {
		iterator.key = nil
		iterator.value = nil

		return false
	}

	iterator.key = key
	iterator.value = value

	return true
}

func (iterator *iteratorImpl) next() ([]byte, []byte) {
	if iterator.started {
		return iterator.cursor.Next()
	}

	if iterator.r.Min == nil {
		return iterator.cursor.First()
	}

	return iterator.cursor.Seek(iterator.r.Min)
}

func (iterator *iteratorImpl) prev() ([]byte, []byte) {
	if iterator.started {
		return iterator.cursor.Prev()
	}

	if iterator.r.Max == nil {
		return iterator.cursor.Last()
	}

	// Seek positions the cursor at the first key >= Max. The
	// upper bound is exclusive so the entry before it, if any,
	// is where descending iteration starts.
	key, _ := iterator.cursor.Seek(iterator.r.Max)

	if key == nil {
		// All keys are < Max
		return iterator.cursor.Last()
	}

	return iterator.cursor.Prev()
}

// Key implements Iterator.Key
func (iterator *iteratorImpl) Key() []byte {
	return iterator.key
}

// Value implements Iterator.Value
func (iterator *iteratorImpl) Value() []byte {
	return iterator.value
}

// Error implements Iterator.Error
func (iterator *iteratorImpl) Error() error {
	return nil
}

var _ kv.Cursor = (*cursorImpl)(nil)

type cursorImpl struct {
	cursor *bolt.Cursor
}

// First implements Cursor.First
func (cursor *cursorImpl) First() (key []byte, value []byte) {
	return cursor.cursor.First()
}

// Last implements Cursor.Last
func (cursor *cursorImpl) Last() (key []byte, value []byte) {
	return cursor.cursor.Last()
}

// Next implements Cursor.Next
func (cursor *cursorImpl) Next() (key []byte, value []byte) {
	return cursor.cursor.Next()
}

// Prev implements Cursor.Prev
func (cursor *cursorImpl) Prev() (key []byte, value []byte) {
	return cursor.cursor.Prev()
}

// Seek implements Cursor.Seek
func (cursor *cursorImpl) Seek(seek []byte) (key []byte, value []byte) {
	return cursor.cursor.Seek(seek)
}
