package store

import (
	"fmt"

	"github.com/ouzeldb/ouzel/storage/jmt"
	"github.com/ouzeldb/ouzel/storage/kv/keys"
)

// versionedKeyHash encodes a (key hash, version) pair as the storage
// key of one value log entry. The fixed-width big-endian version
// suffix keeps all entries of one key hash adjacent and ordered by
// version, so value-at-or-before is a bounded range scan.
func versionedKeyHash(keyHash jmt.KeyHash, version jmt.Version) []byte {
	suffix := keys.Uint64ToKey(version)
	b := make([]byte, 0, len(keyHash)+len(suffix))

	b = append(b, keyHash[:]...)
	b = append(b, suffix[:]...)

	return b
}

const (
	valueLogTombstone byte = 0
	valueLogPresent   byte = 1
)

// marshalValueLog encodes one value log entry. Deletions are stored
// as explicit tombstones, not key removals, so point-in-time reads
// at earlier versions stay unaffected.
func marshalValueLog(value []byte, tombstone bool) []byte {
	if tombstone {
		return []byte{valueLogTombstone}
	}

	b := make([]byte, 1+len(value))

	b[0] = valueLogPresent
	copy(b[1:], value)

	return b
}

// unmarshalValueLog decodes one value log entry, returning nil for a
// tombstone. Malformed entries are corruption errors, never skipped.
func unmarshalValueLog(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: entry is empty", ErrCorruptValueLog)
	}

	switch b[0] {
	case valueLogTombstone:
		if len(b) != 1 {
			return nil, fmt.Errorf("%w: tombstone carries %d trailing bytes", ErrCorruptValueLog, len(b)-1)
		}

		return nil, nil
	case valueLogPresent:
		value := make([]byte, len(b)-1)

		copy(value, b[1:])

		return value, nil
	default:
		return nil, fmt.Errorf("%w: unknown entry marker %d", ErrCorruptValueLog, b[0])
	}
}
