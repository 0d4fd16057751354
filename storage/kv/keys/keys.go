package keys

import (
	"bytes"
	"encoding/binary"
)

// Uint64ToKey constructs a big-endian key from a uint64.
// Big-endian keys compare bytewise the same way the integers
// compare numerically, which is what makes version-prefixed
// keys range-queryable.
func Uint64ToKey(n uint64) [8]byte {
	var k [8]byte

	binary.BigEndian.PutUint64(k[:], n)

	return k
}

// KeyToUint64 reads a big-endian uint64 from a key
func KeyToUint64(k [8]byte) uint64 {
	return binary.BigEndian.Uint64(k[:])
}

// Key is a single key
type Key []byte

// Compare compares two keys
// -1 means a < b
// 1 means a > b
// 0 means a = b
func Compare(a, b Key) int {
	return bytes.Compare(a, b)
}

// Inc increments the key, treating it as a big-endian
// unsigned integer
func Inc(key Key) Key {
	carry := true
	after := make(Key, len(key))

	copy(after, key)

	for i := len(after) - 1; i >= 0 && carry; i-- {
		if key[i] < 0xff {
			carry = false
		}

		after[i] = key[i] + 1
	}

	// carry will only be true if all elements of key
	// were equal to 0xff. The range should just go
	// all the way to the end of the real key range.
	if carry {
		return nil
	}

	return after
}

// Next returns the key directly after key such that there
// can exist no other key between them
func Next(key Key) Key {
	next := make(Key, len(key)+1)

	copy(next, key)

	return next
}
