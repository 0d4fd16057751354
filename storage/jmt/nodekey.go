package jmt

import (
	"encoding/binary"
	"fmt"

	"github.com/ouzeldb/ouzel/storage/kv/keys"
)

// maxPathBits is the depth of the tree, fixed by the width of
// the key hash
const maxPathBits = 8 * len(KeyHash{})

// Path is the position of a node in the tree: the sequence of
// branch choices from the root, most significant bit first.
// The zero value is the root path.
type Path struct {
	bits   []byte
	length int
}

// RootPath returns the path of the root node
func RootPath() Path {
	return Path{}
}

// PathFromKeyHash returns the path made of the first n bits of
// the key hash
func PathFromKeyHash(kh KeyHash, n int) Path {
	bits := make([]byte, (n+7)/8)

	copy(bits, kh[:len(bits)])

	if n%8 != 0 {
		bits[len(bits)-1] &= 0xff << (8 - n%8)
	}

	return Path{bits: bits, length: n}
}

// Len returns the number of bits in the path
func (p Path) Len() int {
	return p.length
}

// Bit returns the i-th bit of the path
func (p Path) Bit(i int) byte {
	return (p.bits[i/8] >> (7 - i%8)) & 1
}

// Child returns the path extended by one branch choice
func (p Path) Child(bit byte) Path {
	bits := make([]byte, (p.length+8)/8)

	copy(bits, p.bits)

	if bit != 0 {
		bits[p.length/8] |= 0x80 >> (p.length % 8)
	}

	return Path{bits: bits, length: p.length + 1}
}

// Equal returns true if both paths denote the same position
func (p Path) Equal(q Path) bool {
	if p.length != q.length {
		return false
	}

	for i := range p.bits {
		if p.bits[i] != q.bits[i] {
			return false
		}
	}

	return true
}

// Marshal returns the native serialization of the path: a
// fixed-width big-endian bit count followed by the packed bits,
// unused trailing bits zero. For paths within one version the
// serialization orders parents before descendants and shallower
// nodes before deeper ones, so the greatest serialized path of a
// version is its deepest node.
func (p Path) Marshal() []byte {
	b := make([]byte, 2+len(p.bits))

	binary.BigEndian.PutUint16(b, uint16(p.length))
	copy(b[2:], p.bits)

	return b
}

// UnmarshalPath decodes a serialized path. Malformed input is a
// corruption error, never skipped.
func UnmarshalPath(b []byte) (Path, error) {
	if len(b) < 2 {
		return Path{}, fmt.Errorf("%w: %d bytes is too short to contain a path", ErrCorruptNodeKey, len(b))
	}

	length := int(binary.BigEndian.Uint16(b))

	if length > maxPathBits {
		return Path{}, fmt.Errorf("%w: path of %d bits exceeds the tree depth", ErrCorruptNodeKey, length)
	}

	if len(b)-2 != (length+7)/8 {
		return Path{}, fmt.Errorf("%w: path of %d bits cannot occupy %d bytes", ErrCorruptNodeKey, length, len(b)-2)
	}

	bits := make([]byte, len(b)-2)

	copy(bits, b[2:])

	if length%8 != 0 && bits[len(bits)-1]&^(0xff<<(8-length%8)) != 0 {
		return Path{}, fmt.Errorf("%w: path has non-zero padding bits", ErrCorruptNodeKey)
	}

	return Path{bits: bits, length: length}, nil
}

// NodeKey identifies one node in one tree at the version it was
// created
type NodeKey struct {
	Version Version
	Path    Path
}

// Marshal encodes the node key as the big-endian version followed
// by the path serialization. For two node keys with versions
// v1 < v2 the encodings compare as v1 < v2 bytewise regardless of
// the paths, so seeking to the last encoded key of a node
// partition lands on the highest version.
func (k NodeKey) Marshal() []byte {
	version := keys.Uint64ToKey(k.Version)
	path := k.Path.Marshal()
	b := make([]byte, 0, len(version)+len(path))

	b = append(b, version[:]...)
	b = append(b, path...)

	return b
}

// UnmarshalNodeKey decodes an encoded node key, stripping the
// fixed-width version prefix and deserializing the remainder
func UnmarshalNodeKey(b []byte) (NodeKey, error) {
	if len(b) < 8 {
		return NodeKey{}, fmt.Errorf("%w: %d bytes is too short to contain a version", ErrCorruptNodeKey, len(b))
	}

	path, err := UnmarshalPath(b[8:])

	if err != nil {
		return NodeKey{}, err
	}

	return NodeKey{Version: keys.KeyToUint64([8]byte(b[:8])), Path: path}, nil
}
