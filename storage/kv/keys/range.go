package keys

import (
	"bytes"
)

// All returns a new key range matching all keys
func All() Range {
	return Range{}
}

// Range represents all keys such that
//
//	k >= Min and k < Max
//
// If Min = nil that indicates the start of all keys
// If Max = nil that indicates the end of all keys
// If multiple modifiers are called on a range the end
// result is effectively the same as ANDing all the
// restrictions.
type Range struct {
	Min []byte
	Max []byte
}

// Eq confines the range to just key k
func (r Range) Eq(k []byte) Range {
	return r.Gte(k).Lte(k)
}

// Gt confines the range to keys that are
// greater than k
func (r Range) Gt(k []byte) Range {
	return r.refineMin(Next(k))
}

// Gte confines the range to keys that are
// greater than or equal to k
func (r Range) Gte(k []byte) Range {
	return r.refineMin(k)
}

// Lt confines the range to keys that are
// less than k
func (r Range) Lt(k []byte) Range {
	return r.refineMax(k)
}

// Lte confines the range to keys that are
// less than or equal to k
func (r Range) Lte(k []byte) Range {
	return r.refineMax(Next(k))
}

// Prefix confines the range to keys that
// have the prefix k
func (r Range) Prefix(k []byte) Range {
	return r.Gte(k).Lt(Inc(k))
}

// Contains returns true if k falls inside the range
func (r Range) Contains(k []byte) bool {
	if compare(k, r.Min) < 0 {
		return false
	}

	return r.Max == nil || bytes.Compare(k, r.Max) < 0
}

func (r Range) refineMin(min []byte) Range {
	if compare(min, r.Min) <= 0 {
		return r
	}

	r.Min = min

	return r
}

func (r Range) refineMax(max []byte) Range {
	if r.Max != nil && compare(max, r.Max) >= 0 {
		return r
	}

	r.Max = max

	return r
}

func compare(a []byte, b []byte) int {
	if a == nil {
		if b == nil {
			return 0
		}

		return -1
	}

	if b == nil {
		return 1
	}

	return bytes.Compare(a, b)
}
