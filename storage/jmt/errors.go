package jmt

import "errors"

var (
	// ErrMissingRoot indicates that no root node exists at the
	// requested version. The storage layer treats this as benign
	// only at the pre-genesis version; anywhere else it is a
	// genuine fault.
	ErrMissingRoot = errors.New("tree has no root at this version")
	// ErrMissingNode indicates that a node referenced by its
	// parent could not be found. This is a data-consistency fault.
	ErrMissingNode = errors.New("referenced tree node not found")
	// ErrCorruptNode indicates that stored node bytes could not
	// be decoded
	ErrCorruptNode = errors.New("malformed tree node")
	// ErrCorruptNodeKey indicates that a stored node key could
	// not be decoded
	ErrCorruptNodeKey = errors.New("malformed node key")
	// ErrCorruptValue indicates that a stored value log entry is
	// inconsistent with the leaf that points at it
	ErrCorruptValue = errors.New("value log entry inconsistent with leaf")
)
