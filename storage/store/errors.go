package store

import (
	"errors"
	"fmt"

	"github.com/ouzeldb/ouzel/storage/kv"
)

var (
	// ErrClosed indicates that the backing store was closed
	ErrClosed = errors.New("store was closed")
	// ErrMissingPartition indicates that a partition required by a
	// substore does not exist in the backing store. The store was
	// opened without being initialized for that substore; this is a
	// configuration fault, not a runtime condition to recover from.
	ErrMissingPartition = errors.New("substore partition does not exist")
	// ErrUnknownSubstore is returned when an operation names a
	// substore prefix that the store was not configured with
	ErrUnknownSubstore = errors.New("substore prefix is not configured")
	// ErrCorruptValueLog indicates that a stored value log entry
	// could not be decoded
	ErrCorruptValueLog = errors.New("malformed value log entry")
)

func wrapError(wrap string, err error) error {
	switch err {
	case kv.ErrClosed:
		return ErrClosed
	case ErrClosed:
		fallthrough
	case nil:
		return err
	}

	return fmt.Errorf("%s: %w", wrap, err)
}
