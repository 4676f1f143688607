package simplecache

import "github.com/Keksclan/simplecache/store"

// ErrUnsupportedOperation is returned by Prime and Dump when the configured
// store lacks that capability. It is the same value as
// [store.ErrUnsupportedOperation].
var ErrUnsupportedOperation = store.ErrUnsupportedOperation
