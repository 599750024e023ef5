// Package sink provides the append-only byte stores backing a profiling
// session. A sink serializes concurrent writers at byte granularity: each
// write lands as one contiguous run, but no ordering is guaranteed between
// concurrent writes.
package sink

import "errors"

// ErrClosed is returned by writes to a closed sink.
var ErrClosed = errors.New("sink: closed")

// A Sink is an append-only byte stream that is safe for concurrent writers.
type Sink interface {
	// WriteAtomic reserves size bytes at the current end of the stream and
	// calls fill exactly once with that region. It returns the stream
	// offset of the region's first byte. Concurrent calls never observe or
	// produce interleaved bytes. Errors are sticky: once a write fails,
	// every later call returns the same error.
	WriteAtomic(size int, fill func([]byte)) (int64, error)

	// Close flushes buffered bytes and releases the backing store. Write
	// errors that have not surfaced earlier are returned here.
	Close() error
}
