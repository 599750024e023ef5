// Package stringtable implements the write side of a session's string
// table. Strings are interned under dense ids: a data stream holds the raw
// bytes and an index stream holds one fixed width record per id, in id
// order, so readers can locate any string by position alone.
package stringtable

import (
	"fmt"
	"sync"

	"github.com/felixge/selfprof/pkg/format"
	"github.com/felixge/selfprof/pkg/sink"
)

// Writer interns strings into a data sink and an index sink. It is safe for
// concurrent use.
type Writer struct {
	data  sink.Sink
	index sink.Sink

	mu       sync.Mutex
	next     format.StringID
	reserved [format.FirstDynamicStringID]format.IndexRecord
	flushed  bool // reserved block written to the index sink
	err      error
}

// NewWriter writes the two stream headers and returns a Writer over the
// sinks. The Writer takes ownership of both sinks and closes them in Close.
func NewWriter(data, index sink.Sink) (*Writer, error) {
	if _, err := data.WriteAtomic(format.MagicLen, func(b []byte) {
		copy(b, format.StringDataMagic)
	}); err != nil {
		return nil, fmt.Errorf("stringtable: write data header: %w", err)
	}
	if _, err := index.WriteAtomic(format.MagicLen, func(b []byte) {
		copy(b, format.StringIndexMagic)
	}); err != nil {
		return nil, fmt.Errorf("stringtable: write index header: %w", err)
	}
	return &Writer{data: data, index: index, next: format.FirstDynamicStringID}, nil
}

// Alloc interns s under a fresh dynamic id. Ids are handed out
// monotonically starting at FirstDynamicStringID. Equal strings interned
// twice get two ids, deduplication is left to callers.
func (w *Writer) Alloc(s string) (format.StringID, error) {
	off, err := w.writeData(s)
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	// The reserved block must precede all dynamic records so that the
	// index stream stays in id order.
	if !w.flushed && !w.flushReservedLocked() {
		return 0, w.err
	}
	id := w.next
	rec := format.IndexRecord{Offset: uint64(off), Length: uint32(len(s))}
	if _, err := w.index.WriteAtomic(format.IndexRecordSize, func(b []byte) {
		rec.Encode(b)
	}); err != nil {
		w.err = fmt.Errorf("stringtable: write index record: %w", err)
		return 0, w.err
	}
	w.next++
	return id, nil
}

// AllocReservedID interns s under the caller chosen reserved id. Reserved
// ids must be below FirstDynamicStringID, can be allocated at most once and
// only before the first dynamic Alloc.
func (w *Writer) AllocReservedID(id format.StringID, s string) error {
	if id >= format.FirstDynamicStringID {
		return fmt.Errorf("stringtable: id %d outside reserved range", id)
	}
	off, err := w.writeData(s)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.flushed {
		return fmt.Errorf("stringtable: reserved id %d allocated after dynamic ids", id)
	}
	if !w.reserved[id].Zero() {
		return fmt.Errorf("stringtable: reserved id %d allocated twice", id)
	}
	w.reserved[id] = format.IndexRecord{Offset: uint64(off), Length: uint32(len(s))}
	return nil
}

// AllocMetadata interns the session metadata payload under its reserved id.
func (w *Writer) AllocMetadata(payload string) error {
	return w.AllocReservedID(format.MetadataStringID, payload)
}

// Close flushes the reserved block if no dynamic allocation forced it out
// yet and closes both sinks.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.err == nil && !w.flushed {
		w.flushReservedLocked()
	}
	err := w.err
	w.mu.Unlock()
	if cerr := w.data.Close(); err == nil {
		err = cerr
	}
	if cerr := w.index.Close(); err == nil {
		err = cerr
	}
	return err
}

// writeData appends the raw string bytes to the data stream. This happens
// outside the table lock, the data sink serializes concurrent writes itself
// and the returned offset pins the bytes regardless of write order.
func (w *Writer) writeData(s string) (int64, error) {
	off, err := w.data.WriteAtomic(len(s), func(b []byte) { copy(b, s) })
	if err != nil {
		err = fmt.Errorf("stringtable: write string data: %w", err)
		w.mu.Lock()
		if w.err == nil {
			w.err = err
		}
		w.mu.Unlock()
		return 0, err
	}
	return off, nil
}

// flushReservedLocked writes all reserved index records as one contiguous
// block. Unallocated reserved slots stay zero, which readers treat as not
// allocated.
func (w *Writer) flushReservedLocked() bool {
	size := len(w.reserved) * format.IndexRecordSize
	if _, err := w.index.WriteAtomic(size, func(b []byte) {
		for i := range w.reserved {
			w.reserved[i].Encode(b[i*format.IndexRecordSize:])
		}
	}); err != nil {
		w.err = fmt.Errorf("stringtable: write reserved block: %w", err)
		return false
	}
	w.flushed = true
	return true
}
