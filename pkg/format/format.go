// Package format defines the binary wire format of a profiling session: the
// stream magics, string ids, raw event records and string index records
// shared by the writer and reader side. All integers are little-endian and
// all records are fixed width, so readers can locate any record by position
// without length prefixes.
package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Stream magics. Every file of a session triple starts with the 4 byte magic
// of its stream kind.
var (
	EventStreamMagic = []byte("SPEV")
	StringDataMagic  = []byte("SPSD")
	StringIndexMagic = []byte("SPSI")
)

// MagicLen is the length of a stream magic in bytes.
const MagicLen = 4

// ErrBadMagic is returned when a stream does not start with the expected
// magic.
var ErrBadMagic = errors.New("bad file magic")

// CheckMagic verifies that buf starts with the magic want.
func CheckMagic(buf, want []byte) error {
	if len(buf) < MagicLen || !bytes.Equal(buf[:MagicLen], want) {
		return fmt.Errorf("%w: want %q", ErrBadMagic, want)
	}
	return nil
}

// StringID identifies an interned string within one session. Ids below
// FirstDynamicStringID are reserved for callers, the rest are handed out
// dynamically in allocation order. An id is never reused within a session.
type StringID uint64

const (
	// MetadataStringID is the reserved id of the session metadata record.
	MetadataStringID StringID = 0

	// FirstDynamicStringID is the first dynamically allocated id. Ids in
	// [0, FirstDynamicStringID) are reserved.
	FirstDynamicStringID StringID = 32
)

// TimestampKind distinguishes the opening and closing record of an interval.
type TimestampKind uint8

const (
	Start TimestampKind = iota
	End
)

// endBit tags the timestamp field of End events. The remaining 63 bits hold
// the nanosecond offset from the session start.
const endBit = uint64(1) << 63

// RawEventSize is the encoded size of a RawEvent in bytes.
const RawEventSize = 32

// RawEvent is one fixed width event record.
type RawEvent struct {
	Kind   StringID
	ID     StringID
	Thread uint64
	Time   uint64 // nanosecond offset, endBit tagged
}

// NewRawEvent returns a RawEvent for the given nanosecond offset, tagged as
// kind k.
func NewRawEvent(kind, id StringID, thread, nanos uint64, k TimestampKind) RawEvent {
	t := nanos &^ endBit
	if k == End {
		t |= endBit
	}
	return RawEvent{Kind: kind, ID: id, Thread: thread, Time: t}
}

// Nanos returns the event's nanosecond offset from the session start.
func (e *RawEvent) Nanos() uint64 { return e.Time &^ endBit }

// IsEnd reports whether the event closes an interval.
func (e *RawEvent) IsEnd() bool { return e.Time&endBit != 0 }

// Encode writes the event into buf, which must hold at least RawEventSize
// bytes.
func (e *RawEvent) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Kind))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.ID))
	binary.LittleEndian.PutUint64(buf[16:24], e.Thread)
	binary.LittleEndian.PutUint64(buf[24:32], e.Time)
}

// Decode reads the event from buf, which must hold at least RawEventSize
// bytes.
func (e *RawEvent) Decode(buf []byte) {
	e.Kind = StringID(binary.LittleEndian.Uint64(buf[0:8]))
	e.ID = StringID(binary.LittleEndian.Uint64(buf[8:16]))
	e.Thread = binary.LittleEndian.Uint64(buf[16:24])
	e.Time = binary.LittleEndian.Uint64(buf[24:32])
}

// IndexRecordSize is the encoded size of an IndexRecord in bytes.
const IndexRecordSize = 12

// IndexRecord locates one interned string inside the string data stream. The
// record for id i starts at byte IndexPos(i) of the index stream.
type IndexRecord struct {
	Offset uint64 // absolute offset into the string data file
	Length uint32
}

// Zero reports whether the record is an unallocated reserved slot. Allocated
// records always have a nonzero offset because the data stream starts with
// its magic.
func (r *IndexRecord) Zero() bool { return r.Offset == 0 && r.Length == 0 }

// Encode writes the record into buf, which must hold at least
// IndexRecordSize bytes.
func (r *IndexRecord) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], r.Offset)
	binary.LittleEndian.PutUint32(buf[8:12], r.Length)
}

// Decode reads the record from buf, which must hold at least IndexRecordSize
// bytes.
func (r *IndexRecord) Decode(buf []byte) {
	r.Offset = binary.LittleEndian.Uint64(buf[0:8])
	r.Length = binary.LittleEndian.Uint32(buf[8:12])
}

// IndexPos returns the byte offset of id's record within the index stream.
func IndexPos(id StringID) int64 {
	return MagicLen + int64(id)*IndexRecordSize
}

// Metadata is the JSON payload interned under MetadataStringID when a
// session starts.
type Metadata struct {
	StartTimeUnixNs int64  `json:"start_time_unix_ns"`
	PID             int    `json:"pid"`
	Cmd             string `json:"cmd"`
}

// EventsPath returns the events file path for a session stem.
func EventsPath(stem string) string { return stem + ".events" }

// StringDataPath returns the string data file path for a session stem.
func StringDataPath(stem string) string { return stem + ".string_data" }

// StringIndexPath returns the string index file path for a session stem.
func StringIndexPath(stem string) string { return stem + ".string_index" }
