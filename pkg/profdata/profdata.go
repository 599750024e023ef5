// Package profdata reads a recorded session back. It validates the stream
// headers, loads the string index into memory and decodes events in storage
// order, resolving their labels on demand.
package profdata

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/mmap"

	"github.com/felixge/selfprof/pkg/format"
)

// Event is one decoded event with its labels resolved.
type Event struct {
	Kind    string // resolved kind label
	ID      string // resolved id label
	KindRef format.StringID
	IDRef   format.StringID
	Thread  uint64
	Nanos   uint64 // nanoseconds since session start
	End     bool
}

// Data is an open session. Events are consumed with Decode in a single
// forward pass, reopen the session to restart.
type Data struct {
	events *os.File
	in     *bufio.Reader
	data   *mmap.ReaderAt
	index  []format.IndexRecord
	cache  map[format.StringID]string
	n      int
	buf    [format.RawEventSize]byte // scratch buf
}

// Open opens the session triple derived from pathStem and validates all
// three stream headers.
func Open(pathStem string) (*Data, error) {
	d := &Data{cache: make(map[format.StringID]string)}

	events, err := os.Open(format.EventsPath(pathStem))
	if err != nil {
		return nil, fmt.Errorf("profdata: %w", err)
	}
	d.events = events
	if err := d.openEvents(); err != nil {
		events.Close()
		return nil, err
	}

	data, err := mmap.Open(format.StringDataPath(pathStem))
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("profdata: %w", err)
	}
	d.data = data
	if err := checkMmapMagic(data, format.StringDataMagic); err != nil {
		d.closeFiles()
		return nil, err
	}

	if err := d.loadIndex(format.StringIndexPath(pathStem)); err != nil {
		d.closeFiles()
		return nil, err
	}
	return d, nil
}

// openEvents validates the events header and the stream length.
func (d *Data) openEvents() error {
	st, err := d.events.Stat()
	if err != nil {
		return fmt.Errorf("profdata: %w", err)
	}
	d.in = bufio.NewReader(d.events)
	header := make([]byte, format.MagicLen)
	if _, err := io.ReadFull(d.in, header); err != nil {
		return fmt.Errorf("profdata: events file: %w", format.ErrBadMagic)
	}
	if err := format.CheckMagic(header, format.EventStreamMagic); err != nil {
		return fmt.Errorf("profdata: events file: %w", err)
	}
	rest := st.Size() - format.MagicLen
	if rest%format.RawEventSize != 0 {
		return fmt.Errorf("profdata: events file truncated: %d trailing bytes", rest%format.RawEventSize)
	}
	d.n = int(rest / format.RawEventSize)
	return nil
}

// loadIndex reads the whole index stream into memory. The index is small,
// one fixed size record per interned string.
func (d *Data) loadIndex(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("profdata: %w", err)
	}
	if err := format.CheckMagic(data, format.StringIndexMagic); err != nil {
		return fmt.Errorf("profdata: index file: %w", err)
	}
	body := data[format.MagicLen:]
	if len(body)%format.IndexRecordSize != 0 {
		return fmt.Errorf("profdata: index file truncated: %d trailing bytes", len(body)%format.IndexRecordSize)
	}
	d.index = make([]format.IndexRecord, len(body)/format.IndexRecordSize)
	for i := range d.index {
		d.index[i].Decode(body[i*format.IndexRecordSize:])
	}
	return nil
}

func checkMmapMagic(r *mmap.ReaderAt, want []byte) error {
	header := make([]byte, format.MagicLen)
	if _, err := r.ReadAt(header, 0); err != nil {
		return fmt.Errorf("profdata: string data file: %w", format.ErrBadMagic)
	}
	if err := format.CheckMagic(header, want); err != nil {
		return fmt.Errorf("profdata: string data file: %w", err)
	}
	return nil
}

// Decode reads the next event into ev. It returns io.EOF after the last
// event.
func (d *Data) Decode(ev *Event) error {
	if _, err := io.ReadFull(d.in, d.buf[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("profdata: read event: %w", err)
	}
	var raw format.RawEvent
	raw.Decode(d.buf[:])
	ev.KindRef = raw.Kind
	ev.IDRef = raw.ID
	ev.Thread = raw.Thread
	ev.Nanos = raw.Nanos()
	ev.End = raw.IsEnd()
	var err error
	if ev.Kind, err = d.LookupString(raw.Kind); err != nil {
		return err
	}
	if ev.ID, err = d.LookupString(raw.ID); err != nil {
		return err
	}
	return nil
}

// NumEvents returns the total number of events in the session.
func (d *Data) NumEvents() int { return d.n }

// LookupString resolves id to its interned string. Results are cached.
func (d *Data) LookupString(id format.StringID) (string, error) {
	if s, ok := d.cache[id]; ok {
		return s, nil
	}
	if int(id) >= len(d.index) {
		return "", fmt.Errorf("profdata: string id %d out of range", id)
	}
	rec := d.index[id]
	if rec.Zero() {
		return "", fmt.Errorf("profdata: string id %d not allocated", id)
	}
	if int64(rec.Offset)+int64(rec.Length) > int64(d.data.Len()) {
		return "", fmt.Errorf("profdata: string id %d out of data bounds", id)
	}
	buf := make([]byte, rec.Length)
	if _, err := d.data.ReadAt(buf, int64(rec.Offset)); err != nil {
		return "", fmt.Errorf("profdata: read string %d: %w", id, err)
	}
	s := string(buf)
	d.cache[id] = s
	return s, nil
}

// Strings calls fn for every allocated id in id order, reserved ids first.
func (d *Data) Strings(fn func(id format.StringID, s string) error) error {
	for i := range d.index {
		if d.index[i].Zero() {
			continue
		}
		id := format.StringID(i)
		s, err := d.LookupString(id)
		if err != nil {
			return err
		}
		if err := fn(id, s); err != nil {
			return err
		}
	}
	return nil
}

// Metadata returns the decoded session metadata record.
func (d *Data) Metadata() (format.Metadata, error) {
	var m format.Metadata
	s, err := d.LookupString(format.MetadataStringID)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return m, fmt.Errorf("profdata: parse metadata: %w", err)
	}
	return m, nil
}

// Close releases the underlying files.
func (d *Data) Close() error {
	return d.closeFiles()
}

func (d *Data) closeFiles() error {
	err := d.events.Close()
	if d.data != nil {
		if cerr := d.data.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
