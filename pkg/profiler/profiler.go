// Package profiler implements the write side of a profiling session: an
// events stream plus a string table behind one shared object that any
// number of threads may record through.
package profiler

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/felixge/selfprof/pkg/format"
	"github.com/felixge/selfprof/pkg/sink"
	"github.com/felixge/selfprof/pkg/stringtable"
)

// Profiler owns the three backing streams of one session. All methods are
// safe for concurrent use.
type Profiler struct {
	events  sink.Sink
	table   *stringtable.Writer
	start   time.Time
	scratch sync.Pool // *eventScratch
}

// eventScratch carries a raw event together with a fill closure bound to it
// once, so the recording hot path does not allocate.
type eventScratch struct {
	ev   format.RawEvent
	fill func([]byte)
}

// New derives the session file triple from pathStem, creates the three
// backing files, writes their headers and the session metadata record, and
// captures the session's time zero.
func New(pathStem string) (*Profiler, error) {
	events, err := sink.NewFile(format.EventsPath(pathStem))
	if err != nil {
		return nil, err
	}
	data, err := sink.NewFile(format.StringDataPath(pathStem))
	if err != nil {
		events.Close()
		return nil, err
	}
	index, err := sink.NewFile(format.StringIndexPath(pathStem))
	if err != nil {
		events.Close()
		data.Close()
		return nil, err
	}
	return NewFromSinks(events, data, index)
}

// NewFromSinks is New over caller supplied sinks, for in-memory sessions
// and tests. The Profiler takes ownership of all three sinks.
func NewFromSinks(events, data, index sink.Sink) (*Profiler, error) {
	table, err := stringtable.NewWriter(data, index)
	if err != nil {
		events.Close()
		return nil, err
	}
	if _, err := events.WriteAtomic(format.MagicLen, func(b []byte) {
		copy(b, format.EventStreamMagic)
	}); err != nil {
		return nil, fmt.Errorf("profiler: write event header: %w", err)
	}
	p := &Profiler{events: events, table: table, start: time.Now()}
	p.scratch.New = func() any {
		s := &eventScratch{}
		s.fill = func(b []byte) { s.ev.Encode(b) }
		return s
	}
	if err := p.writeMetadata(); err != nil {
		return nil, err
	}
	return p, nil
}

// writeMetadata interns the session metadata record under its reserved id.
func (p *Profiler) writeMetadata() error {
	payload, err := json.Marshal(format.Metadata{
		StartTimeUnixNs: time.Now().UnixNano(),
		PID:             os.Getpid(),
		Cmd:             strings.Join(os.Args, " "),
	})
	if err != nil {
		return fmt.Errorf("profiler: encode metadata: %w", err)
	}
	return p.table.AllocMetadata(string(payload))
}

// RecordEvent appends one event timed against the session's time zero. This
// is the hot path: it does not allocate and may be called from any number
// of goroutines at once.
func (p *Profiler) RecordEvent(kind, id format.StringID, thread uint64, k format.TimestampKind) error {
	return p.RecordRawTime(kind, id, thread, p.nanosSinceStart(), k)
}

// RecordRawTime is RecordEvent with a caller supplied nanosecond offset,
// for replaying events recorded against another time base.
func (p *Profiler) RecordRawTime(kind, id format.StringID, thread, nanos uint64, k format.TimestampKind) error {
	s := p.scratch.Get().(*eventScratch)
	s.ev = format.NewRawEvent(kind, id, thread, nanos, k)
	_, err := p.events.WriteAtomic(format.RawEventSize, s.fill)
	p.scratch.Put(s)
	return err
}

// StartIntervalEvent records the Start of an interval and returns a guard
// whose Stop records the matching End. Stop is meant to be deferred so the
// End is written on every exit path, including panics unwinding through the
// calling frame.
func (p *Profiler) StartIntervalEvent(kind, id format.StringID, thread uint64) (TimingGuard, error) {
	if err := p.RecordEvent(kind, id, thread, format.Start); err != nil {
		return TimingGuard{}, err
	}
	return TimingGuard{p: p, kind: kind, id: id, thread: thread}, nil
}

// AllocString interns s and returns its dynamic id.
func (p *Profiler) AllocString(s string) (format.StringID, error) {
	return p.table.Alloc(s)
}

// AllocReservedString interns s under a reserved id. Reserved labels are
// established at session start so recurring event kinds do not pay the
// interning cost per use.
func (p *Profiler) AllocReservedString(id format.StringID, s string) error {
	return p.table.AllocReservedID(id, s)
}

// Close finalizes the string table and the events stream. Buffered write
// errors surface here at the latest.
func (p *Profiler) Close() error {
	err := p.table.Close()
	if cerr := p.events.Close(); err == nil {
		err = cerr
	}
	return err
}

func (p *Profiler) nanosSinceStart() uint64 {
	return uint64(time.Since(p.start).Nanoseconds())
}

// TimingGuard closes an interval opened by StartIntervalEvent.
type TimingGuard struct {
	p      *Profiler
	kind   format.StringID
	id     format.StringID
	thread uint64
	done   bool
}

// Stop records the End event for the guard's interval. Only the first call
// writes, later calls are no-ops.
func (g *TimingGuard) Stop() error {
	if g.done || g.p == nil {
		return nil
	}
	g.done = true
	return g.p.RecordEvent(g.kind, g.id, g.thread, format.End)
}
