// Package print renders sessions as text for inspection.
package print

import (
	"fmt"
	"io"

	"github.com/felixge/selfprof/pkg/format"
	"github.com/felixge/selfprof/pkg/profdata"
)

// DefaultEventFilter returns a filter that matches all events.
func DefaultEventFilter() EventFilter {
	return EventFilter{MaxNanos: -1, Thread: -1}
}

// EventFilter is used to filter events.
type EventFilter struct {
	// MinNanos prints events with a timestamp >= MinNanos. The unit is
	// nanoseconds since session start.
	MinNanos uint64
	// MaxNanos prints events with a timestamp <= MaxNanos. If MaxNanos is
	// -1, there is no upper limit.
	MaxNanos int64
	// Thread only prints events from this thread. If Thread is -1, events
	// from all threads are printed.
	Thread int64
	// Kind only prints events with this kind label. If Kind is empty,
	// events of all kinds are printed.
	Kind string
}

// Events prints all events of d that match the given filter to w, one per
// line in storage order.
func Events(d *profdata.Data, w io.Writer, filter EventFilter) error {
	var ev profdata.Event
	for {
		if err := d.Decode(&ev); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !matchMinNanos(ev, filter.MinNanos) ||
			!matchMaxNanos(ev, filter.MaxNanos) ||
			!matchThread(ev, filter.Thread) ||
			!matchKind(ev, filter.Kind) {
			continue
		}
		printEvent(w, ev)
	}
}

// matchMinNanos returns true if ev is >= minNanos.
func matchMinNanos(ev profdata.Event, minNanos uint64) bool {
	return ev.Nanos >= minNanos
}

// matchMaxNanos returns true if ev is <= maxNanos or maxNanos is -1.
func matchMaxNanos(ev profdata.Event, maxNanos int64) bool {
	return maxNanos == -1 || ev.Nanos <= uint64(maxNanos)
}

// matchThread returns true if ev belongs to thread or thread is -1.
func matchThread(ev profdata.Event, thread int64) bool {
	return thread == -1 || ev.Thread == uint64(thread)
}

// matchKind returns true if ev has the kind label or kind is empty.
func matchKind(ev profdata.Event, kind string) bool {
	return kind == "" || ev.Kind == kind
}

// printEvent prints a single event to w.
func printEvent(w io.Writer, ev profdata.Event) {
	verb := "start"
	if ev.End {
		verb = "end"
	}
	fmt.Fprintf(w, "%d %-5s %s;%s thread=%d\n", ev.Nanos, verb, ev.Kind, ev.ID, ev.Thread)
}

// Strings prints the string table of d to w, one allocated id per line in
// id order.
func Strings(d *profdata.Data, w io.Writer) error {
	return d.Strings(func(id format.StringID, s string) error {
		_, err := fmt.Fprintf(w, "%d: %q\n", id, s)
		return err
	})
}
