// Package ingest converts Go runtime traces into sessions. GC cycles and
// stop the world pauses become interval events, so runtime behavior can be
// analyzed with the same tools as recorded application sessions.
package ingest

import (
	"fmt"
	"io"

	"honnef.co/go/gotraceui/trace"

	"github.com/felixge/selfprof/pkg/format"
	"github.com/felixge/selfprof/pkg/profiler"
)

// Synthetic thread ids. GC cycles and their pauses overlap in time, so
// they live on separate threads to keep each thread's intervals nested.
const (
	gcThread  = 0
	stwThread = 1
)

// Stats reports what a trace contributed to the session.
type Stats struct {
	GCCycles  int // gc cycle intervals recorded
	Pauses    int // stop the world intervals recorded
	Truncated int // intervals closed at the end of a cut off trace
}

// Trace parses a runtime trace from r and records its intervals into p.
func Trace(r io.Reader, p *profiler.Profiler) (Stats, error) {
	t, err := trace.Parse(r, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("ingest: parse trace: %w", err)
	}
	return Events(t.Events, p)
}

// Events records the intervals of already parsed trace events into p.
// Timestamps are rebased to the first event so the session starts at zero.
// A trace can stop mid interval, dangling intervals are closed at the
// final timestamp so the session stays well formed.
func Events(events []trace.Event, p *profiler.Profiler) (Stats, error) {
	if len(events) == 0 {
		return Stats{}, fmt.Errorf("ingest: trace contains no events")
	}

	gc, err := p.AllocString("gc")
	if err != nil {
		return Stats{}, err
	}
	cycle, err := p.AllocString("cycle")
	if err != nil {
		return Stats{}, err
	}
	pause, err := p.AllocString("stop-the-world")
	if err != nil {
		return Stats{}, err
	}

	var (
		stats        Stats
		base         = events[0].Ts
		gcRunning    bool
		worldStopped bool
	)
	for _, e := range events {
		nanos := uint64(e.Ts - base)
		switch e.Type {
		case trace.EvGCStart:
			if gcRunning {
				return stats, fmt.Errorf("ingest: unexpected gc start at %d", e.Ts)
			}
			gcRunning = true
			stats.GCCycles++
			err = p.RecordRawTime(gc, cycle, gcThread, nanos, format.Start)
		case trace.EvGCDone:
			if !gcRunning {
				return stats, fmt.Errorf("ingest: unexpected gc done at %d", e.Ts)
			}
			gcRunning = false
			err = p.RecordRawTime(gc, cycle, gcThread, nanos, format.End)
		case trace.EvGCSTWStart:
			if worldStopped {
				return stats, fmt.Errorf("ingest: unexpected stw start at %d", e.Ts)
			}
			worldStopped = true
			stats.Pauses++
			err = p.RecordRawTime(gc, pause, stwThread, nanos, format.Start)
		case trace.EvGCSTWDone:
			if !worldStopped {
				return stats, fmt.Errorf("ingest: unexpected stw done at %d", e.Ts)
			}
			worldStopped = false
			err = p.RecordRawTime(gc, pause, stwThread, nanos, format.End)
		default:
			continue
		}
		if err != nil {
			return stats, err
		}
	}

	end := uint64(events[len(events)-1].Ts - base)
	if worldStopped {
		stats.Truncated++
		if err := p.RecordRawTime(gc, pause, stwThread, end, format.End); err != nil {
			return stats, err
		}
	}
	if gcRunning {
		stats.Truncated++
		if err := p.RecordRawTime(gc, cycle, gcThread, end, format.End); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
