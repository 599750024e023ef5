// Package collapse reconstructs per thread call stacks from a session's
// event sequence and folds them into weighted, flamegraph ready stack
// lines. The fold is a single forward pass whose memory is proportional to
// the number of threads times the deepest stack, not to the event count.
package collapse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/felixge/selfprof/pkg/format"
	"github.com/felixge/selfprof/pkg/profdata"
)

// EventSource yields decoded events in storage order. *profdata.Data
// implements it.
type EventSource interface {
	Decode(*profdata.Event) error
}

// frame is one open interval on a thread's stack.
type frame struct {
	kind  format.StringID
	id    format.StringID
	start uint64
	path  string // folded path from the root through this frame
}

// Stacks folds src into a map from semicolon joined stack path to weight.
// Each frame contributes its kind and id labels as two path components.
// intervalMs calibrates the weight unit: a closed frame adds its elapsed
// nanoseconds divided by intervalMs milliseconds, truncated, to its path.
//
// Traces that are not well formed return an error: an End without a
// matching open Start, an End whose kind or id does not match the open
// frame, an End before its Start, or frames still open when the sequence
// ends.
func Stacks(src EventSource, intervalMs uint64) (map[string]int64, error) {
	if intervalMs == 0 {
		return nil, errors.New("collapse: interval must be positive")
	}
	unit := intervalMs * 1_000_000

	var (
		stacks = make(map[uint64][]frame)
		folded = make(map[string]int64)
		ev     profdata.Event
	)
	for {
		if err := src.Decode(&ev); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		stack := stacks[ev.Thread]
		if !ev.End {
			path := ev.Kind + ";" + ev.ID
			if len(stack) > 0 {
				path = stack[len(stack)-1].path + ";" + path
			}
			stacks[ev.Thread] = append(stack, frame{
				kind:  ev.KindRef,
				id:    ev.IDRef,
				start: ev.Nanos,
				path:  path,
			})
			continue
		}
		if len(stack) == 0 {
			return nil, fmt.Errorf("collapse: thread %d: end of %s;%s with no open frame", ev.Thread, ev.Kind, ev.ID)
		}
		top := stack[len(stack)-1]
		if top.kind != ev.KindRef || top.id != ev.IDRef {
			return nil, fmt.Errorf("collapse: thread %d: end of %s;%s does not match open frame %s", ev.Thread, ev.Kind, ev.ID, top.path)
		}
		if ev.Nanos < top.start {
			return nil, fmt.Errorf("collapse: thread %d: %s ends before it starts", ev.Thread, top.path)
		}
		stacks[ev.Thread] = stack[:len(stack)-1]
		folded[top.path] += int64((ev.Nanos - top.start) / unit)
	}

	// A frame still open at the end of the sequence means the trace lost
	// its End events. Reporting a flamegraph anyway would misattribute
	// that time.
	for thread, stack := range stacks {
		if len(stack) > 0 {
			return nil, fmt.Errorf("collapse: thread %d: %d frame(s) open at end of trace, innermost %s", thread, len(stack), stack[len(stack)-1].path)
		}
	}
	return folded, nil
}

// WriteOptions control the folded text output.
type WriteOptions struct {
	// KeepZero emits lines whose weight truncated to zero. Most renderers
	// skip such lines, so they are omitted unless requested.
	KeepZero bool
}

// Write emits stacks as "path count" lines sorted by path.
func Write(w io.Writer, stacks map[string]int64, opts WriteOptions) error {
	paths := make([]string, 0, len(stacks))
	for path, n := range stacks {
		if n == 0 && !opts.KeepZero {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	bw := bufio.NewWriter(w)
	for _, path := range paths {
		if _, err := fmt.Fprintf(bw, "%s %d\n", path, stacks[path]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
