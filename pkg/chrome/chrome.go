// Package chrome converts a session into the Trace Event Format JSON
// understood by chrome://tracing and Perfetto.
//
// Start and End events map to "B" and "E" phase events, the event id
// becomes the slice name and the event kind its category. Timestamps are
// microseconds relative to the session start.
package chrome

import (
	"encoding/json"
	"io"

	"github.com/felixge/selfprof/pkg/profdata"
)

// traceEvent is one entry of the traceEvents array.
type traceEvent struct {
	Name string            `json:"name"`
	Cat  string            `json:"cat,omitempty"`
	Ph   string            `json:"ph"`
	Ts   float64           `json:"ts"`
	Pid  int               `json:"pid"`
	Tid  uint64            `json:"tid"`
	Args map[string]string `json:"args,omitempty"`
}

// document is the top level JSON object.
type document struct {
	TraceEvents []traceEvent `json:"traceEvents"`
}

// Convert writes d's events as one Trace Event Format document to w.
func Convert(d *profdata.Data, w io.Writer) error {
	meta, err := d.Metadata()
	if err != nil {
		return err
	}

	doc := document{TraceEvents: []traceEvent{{
		// Process metadata gives the viewer a readable process name.
		Name: "process_name",
		Ph:   "M",
		Pid:  meta.PID,
		Args: map[string]string{"name": meta.Cmd},
	}}}

	var ev profdata.Event
	for {
		err := d.Decode(&ev)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		ph := "B"
		if ev.End {
			ph = "E"
		}
		doc.TraceEvents = append(doc.TraceEvents, traceEvent{
			Name: ev.ID,
			Cat:  ev.Kind,
			Ph:   ph,
			Ts:   float64(ev.Nanos) / 1e3,
			Pid:  meta.PID,
			Tid:  ev.Thread,
		})
	}
	return json.NewEncoder(w).Encode(doc)
}
