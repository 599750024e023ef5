// Package summary aggregates the matched intervals of a session per event
// kind.
package summary

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/felixge/selfprof/pkg/collapse"
	"github.com/felixge/selfprof/pkg/format"
	"github.com/felixge/selfprof/pkg/profdata"
)

// Stat aggregates all closed intervals of one event kind.
type Stat struct {
	Kind  string
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Mean returns the average interval duration.
func (s *Stat) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// openFrame tracks the subset of an open interval the aggregation needs.
type openFrame struct {
	kind  format.StringID
	id    format.StringID
	label string
	start uint64
}

// Compute folds src into per kind statistics, sorted by total duration
// descending. It applies the same well-formedness rules as the collapse
// package: a malformed trace returns an error instead of partial numbers.
func Compute(src collapse.EventSource) ([]Stat, error) {
	var (
		stacks = make(map[uint64][]openFrame)
		stats  = make(map[string]*Stat)
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
			stacks[ev.Thread] = append(stack, openFrame{
				kind:  ev.KindRef,
				id:    ev.IDRef,
				label: ev.Kind,
				start: ev.Nanos,
			})
			continue
		}
		if len(stack) == 0 {
			return nil, fmt.Errorf("summary: thread %d: end of %s;%s with no open frame", ev.Thread, ev.Kind, ev.ID)
		}
		top := stack[len(stack)-1]
		if top.kind != ev.KindRef || top.id != ev.IDRef {
			return nil, fmt.Errorf("summary: thread %d: end of %s;%s does not match open frame", ev.Thread, ev.Kind, ev.ID)
		}
		if ev.Nanos < top.start {
			return nil, fmt.Errorf("summary: thread %d: %s ends before it starts", ev.Thread, ev.Kind)
		}
		stacks[ev.Thread] = stack[:len(stack)-1]

		elapsed := time.Duration(ev.Nanos - top.start)
		st := stats[top.label]
		if st == nil {
			st = &Stat{Kind: top.label, Min: elapsed}
			stats[top.label] = st
		}
		st.Count++
		st.Total += elapsed
		if elapsed < st.Min {
			st.Min = elapsed
		}
		if elapsed > st.Max {
			st.Max = elapsed
		}
	}
	for thread, stack := range stacks {
		if len(stack) > 0 {
			return nil, fmt.Errorf("summary: thread %d: %d frame(s) open at end of trace", thread, len(stack))
		}
	}

	out := make([]Stat, 0, len(stats))
	for _, st := range stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

// WriteTable renders stats as a text table. top > 0 limits the rows to the
// top entries by total duration, percentages stay relative to all stats.
func WriteTable(w io.Writer, stats []Stat, top int) {
	var grand time.Duration
	for _, s := range stats {
		grand += s.Total
	}
	rows := make([][]string, 0, len(stats))
	for _, s := range cut(stats, top) {
		pct := float64(0)
		if grand > 0 {
			pct = float64(s.Total) / float64(grand) * 100
		}
		rows = append(rows, []string{
			s.Kind,
			strconv.FormatInt(s.Count, 10),
			s.Total.String(),
			s.Min.String(),
			s.Max.String(),
			s.Mean().String(),
			fmt.Sprintf("%.2f%%", pct),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Kind", "Count", "Total", "Min", "Max", "Mean", "%"})
	table.AppendBulk(rows)
	table.SetFooter([]string{"Total", "", grand.String(), "", "", "", "100.00%"})
	table.Render()
}

// WriteCSV writes stats as CSV with nanosecond values.
func WriteCSV(w io.Writer, stats []Stat, top int) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"kind", "count", "total_ns", "min_ns", "max_ns", "mean_ns"})
	for _, s := range cut(stats, top) {
		cw.Write([]string{
			s.Kind,
			strconv.FormatInt(s.Count, 10),
			strconv.FormatInt(int64(s.Total), 10),
			strconv.FormatInt(int64(s.Min), 10),
			strconv.FormatInt(int64(s.Max), 10),
			strconv.FormatInt(int64(s.Mean()), 10),
		})
	}
	cw.Flush()
	return cw.Error()
}

func cut(stats []Stat, top int) []Stat {
	if top > 0 && len(stats) > top {
		return stats[:top]
	}
	return stats
}
