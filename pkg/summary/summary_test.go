package summary

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/require"

	"github.com/felixge/selfprof/pkg/format"
	"github.com/felixge/selfprof/pkg/profdata"
)

func TestCompute(t *testing.T) {
	src := newEventBuilder().
		// Two db intervals of 2ms and 4ms on different threads.
		add("db", "get", 1, 0, false).
		add("db", "put", 2, 0, false).
		add("db", "get", 1, 2_000_000, true).
		add("db", "put", 2, 4_000_000, true).
		// One nested render interval of 1ms.
		add("render", "page", 1, 5_000_000, false).
		add("render", "page", 1, 6_000_000, true).
		source()

	stats, err := Compute(src)
	require.NoError(t, err)
	require.Equal(t, []Stat{
		{Kind: "db", Count: 2, Total: 6 * time.Millisecond, Min: 2 * time.Millisecond, Max: 4 * time.Millisecond},
		{Kind: "render", Count: 1, Total: time.Millisecond, Min: time.Millisecond, Max: time.Millisecond},
	}, stats)
	require.Equal(t, 3*time.Millisecond, stats[0].Mean())
}

func TestComputeSortIsDeterministic(t *testing.T) {
	// Kinds with equal totals order by name.
	src := newEventBuilder().
		add("b", "x", 1, 0, false).
		add("b", "x", 1, 1_000_000, true).
		add("a", "x", 1, 2_000_000, false).
		add("a", "x", 1, 3_000_000, true).
		source()
	stats, err := Compute(src)
	require.NoError(t, err)
	require.Equal(t, "a", stats[0].Kind)
	require.Equal(t, "b", stats[1].Kind)
}

func TestComputeMalformed(t *testing.T) {
	t.Run("mismatched end", func(t *testing.T) {
		src := newEventBuilder().
			add("db", "get", 1, 0, false).
			add("db", "put", 1, 1_000_000, true).
			source()
		_, err := Compute(src)
		require.Error(t, err)
		require.Contains(t, err.Error(), "does not match open frame")
	})
	t.Run("dangling start", func(t *testing.T) {
		src := newEventBuilder().
			add("db", "get", 1, 0, false).
			source()
		_, err := Compute(src)
		require.Error(t, err)
		require.Contains(t, err.Error(), "open at end of trace")
	})
}

func TestWriteTable(t *testing.T) {
	stats := []Stat{
		{Kind: "db", Count: 2, Total: 6 * time.Millisecond, Min: 2 * time.Millisecond, Max: 4 * time.Millisecond},
		{Kind: "render", Count: 1, Total: time.Millisecond, Min: time.Millisecond, Max: time.Millisecond},
	}
	var out bytes.Buffer
	WriteTable(&out, stats, 0)
	snaps.MatchSnapshot(t, out.String())
}

func TestWriteTableTop(t *testing.T) {
	stats := []Stat{
		{Kind: "db", Count: 1, Total: 6 * time.Millisecond, Min: 6 * time.Millisecond, Max: 6 * time.Millisecond},
		{Kind: "render", Count: 1, Total: 2 * time.Millisecond, Min: 2 * time.Millisecond, Max: 2 * time.Millisecond},
	}
	var out bytes.Buffer
	WriteTable(&out, stats, 1)
	s := out.String()
	require.Contains(t, s, "db")
	require.NotContains(t, s, "render")
	// Percentages stay relative to the full stats.
	require.Contains(t, s, "75.00%")
}

func TestWriteCSV(t *testing.T) {
	stats := []Stat{
		{Kind: "db", Count: 2, Total: 6 * time.Millisecond, Min: 2 * time.Millisecond, Max: 4 * time.Millisecond},
	}
	var out bytes.Buffer
	require.NoError(t, WriteCSV(&out, stats, 0))
	want := "kind,count,total_ns,min_ns,max_ns,mean_ns\n" +
		"db,2,6000000,2000000,4000000,3000000\n"
	require.Equal(t, want, out.String())
}

// sliceSource and eventBuilder mirror the collapse test helpers.
type sliceSource struct {
	events []profdata.Event
	i      int
}

func (s *sliceSource) Decode(ev *profdata.Event) error {
	if s.i >= len(s.events) {
		return io.EOF
	}
	*ev = s.events[s.i]
	s.i++
	return nil
}

type eventBuilder struct {
	refs   map[string]format.StringID
	events []profdata.Event
}

func newEventBuilder() *eventBuilder {
	return &eventBuilder{refs: make(map[string]format.StringID)}
}

func (b *eventBuilder) ref(s string) format.StringID {
	id, ok := b.refs[s]
	if !ok {
		id = format.FirstDynamicStringID + format.StringID(len(b.refs))
		b.refs[s] = id
	}
	return id
}

func (b *eventBuilder) add(kind, id string, thread, nanos uint64, end bool) *eventBuilder {
	b.events = append(b.events, profdata.Event{
		Kind:    kind,
		ID:      id,
		KindRef: b.ref(kind),
		IDRef:   b.ref(id),
		Thread:  thread,
		Nanos:   nanos,
		End:     end,
	})
	return b
}

func (b *eventBuilder) source() *sliceSource {
	return &sliceSource{events: b.events}
}
