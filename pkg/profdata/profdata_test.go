package profdata

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/felixge/selfprof/pkg/format"
	"github.com/felixge/selfprof/pkg/profiler"
	"github.com/felixge/selfprof/pkg/sink"
	"github.com/felixge/selfprof/pkg/stringtable"
)

// writeSession records a small fixed session and returns its stem.
func writeSession(t *testing.T) string {
	t.Helper()
	stem := filepath.Join(t.TempDir(), "session")
	p, err := profiler.New(stem)
	require.NoError(t, err)
	require.NoError(t, p.AllocReservedString(1, "db"))
	get, err := p.AllocString("get")
	require.NoError(t, err)
	put, err := p.AllocString("put")
	require.NoError(t, err)

	require.NoError(t, p.RecordRawTime(1, get, 1, 100, format.Start))
	require.NoError(t, p.RecordRawTime(1, get, 1, 200, format.End))
	require.NoError(t, p.RecordRawTime(1, put, 1, 300, format.Start))
	require.NoError(t, p.RecordRawTime(1, put, 1, 450, format.End))
	require.NoError(t, p.Close())
	return stem
}

func TestOpenRoundTrip(t *testing.T) {
	stem := writeSession(t)
	d, err := Open(stem)
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, 4, d.NumEvents())

	want := []Event{
		{Kind: "db", ID: "get", KindRef: 1, IDRef: 32, Thread: 1, Nanos: 100},
		{Kind: "db", ID: "get", KindRef: 1, IDRef: 32, Thread: 1, Nanos: 200, End: true},
		{Kind: "db", ID: "put", KindRef: 1, IDRef: 33, Thread: 1, Nanos: 300},
		{Kind: "db", ID: "put", KindRef: 1, IDRef: 33, Thread: 1, Nanos: 450, End: true},
	}
	for i := range want {
		var ev Event
		require.NoError(t, d.Decode(&ev), "event %d", i)
		require.Equal(t, want[i], ev, "event %d", i)
	}
	var ev Event
	require.Equal(t, io.EOF, d.Decode(&ev))
}

func TestReopenRestarts(t *testing.T) {
	stem := writeSession(t)
	for i := 0; i < 2; i++ {
		d, err := Open(stem)
		require.NoError(t, err)
		n := 0
		var ev Event
		for d.Decode(&ev) == nil {
			n++
		}
		require.Equal(t, 4, n)
		require.NoError(t, d.Close())
	}
}

func TestOpenEmptySession(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "empty")
	p, err := profiler.New(stem)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	d, err := Open(stem)
	require.NoError(t, err)
	defer d.Close()
	require.Equal(t, 0, d.NumEvents())
	var ev Event
	require.Equal(t, io.EOF, d.Decode(&ev))
}

func TestOpenMissingFiles(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestOpenBadMagic(t *testing.T) {
	paths := func(stem string) []string {
		return []string{
			format.EventsPath(stem),
			format.StringDataPath(stem),
			format.StringIndexPath(stem),
		}
	}
	for i, name := range []string{"events", "string_data", "string_index"} {
		t.Run(name, func(t *testing.T) {
			stem := writeSession(t)
			path := paths(stem)[i]
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			copy(data, "XXXX")
			require.NoError(t, os.WriteFile(path, data, 0o644))

			_, err = Open(stem)
			require.ErrorIs(t, err, format.ErrBadMagic)
		})
	}
}

func TestOpenTruncatedEvents(t *testing.T) {
	stem := writeSession(t)
	// Cut one event record short.
	require.NoError(t, os.Truncate(format.EventsPath(stem), format.MagicLen+format.RawEventSize+7))

	_, err := Open(stem)
	require.Error(t, err)
	require.Contains(t, err.Error(), "truncated")
}

func TestLookupStringErrors(t *testing.T) {
	stem := writeSession(t)
	d, err := Open(stem)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.LookupString(9999)
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of range")

	// Reserved slot 31 was never allocated.
	_, err = d.LookupString(31)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not allocated")
}

func TestStrings(t *testing.T) {
	stem := writeSession(t)
	d, err := Open(stem)
	require.NoError(t, err)
	defer d.Close()

	var ids []format.StringID
	var strs []string
	require.NoError(t, d.Strings(func(id format.StringID, s string) error {
		ids = append(ids, id)
		strs = append(strs, s)
		return nil
	}))
	// Metadata, the reserved kind, then the dynamic strings in id order.
	require.Equal(t, []format.StringID{0, 1, 32, 33}, ids)
	require.Equal(t, "db", strs[1])
	require.Equal(t, []string{"get", "put"}, strs[2:])
}

func TestMetadata(t *testing.T) {
	stem := writeSession(t)
	d, err := Open(stem)
	require.NoError(t, err)
	defer d.Close()

	meta, err := d.Metadata()
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), meta.PID)
	require.NotZero(t, meta.StartTimeUnixNs)
}

func TestMetadataMalformed(t *testing.T) {
	// Assemble a session whose metadata record is not JSON.
	stem := filepath.Join(t.TempDir(), "badmeta")
	events, err := sink.NewFile(format.EventsPath(stem))
	require.NoError(t, err)
	data, err := sink.NewFile(format.StringDataPath(stem))
	require.NoError(t, err)
	index, err := sink.NewFile(format.StringIndexPath(stem))
	require.NoError(t, err)

	_, err = events.WriteAtomic(format.MagicLen, func(b []byte) { copy(b, format.EventStreamMagic) })
	require.NoError(t, err)
	require.NoError(t, events.Close())

	table, err := stringtable.NewWriter(data, index)
	require.NoError(t, err)
	require.NoError(t, table.AllocMetadata("not json"))
	require.NoError(t, table.Close())

	d, err := Open(stem)
	require.NoError(t, err)
	defer d.Close()
	_, err = d.Metadata()
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse metadata")
}
