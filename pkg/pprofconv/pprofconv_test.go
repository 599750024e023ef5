package pprofconv

import (
	"bytes"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/require"
)

func TestFromFolded(t *testing.T) {
	folded := map[string]int64{
		"op;a":      4,
		"op;a;op;b": 2,
	}
	p, err := FromFolded(folded, 1)
	require.NoError(t, err)
	require.NoError(t, p.CheckValid())

	require.Equal(t, "samples", p.SampleType[0].Type)
	require.Equal(t, "nanoseconds", p.SampleType[1].Unit)
	require.Equal(t, int64(1_000_000), p.Period)

	require.Len(t, p.Sample, 2)
	require.Equal(t, []int64{4, 4_000_000}, p.Sample[0].Value)
	require.Equal(t, []int64{2, 2_000_000}, p.Sample[1].Value)

	// Stacks are leaf first, one frame per path component.
	require.Equal(t, []string{"a", "op"}, frameNames(p.Sample[0]))
	require.Equal(t, []string{"b", "op", "a", "op"}, frameNames(p.Sample[1]))

	// The shared prefix reuses the same locations.
	require.Same(t, p.Sample[0].Location[0], p.Sample[1].Location[2])
	require.Same(t, p.Sample[0].Location[1], p.Sample[1].Location[3])

	snaps.MatchSnapshot(t, p.String())
}

func TestFromFoldedSkipsZeroWeights(t *testing.T) {
	folded := map[string]int64{
		"op;outer":          3,
		"op;outer;op;inner": 0,
	}
	p, err := FromFolded(folded, 1)
	require.NoError(t, err)
	require.Len(t, p.Sample, 1)
	require.Equal(t, []string{"outer", "op"}, frameNames(p.Sample[0]))
}

func TestFromFoldedInterval(t *testing.T) {
	p, err := FromFolded(map[string]int64{"op;a": 4}, 10)
	require.NoError(t, err)
	require.Equal(t, int64(10_000_000), p.Period)
	require.Equal(t, []int64{4, 40_000_000}, p.Sample[0].Value)

	_, err = FromFolded(map[string]int64{"op;a": 4}, 0)
	require.EqualError(t, err, "pprofconv: interval must be positive")
}

func TestFromFoldedRoundTrip(t *testing.T) {
	p, err := FromFolded(map[string]int64{"op;a;op;b": 2}, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))
	parsed, err := profile.Parse(&buf)
	require.NoError(t, err)
	require.NoError(t, parsed.CheckValid())
	require.Len(t, parsed.Sample, 1)
	require.Equal(t, []int64{2, 2_000_000}, parsed.Sample[0].Value)
}

func frameNames(s *profile.Sample) []string {
	var names []string
	for _, loc := range s.Location {
		for _, line := range loc.Line {
			names = append(names, line.Function.Name)
		}
	}
	return names
}
