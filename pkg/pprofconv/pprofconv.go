// Package pprofconv turns folded stacks into pprof profiles so sessions
// plug into the go tool pprof toolchain.
package pprofconv

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/pprof/profile"
)

// FromFolded builds a profile from folded stack weights. intervalMs must
// match the interval the stacks were collapsed with so the sample time
// values are faithful. Paths whose weight truncated to zero are skipped,
// they carry no sample value.
func FromFolded(folded map[string]int64, intervalMs uint64) (*profile.Profile, error) {
	if intervalMs == 0 {
		return nil, fmt.Errorf("pprofconv: interval must be positive")
	}
	unitNanos := int64(intervalMs) * 1_000_000

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "time", Unit: "nanoseconds"},
		},
		DefaultSampleType: "time",
		PeriodType:        &profile.ValueType{Type: "time", Unit: "nanoseconds"},
		Period:            unitNanos,
	}

	// Sorted paths keep sample and location ids stable across runs.
	paths := make([]string, 0, len(folded))
	for path := range folded {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	locIdx := map[string]*profile.Location{}
	for _, path := range paths {
		weight := folded[path]
		if weight == 0 {
			continue
		}
		sample := &profile.Sample{
			Value: []int64{weight, weight * unitNanos},
		}
		frames := strings.Split(path, ";")
		// pprof stacks are leaf first.
		for i := len(frames) - 1; i >= 0; i-- {
			sample.Location = append(sample.Location, location(p, locIdx, frames[i]))
		}
		p.Sample = append(p.Sample, sample)
	}
	return p, nil
}

// location returns the Location for a frame label, creating it on first
// use.
func location(p *profile.Profile, idx map[string]*profile.Location, name string) *profile.Location {
	if loc, ok := idx[name]; ok {
		return loc
	}
	fn := &profile.Function{
		ID:   uint64(len(p.Function) + 1),
		Name: name,
	}
	p.Function = append(p.Function, fn)
	loc := &profile.Location{
		ID:   uint64(len(p.Location) + 1),
		Line: []profile.Line{{Function: fn}},
	}
	p.Location = append(p.Location, loc)
	idx[name] = loc
	return loc
}
