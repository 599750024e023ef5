package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/felixge/selfprof/pkg/print"
	"github.com/felixge/selfprof/pkg/profdata"
)

func newPrintCommand(cfg *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("selfprof print", flag.ContinueOnError)
	var (
		minNanos = fs.Uint64("min", 0, "only print events at or after this timestamp in nanoseconds")
		maxNanos = fs.Int64("max", -1, "only print events at or before this timestamp in nanoseconds (-1 for no limit)")
		thread   = fs.Int64("thread", -1, "only print events from this thread (-1 for all threads)")
		kind     = fs.String("kind", "", "only print events with this kind label")
	)

	return &ffcli.Command{
		Name:       "print",
		ShortUsage: "selfprof print [flags] <stem>",
		ShortHelp:  "Print session events as text.",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("SELFPROF")},
		Exec: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected 1 argument, got %d", len(args))
			}
			data, err := profdata.Open(args[0])
			if err != nil {
				return err
			}
			defer data.Close()

			filter := print.DefaultEventFilter()
			filter.MinNanos = *minNanos
			filter.MaxNanos = *maxNanos
			filter.Thread = *thread
			filter.Kind = *kind

			out, err := openOutput("")
			if err != nil {
				return err
			}
			if err := print.Events(data, out, filter); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		},
	}
}
