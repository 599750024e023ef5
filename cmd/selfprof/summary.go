package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/felixge/selfprof/pkg/profdata"
	"github.com/felixge/selfprof/pkg/summary"
)

func newSummaryCommand(cfg *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("selfprof summary", flag.ContinueOnError)
	var (
		top    = fs.Int("top", 0, "only show the top n kinds (0 shows all)")
		csvOut = fs.Bool("csv", false, "write csv instead of a table")
		output = fs.String("o", "", "output file (defaults to stdout)")
	)

	return &ffcli.Command{
		Name:       "summary",
		ShortUsage: "selfprof summary [flags] <stem>",
		ShortHelp:  "Summarize recorded time by event kind.",
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

			stats, err := summary.Compute(data)
			if err != nil {
				return err
			}

			out, err := openOutput(*output)
			if err != nil {
				return err
			}
			if *csvOut {
				if err := summary.WriteCSV(out, stats, *top); err != nil {
					out.Close()
					return err
				}
			} else {
				summary.WriteTable(out, stats, *top)
			}
			return out.Close()
		},
	}
}
