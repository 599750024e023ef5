package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/felixge/selfprof/pkg/collapse"
	"github.com/felixge/selfprof/pkg/profdata"
)

func newCollapseCommand(cfg *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("selfprof collapse", flag.ContinueOnError)
	var (
		interval = fs.Uint64("interval", 1, "sampling interval in milliseconds")
		output   = fs.String("o", "", "output file (defaults to stdout)")
		keepZero = fs.Bool("keep-zero", false, "keep stacks whose weight truncates to zero")
	)
	fs.Uint64Var(interval, "i", 1, "shorthand for -interval")

	return &ffcli.Command{
		Name:       "collapse",
		ShortUsage: "selfprof collapse [flags] <stem>",
		ShortHelp:  "Fold a session into collapsed stacks for flamegraphs.",
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

			stacks, err := collapse.Stacks(data, *interval)
			if err != nil {
				return err
			}

			out, err := openOutput(*output)
			if err != nil {
				return err
			}
			if err := collapse.Write(out, stacks, collapse.WriteOptions{KeepZero: *keepZero}); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		},
	}
}
