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

func newStringsCommand(cfg *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("selfprof strings", flag.ContinueOnError)

	return &ffcli.Command{
		Name:       "strings",
		ShortUsage: "selfprof strings <stem>",
		ShortHelp:  "Print the string table of a session.",
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

			out, err := openOutput("")
			if err != nil {
				return err
			}
			if err := print.Strings(data, out); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		},
	}
}
