package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/felixge/selfprof/pkg/chrome"
	"github.com/felixge/selfprof/pkg/profdata"
)

func newChromeCommand(cfg *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("selfprof chrome", flag.ContinueOnError)
	output := fs.String("o", "", "output file (defaults to stdout)")

	return &ffcli.Command{
		Name:       "chrome",
		ShortUsage: "selfprof chrome [flags] <stem>",
		ShortHelp:  "Convert a session to the chrome trace event format.",
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

			out, err := openOutput(*output)
			if err != nil {
				return err
			}
			if err := chrome.Convert(data, out); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		},
	}
}
