package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/felixge/selfprof/pkg/profdata"
)

func newMetaCommand(cfg *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("selfprof meta", flag.ContinueOnError)

	return &ffcli.Command{
		Name:       "meta",
		ShortUsage: "selfprof meta <stem>",
		ShortHelp:  "Print the metadata of a session.",
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

			meta, err := data.Metadata()
			if err != nil {
				return err
			}

			out, err := openOutput("")
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(meta); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		},
	}
}
