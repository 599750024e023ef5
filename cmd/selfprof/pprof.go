package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/felixge/selfprof/pkg/collapse"
	"github.com/felixge/selfprof/pkg/pprofconv"
	"github.com/felixge/selfprof/pkg/profdata"
)

func newPprofCommand(cfg *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("selfprof pprof", flag.ContinueOnError)
	var (
		interval = fs.Uint64("interval", 1, "sampling interval in milliseconds")
		output   = fs.String("o", "profile.pb.gz", "output file")
	)
	fs.Uint64Var(interval, "i", 1, "shorthand for -interval")

	return &ffcli.Command{
		Name:       "pprof",
		ShortUsage: "selfprof pprof [flags] <stem>",
		ShortHelp:  "Convert a session to a pprof profile.",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("SELFPROF")},
		Exec: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected 1 argument, got %d", len(args))
			}
			log := cfg.logger("pprof")

			data, err := profdata.Open(args[0])
			if err != nil {
				return err
			}
			defer data.Close()

			stacks, err := collapse.Stacks(data, *interval)
			if err != nil {
				return err
			}
			prof, err := pprofconv.FromFolded(stacks, *interval)
			if err != nil {
				return err
			}
			if meta, err := data.Metadata(); err == nil {
				prof.TimeNanos = meta.StartTimeUnixNs
			} else {
				log.Debug().Err(err).Msg("no session metadata")
			}

			out, err := openOutput(*output)
			if err != nil {
				return err
			}
			if err := prof.Write(out); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			log.Info().Str("path", *output).Int("samples", len(prof.Sample)).Msg("wrote profile")
			return nil
		},
	}
}
