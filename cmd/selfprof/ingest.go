package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/felixge/selfprof/pkg/ingest"
	"github.com/felixge/selfprof/pkg/profiler"
)

func newIngestCommand(cfg *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("selfprof ingest", flag.ContinueOnError)

	return &ffcli.Command{
		Name:       "ingest",
		ShortUsage: "selfprof ingest <trace> <out-stem>",
		ShortHelp:  "Convert a Go runtime trace into a session.",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("SELFPROF")},
		Exec: func(_ context.Context, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected 2 arguments, got %d", len(args))
			}
			inFile, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open input file: %w", err)
			}
			defer inFile.Close()

			prof, err := profiler.New(args[1])
			if err != nil {
				return err
			}
			stats, err := ingest.Trace(inFile, prof)
			if cerr := prof.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			cfg.logger("ingest").Info().
				Int("gc_cycles", stats.GCCycles).
				Int("pauses", stats.Pauses).
				Int("truncated", stats.Truncated).
				Str("stem", args[1]).
				Msg("ingested trace")
			return nil
		},
	}
}
