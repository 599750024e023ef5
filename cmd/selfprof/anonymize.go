package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/felixge/selfprof/pkg/anonymize"
)

func newAnonymizeCommand(cfg *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("selfprof anonymize", flag.ContinueOnError)

	return &ffcli.Command{
		Name:       "anonymize",
		ShortUsage: "selfprof anonymize <in-stem> <out-stem>",
		ShortHelp:  "Write an obfuscated copy of a session.",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("SELFPROF")},
		Exec: func(_ context.Context, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected 2 arguments, got %d", len(args))
			}
			log := cfg.logger("anonymize")

			pkgs, err := anonymize.StdlibPackages()
			if err != nil {
				return err
			}
			log.Debug().Int("packages", len(pkgs)).Msg("resolved stdlib packages")

			if err := anonymize.Session(args[0], args[1], pkgs); err != nil {
				return err
			}
			log.Info().Str("stem", args[1]).Msg("wrote anonymized session")
			return nil
		},
	}
}
