package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"runtime/trace"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/rs/zerolog"
)

// main is the entry point for the selfprof command line tool.
func main() {
	if err := realMain(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// realMain is a helper function for main that returns an error.
func realMain() error {
	var (
		fs          = flag.NewFlagSet("selfprof", flag.ContinueOnError)
		cpuProfileF = fs.String("cpuprofile", "", "write cpu profile to file")
		traceF      = fs.String("trace", "", "write runtime trace to file")
		logLevelF   = fs.String("log-level", "info", "log level (debug, info, warn, error)")
	)

	cfg := &rootConfig{}
	root := &ffcli.Command{
		Name:       "selfprof",
		ShortUsage: "selfprof [flags] <subcommand> [flags] <args...>",
		ShortHelp:  "Record, inspect and convert profiling sessions.",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("SELFPROF")},
		Subcommands: []*ffcli.Command{
			newCollapseCommand(cfg),
			newSummaryCommand(cfg),
			newChromeCommand(cfg),
			newPprofCommand(cfg),
			newPrintCommand(cfg),
			newStringsCommand(cfg),
			newMetaCommand(cfg),
			newAnonymizeCommand(cfg),
			newIngestCommand(cfg),
		},
		Exec: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unknown command: %s", args[0])
			}
			return flag.ErrHelp
		},
	}

	if err := root.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg.log = newLogger(*logLevelF)

	if *cpuProfileF != "" {
		file, err := os.Create(*cpuProfileF)
		if err != nil {
			return err
		}
		defer file.Close()

		if err := pprof.StartCPUProfile(file); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	if *traceF != "" {
		file, err := os.Create(*traceF)
		if err != nil {
			return err
		}
		defer file.Close()

		if err := trace.Start(file); err != nil {
			return err
		}
		defer trace.Stop()
	}

	if err := root.Run(context.Background()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, ffcli.DefaultUsageFunc(root))
			return nil
		}
		return err
	}
	return nil
}

// rootConfig carries state shared by all subcommands. The logger is set
// after the command line is parsed.
type rootConfig struct {
	log zerolog.Logger
}

// logger returns the shared logger tagged with a component field.
func (c *rootConfig) logger(component string) zerolog.Logger {
	return c.log.With().Str("component", component).Logger()
}

// openOutput returns a buffered writer for path. An empty path or "-"
// selects stdout. Closing flushes the buffer and closes the underlying
// file.
func openOutput(path string) (io.WriteCloser, error) {
	file := os.Stdout
	if path != "" && path != "-" {
		var err error
		file, err = os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
	}
	return &bufferedFile{Writer: bufio.NewWriter(file), file: file}, nil
}

type bufferedFile struct {
	*bufio.Writer
	file *os.File
}

func (b *bufferedFile) Close() error {
	err := b.Flush()
	if b.file != os.Stdout {
		if cerr := b.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
