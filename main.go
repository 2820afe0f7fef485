package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the command-line overrides of the configuration.
type AppOptions struct {
	ConfigFile string
	Split      string
	FramesRoot string
	OutputDir  string
	Workers    int
	Filter     bool
	FilterSet  bool
	Quiet      bool
}

// Application is the part of App the command line drives.
type Application interface {
	ApplyOptions(opts AppOptions)
	Run(ctx context.Context) error
}

func main() {
	err := run(os.Args[1:], os.Stdout, NewApp(os.Stdout))
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// run parses args, applies them to app and runs it until completion or an
// interrupt signal.
func run(args []string, out io.Writer, app Application) error {
	fs := flag.NewFlagSet("trajalign", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to configuration file (defaults are used when empty)")
	fs.StringVar(&opts.Split, "split", "", "Dataset split: val or test (overrides config)")
	fs.StringVar(&opts.FramesRoot, "frames", "", "Directory holding one frame directory per clip (overrides config)")
	fs.StringVar(&opts.OutputDir, "output", "", "Output directory for exports (overrides config)")
	fs.IntVar(&opts.Workers, "workers", 0, "Concurrent units per pass (0 = number of CPUs)")
	fs.BoolVar(&opts.Filter, "filter", false, "Remove outlier camera centers before fitting (overrides config)")
	fs.BoolVar(&opts.Quiet, "quiet", false, "Suppress per-unit log output")

	if err := fs.Parse(args); err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "filter" {
			opts.FilterSet = true
		}
	})

	fmt.Fprintf(out, "trajalign version: %s\n", Version)

	app.ApplyOptions(opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Run(ctx)
}
