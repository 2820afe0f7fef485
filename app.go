package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/kwv/trajalign/align"
)

// App encapsulates the application state and dependencies
type App struct {
	Config *align.Config
	Report *align.RunReport
	Out    io.Writer

	// Frames replaces the on-disk frame listing when set.
	Frames align.FrameSource

	// CLI Flags (effectively dependencies)
	ConfigFile string
	Split      string
	FramesRoot string
	OutputDir  string
	Workers    int
	Filter     bool
	FilterSet  bool
	Quiet      bool
}

// NewApp creates a new App instance writing its report to out
func NewApp(out io.Writer) *App {
	return &App{Out: out}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.Split = opts.Split
	a.FramesRoot = opts.FramesRoot
	a.OutputDir = opts.OutputDir
	a.Workers = opts.Workers
	a.Filter = opts.Filter
	a.FilterSet = opts.FilterSet
	a.Quiet = opts.Quiet
}

// LoadConfig loads the configuration file, or the defaults when none is
// given, and applies the CLI overrides.
func (a *App) LoadConfig() (*align.Config, error) {
	config := align.DefaultConfig()
	if a.ConfigFile != "" {
		loaded, err := align.LoadConfig(a.ConfigFile)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if a.Split != "" {
		config.Split = a.Split
	}
	if a.FramesRoot != "" {
		config.FramesRoot = a.FramesRoot
	}
	if a.Workers > 0 {
		config.Workers = a.Workers
	}
	if a.FilterSet {
		config.Filter.Enabled = a.Filter
	}
	if a.OutputDir != "" {
		if sc, ok := config.Splits[config.Split]; ok {
			sc.OutputDir = a.OutputDir
			config.Splits[config.Split] = sc
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Run loads the inputs, aligns both passes, prints the coverage summary and
// hands the report to every configured sink.
func (a *App) Run(ctx context.Context) error {
	if a.Quiet {
		align.SetLogger(nil)
	}

	config, err := a.LoadConfig()
	if err != nil {
		return err
	}
	a.Config = config
	split := config.ActiveSplit()

	in, err := a.loadInput(config, split)
	if err != nil {
		return err
	}

	report, err := align.Run(ctx, in, config.RunOptions())
	if err != nil {
		return fmt.Errorf("running %s split: %w", config.Split, err)
	}
	a.Report = report

	fmt.Fprintln(a.Out, report.Coverage.Tally.Summary())

	sinks, closeSinks, err := a.openSinks(config, split)
	if err != nil {
		return err
	}
	defer closeSinks()

	var firstErr error
	for _, sink := range sinks {
		if err := sink.Consume(ctx, report); err != nil {
			log.Printf("Warning: result sink failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	return nil
}

func (a *App) loadInput(config *align.Config, split align.SplitConfig) (align.RunInput, error) {
	var in align.RunInput
	files := []struct {
		path string
		dst  *align.PoseCollection
	}{
		{split.Clips.Source, &in.Clips.Source},
		{split.Clips.Dest, &in.Clips.Dest},
		{split.Scans.Source, &in.Scans.Source},
		{split.Scans.Dest, &in.Scans.Dest},
	}
	for _, f := range files {
		pc, err := align.LoadPoseCollection(f.path)
		if err != nil {
			return in, fmt.Errorf("loading %s: %w", f.path, err)
		}
		*f.dst = pc
	}

	in.Frames = a.Frames
	if in.Frames == nil {
		in.Frames = align.FrameDirectory{FramesRoot: config.FramesRoot, ScanRoot: split.ScanRoot}
	}

	if config.Export.ReuseTransforms {
		path := config.Export.TransformCachePath(split.OutputDir)
		cache, err := align.LoadTransforms(path)
		if err != nil {
			return in, err
		}
		switch {
		case cache == nil:
			log.Printf("No transform cache at %s, fitting from scratch", path)
		case cache.Split != config.Split:
			log.Printf("Warning: transform cache %s is for split %q, ignoring", path, cache.Split)
		default:
			log.Printf("Reusing transforms from run %s for failed fits", cache.RunID)
			in.Cache = cache
		}
	}
	return in, nil
}

// openSinks builds the exporter and, when configured, the result store and
// the MQTT publisher.
func (a *App) openSinks(config *align.Config, split align.SplitConfig) ([]align.ResultSink, func(), error) {
	var (
		sinks   []align.ResultSink
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if split.OutputDir != "" {
		sinks = append(sinks, align.NewExporter(split.OutputDir, config.Export))
	}

	if config.Store.Path != "" {
		store, err := align.OpenResultStore(config.Store.Path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, store)
		closers = append(closers, func() { store.Close() })
	}

	publisher, err := align.ConnectPublisher(config.MQTT)
	if err != nil {
		log.Printf("Warning: MQTT publishing disabled: %v", err)
	} else if publisher != nil {
		sinks = append(sinks, publisher)
		closers = append(closers, publisher.Close)
	}

	return sinks, closeAll, nil
}
