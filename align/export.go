package align

import (
	"context"
	"fmt"
	"path/filepath"
)

// ResultSink consumes a finished run report.
type ResultSink interface {
	Consume(ctx context.Context, report *RunReport) error
}

// Exporter writes the per-unit files of a run under OutputDir:
//
//	<pass>/<unit>/centers.ply
//	<pass>/<unit>/trajectory.geojson
//	<pass>/<unit>/trajectory.{svg,png}
//	<pass>/<unit>/<clip>.json
//	coverage.png
//
// plus the transform cache.
type Exporter struct {
	OutputDir string
	Options   ExportConfig
	Renderer  *TrajectoryRenderer
}

// NewExporter creates an exporter for the given output directory.
func NewExporter(outputDir string, opts ExportConfig) *Exporter {
	return &Exporter{
		OutputDir: outputDir,
		Options:   opts,
		Renderer:  NewTrajectoryRenderer(),
	}
}

// UnitDir returns the output directory of a unit.
func (e *Exporter) UnitDir(pass Pass, unit string) string {
	return filepath.Join(e.OutputDir, string(pass), unit)
}

// TransformCachePath resolves the cache path; a relative path lives under
// outputDir.
func (o ExportConfig) TransformCachePath(outputDir string) string {
	if o.TransformCache == "" || filepath.IsAbs(o.TransformCache) {
		return o.TransformCache
	}
	return filepath.Join(outputDir, o.TransformCache)
}

// Consume writes every enabled export. Skipped units only get their aligned
// pose files when they have clips.
func (e *Exporter) Consume(ctx context.Context, report *RunReport) error {
	for _, res := range report.Results() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.exportUnit(res); err != nil {
			return fmt.Errorf("exporting %s %s: %w", res.Pass, res.Unit, err)
		}
	}

	if e.Options.Plot && len(report.Coverage.Clips) > 0 {
		if err := PlotCoverage(report.Coverage, filepath.Join(e.OutputDir, "coverage.png")); err != nil {
			return err
		}
	}

	if e.Options.TransformCache != "" {
		path := e.Options.TransformCachePath(e.OutputDir)
		if err := SaveTransforms(path, NewTransformCache(report)); err != nil {
			return err
		}
		Logf("Saved %s transforms to %s", report.Split, path)
	}
	return nil
}

func (e *Exporter) exportUnit(res UnitResult) error {
	dir := e.UnitDir(res.Pass, res.Unit)

	if e.Options.Poses {
		for _, ca := range res.Clips {
			path := filepath.Join(dir, ca.Clip+".json")
			if err := SavePoseMap(path, ca.AlignedPoseMap(ClipFrameName)); err != nil {
				return err
			}
		}
	}

	// A reused transform has no fitted trajectory of its own to draw.
	if !res.OK() || res.Reused {
		return nil
	}

	if e.Options.PLY {
		if err := SavePLY(filepath.Join(dir, "centers.ply"), res.Aligned); err != nil {
			return err
		}
	}
	if e.Options.GeoJSON {
		if err := SaveGeoJSON(filepath.Join(dir, "trajectory.geojson"), res); err != nil {
			return err
		}
	}
	if e.Options.Render != "" {
		path := filepath.Join(dir, "trajectory."+e.Options.Render)
		if err := e.Renderer.SaveRender(path, e.Options.Render, res); err != nil {
			return err
		}
	}
	return nil
}
