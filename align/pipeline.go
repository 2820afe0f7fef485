package align

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Unit is one alignment job: a clip in the clip pass, or a scan in the scan
// pass. A single transform is fitted per unit and applied to the frames of
// every clip listed in Clips.
type Unit struct {
	ID     string
	Pass   Pass
	Source PoseMap
	Dest   PoseMap
	Clips  []ClipFrames
}

// ClipFrames names a clip and its external frame count.
type ClipFrames struct {
	Clip  string
	Count int
}

// ClipAlignment holds one aligned pose and one validity flag per frame index.
type ClipAlignment struct {
	Clip     string
	Poses    []Extrinsic
	Validity ValidityRecord
}

// UnitResult is the outcome of aligning one unit. Err is non-nil when the
// unit was skipped; Clips is then empty, unless the unit was cancelled before
// its fit, in which case every listed clip carries fallback poses.
type UnitResult struct {
	Unit            string
	Pass            Pass
	SourceFrames    int
	DestFrames      int
	Correspondences CorrespondenceSet
	Transform       SimilarityTransform
	Aligned         *mat.Dense // transformed source centers, 3xN
	Residual        float64
	Clips           []ClipAlignment
	Canceled        bool
	Reused          bool // fit failed, cached transform applied
	Err             error
}

// OK reports whether a transform was fitted for the unit.
func (r UnitResult) OK() bool {
	return r.Err == nil
}

// PassOptions configures one alignment pass.
type PassOptions struct {
	Filter  bool
	Outlier OutlierParams
	Namer   FrameNamer
	Workers int
	Cache   *TransformCache // fallback transforms for failed fits
}

// AlignUnit filters, matches, fits and applies the transform for one unit.
// Numeric failures are reported in the result, never returned. When ctx is
// cancelled the remaining frames get the fallback pose.
func AlignUnit(ctx context.Context, u Unit, opts PassOptions) UnitResult {
	res := UnitResult{Unit: u.ID, Pass: u.Pass}
	if err := ctx.Err(); err != nil {
		res.Canceled = true
		res.Err = errors.Wrap(err, "alignment cancelled")
		for _, cf := range u.Clips {
			res.Clips = append(res.Clips, fallbackClip(cf))
		}
		return res
	}

	src, dst := u.Source, u.Dest
	if opts.Filter {
		src = FilterOutliers(src, opts.Outlier.K, opts.Outlier.StdRatio)
		dst = FilterOutliers(dst, opts.Outlier.K, opts.Outlier.StdRatio)
		Logf("%s %s: filtered source %d -> %d, destination %d -> %d",
			u.Pass, u.ID, len(u.Source), len(src), len(u.Dest), len(dst))
	}
	res.SourceFrames = len(src)
	res.DestFrames = len(dst)

	var (
		tr  SimilarityTransform
		err error
	)
	if len(dst) == 0 {
		err = newFitError(FitNoCorrespondence, "destination is empty")
	} else {
		res.Correspondences = GatherCorrespondences(src, dst)
		tr, err = res.Correspondences.Fit()
	}
	if err != nil {
		cached, ok := opts.Cache.Get(u.Pass, u.ID)
		if !ok {
			res.Err = err
			Logf("%s %s: skipped: %v", u.Pass, u.ID, err)
			return res
		}
		Logf("%s %s: fit failed (%v), reusing cached transform", u.Pass, u.ID, err)
		tr = cached
		res.Reused = true
	}
	res.Transform = tr
	if res.Correspondences.Len() > 0 {
		res.Aligned = tr.TransformPoints(res.Correspondences.Source)
		res.Residual = tr.RMS(res.Correspondences.Source, res.Correspondences.Dest)
	}

	namer := opts.Namer
	if namer == nil {
		namer = ClipFrameName
	}
	for _, cf := range u.Clips {
		ca, canceled := alignClipFrames(ctx, cf, src, tr, namer)
		res.Clips = append(res.Clips, ca)
		if canceled {
			res.Canceled = true
		}
	}

	Logf("%s %s: %d/%d matched, %s, rms=%.4f", u.Pass, u.ID,
		res.Correspondences.Len(), len(dst), tr, res.Residual)
	return res
}

// fallbackClip gives every frame of the clip the fallback pose.
func fallbackClip(cf ClipFrames) ClipAlignment {
	ca := ClipAlignment{
		Clip:     cf.Clip,
		Poses:    make([]Extrinsic, cf.Count),
		Validity: make(ValidityRecord, cf.Count),
	}
	for i := range ca.Poses {
		ca.Poses[i] = FallbackPose()
	}
	return ca
}

func alignClipFrames(ctx context.Context, cf ClipFrames, src PoseMap, tr SimilarityTransform, namer FrameNamer) (ClipAlignment, bool) {
	ca := fallbackClip(cf)
	canceled := false
	for i := 0; i < cf.Count; i++ {
		if canceled {
			continue
		}
		if ctx.Err() != nil {
			canceled = true
			continue
		}

		name := namer(cf.Clip, i)
		e, ok := src[name]
		if !ok {
			continue
		}
		aligned, err := ApplyToExtrinsic(e, tr)
		if err != nil {
			Logf("clip %s frame %s: %v", cf.Clip, name, err)
			continue
		}
		ca.Poses[i] = aligned
		ca.Validity[i] = true
	}
	return ca, canceled
}

// RunPass aligns every unit on a bounded worker pool. Results keep the order
// of units.
func RunPass(ctx context.Context, units []Unit, opts PassOptions) []UnitResult {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]UnitResult, len(units))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := range units {
		g.Go(func() error {
			results[i] = AlignUnit(ctx, units[i], opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// PoseSets is the source/destination pair of one pass.
type PoseSets struct {
	Source PoseCollection
	Dest   PoseCollection
}

// RunInput is everything a run reads from outside the core. Cache is
// optional.
type RunInput struct {
	Clips  PoseSets
	Scans  PoseSets
	Frames FrameSource
	Cache  *TransformCache
}

// RunOptions are the plain parameters of a run.
type RunOptions struct {
	Split       string
	Filter      bool
	ClipOutlier OutlierParams
	ScanOutlier OutlierParams
	Workers     int
}

// RunReport is the structured outcome of a run, consumed by sinks after the
// computation finishes.
type RunReport struct {
	RunID       string
	Split       string
	StartedAt   time.Time
	Duration    time.Duration
	ClipResults []UnitResult
	ScanResults []UnitResult
	Coverage    CoverageReport
}

// Results returns the results of both passes, clip pass first.
func (r *RunReport) Results() []UnitResult {
	out := make([]UnitResult, 0, len(r.ClipResults)+len(r.ScanResults))
	out = append(out, r.ClipResults...)
	return append(out, r.ScanResults...)
}

// BuildClipUnits creates one unit per clip of the source collection and
// returns the external frame count of each clip. Frame listing errors are
// fatal.
func BuildClipUnits(sets PoseSets, frames FrameSource) ([]Unit, map[string]int, error) {
	units := make([]Unit, 0, len(sets.Source))
	totals := make(map[string]int, len(sets.Source))
	for _, clip := range sets.Source.Units() {
		n, err := frames.FrameCount(clip)
		if err != nil {
			return nil, nil, err
		}
		totals[clip] = n
		units = append(units, Unit{
			ID:     clip,
			Pass:   PassClip,
			Source: sets.Source[clip],
			Dest:   sets.Dest[clip],
			Clips:  []ClipFrames{{Clip: clip, Count: n}},
		})
	}
	return units, totals, nil
}

// BuildScanUnits creates one unit per scan of the source collection covering
// every clip listed for the scan, and returns the external frame count of
// each listed clip.
func BuildScanUnits(sets PoseSets, frames FrameSource) ([]Unit, map[string]int, error) {
	units := make([]Unit, 0, len(sets.Source))
	totals := make(map[string]int)
	for _, scan := range sets.Source.Units() {
		clips, err := frames.ScanClips(scan)
		if err != nil {
			return nil, nil, err
		}
		u := Unit{
			ID:     scan,
			Pass:   PassScan,
			Source: sets.Source[scan],
			Dest:   sets.Dest[scan],
		}
		for _, clip := range clips {
			n, err := frames.FrameCount(clip)
			if err != nil {
				return nil, nil, err
			}
			totals[clip] = n
			u.Clips = append(u.Clips, ClipFrames{Clip: clip, Count: n})
		}
		units = append(units, u)
	}
	return units, totals, nil
}

// Run executes the clip pass and the scan pass and reduces their validity
// records into coverage figures. Only frame listing failures are returned as
// errors; every numeric failure is recorded in the report.
func Run(ctx context.Context, in RunInput, opts RunOptions) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Split:     opts.Split,
		StartedAt: time.Now(),
	}

	clipUnits, totals, err := BuildClipUnits(in.Clips, in.Frames)
	if err != nil {
		return nil, err
	}
	scanUnits, scanTotals, err := BuildScanUnits(in.Scans, in.Frames)
	if err != nil {
		return nil, err
	}
	// Totals come from the listings alone, whatever the fits do.
	for clip, n := range scanTotals {
		if _, ok := totals[clip]; !ok {
			totals[clip] = n
		}
	}

	report.ClipResults = RunPass(ctx, clipUnits, PassOptions{
		Filter:  opts.Filter,
		Outlier: opts.ClipOutlier,
		Namer:   ClipFrameName,
		Workers: opts.Workers,
		Cache:   in.Cache,
	})
	report.ScanResults = RunPass(ctx, scanUnits, PassOptions{
		Filter:  opts.Filter,
		Outlier: opts.ScanOutlier,
		Namer:   ScanFrameName,
		Workers: opts.Workers,
		Cache:   in.Cache,
	})

	report.Coverage = Aggregate(totals, collectRecords(report.ClipResults), collectRecords(report.ScanResults))
	for _, err := range report.Coverage.Mismatches {
		Logf("coverage: %v", err)
	}
	report.Duration = time.Since(report.StartedAt)
	return report, nil
}

// collectRecords keeps the validity record of every clip with at least one
// valid frame. A clip listed by several units keeps the last one in unit order.
func collectRecords(results []UnitResult) map[string]ValidityRecord {
	records := make(map[string]ValidityRecord)
	for _, res := range results {
		for _, ca := range res.Clips {
			if ca.Validity.Any() {
				records[ca.Clip] = ca.Validity
			}
		}
	}
	return records
}
