package align

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// CoverageTally holds the run-wide counters reported at the end of a run.
type CoverageTally struct {
	ValidClips  int `json:"validClips"`
	TotalClips  int `json:"totalClips"`
	ValidFrames int `json:"validFrames"`
	TotalFrames int `json:"totalFrames"`
}

// ClipPercent returns valid clips as a percentage; 0 when there are no clips.
func (t CoverageTally) ClipPercent() float64 {
	return percent(t.ValidClips, t.TotalClips)
}

// FramePercent returns valid frames as a percentage; 0 when there are no frames.
func (t CoverageTally) FramePercent() float64 {
	return percent(t.ValidFrames, t.TotalFrames)
}

// Summary formats the tally as the one-line run summary.
func (t CoverageTally) Summary() string {
	return fmt.Sprintf("Clips: %d/%d (%.2f), Frames %d/%d (%.2f)",
		t.ValidClips, t.TotalClips, t.ClipPercent(),
		t.ValidFrames, t.TotalFrames, t.FramePercent())
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) * 100 / float64(d)
}

// ClipCoverage is the per-clip breakdown behind the tally.
type ClipCoverage struct {
	Clip        string `json:"clip"`
	ValidFrames int    `json:"validFrames"`
	TotalFrames int    `json:"totalFrames"`
	// Recovered counts frames valid only through the scan pass.
	Recovered int `json:"recovered"`
}

// Fraction returns the valid share of the clip's frames in [0, 1].
func (c ClipCoverage) Fraction() float64 {
	return percent(c.ValidFrames, c.TotalFrames) / 100
}

// CoverageReport is the reduction of every clip's validity records.
type CoverageReport struct {
	Tally      CoverageTally
	Clips      []ClipCoverage
	Mismatches []error
}

// Aggregate reduces the validity records of both passes into coverage
// figures. frameTotals holds the external frame count of every listed clip,
// taken before alignment, so the denominators do not depend on the fits. A frame is valid when either its clip record or its scan record
// marks it valid; both records must then share the clip's frame index space,
// and a clip whose records differ in length is reported in Mismatches and
// counted from its clip record alone. A record for a clip missing from
// frameTotals is counted with its own length.
func Aggregate(frameTotals map[string]int, clipRecords, scanRecords map[string]ValidityRecord) CoverageReport {
	totals := make(map[string]int, len(frameTotals))
	for clip, n := range frameTotals {
		totals[clip] = n
	}
	for clip, rec := range scanRecords {
		if _, ok := totals[clip]; !ok {
			totals[clip] = len(rec)
		}
	}

	clips := make([]string, 0, len(totals))
	for clip := range totals {
		clips = append(clips, clip)
	}
	sort.Strings(clips)

	var rep CoverageReport
	for _, clip := range clips {
		cov := ClipCoverage{Clip: clip, TotalFrames: totals[clip]}
		valid, recovered, err := unionValidity(clipRecords[clip], scanRecords[clip])
		if err != nil {
			rep.Mismatches = append(rep.Mismatches, errors.Wrapf(err, "clip %s: %d vs %d frames",
				clip, len(clipRecords[clip]), len(scanRecords[clip])))
		}
		cov.ValidFrames = valid
		cov.Recovered = recovered

		rep.Tally.TotalClips++
		rep.Tally.TotalFrames += cov.TotalFrames
		if valid > 0 {
			rep.Tally.ValidClips++
		}
		rep.Tally.ValidFrames += valid
		rep.Clips = append(rep.Clips, cov)
	}
	return rep
}

func unionValidity(clip, scan ValidityRecord) (valid, recovered int, err error) {
	if len(clip) > 0 && len(scan) > 0 && len(clip) != len(scan) {
		return clip.Count(), 0, ErrFrameIndexMismatch
	}
	n := len(clip)
	if len(scan) > n {
		n = len(scan)
	}
	for i := 0; i < n; i++ {
		c := i < len(clip) && clip[i]
		s := i < len(scan) && scan[i]
		if c || s {
			valid++
		}
		if !c && s {
			recovered++
		}
	}
	return valid, recovered, nil
}
