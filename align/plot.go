package align

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotCoverage saves a stacked bar chart of per-clip frame coverage to path.
// The lower bar is coverage from the clip pass, the upper bar the frames
// recovered by the scan pass. The image format follows the file extension.
func PlotCoverage(report CoverageReport, path string) error {
	if len(report.Clips) == 0 {
		return fmt.Errorf("no clips to plot")
	}

	direct := make(plotter.Values, len(report.Clips))
	recovered := make(plotter.Values, len(report.Clips))
	names := make([]string, len(report.Clips))
	for i, c := range report.Clips {
		names[i] = c.Clip
		direct[i] = percent(c.ValidFrames-c.Recovered, c.TotalFrames)
		recovered[i] = percent(c.Recovered, c.TotalFrames)
	}

	p := plot.New()
	p.Title.Text = report.Tally.Summary()
	p.Y.Label.Text = "valid frames (%)"
	p.Y.Min = 0
	p.Y.Max = 100

	barWidth := vg.Points(12)
	directBars, err := plotter.NewBarChart(direct, barWidth)
	if err != nil {
		return fmt.Errorf("creating clip bars: %w", err)
	}
	directBars.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	directBars.LineStyle.Width = vg.Length(0)

	recoveredBars, err := plotter.NewBarChart(recovered, barWidth)
	if err != nil {
		return fmt.Errorf("creating scan bars: %w", err)
	}
	recoveredBars.Color = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	recoveredBars.LineStyle.Width = vg.Length(0)
	recoveredBars.StackOn(directBars)

	p.Add(directBars, recoveredBars)
	p.Legend.Add("clip pass", directBars)
	p.Legend.Add("scan pass", recoveredBars)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	p.NominalX(names...)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating plot directory: %w", err)
	}

	width := vg.Length(len(names))*barWidth*2 + 2*vg.Inch
	if width < 6*vg.Inch {
		width = 6 * vg.Inch
	}
	if err := p.Save(width, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving coverage plot: %w", err)
	}
	return nil
}
