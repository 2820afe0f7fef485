package align

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TrajectoryRenderer draws a plan view of a unit's aligned source centers
// over its destination centers.
type TrajectoryRenderer struct {
	Size         float64 // Canvas extent of the longer trajectory side (mm)
	Padding      float64 // Canvas padding (mm)
	MarkerRadius float64 // Center marker radius (mm)
	Simplify     float64 // Douglas-Peucker tolerance as a fraction of the extent; 0 disables
	Resolution   canvas.Resolution
	AlignedColor color.RGBA
	DestColor    color.RGBA
}

// NewTrajectoryRenderer returns a renderer with default settings.
func NewTrajectoryRenderer() *TrajectoryRenderer {
	return &TrajectoryRenderer{
		Size:         200,
		Padding:      10,
		MarkerRadius: 0.8,
		Simplify:     0.002,
		Resolution:   canvas.DPMM(4),
		AlignedColor: color.RGBA{R: 214, G: 39, B: 40, A: 255},
		DestColor:    color.RGBA{R: 31, G: 119, B: 180, A: 255},
	}
}

type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// layout maps plan-view points onto the canvas.
type layout struct {
	bound         orb.Bound
	scale         float64
	width, height float64
	padding       float64
}

func (l layout) toCanvas(p orb.Point) (float64, float64) {
	return (p[0]-l.bound.Min[0])*l.scale + l.padding, (p[1]-l.bound.Min[1])*l.scale + l.padding
}

func (r *TrajectoryRenderer) layout(lines ...orb.LineString) (layout, error) {
	var (
		bound orb.Bound
		found bool
	)
	for _, ls := range lines {
		if len(ls) == 0 {
			continue
		}
		if !found {
			bound = ls.Bound()
			found = true
			continue
		}
		bound = bound.Union(ls.Bound())
	}
	if !found {
		return layout{}, fmt.Errorf("nothing to render")
	}

	extent := math.Max(bound.Right()-bound.Left(), bound.Top()-bound.Bottom())
	scale := 1.0
	if extent > 0 {
		scale = r.Size / extent
	}
	return layout{
		bound:   bound,
		scale:   scale,
		width:   (bound.Right()-bound.Left())*scale + 2*r.Padding,
		height:  (bound.Top()-bound.Bottom())*scale + 2*r.Padding,
		padding: r.Padding,
	}, nil
}

func (r *TrajectoryRenderer) lines(res UnitResult) (aligned, dest orb.LineString, err error) {
	if !res.OK() {
		return nil, nil, fmt.Errorf("unit %s has no transform: %w", res.Unit, res.Err)
	}
	return PlanView(res.Aligned), PlanView(res.Correspondences.Dest), nil
}

// RenderSVG writes the plan view of res as SVG.
func (r *TrajectoryRenderer) RenderSVG(w io.Writer, res UnitResult) error {
	aligned, dest, err := r.lines(res)
	if err != nil {
		return err
	}
	l, err := r.layout(aligned, dest)
	if err != nil {
		return err
	}

	svgRenderer := svg.New(w, l.width, l.height, nil)
	r.renderToCanvas(svgRenderer, l, aligned, dest)
	return svgRenderer.Close()
}

// RenderPNG writes the plan view of res as PNG with a text label.
func (r *TrajectoryRenderer) RenderPNG(w io.Writer, res UnitResult) error {
	aligned, dest, err := r.lines(res)
	if err != nil {
		return err
	}
	l, err := r.layout(aligned, dest)
	if err != nil {
		return err
	}

	rast := rasterizer.New(l.width, l.height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, l, aligned, dest)

	label := fmt.Sprintf("%s %s  n=%d  s=%.4f  rms=%.4f",
		res.Pass, res.Unit, res.Correspondences.Len(), res.Transform.S, res.Residual)
	drawLabel(rast, 4, 14, label, color.RGBA{A: 255})

	return png.Encode(w, rast)
}

func (r *TrajectoryRenderer) renderToCanvas(renderer canvasRenderer, l layout, aligned, dest orb.LineString) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(l.width, l.height), bgStyle, canvas.Identity)

	tolerance := r.Simplify * math.Max(l.bound.Right()-l.bound.Left(), l.bound.Top()-l.bound.Bottom())

	for _, layer := range []struct {
		ls    orb.LineString
		color color.RGBA
	}{
		{dest, r.DestColor},
		{aligned, r.AlignedColor},
	} {
		path := layer.ls
		if tolerance > 0 && len(path) > 2 {
			if s, ok := simplify.DouglasPeucker(tolerance).Simplify(path.Clone()).(orb.LineString); ok {
				path = s
			}
		}

		lineStyle := canvas.DefaultStyle
		lineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		lineStyle.Stroke = canvas.Paint{Color: layer.color}
		lineStyle.StrokeWidth = 0.4

		cp := &canvas.Path{}
		for i, p := range path {
			x, y := l.toCanvas(p)
			if i == 0 {
				cp.MoveTo(x, y)
			} else {
				cp.LineTo(x, y)
			}
		}
		renderer.RenderPath(cp, lineStyle, canvas.Identity)

		markerStyle := canvas.DefaultStyle
		markerStyle.Fill = canvas.Paint{Color: layer.color}
		markerStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
		for _, p := range layer.ls {
			x, y := l.toCanvas(p)
			renderer.RenderPath(canvas.Circle(r.MarkerRadius).Translate(x, y), markerStyle, canvas.Identity)
		}
	}
}

func drawLabel(img draw.Image, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// SaveRender renders res to path as "svg" or "png".
func (r *TrajectoryRenderer) SaveRender(path, format string, res UnitResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating render directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating render file: %w", err)
	}
	if format == "png" {
		err = r.RenderPNG(f, res)
	} else {
		err = r.RenderSVG(f, res)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("rendering %s: %w", res.Unit, err)
	}
	return f.Close()
}
