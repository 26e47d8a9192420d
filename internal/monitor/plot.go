package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/slamsim/internal/fsutil"
	"github.com/banshee-data/slamsim/internal/geom"
	"github.com/banshee-data/slamsim/internal/pipeline"
	"github.com/banshee-data/slamsim/internal/security"
)

var (
	wallColor     = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	truthColor    = color.RGBA{R: 33, G: 150, B: 243, A: 255}
	estimateColor = color.RGBA{R: 244, G: 67, B: 54, A: 255}
	planColor     = color.RGBA{R: 76, G: 175, B: 80, A: 255}
	landmarkColor = color.RGBA{R: 255, G: 152, B: 0, A: 255}
)

// TrajectoryPlotter draws the true and estimated paths over the scene walls,
// with the current plan and the mapped landmarks.
type TrajectoryPlotter struct {
	Walls  []geom.Segment
	Width  vg.Length
	Height vg.Length
}

// NewTrajectoryPlotter creates a plotter with an 8x8 inch canvas.
func NewTrajectoryPlotter(walls []geom.Segment) *TrajectoryPlotter {
	return &TrajectoryPlotter{Walls: walls, Width: 8 * vg.Inch, Height: 8 * vg.Inch}
}

// Plot builds the figure from the history and the latest frame.
func (tp *TrajectoryPlotter) Plot(samples []Sample, f pipeline.Frame) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Trajectory (tick %d, fitter %s)", f.Tick, f.Fitter)
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.Legend.Top = true

	for _, w := range tp.Walls {
		l, err := plotter.NewLine(plotter.XYs{{X: w.A.X, Y: w.A.Y}, {X: w.B.X, Y: w.B.Y}})
		if err != nil {
			return nil, fmt.Errorf("wall line: %w", err)
		}
		l.Color = wallColor
		l.Width = vg.Points(2)
		p.Add(l)
	}

	if len(samples) > 0 {
		truth := make(plotter.XYs, len(samples))
		est := make(plotter.XYs, len(samples))
		for i, s := range samples {
			truth[i] = plotter.XY{X: s.TruePose.X, Y: s.TruePose.Y}
			est[i] = plotter.XY{X: s.Estimate.X, Y: s.Estimate.Y}
		}
		if err := addLine(p, "true", truth, truthColor, nil); err != nil {
			return nil, err
		}
		if err := addLine(p, "estimate", est, estimateColor, []vg.Length{vg.Points(4), vg.Points(2)}); err != nil {
			return nil, err
		}
	}

	if len(f.Plan) > 0 {
		pts := make(plotter.XYs, len(f.Plan))
		for i, pt := range f.Plan {
			pts[i] = plotter.XY{X: pt.X, Y: pt.Y}
		}
		if err := addLine(p, "plan", pts, planColor, []vg.Length{vg.Points(1), vg.Points(3)}); err != nil {
			return nil, err
		}
	}

	if len(f.Landmarks) > 0 {
		pts := make(plotter.XYs, len(f.Landmarks))
		for i, lm := range f.Landmarks {
			pts[i] = plotter.XY{X: lm.Position.X, Y: lm.Position.Y}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("landmark scatter: %w", err)
		}
		sc.GlyphStyle.Color = landmarkColor
		sc.GlyphStyle.Radius = vg.Points(3)
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		p.Add(sc)
		p.Legend.Add("landmarks", sc)
	}

	goal, err := plotter.NewScatter(plotter.XYs{{X: f.Goal.X, Y: f.Goal.Y}})
	if err != nil {
		return nil, fmt.Errorf("goal scatter: %w", err)
	}
	goal.GlyphStyle.Color = planColor
	goal.GlyphStyle.Radius = vg.Points(4)
	goal.GlyphStyle.Shape = draw.RingGlyph{}
	p.Add(goal)
	p.Legend.Add("goal", goal)

	return p, nil
}

func addLine(p *plot.Plot, name string, pts plotter.XYs, c color.Color, dashes []vg.Length) error {
	l, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("%s line: %w", name, err)
	}
	l.Color = c
	l.Width = vg.Points(1)
	l.Dashes = dashes
	p.Add(l)
	p.Legend.Add(name, l)
	return nil
}

// WritePNG renders the figure as PNG to w.
func (tp *TrajectoryPlotter) WritePNG(w io.Writer, samples []Sample, f pipeline.Frame) error {
	p, err := tp.Plot(samples, f)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(tp.Width, tp.Height, "png")
	if err != nil {
		return fmt.Errorf("png canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// Save writes the PNG to path on fsys. The path must end in .png and lie
// under the working or temp directory.
func (tp *TrajectoryPlotter) Save(fsys fsutil.FileSystem, path string, samples []Sample, f pipeline.Frame) error {
	if !strings.EqualFold(filepath.Ext(path), ".png") {
		return fmt.Errorf("plot path %s must end in .png", path)
	}
	if err := security.ValidateOutputPath(path); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := tp.WritePNG(&buf, samples, f); err != nil {
		return err
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write plot: %w", err)
	}
	return nil
}

// PlotFilename builds a safe file name for a run's plot.
func PlotFilename(sceneName, runID string) string {
	name := security.SanitizeFilename(sceneName)
	if runID != "" {
		name += "_" + security.SanitizeFilename(runID)
	}
	return name + ".png"
}
