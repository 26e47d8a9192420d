package monitor

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/slamsim/internal/geom"
	"github.com/banshee-data/slamsim/internal/pipeline"
)

// maxChartPoints bounds the series length sent to the browser.
const maxChartPoints = 2000

// wallStep is the spacing of the dots used to draw walls in the map chart.
const wallStep = 4.0

func stride(n, max int) int {
	if n <= max {
		return 1
	}
	return int(math.Ceil(float64(n) / float64(max)))
}

// renderErrorChart draws position error, heading error and covariance trace
// against tick.
func renderErrorChart(w io.Writer, samples []Sample) error {
	step := stride(len(samples), maxChartPoints)
	ticks := make([]string, 0, len(samples)/step+1)
	pos := make([]opts.LineData, 0, cap(ticks))
	head := make([]opts.LineData, 0, cap(ticks))
	trace := make([]opts.LineData, 0, cap(ticks))
	for i := 0; i < len(samples); i += step {
		s := samples[i]
		ticks = append(ticks, strconv.FormatUint(s.Tick, 10))
		pos = append(pos, opts.LineData{Value: s.PositionError})
		head = append(head, opts.LineData{Value: math.Abs(s.HeadingError)})
		trace = append(trace, opts.LineData{Value: s.CovTrace})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Estimation error", Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: "Estimation error", Subtitle: fmt.Sprintf("samples=%d stride=%d", len(pos), step)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "error", Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}, opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(ticks).
		AddSeries("position error", pos).
		AddSeries("|heading error|", head).
		AddSeries("cov trace", trace).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	return line.Render(w)
}

// renderMapChart draws the scene, both trajectories, the plan and the mapped
// landmarks as an XY scatter with equal axes.
func renderMapChart(w io.Writer, walls []geom.Segment, samples []Sample, f pipeline.Frame) error {
	var wallPts, truthPts, estPts, planPts, lmPts []opts.ScatterData
	lo, hi := math.Inf(1), math.Inf(-1)
	grow := func(x, y float64) {
		lo = math.Min(lo, math.Min(x, y))
		hi = math.Max(hi, math.Max(x, y))
	}

	for _, s := range walls {
		n := int(math.Ceil(s.Length() / wallStep))
		for i := 0; i <= n; i++ {
			t := 0.0
			if n > 0 {
				t = float64(i) / float64(n)
			}
			pt := s.A.Add(s.B.Sub(s.A).Mul(t))
			wallPts = append(wallPts, opts.ScatterData{Value: []interface{}{pt.X, pt.Y}})
			grow(pt.X, pt.Y)
		}
	}

	step := stride(len(samples), maxChartPoints)
	for i := 0; i < len(samples); i += step {
		s := samples[i]
		truthPts = append(truthPts, opts.ScatterData{Value: []interface{}{s.TruePose.X, s.TruePose.Y}})
		estPts = append(estPts, opts.ScatterData{Value: []interface{}{s.Estimate.X, s.Estimate.Y}})
		grow(s.TruePose.X, s.TruePose.Y)
	}
	for _, pt := range f.Plan {
		planPts = append(planPts, opts.ScatterData{Value: []interface{}{pt.X, pt.Y}})
	}
	for _, lm := range f.Landmarks {
		lmPts = append(lmPts, opts.ScatterData{Value: []interface{}{lm.Position.X, lm.Position.Y}, Name: "L" + strconv.Itoa(lm.ID)})
	}
	if lo > hi {
		lo, hi = -1, 1
	}
	pad := 0.05 * (hi - lo)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Map", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Map", Subtitle: fmt.Sprintf("tick=%d landmarks=%d fitter=%s", f.Tick, len(f.Landmarks), f.Fitter)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: lo - pad, Max: hi + pad, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: lo - pad, Max: hi + pad, Name: "Y", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("walls", wallPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	scatter.AddSeries("true", truthPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#2196f3"}))
	scatter.AddSeries("estimate", estPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#f44336"}))
	scatter.AddSeries("plan", planPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#4caf50"}))
	scatter.AddSeries("landmarks", lmPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff9800"}))

	return scatter.Render(w)
}
