package features

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/slamsim/internal/geom"
)

func testConfig() Config {
	return Config{
		DiscontinuityThreshold: 60,
		SplitThreshold:         2,
		RansacIterations:       50,
		RansacInlierThreshold:  2,
		MinLinePoints:          5,
		MinPointPoints:         1,
	}
}

func allFitters(t *testing.T) []RunFitter {
	t.Helper()
	var out []RunFitter
	for _, name := range []string{FitterIEP, FitterRANSAC, FitterRANSACLS} {
		f, err := NewRunFitter(name, testConfig(), 3)
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

// wallScan returns hits along x=100 for y in [-20, 20] as seen from the
// origin, with matching ranges.
func wallScan() ([]r2.Point, []float64) {
	var hits []r2.Point
	var ranges []float64
	for y := -20.0; y <= 20; y++ {
		p := r2.Point{X: 100, Y: y}
		hits = append(hits, p)
		ranges = append(ranges, p.Norm())
	}
	return hits, ranges
}

func assertSegment(t *testing.T, seg geom.Segment, a, b r2.Point, tol float64) {
	t.Helper()
	if seg.A.Sub(a).Norm() > seg.A.Sub(b).Norm() {
		seg.A, seg.B = seg.B, seg.A
	}
	assert.InDelta(t, a.X, seg.A.X, tol)
	assert.InDelta(t, a.Y, seg.A.Y, tol)
	assert.InDelta(t, b.X, seg.B.X, tol)
	assert.InDelta(t, b.Y, seg.B.Y, tol)
}

// ---------------------------------------------------------------------------
// Segmentation
// ---------------------------------------------------------------------------

func TestSplitRuns_InvalidBeamBreaksRun(t *testing.T) {
	t.Parallel()
	hits := []r2.Point{{X: 1}, {X: 2}, {X: 3}, {X: 4}}
	ranges := []float64{10, 10.5, math.Inf(1), 11, 11.5}

	runs := SplitRuns(hits, ranges, 60)
	require.Len(t, runs, 2)
	assert.Equal(t, []r2.Point{{X: 1}, {X: 2}}, runs[0])
	assert.Equal(t, []r2.Point{{X: 3}, {X: 4}}, runs[1])
}

func TestSplitRuns_DiscontinuityBreaksRun(t *testing.T) {
	t.Parallel()
	hits := []r2.Point{{X: 1}, {X: 2}, {X: 3}}
	runs := SplitRuns(hits, []float64{100, 100, 300}, 60)
	require.Len(t, runs, 2)
	assert.Len(t, runs[0], 2)
	assert.Len(t, runs[1], 1)
}

func TestSplitRuns_Empty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, SplitRuns(nil, []float64{math.Inf(1), math.Inf(1)}, 60))
	assert.Empty(t, SplitRuns(nil, nil, 60))
}

// ---------------------------------------------------------------------------
// Round trips shared by every fitter
// ---------------------------------------------------------------------------

func TestExtract_CollinearRunIsOneSegment(t *testing.T) {
	t.Parallel()
	hits, ranges := wallScan()
	for _, f := range allFitters(t) {
		t.Run(f.Name(), func(t *testing.T) {
			obs := NewExtractor(testConfig(), f).Extract(hits, ranges)
			require.Len(t, obs.Segments, 1)
			assert.Empty(t, obs.Points)
			assertSegment(t, obs.Segments[0], r2.Point{X: 100, Y: -20}, r2.Point{X: 100, Y: 20}, 1e-6)
		})
	}
}

func TestExtract_SeparatedPointsArePoints(t *testing.T) {
	t.Parallel()
	hits := []r2.Point{{X: 100}, {X: 0, Y: 200}, {X: -100}, {X: 0, Y: -200}, {X: 50, Y: 50}}
	ranges := []float64{100, 200, 100, 200, 70.7}
	for _, f := range allFitters(t) {
		t.Run(f.Name(), func(t *testing.T) {
			obs := NewExtractor(testConfig(), f).Extract(hits, ranges)
			assert.Empty(t, obs.Segments)
			assert.Equal(t, hits, obs.Points)
		})
	}
}

func TestExtract_ShortRunBecomesCentroid(t *testing.T) {
	t.Parallel()
	hits := []r2.Point{{X: 10, Y: 0}, {X: 10, Y: 1}, {X: 11, Y: 1}}
	ranges := []float64{10, 10.05, 11.05}
	for _, f := range allFitters(t) {
		t.Run(f.Name(), func(t *testing.T) {
			obs := NewExtractor(testConfig(), f).Extract(hits, ranges)
			assert.Empty(t, obs.Segments)
			require.Len(t, obs.Points, 1)
			assert.InDelta(t, 31.0/3, obs.Points[0].X, 1e-12)
			assert.InDelta(t, 2.0/3, obs.Points[0].Y, 1e-12)
		})
	}
}

// zigZagRun alternates between radii 30 and 45 around an arc. No line
// through two of its points comes within 2 units of more than three of them.
func zigZagRun() []r2.Point {
	run := make([]r2.Point, 12)
	for i := range run {
		r := 30.0
		if i%2 == 1 {
			r = 45
		}
		run[i] = geom.Unit(0.5 * float64(i)).Mul(r)
	}
	return run
}

// isWindowCentroid reports whether p is the centroid of some stretch of
// fewer than maxLen neighbouring points of run.
func isWindowCentroid(run []r2.Point, p r2.Point, maxLen int) bool {
	for lo := range run {
		for hi := lo + 1; hi <= len(run) && hi-lo < maxLen; hi++ {
			if geom.Centroid(run[lo:hi]).Sub(p).Norm() < 1e-9 {
				return true
			}
		}
	}
	return false
}

func TestFit_ScatteredRunYieldsLocalPoints(t *testing.T) {
	t.Parallel()
	run := zigZagRun()
	for _, f := range allFitters(t) {
		t.Run(f.Name(), func(t *testing.T) {
			obs := f.Fit(run)
			assert.Empty(t, obs.Segments)
			require.NotEmpty(t, obs.Points)
			for _, p := range obs.Points {
				assert.True(t, isWindowCentroid(run, p, testConfig().MinLinePoints),
					"point (%.2f, %.2f) is not the centroid of a short contiguous piece", p.X, p.Y)
			}
		})
	}
}

func TestRANSAC_LeftoversAfterLineStayLocal(t *testing.T) {
	t.Parallel()
	// A straight wall followed by the scattered tail: the wall is claimed
	// as a line and the tail must not collapse into one far-off centroid.
	var run []r2.Point
	for x := -60.0; x <= -40; x += 2 {
		run = append(run, r2.Point{X: x, Y: -80})
	}
	wall := len(run)
	tail := zigZagRun()
	run = append(run, tail...)

	obs := NewRANSAC(testConfig(), false, 7).Fit(run)
	require.NotEmpty(t, obs.Segments)
	assertSegment(t, obs.Segments[0], run[0], run[wall-1], 1e-6)
	require.NotEmpty(t, obs.Points)
	for _, p := range obs.Points {
		assert.True(t, isWindowCentroid(tail, p, testConfig().MinLinePoints),
			"point (%.2f, %.2f) is not local to the tail", p.X, p.Y)
	}
}

func TestExtract_MinPointPointsSuppressesSparseRuns(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MinPointPoints = 3
	hits := []r2.Point{{X: 10}, {X: 10, Y: 1}}
	obs := NewExtractor(cfg, NewIEP(cfg)).Extract(hits, []float64{10, 10.05})
	assert.Empty(t, obs.Points)
	assert.Empty(t, obs.Segments)
}

// ---------------------------------------------------------------------------
// IEP
// ---------------------------------------------------------------------------

func TestIEP_SplitsAtCorner(t *testing.T) {
	t.Parallel()
	var run []r2.Point
	for x := 0.0; x <= 10; x++ {
		run = append(run, r2.Point{X: x})
	}
	for y := 1.0; y <= 10; y++ {
		run = append(run, r2.Point{X: 10, Y: y})
	}

	obs := NewIEP(testConfig()).Fit(run)
	require.Len(t, obs.Segments, 2)
	assert.Empty(t, obs.Points)
	assert.Equal(t, geom.Segment{A: r2.Point{}, B: r2.Point{X: 10}}, obs.Segments[0])
	assert.Equal(t, geom.Segment{A: r2.Point{X: 10}, B: r2.Point{X: 10, Y: 10}}, obs.Segments[1])
}

func TestIEP_ToleratesNoiseBelowThreshold(t *testing.T) {
	t.Parallel()
	var run []r2.Point
	for i := 0; i < 20; i++ {
		run = append(run, r2.Point{X: float64(i), Y: 0.5 * float64(i%2)})
	}
	obs := NewIEP(testConfig()).Fit(run)
	assert.Len(t, obs.Segments, 1)
}

// ---------------------------------------------------------------------------
// RANSAC
// ---------------------------------------------------------------------------

func TestRANSAC_SameSeedSameResult(t *testing.T) {
	t.Parallel()
	var run []r2.Point
	for x := 0.0; x <= 10; x++ {
		run = append(run, r2.Point{X: x})
	}
	for y := 1.0; y <= 10; y++ {
		run = append(run, r2.Point{X: 10, Y: y})
	}

	a := NewRANSAC(testConfig(), false, 99).Fit(run)
	b := NewRANSAC(testConfig(), false, 99).Fit(run)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a.Segments)
}

func TestRANSAC_IdenticalPointsNeverFormALine(t *testing.T) {
	t.Parallel()
	run := make([]r2.Point, 8)
	for i := range run {
		run[i] = r2.Point{X: 3, Y: 4}
	}
	obs := NewRANSAC(testConfig(), true, 1).Fit(run)
	assert.Empty(t, obs.Segments)
	assert.Equal(t, []r2.Point{{X: 3, Y: 4}}, obs.Points)
}

func TestTotalLeastSquares_RecoversSlope(t *testing.T) {
	t.Parallel()
	var pts []r2.Point
	for i := 0; i < 40; i++ {
		x := float64(i)
		noise := 0.1
		if i%2 == 1 {
			noise = -0.1
		}
		pts = append(pts, r2.Point{X: x, Y: 0.5*x + 3 + noise})
	}

	c, dir, ok := totalLeastSquares(pts)
	require.True(t, ok)
	assert.InDelta(t, 0.5, dir.Y/dir.X, 1e-2)
	assert.InDelta(t, 19.5, c.X, 1e-9)
	assert.InDelta(t, 0.5*19.5+3, c.Y, 1e-9)
}

// ---------------------------------------------------------------------------
// Strategy selection
// ---------------------------------------------------------------------------

func TestNewRunFitter(t *testing.T) {
	t.Parallel()
	_, err := NewRunFitter("hough", testConfig(), 1)
	require.ErrorIs(t, err, ErrUnknownFitter)

	f, err := NewRunFitter(FitterRANSACLS, testConfig(), 1)
	require.NoError(t, err)
	assert.Equal(t, FitterRANSACLS, f.Name())
}

func TestExtractor_SetFitter(t *testing.T) {
	t.Parallel()
	e := NewExtractor(testConfig(), NewIEP(testConfig()))
	assert.Equal(t, FitterIEP, e.Fitter().Name())
	e.SetFitter(NewRANSAC(testConfig(), false, 1))
	assert.Equal(t, FitterRANSAC, e.Fitter().Name())
}
