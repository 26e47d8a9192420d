package sim

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/slamsim/internal/geom"
)

func wallAt100() []geom.Landmark {
	return []geom.Landmark{geom.NewSegment(100, -1000, 100, 1000)}
}

// ---------------------------------------------------------------------------
// Beam geometry
// ---------------------------------------------------------------------------

func TestLaserConfig_BeamAngles(t *testing.T) {
	t.Parallel()
	cfg := DefaultLaserConfig()
	require.Equal(t, 181, cfg.Count)
	assert.InDelta(t, -math.Pi/2, cfg.BeamAngle(0), 1e-12)
	assert.InDelta(t, 0, cfg.BeamAngle(90), 1e-12)
	assert.InDelta(t, math.Pi/2, cfg.BeamAngle(180), 1e-12)
	assert.InDelta(t, math.Pi/181, cfg.Resolution(), 1e-12)
}

// ---------------------------------------------------------------------------
// Sensing
// ---------------------------------------------------------------------------

func TestLaser_BeamAtWallWithinNoise(t *testing.T) {
	t.Parallel()
	cfg := DefaultLaserConfig()
	l := NewLaser(cfg, 7)
	l.Update(Pose{}, 0, wallAt100())

	scan, ok := l.Measurements()
	require.True(t, ok)
	require.Len(t, scan.Ranges, cfg.Count)

	// Central beam: the jitter changes the path length by a negligible
	// amount, so the range noise bound dominates.
	assert.InDelta(t, 100, scan.Ranges[90], cfg.RangeNoise+1e-3)

	// Beam 60 is 30 * pi/180 off-axis.
	want := 100 / math.Cos(cfg.BeamAngle(60))
	assert.InDelta(t, want, scan.Ranges[60], cfg.RangeNoise+0.1)

	// Beams near +-90 degrees run parallel to the wall and exceed max range.
	assert.False(t, ValidRange(scan.Ranges[0]))
	assert.False(t, ValidRange(scan.Ranges[180]))
}

func TestLaser_EmptySpaceIsInvalid(t *testing.T) {
	t.Parallel()
	l := NewLaser(DefaultLaserConfig(), 1)
	l.Update(Pose{}, 0, nil)

	scan, ok := l.Measurements()
	require.True(t, ok)
	assert.Equal(t, 0, scan.ValidCount())
}

func TestLaser_BeyondMaxRangeIsInvalid(t *testing.T) {
	t.Parallel()
	l := NewLaser(DefaultLaserConfig(), 1)
	l.Update(Pose{}, 0, []geom.Landmark{geom.NewSegment(600, -10, 600, 10)})
	scan, _ := l.Measurements()
	assert.Equal(t, 0, scan.ValidCount())
}

func TestLaser_MeasurementsIsASnapshot(t *testing.T) {
	t.Parallel()
	l := NewLaser(DefaultLaserConfig(), 1)
	_, ok := l.Measurements()
	assert.False(t, ok, "no scan before first update")

	l.Update(Pose{}, time.Second, wallAt100())
	a, _ := l.Measurements()
	a.Ranges[90] = -1

	b, _ := l.Measurements()
	assert.NotEqual(t, -1.0, b.Ranges[90])
	assert.Equal(t, uint64(1), b.Seq)
	assert.Equal(t, time.Second, b.SimTime)

	l.Update(Pose{}, 2*time.Second, wallAt100())
	assert.Equal(t, uint64(2), l.LatestSeq())
}

func TestLaser_ConcurrentReadersSeeWholeScans(t *testing.T) {
	t.Parallel()
	cfg := DefaultLaserConfig()
	cfg.RangeNoise = 0
	cfg.AngleNoise = 0
	l := NewLaser(cfg, 1)
	near := []geom.Landmark{geom.NewSegment(50, -1000, 50, 1000)}
	far := []geom.Landmark{geom.NewSegment(200, -1000, 200, 1000)}
	l.Update(Pose{}, 0, near)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				l.Update(Pose{}, 0, far)
			} else {
				l.Update(Pose{}, 0, near)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		scan, _ := l.Measurements()
		centre := scan.Ranges[90]
		// Every valid beam of a scan must come from the same wall.
		for j := 60; j <= 120; j++ {
			ratio := scan.Ranges[j] * math.Cos(cfg.BeamAngle(j)) / centre
			require.InDelta(t, 1, ratio, 1e-9)
		}
	}
	wg.Wait()
}

// ---------------------------------------------------------------------------
// Projection
// ---------------------------------------------------------------------------

func TestLaserConfig_ProjectSkipsInvalid(t *testing.T) {
	t.Parallel()
	cfg := LaserConfig{Count: 3, MinTheta: -math.Pi / 2, MaxTheta: math.Pi / 2, MountOffset: 1}
	pose := Pose{X: 10, Y: 0, Heading: math.Pi / 2}

	hits := cfg.Project(pose, []float64{5, InvalidRange, 2})
	require.Len(t, hits, 2)

	origin := r2.Point{X: 10, Y: 1}
	assert.InDelta(t, origin.X+5, hits[0].X, 1e-9) // beam 0 points along -90deg from north: east
	assert.InDelta(t, origin.Y, hits[0].Y, 1e-9)
	assert.InDelta(t, origin.X-2, hits[1].X, 1e-9)
	assert.InDelta(t, origin.Y, hits[1].Y, 1e-9)
}
