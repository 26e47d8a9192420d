package pipeline

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/slamsim/internal/config"
	"github.com/banshee-data/slamsim/internal/features"
	"github.com/banshee-data/slamsim/internal/scene"
	"github.com/banshee-data/slamsim/internal/testutil"
	"github.com/banshee-data/slamsim/internal/timeutil"
)

func f64(v float64) *float64 { return &v }

// noiseless returns the default tuning with every noise source disabled.
func noiseless() *config.TuningConfig {
	cfg := config.DefaultTuningConfig()
	cfg.VelocityNoise = f64(0)
	cfg.LaserAngleNoise = f64(0)
	cfg.LaserRangeNoise = f64(0)
	return cfg
}

func newPipeline(t *testing.T, cfg *config.TuningConfig, s *scene.Scene, observers ...Observer) *Pipeline {
	t.Helper()
	p, err := New(Options{Tuning: cfg, Scene: s, Observers: observers})
	require.NoError(t, err)
	return p
}

// --- construction ---

func TestNewRejectsBadOptions(t *testing.T) {
	t.Parallel()
	_, err := New(Options{Scene: scene.SquareRoom()})
	assert.Error(t, err)

	bad := config.DefaultTuningConfig()
	bad.DriveSpeed = f64(-1)
	_, err = New(Options{Tuning: bad, Scene: scene.SquareRoom()})
	assert.ErrorContains(t, err, "drive_speed")
}

// --- closed loop ---

func TestSquareRoomDrivesStraightToGoal(t *testing.T) {
	t.Parallel()
	// Only mapping, planning and control are under test: corner fragments
	// would otherwise become landmarks and nudge the heading estimate.
	cfg := noiseless()
	minPoints := 1000
	cfg.MinPointPoints = &minPoints
	p := newPipeline(t, cfg, scene.SquareRoom())
	ctx := context.Background()

	var frames []Frame
	for i := 0; i < 1500; i++ {
		f := p.StepSynchronous(ctx, 20*time.Millisecond)
		frames = append(frames, f)
		if f.AtGoal && p.Simulator().Velocity().Linear == 0 {
			break
		}
	}
	last := frames[len(frames)-1]
	require.True(t, last.AtGoal, "goal not reached after %d ticks", len(frames))

	// The first plan is the straight vertical corridor of cells above the
	// start, and it is never invalidated.
	first := frames[0]
	require.True(t, first.Replanned)
	require.Equal(t, 26, first.PlanCells)
	for _, pt := range first.Plan {
		assert.Equal(t, 2.0, pt.X)
	}
	assert.Equal(t, r2.Point{X: 2, Y: 2}, first.Plan[0])
	assert.Equal(t, r2.Point{X: 2, Y: 102}, first.Plan[25])
	assert.InDelta(t, 100, first.PlanLength, 1e-9)

	replans := 0
	for _, f := range frames {
		assert.Zero(t, f.Command.Angular, "tick %d rotated", f.Tick)
		if f.Replanned {
			replans++
		}
	}
	assert.Equal(t, 1, replans)

	assert.InDelta(t, 2, last.TruePose.X, 1e-6)
	assert.InDelta(t, 102, last.TruePose.Y, 2)
	assert.InDelta(t, math.Pi/2, last.TruePose.Heading, 1e-12)
	testutil.AssertPoseNear(t, last.TruePose, last.Estimate, 3, 1e-9, "estimate drifted from truth")
	assert.True(t, last.Healthy)

	// Walls were mapped and the corridor stayed open.
	snap := p.Grid().Snapshot()
	assert.NotEmpty(t, snap.Occupied)
	assert.Positive(t, snap.FreeCells)
}

func TestPillarsTracksLandmarks(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, config.DefaultTuningConfig(), scene.Pillars())
	ctx := context.Background()

	var last Frame
	for i := 0; i < 300; i++ {
		last = p.StepSynchronous(ctx, 20*time.Millisecond)
	}
	assert.Positive(t, p.Estimator().NumLandmarks())
	assert.Positive(t, last.Stats.Augments)
	assert.Positive(t, last.Stats.Updates)
	assert.Less(t, last.PositionError(), 50.0)
	assert.Greater(t, last.TruePose.X, scene.Pillars().Start.X)
}

// --- runtime controls ---

func TestPauseFreezesSimulation(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, noiseless(), scene.SquareRoom())
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		p.StepSynchronous(ctx, 20*time.Millisecond)
	}

	p.SetPaused(true)
	assert.True(t, p.Paused())
	before := p.Latest()
	f := p.StepSynchronous(ctx, 20*time.Millisecond)
	assert.True(t, f.Paused)
	assert.False(t, f.Scan)
	assert.Equal(t, before.SimTime, f.SimTime)
	assert.Equal(t, before.TruePose, p.Simulator().TruePose())

	p.SetPaused(false)
	f = p.StepSynchronous(ctx, 20*time.Millisecond)
	assert.False(t, f.Paused)
	assert.Greater(t, f.SimTime, before.SimTime)
}

func TestTickSkipsAlreadyProcessedScan(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, config.DefaultTuningConfig(), scene.Pillars())
	ctx := context.Background()

	first := p.StepSynchronous(ctx, 20*time.Millisecond)
	require.True(t, first.Scan)
	require.NotZero(t, first.Stats.Augments)
	landmarks := p.Estimator().NumLandmarks()
	grid := p.Grid().Snapshot()

	// No physics step in between, so the laser has nothing newer.
	second := p.Tick(ctx)
	assert.False(t, second.Scan)
	assert.Empty(t, second.Observation.Segments)
	assert.Empty(t, second.Observation.Points)
	assert.Nil(t, second.Decisions)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, landmarks, p.Estimator().NumLandmarks())
	assert.Equal(t, grid, p.Grid().Snapshot())
	assert.Equal(t, first.SimTime, second.SimTime)

	third := p.StepSynchronous(ctx, 20*time.Millisecond)
	assert.True(t, third.Scan)
}

func TestSetFitter(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, noiseless(), scene.SquareRoom())

	err := p.SetFitter("hough")
	assert.ErrorIs(t, err, features.ErrUnknownFitter)

	require.NoError(t, p.SetFitter(features.FitterRANSACLS))
	f := p.StepSynchronous(context.Background(), 20*time.Millisecond)
	assert.Equal(t, features.FitterRANSACLS, f.Fitter)
	assert.NotEmpty(t, f.Observation.Segments)
}

func TestSetGoalReplans(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, noiseless(), scene.SquareRoom())
	ctx := context.Background()
	p.StepSynchronous(ctx, 20*time.Millisecond)

	p.SetGoal(r2.Point{X: 102, Y: 2})
	f := p.StepSynchronous(ctx, 20*time.Millisecond)
	assert.True(t, f.Replanned)
	assert.Equal(t, r2.Point{X: 102, Y: 2}, f.Goal)
	assert.Equal(t, r2.Point{X: 102, Y: 2}, f.Plan[len(f.Plan)-1])
}

func TestObserversSeeEveryFrame(t *testing.T) {
	t.Parallel()
	var ticks []uint64
	obs := ObserverFunc(func(_ context.Context, f Frame) { ticks = append(ticks, f.Tick) })
	p := newPipeline(t, noiseless(), scene.SquareRoom(), obs)

	for i := 0; i < 3; i++ {
		p.StepSynchronous(context.Background(), 20*time.Millisecond)
	}
	assert.Equal(t, []uint64{1, 2, 3}, ticks)
	assert.Equal(t, uint64(3), p.Latest().Tick)
}

func TestFrameDerivedValues(t *testing.T) {
	t.Parallel()
	f := Frame{PlanCells: 3}
	f.TruePose.X, f.TruePose.Y, f.TruePose.Heading = 3, 4, math.Pi-0.1
	f.Estimate.Heading = -math.Pi + 0.1
	f.PoseCov[0][0], f.PoseCov[1][1], f.PoseCov[2][2] = 1, 2, 3

	assert.Equal(t, 5.0, f.PositionError())
	assert.InDelta(t, 0.2, f.HeadingError(), 1e-12)
	assert.Equal(t, 6.0, f.CovarianceTrace())
	assert.True(t, f.PlanOK())
}

// --- concurrent loops ---

func TestRunFollowsClock(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	var mu sync.Mutex
	var count int
	obs := ObserverFunc(func(context.Context, Frame) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	p, err := New(Options{Tuning: noiseless(), Scene: scene.SquareRoom(), Clock: clock, Observers: []Observer{obs}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return clock.Tickers() == 2 }, time.Second, time.Millisecond)
	for i := 0; i < 5; i++ {
		clock.Advance(20 * time.Millisecond)
		want := i + 1
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return count >= want
		}, time.Second, time.Millisecond)
	}

	cancel()
	require.NoError(t, <-done)
	assert.Positive(t, p.Simulator().Elapsed())
}
