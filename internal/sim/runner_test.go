package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/slamsim/internal/timeutil"
)

func TestRunner_StepOnceSkipsSensingWhilePaused(t *testing.T) {
	t.Parallel()
	r := &Runner{
		Sim:       NewSimulator(testConfig(), Pose{}, 1),
		Laser:     NewLaser(DefaultLaserConfig(), 1),
		Landmarks: wallAt100(),
		Interval:  10 * time.Millisecond,
	}

	r.StepOnce()
	assert.Equal(t, uint64(1), r.Laser.LatestSeq())

	r.Sim.SetPaused(true)
	r.StepOnce()
	assert.Equal(t, uint64(1), r.Laser.LatestSeq())
	assert.Equal(t, uint64(1), r.Ticks())
}

func TestRunner_RunFollowsClock(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	r := &Runner{
		Sim:       NewSimulator(testConfig(), Pose{}, 1),
		Laser:     NewLaser(DefaultLaserConfig(), 1),
		Landmarks: wallAt100(),
		Clock:     clock,
		Interval:  10 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		runErr = r.Run(ctx)
	}()

	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), r.Laser.LatestSeq(), "initial scan")

	for i := 1; i <= 3; i++ {
		clock.Advance(10 * time.Millisecond)
		want := uint64(i)
		require.Eventually(t, func() bool { return r.Ticks() == want }, time.Second, time.Millisecond)
	}
	assert.Equal(t, 30*time.Millisecond, r.Sim.Elapsed())

	cancel()
	wg.Wait()
	assert.NoError(t, runErr)
}
