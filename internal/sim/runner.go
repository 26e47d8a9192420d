package sim

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/slamsim/internal/geom"
	"github.com/banshee-data/slamsim/internal/timeutil"
)

// Runner advances the simulator and refreshes the laser on a fixed period.
// Each tick integrates exactly one Interval of simulated time regardless of
// scheduling jitter, so runs are reproducible for a given seed.
type Runner struct {
	Sim       *Simulator
	Laser     *Laser
	Landmarks []geom.Landmark
	Clock     timeutil.Clock
	Interval  time.Duration

	ticks atomic.Uint64
}

// StepOnce performs one physics tick synchronously. Nothing is sensed while
// the simulator is paused.
func (r *Runner) StepOnce() {
	r.Sim.Step(r.Interval)
	if r.Sim.Paused() {
		return
	}
	r.Laser.Update(r.Sim.TruePose(), r.Sim.Elapsed(), r.Landmarks)
	r.ticks.Add(1)
}

// Ticks returns the number of sensing ticks performed.
func (r *Runner) Ticks() uint64 { return r.ticks.Load() }

// Run ticks until ctx is cancelled. It publishes an initial scan before the
// first tick so consumers have something to read immediately.
func (r *Runner) Run(ctx context.Context) error {
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	r.Laser.Update(r.Sim.TruePose(), r.Sim.Elapsed(), r.Landmarks)

	ticker := clock.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			r.StepOnce()
		}
	}
}
