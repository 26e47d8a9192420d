package sqlite

import (
	"context"
	"sync/atomic"

	"github.com/banshee-data/slamsim/internal/monitoring"
	"github.com/banshee-data/slamsim/internal/pipeline"
)

// Recorder writes pipeline frames of one run to a Store. Write failures are
// logged once and counted; they never stop the simulation.
type Recorder struct {
	store *Store
	runID string

	frames   atomic.Uint64
	failures atomic.Uint64
	last     atomic.Uint64
	goal     atomic.Bool
}

// NewRecorder creates the run row and returns a recorder for it.
func NewRecorder(ctx context.Context, store *Store, info RunInfo) (*Recorder, error) {
	id, err := store.CreateRun(ctx, info)
	if err != nil {
		return nil, err
	}
	return &Recorder{store: store, runID: id}, nil
}

// RunID returns the id of the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

// Frames returns the number of unpaused frames observed.
func (r *Recorder) Frames() uint64 { return r.frames.Load() }

// Failures returns the number of writes that failed.
func (r *Recorder) Failures() uint64 { return r.failures.Load() }

// Observe implements pipeline.Observer. Paused frames are not stored.
func (r *Recorder) Observe(ctx context.Context, f pipeline.Frame) {
	if f.Paused {
		return
	}
	r.frames.Add(1)
	r.last.Store(f.Tick)
	r.goal.Store(f.AtGoal)

	r.check(r.store.RecordPose(ctx, r.runID, PoseRecord{
		Tick:        f.Tick,
		SimTime:     f.SimTime.Seconds(),
		TrueX:       f.TruePose.X,
		TrueY:       f.TruePose.Y,
		TrueHeading: f.TruePose.Heading,
		EstX:        f.Estimate.X,
		EstY:        f.Estimate.Y,
		EstHeading:  f.Estimate.Heading,
		CovTrace:    f.CovarianceTrace(),
		Landmarks:   len(f.Landmarks),
	}))
	if f.Replanned {
		r.check(r.store.RecordReplan(ctx, r.runID, ReplanRecord{
			Tick:   f.Tick,
			Cells:  f.PlanCells,
			Length: f.PlanLength,
			OK:     f.PlanOK(),
		}))
	}
}

func (r *Recorder) check(err error) {
	if err == nil {
		return
	}
	if r.failures.Add(1) == 1 {
		monitoring.Logf("recorder: run %s: %v (further errors are counted, not logged)", r.runID, err)
	}
}

// Finish stamps the run with the last observed tick and goal state.
func (r *Recorder) Finish(ctx context.Context) error {
	return r.store.FinishRun(ctx, r.runID, r.last.Load(), r.goal.Load())
}
