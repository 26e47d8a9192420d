package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/slamsim/internal/config"
	"github.com/banshee-data/slamsim/internal/control"
	"github.com/banshee-data/slamsim/internal/features"
	"github.com/banshee-data/slamsim/internal/geom"
	"github.com/banshee-data/slamsim/internal/grid"
	"github.com/banshee-data/slamsim/internal/monitoring"
	"github.com/banshee-data/slamsim/internal/scene"
	"github.com/banshee-data/slamsim/internal/sim"
	"github.com/banshee-data/slamsim/internal/slam"
	"github.com/banshee-data/slamsim/internal/timeutil"
)

// Observer receives every frame from the pipeline goroutine. Implementations
// must return quickly.
type Observer interface {
	Observe(ctx context.Context, f Frame)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, f Frame)

// Observe implements Observer.
func (fn ObserverFunc) Observe(ctx context.Context, f Frame) { fn(ctx, f) }

// Options configures New. Tuning and Scene are required.
type Options struct {
	Tuning    *config.TuningConfig
	Scene     *scene.Scene
	Clock     timeutil.Clock
	Observers []Observer
}

// Pipeline owns every component of one simulation run.
type Pipeline struct {
	tuning      *config.TuningConfig
	scene       *scene.Scene
	clock       timeutil.Clock
	seed        int64
	featCfg     features.Config
	controlStep time.Duration
	robotRadius float64
	q, r        *mat.SymDense

	sim       *sim.Simulator
	laser     *sim.Laser
	runner    *sim.Runner
	extractor *features.Extractor
	est       *slam.Estimator
	grid      *grid.Grid
	ctrl      *control.Controller
	observers []Observer

	// Owned by the goroutine calling Tick.
	tick            uint64
	propagatedUntil time.Duration
	lastSeq         uint64
	command         geom.Control
	replans         int

	mu      sync.RWMutex
	latest  Frame
	pending *r2.Point
}

// New builds a pipeline with the robot at the scene's start pose.
func New(opts Options) (*Pipeline, error) {
	if opts.Tuning == nil || opts.Scene == nil {
		return nil, fmt.Errorf("pipeline: tuning and scene are required")
	}
	if err := opts.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	tuning := opts.Tuning
	seed := tuning.GetSeed()

	featCfg := features.ConfigFromTuning(tuning)
	fitter, err := features.NewRunFitter(tuning.GetFitter(), featCfg, seed)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	slamCfg := slam.ConfigFromTuning(tuning)
	g := grid.New(grid.ConfigFromTuning(tuning))
	start := opts.Scene.Start

	p := &Pipeline{
		tuning:      tuning,
		scene:       opts.Scene,
		clock:       clock,
		seed:        seed,
		featCfg:     featCfg,
		controlStep: tuning.GetControlInterval(),
		robotRadius: tuning.GetRobotRadius(),
		q:           slamCfg.ProcessCov(),
		r:           slamCfg.MeasurementCov(),
		sim:         sim.NewSimulator(sim.ConfigFromTuning(tuning), start, seed),
		laser:       sim.NewLaser(sim.LaserConfigFromTuning(tuning), seed+1),
		extractor:   features.NewExtractor(featCfg, fitter),
		est:         slam.NewEstimator(slamCfg, start),
		grid:        g,
		ctrl:        control.NewController(control.ConfigFromTuning(tuning), g, opts.Scene.GoalPoint()),
		observers:   opts.Observers,
	}
	p.runner = &sim.Runner{
		Sim:       p.sim,
		Laser:     p.laser,
		Landmarks: opts.Scene.Landmarks(),
		Clock:     clock,
		Interval:  tuning.GetPhysicsInterval(),
	}
	p.latest = Frame{TruePose: start, Estimate: start, Fitter: fitter.Name()}
	return p, nil
}

// AddObserver registers o. It must be called before Run.
func (p *Pipeline) AddObserver(o Observer) { p.observers = append(p.observers, o) }

// Scene returns the scene being simulated.
func (p *Pipeline) Scene() *scene.Scene { return p.scene }

// Tuning returns the configuration the pipeline was built from.
func (p *Pipeline) Tuning() *config.TuningConfig { return p.tuning }

// Simulator, Laser, Estimator and Grid expose the components for observers.
// Only their concurrency-safe read methods may be used while Run is active.
func (p *Pipeline) Simulator() *sim.Simulator  { return p.sim }
func (p *Pipeline) Laser() *sim.Laser          { return p.laser }
func (p *Pipeline) Estimator() *slam.Estimator { return p.est }
func (p *Pipeline) Grid() *grid.Grid           { return p.grid }

// Latest returns the most recent frame.
func (p *Pipeline) Latest() Frame {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// SetFitter switches the extraction strategy by name.
func (p *Pipeline) SetFitter(name string) error {
	f, err := features.NewRunFitter(name, p.featCfg, p.seed)
	if err != nil {
		return err
	}
	p.extractor.SetFitter(f)
	monitoring.Logf("pipeline: extractor switched to %s", f.Name())
	return nil
}

// SetPaused freezes or resumes the simulation.
func (p *Pipeline) SetPaused(paused bool) { p.sim.SetPaused(paused) }

// Paused reports whether the simulation is frozen.
func (p *Pipeline) Paused() bool { return p.sim.Paused() }

// SetGoal moves the goal. It takes effect on the next tick.
func (p *Pipeline) SetGoal(goal r2.Point) {
	p.mu.Lock()
	p.pending = &goal
	p.mu.Unlock()
}

// Tick runs one estimation and control step against the current simulator
// state and returns the resulting frame.
func (p *Pipeline) Tick(ctx context.Context) Frame {
	p.tick++
	if p.sim.Paused() {
		f := p.Latest()
		f.Tick = p.tick
		f.Paused = true
		f.Scan, f.Replanned = false, false
		f.Observation, f.Decisions = features.Observation{}, nil
		p.publish(ctx, f)
		return f
	}

	p.mu.Lock()
	if p.pending != nil {
		p.ctrl.SetGoal(*p.pending)
		p.pending = nil
	}
	p.mu.Unlock()

	// Propagate over the simulated time since the last tick under the
	// command that was in force.
	now := p.sim.Elapsed()
	if dt := now - p.propagatedUntil; dt > 0 {
		p.est.Propagate(p.command, p.q, dt.Seconds())
	}
	p.propagatedUntil = now

	estimate := p.est.Pose()
	cmd := p.ctrl.Tick(estimate)
	p.sim.ApplyControl(cmd.Sub(p.sim.CommandedVelocity()))
	p.command = cmd
	replanned := p.ctrl.Replans() != p.replans
	p.replans = p.ctrl.Replans()

	f := Frame{
		Tick:      p.tick,
		Command:   cmd,
		Replanned: replanned,
		Fitter:    p.extractor.Fitter().Name(),
	}
	if scan, ok := p.laser.Measurements(); ok && scan.Seq > p.lastSeq {
		p.lastSeq = scan.Seq
		f.Scan = true
		f.Observation, f.Decisions = p.sense(estimate, scan.Ranges)
	}

	snap := p.est.Snapshot()
	plan := p.ctrl.Plan()
	f.SimTime = now
	f.TruePose = p.sim.TruePose()
	f.Estimate = snap.Pose
	f.PoseCov = snap.PoseCov
	f.Landmarks = snap.Landmarks
	f.Stats = snap.Stats
	f.Healthy = snap.Healthy
	f.Goal = p.ctrl.Goal()
	f.Plan = p.ctrl.PlanPoints()
	f.PlanCells = len(plan)
	f.PlanLength = p.grid.PathLength(plan)
	f.Milestone = p.ctrl.Milestone()
	f.AtGoal = p.ctrl.AtGoal()
	p.publish(ctx, f)
	return f
}

// sense folds one scan into the grid and the landmark map, projecting the
// ranges from the estimated pose.
func (p *Pipeline) sense(pose geom.Pose, ranges []float64) (features.Observation, []slam.Decision) {
	lc := p.laser.Config()
	origin := lc.Origin(pose)
	hits := lc.Project(pose, ranges)
	for _, h := range hits {
		p.grid.AddHit(h, p.robotRadius)
		p.grid.RasterizeFreeRay(origin, h)
	}

	obs := p.extractor.Extract(hits, ranges)
	if len(obs.Points) == 0 {
		return obs, nil
	}
	body := make([]r2.Point, len(obs.Points))
	for i, pt := range obs.Points {
		body[i] = pose.ToBody(pt)
	}
	return obs, p.est.AugmentOrUpdate(body, p.r)
}

func (p *Pipeline) publish(ctx context.Context, f Frame) {
	p.mu.Lock()
	p.latest = f
	p.mu.Unlock()
	for _, o := range p.observers {
		o.Observe(ctx, f)
	}
}

// StepSynchronous advances physics by dt in physics-interval steps and then
// runs one control tick. It must not be mixed with Run.
func (p *Pipeline) StepSynchronous(ctx context.Context, dt time.Duration) Frame {
	for remaining := dt; remaining > 0; remaining -= p.runner.Interval {
		p.runner.StepOnce()
	}
	return p.Tick(ctx)
}

// RunUntil steps synchronously until the goal is reached, maxTicks ticks
// have run, or ctx is done. It returns the last frame.
func (p *Pipeline) RunUntil(ctx context.Context, maxTicks int) Frame {
	var f Frame
	for i := 0; i < maxTicks && ctx.Err() == nil; i++ {
		f = p.StepSynchronous(ctx, p.controlStep)
		if f.AtGoal && math.Abs(p.sim.Velocity().Linear) < 1e-9 {
			break
		}
	}
	return f
}

// Run drives physics and control on their own clock tickers until ctx is
// cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.runner.Run(ctx) })
	g.Go(func() error {
		ticker := p.clock.NewTicker(p.controlStep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C():
				p.Tick(ctx)
			}
		}
	})
	return g.Wait()
}
