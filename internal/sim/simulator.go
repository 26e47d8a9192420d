package sim

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/slamsim/internal/config"
	"github.com/banshee-data/slamsim/internal/geom"
)

// Pose and Control are re-exported for callers that only deal with the
// simulator.
type (
	Pose    = geom.Pose
	Control = geom.Control
)

// Config holds the vehicle limits.
type Config struct {
	MaxLinearSpeed    float64 // world units / s
	MaxAngularSpeed   float64 // rad / s
	MaxLinearAccel    float64 // world units / s^2
	MaxAngularAccel   float64 // rad / s^2
	TrackingErrorBand float64 // max |actual - ideal| for either velocity
	VelocityNoise     float64 // proportional actuation noise
}

// DefaultConfig returns the vehicle limits from the default tuning.
func DefaultConfig() Config {
	return ConfigFromTuning(config.DefaultTuningConfig())
}

// ConfigFromTuning extracts the vehicle limits from cfg.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MaxLinearSpeed:    cfg.GetMaxLinearSpeed(),
		MaxAngularSpeed:   cfg.GetMaxAngularSpeed(),
		MaxLinearAccel:    cfg.GetMaxLinearAccel(),
		MaxAngularAccel:   cfg.GetMaxAngularAccel(),
		TrackingErrorBand: cfg.GetTrackingErrorBand(),
		VelocityNoise:     cfg.GetVelocityNoise(),
	}
}

// Simulator owns the true robot state.
type Simulator struct {
	mu sync.RWMutex

	cfg     Config
	rng     *rand.Rand
	pose    Pose
	cmd     Control // commanded velocity
	vel     Control // actual velocity
	elapsed time.Duration
	paused  bool
}

// NewSimulator places the robot at start with zero velocity.
func NewSimulator(cfg Config, start Pose, seed int64) *Simulator {
	start.Heading = geom.WrapAngle(start.Heading)
	return &Simulator{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(seed)),
		pose: start,
	}
}

// ApplyControl adds cmd onto the commanded velocity. The sum is clamped to
// the configured speed limits.
func (s *Simulator) ApplyControl(cmd Control) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmd.Linear = clamp(s.cmd.Linear+cmd.Linear, s.cfg.MaxLinearSpeed)
	s.cmd.Angular = clamp(s.cmd.Angular+cmd.Angular, s.cfg.MaxAngularSpeed)
}

// Step advances the simulation by dt. It is a no-op while paused.
func (s *Simulator) Step(dt time.Duration) {
	if dt <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	sec := dt.Seconds()

	s.vel.Linear = s.track(s.vel.Linear, s.cmd.Linear, s.cfg.MaxLinearAccel*sec)
	s.vel.Angular = s.track(s.vel.Angular, s.cmd.Angular, s.cfg.MaxAngularAccel*sec)

	s.pose.X += s.vel.Linear * math.Cos(s.pose.Heading) * sec
	s.pose.Y += s.vel.Linear * math.Sin(s.pose.Heading) * sec
	s.pose.Heading = geom.WrapAngle(s.pose.Heading + s.vel.Angular*sec)
	s.elapsed += dt
}

// track moves current toward target by at most maxDelta, perturbs the result
// with proportional noise and clips it to the tracking-error band.
func (s *Simulator) track(current, target, maxDelta float64) float64 {
	ideal := IdealVelocity(current, target, maxDelta)
	if ideal == 0 || s.cfg.VelocityNoise == 0 {
		return ideal
	}
	actual := ideal * (1 + s.cfg.VelocityNoise*(2*s.rng.Float64()-1))
	band := s.cfg.TrackingErrorBand
	return math.Max(ideal-band, math.Min(ideal+band, actual))
}

// IdealVelocity is the acceleration-limited velocity after one step.
func IdealVelocity(current, target, maxDelta float64) float64 {
	d := target - current
	if d > maxDelta {
		d = maxDelta
	} else if d < -maxDelta {
		d = -maxDelta
	}
	return current + d
}

// SetPaused freezes or resumes integration. The commanded velocity survives.
func (s *Simulator) SetPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
}

// TogglePaused flips the pause state and returns the new value.
func (s *Simulator) TogglePaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = !s.paused
	return s.paused
}

// Paused reports whether integration is frozen.
func (s *Simulator) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// TruePose returns the ground-truth pose.
func (s *Simulator) TruePose() Pose {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose
}

// Velocity returns the actual velocity.
func (s *Simulator) Velocity() Control {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vel
}

// CommandedVelocity returns the accumulated command.
func (s *Simulator) CommandedVelocity() Control {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cmd
}

// Elapsed returns simulated time since start.
func (s *Simulator) Elapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elapsed
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
