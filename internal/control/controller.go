// Package control turns a planned cell path into velocity commands.
package control

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/slamsim/internal/config"
	"github.com/banshee-data/slamsim/internal/geom"
	"github.com/banshee-data/slamsim/internal/monitoring"
)

// Command is an absolute velocity target.
type Command = geom.Control

// Stop holds position.
var Stop = Command{}

// Planner is the subset of the occupancy grid the controller needs.
type Planner interface {
	PlanPath(start, goal r2.Point) []int
	LineOfSight(a, b int) bool
	PathBlocked(cells []int) bool
	CoordinatesOf(cells []int) []r2.Point
}

// Config holds the controller gains.
type Config struct {
	OrientationSlack float64 // rad
	MilestoneSlack   float64
	TurnRate         float64
	DriveSpeed       float64
}

// DefaultConfig returns the controller gains from the default tuning.
func DefaultConfig() Config {
	return ConfigFromTuning(config.DefaultTuningConfig())
}

// ConfigFromTuning extracts the controller gains from cfg.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		OrientationSlack: cfg.GetOrientationSlack(),
		MilestoneSlack:   cfg.GetMilestoneSlack(),
		TurnRate:         cfg.GetTurnRate(),
		DriveSpeed:       cfg.GetDriveSpeed(),
	}
}

// Controller follows milestones along the current plan and replans when
// the plan is missing or crosses a newly blocked cell. It is not safe for
// concurrent use.
type Controller struct {
	cfg     Config
	planner Planner
	goal    r2.Point

	cells     []int
	points    []r2.Point
	planned   bool
	milestone int
	replans   int
	last      Command
}

// NewController returns a controller heading for goal.
func NewController(cfg Config, planner Planner, goal r2.Point) *Controller {
	return &Controller{cfg: cfg, planner: planner, goal: goal}
}

// Goal returns the current goal.
func (c *Controller) Goal() r2.Point { return c.goal }

// SetGoal changes the goal and forces a replan on the next tick.
func (c *Controller) SetGoal(goal r2.Point) {
	c.goal = goal
	c.planned = false
}

// Plan returns the planned cells.
func (c *Controller) Plan() []int { return append([]int(nil), c.cells...) }

// PlanPoints returns the planned cell centres in world coordinates.
func (c *Controller) PlanPoints() []r2.Point { return append([]r2.Point(nil), c.points...) }

// Milestone returns the index of the last reached milestone.
func (c *Controller) Milestone() int { return c.milestone }

// Replans counts how many times a plan was computed.
func (c *Controller) Replans() int { return c.replans }

// AtGoal reports whether the final milestone has been reached.
func (c *Controller) AtGoal() bool {
	return len(c.cells) > 0 && c.milestone >= len(c.cells)-1
}

// Tick returns the command for the estimated pose. When no path to the goal
// exists it returns Stop and does not search again until SetGoal is called.
func (c *Controller) Tick(pose geom.Pose) Command {
	if !c.planned || c.planner.PathBlocked(c.cells) {
		c.replan(pose.Position())
	}
	if len(c.cells) == 0 {
		c.last = Stop
		return Stop
	}
	if c.milestone >= len(c.cells)-1 {
		c.last = Stop
		return Stop
	}

	here := pose.Position()
	next := c.points[c.milestone+1]
	err := geom.WrapAngle(geom.Bearing(here, next) - pose.Heading)
	switch {
	case math.Abs(err) > c.cfg.OrientationSlack:
		c.last = Command{Angular: math.Copysign(c.cfg.TurnRate, err)}
	case next.Sub(here).Norm() < c.cfg.MilestoneSlack:
		c.advance()
	default:
		c.last = Command{Linear: c.cfg.DriveSpeed}
	}
	return c.last
}

// advance moves past the reached milestone and skips every following one
// that is directly visible from it, stopping short of the final cell.
func (c *Controller) advance() {
	c.milestone++
	reached := c.cells[c.milestone]
	for c.milestone+1 < len(c.cells)-1 && c.planner.LineOfSight(reached, c.cells[c.milestone+1]) {
		c.milestone++
	}
}

func (c *Controller) replan(from r2.Point) {
	c.cells = c.planner.PlanPath(from, c.goal)
	c.points = c.planner.CoordinatesOf(c.cells)
	c.planned = true
	c.milestone = 0
	c.replans++
	if len(c.cells) == 0 {
		monitoring.Logf("control: no path from (%.1f, %.1f) to (%.1f, %.1f), holding position",
			from.X, from.Y, c.goal.X, c.goal.Y)
	}
}
