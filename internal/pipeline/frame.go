package pipeline

import (
	"time"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/slamsim/internal/features"
	"github.com/banshee-data/slamsim/internal/geom"
	"github.com/banshee-data/slamsim/internal/slam"
)

// Frame describes one control tick.
type Frame struct {
	Tick    uint64        `json:"tick"`
	SimTime time.Duration `json:"sim_time"`
	Paused  bool          `json:"paused"`

	TruePose  geom.Pose              `json:"true_pose"`
	Estimate  geom.Pose              `json:"estimate"`
	PoseCov   [3][3]float64          `json:"pose_cov"`
	Landmarks []slam.TrackedLandmark `json:"landmarks"`
	Stats     slam.Stats             `json:"stats"`
	Healthy   bool                   `json:"healthy"`

	Command    geom.Control `json:"command"`
	Goal       r2.Point     `json:"goal"`
	Plan       []r2.Point   `json:"plan"`
	PlanCells  int          `json:"plan_cells"`
	PlanLength float64      `json:"plan_length"`
	Milestone  int          `json:"milestone"`
	Replanned  bool         `json:"replanned"`
	AtGoal     bool         `json:"at_goal"`

	Scan        bool                 `json:"scan"` // a new scan was processed
	Observation features.Observation `json:"observation"`
	Decisions   []slam.Decision      `json:"decisions,omitempty"`
	Fitter      string               `json:"fitter"`
}

// PositionError is the distance between the true and estimated positions.
func (f Frame) PositionError() float64 {
	return f.TruePose.Position().Sub(f.Estimate.Position()).Norm()
}

// HeadingError is the wrapped difference between the estimated and true
// headings.
func (f Frame) HeadingError() float64 {
	return geom.WrapAngle(f.Estimate.Heading - f.TruePose.Heading)
}

// CovarianceTrace is the trace of the pose covariance.
func (f Frame) CovarianceTrace() float64 {
	return f.PoseCov[0][0] + f.PoseCov[1][1] + f.PoseCov[2][2]
}

// PlanOK reports whether the controller currently holds a path.
func (f Frame) PlanOK() bool { return f.PlanCells > 0 }
