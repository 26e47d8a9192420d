package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for every tunable constant in the
// simulation: vehicle limits, sensor noise, extractor thresholds, filter
// gates, grid geometry and controller slack. Omitted fields fall back to
// the defaults returned by the Get* accessors, so partial files are safe.
type TuningConfig struct {
	// Vehicle
	MaxLinearSpeed    *float64 `json:"max_linear_speed,omitempty"`
	MaxAngularSpeed   *float64 `json:"max_angular_speed,omitempty"`
	MaxLinearAccel    *float64 `json:"max_linear_accel,omitempty"`
	MaxAngularAccel   *float64 `json:"max_angular_accel,omitempty"`
	TrackingErrorBand *float64 `json:"tracking_error_band,omitempty"`
	VelocityNoise     *float64 `json:"velocity_noise,omitempty"` // fraction of the ideal velocity
	RobotRadius       *float64 `json:"robot_radius,omitempty"`

	// Range sensor
	LaserCount       *int     `json:"laser_count,omitempty"`
	LaserMinTheta    *float64 `json:"laser_min_theta,omitempty"`
	LaserMaxTheta    *float64 `json:"laser_max_theta,omitempty"`
	LaserMaxRange    *float64 `json:"laser_max_range,omitempty"`
	LaserAngleNoise  *float64 `json:"laser_angle_noise,omitempty"` // fraction of angular resolution
	LaserRangeNoise  *float64 `json:"laser_range_noise,omitempty"`
	LaserMountOffset *float64 `json:"laser_mount_offset,omitempty"` // along heading, negative is behind centre

	// Feature extraction
	Fitter                 *string  `json:"fitter,omitempty"` // "iep", "ransac" or "ransac-ls"
	DiscontinuityThreshold *float64 `json:"discontinuity_threshold,omitempty"`
	SplitThreshold         *float64 `json:"split_threshold,omitempty"`
	RansacIterations       *int     `json:"ransac_iterations,omitempty"`
	RansacInlierThreshold  *float64 `json:"ransac_inlier_threshold,omitempty"`
	MinLinePoints          *int     `json:"min_line_points,omitempty"`
	MinPointPoints         *int     `json:"min_point_points,omitempty"`

	// EKF-SLAM
	ProcessNoise     *float64 `json:"process_noise,omitempty"`     // std dev of (v, omega)
	MeasurementNoise *float64 `json:"measurement_noise,omitempty"` // std dev of relative position
	UpdateGate       *float64 `json:"update_gate,omitempty"`       // Mahalanobis d^2
	AugmentGate      *float64 `json:"augment_gate,omitempty"`      // Mahalanobis d^2
	StrictChecks     *bool    `json:"strict_checks,omitempty"`

	// Occupancy grid
	GridMinX         *float64 `json:"grid_min_x,omitempty"`
	GridMinY         *float64 `json:"grid_min_y,omitempty"`
	GridMaxX         *float64 `json:"grid_max_x,omitempty"`
	GridMaxY         *float64 `json:"grid_max_y,omitempty"`
	GridRows         *int     `json:"grid_rows,omitempty"`
	GridCols         *int     `json:"grid_cols,omitempty"`
	BlockThreshold   *int     `json:"block_threshold,omitempty"`
	GridConnectivity *int     `json:"grid_connectivity,omitempty"`

	// Controller
	OrientationSlack *float64 `json:"orientation_slack,omitempty"`
	MilestoneSlack   *float64 `json:"milestone_slack,omitempty"`
	TurnRate         *float64 `json:"turn_rate,omitempty"`
	DriveSpeed       *float64 `json:"drive_speed,omitempty"`

	// Loop timing
	PhysicsInterval *string `json:"physics_interval,omitempty"` // duration string like "10ms"
	ControlInterval *string `json:"control_interval,omitempty"`
	Seed            *int64  `json:"seed,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the accessor defaults.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		MaxLinearSpeed:    ptrFloat64(e.GetMaxLinearSpeed()),
		MaxAngularSpeed:   ptrFloat64(e.GetMaxAngularSpeed()),
		MaxLinearAccel:    ptrFloat64(e.GetMaxLinearAccel()),
		MaxAngularAccel:   ptrFloat64(e.GetMaxAngularAccel()),
		TrackingErrorBand: ptrFloat64(e.GetTrackingErrorBand()),
		VelocityNoise:     ptrFloat64(e.GetVelocityNoise()),
		RobotRadius:       ptrFloat64(e.GetRobotRadius()),

		LaserCount:       ptrInt(e.GetLaserCount()),
		LaserMinTheta:    ptrFloat64(e.GetLaserMinTheta()),
		LaserMaxTheta:    ptrFloat64(e.GetLaserMaxTheta()),
		LaserMaxRange:    ptrFloat64(e.GetLaserMaxRange()),
		LaserAngleNoise:  ptrFloat64(e.GetLaserAngleNoise()),
		LaserRangeNoise:  ptrFloat64(e.GetLaserRangeNoise()),
		LaserMountOffset: ptrFloat64(e.GetLaserMountOffset()),

		Fitter:                 ptrString(e.GetFitter()),
		DiscontinuityThreshold: ptrFloat64(e.GetDiscontinuityThreshold()),
		SplitThreshold:         ptrFloat64(e.GetSplitThreshold()),
		RansacIterations:       ptrInt(e.GetRansacIterations()),
		RansacInlierThreshold:  ptrFloat64(e.GetRansacInlierThreshold()),
		MinLinePoints:          ptrInt(e.GetMinLinePoints()),
		MinPointPoints:         ptrInt(e.GetMinPointPoints()),

		ProcessNoise:     ptrFloat64(e.GetProcessNoise()),
		MeasurementNoise: ptrFloat64(e.GetMeasurementNoise()),
		UpdateGate:       ptrFloat64(e.GetUpdateGate()),
		AugmentGate:      ptrFloat64(e.GetAugmentGate()),
		StrictChecks:     ptrBool(e.GetStrictChecks()),

		GridMinX:         ptrFloat64(e.GetGridMinX()),
		GridMinY:         ptrFloat64(e.GetGridMinY()),
		GridMaxX:         ptrFloat64(e.GetGridMaxX()),
		GridMaxY:         ptrFloat64(e.GetGridMaxY()),
		GridRows:         ptrInt(e.GetGridRows()),
		GridCols:         ptrInt(e.GetGridCols()),
		BlockThreshold:   ptrInt(e.GetBlockThreshold()),
		GridConnectivity: ptrInt(e.GetGridConnectivity()),

		OrientationSlack: ptrFloat64(e.GetOrientationSlack()),
		MilestoneSlack:   ptrFloat64(e.GetMilestoneSlack()),
		TurnRate:         ptrFloat64(e.GetTurnRate()),
		DriveSpeed:       ptrFloat64(e.GetDriveSpeed()),

		PhysicsInterval: ptrString(e.GetPhysicsInterval().String()),
		ControlInterval: ptrString(e.GetControlInterval().String()),
		Seed:            ptrInt64(e.GetSeed()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks every set field and reports all violations at once.
func (c *TuningConfig) Validate() error {
	var err error

	positive := func(name string, v *float64) {
		if v != nil && !(*v > 0) {
			err = multierr.Append(err, fmt.Errorf("%s must be positive, got %v", name, *v))
		}
	}
	nonNegative := func(name string, v *float64) {
		if v != nil && !(*v >= 0) {
			err = multierr.Append(err, fmt.Errorf("%s must be non-negative, got %v", name, *v))
		}
	}
	atLeast := func(name string, v *int, min int) {
		if v != nil && *v < min {
			err = multierr.Append(err, fmt.Errorf("%s must be at least %d, got %d", name, min, *v))
		}
	}
	duration := func(name string, v *string) {
		if v == nil || *v == "" {
			return
		}
		d, perr := time.ParseDuration(*v)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("invalid %s '%s': %w", name, *v, perr))
			return
		}
		if d <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	positive("max_linear_speed", c.MaxLinearSpeed)
	positive("max_angular_speed", c.MaxAngularSpeed)
	positive("max_linear_accel", c.MaxLinearAccel)
	positive("max_angular_accel", c.MaxAngularAccel)
	nonNegative("tracking_error_band", c.TrackingErrorBand)
	nonNegative("velocity_noise", c.VelocityNoise)
	nonNegative("robot_radius", c.RobotRadius)

	atLeast("laser_count", c.LaserCount, 2)
	positive("laser_max_range", c.LaserMaxRange)
	nonNegative("laser_angle_noise", c.LaserAngleNoise)
	nonNegative("laser_range_noise", c.LaserRangeNoise)
	if c.GetLaserMaxTheta() <= c.GetLaserMinTheta() {
		err = multierr.Append(err, fmt.Errorf("laser_max_theta (%v) must exceed laser_min_theta (%v)",
			c.GetLaserMaxTheta(), c.GetLaserMinTheta()))
	}
	if c.GetLaserMaxTheta()-c.GetLaserMinTheta() > 2*math.Pi {
		err = multierr.Append(err, fmt.Errorf("laser field of view exceeds a full turn"))
	}

	if c.Fitter != nil {
		switch *c.Fitter {
		case "iep", "ransac", "ransac-ls":
		default:
			err = multierr.Append(err, fmt.Errorf("fitter must be one of iep, ransac, ransac-ls, got %q", *c.Fitter))
		}
	}
	positive("discontinuity_threshold", c.DiscontinuityThreshold)
	positive("split_threshold", c.SplitThreshold)
	atLeast("ransac_iterations", c.RansacIterations, 1)
	positive("ransac_inlier_threshold", c.RansacInlierThreshold)
	atLeast("min_line_points", c.MinLinePoints, 2)
	atLeast("min_point_points", c.MinPointPoints, 1)

	nonNegative("process_noise", c.ProcessNoise)
	positive("measurement_noise", c.MeasurementNoise)
	positive("update_gate", c.UpdateGate)
	positive("augment_gate", c.AugmentGate)
	if c.GetAugmentGate() < c.GetUpdateGate() {
		err = multierr.Append(err, fmt.Errorf("augment_gate (%v) must not be below update_gate (%v)",
			c.GetAugmentGate(), c.GetUpdateGate()))
	}

	if c.GetGridMaxX() <= c.GetGridMinX() || c.GetGridMaxY() <= c.GetGridMinY() {
		err = multierr.Append(err, fmt.Errorf("grid extent is empty"))
	}
	atLeast("grid_rows", c.GridRows, 1)
	atLeast("grid_cols", c.GridCols, 1)
	atLeast("block_threshold", c.BlockThreshold, 0)
	if c.GridConnectivity != nil && *c.GridConnectivity != 4 && *c.GridConnectivity != 8 {
		err = multierr.Append(err, fmt.Errorf("grid_connectivity must be 4 or 8, got %d", *c.GridConnectivity))
	}

	positive("orientation_slack", c.OrientationSlack)
	positive("milestone_slack", c.MilestoneSlack)
	positive("turn_rate", c.TurnRate)
	positive("drive_speed", c.DriveSpeed)

	duration("physics_interval", c.PhysicsInterval)
	duration("control_interval", c.ControlInterval)

	return err
}

// GetMaxLinearSpeed returns the max_linear_speed value or the default.
func (c *TuningConfig) GetMaxLinearSpeed() float64 {
	if c.MaxLinearSpeed == nil {
		return 50
	}
	return *c.MaxLinearSpeed
}

// GetMaxAngularSpeed returns the max_angular_speed value or the default.
func (c *TuningConfig) GetMaxAngularSpeed() float64 {
	if c.MaxAngularSpeed == nil {
		return 2
	}
	return *c.MaxAngularSpeed
}

// GetMaxLinearAccel returns the max_linear_accel value or the default.
func (c *TuningConfig) GetMaxLinearAccel() float64 {
	if c.MaxLinearAccel == nil {
		return 40
	}
	return *c.MaxLinearAccel
}

// GetMaxAngularAccel returns the max_angular_accel value or the default.
func (c *TuningConfig) GetMaxAngularAccel() float64 {
	if c.MaxAngularAccel == nil {
		return 4
	}
	return *c.MaxAngularAccel
}

// GetTrackingErrorBand returns the tracking_error_band value or the default.
func (c *TuningConfig) GetTrackingErrorBand() float64 {
	if c.TrackingErrorBand == nil {
		return 0.5
	}
	return *c.TrackingErrorBand
}

// GetVelocityNoise returns the velocity_noise value or the default.
func (c *TuningConfig) GetVelocityNoise() float64 {
	if c.VelocityNoise == nil {
		return 0.02
	}
	return *c.VelocityNoise
}

// GetRobotRadius returns the robot_radius value or the default.
func (c *TuningConfig) GetRobotRadius() float64 {
	if c.RobotRadius == nil {
		return 10
	}
	return *c.RobotRadius
}

// GetLaserCount returns the laser_count value or the default.
func (c *TuningConfig) GetLaserCount() int {
	if c.LaserCount == nil {
		return 181
	}
	return *c.LaserCount
}

// GetLaserMinTheta returns the laser_min_theta value or the default.
func (c *TuningConfig) GetLaserMinTheta() float64 {
	if c.LaserMinTheta == nil {
		return -math.Pi / 2
	}
	return *c.LaserMinTheta
}

// GetLaserMaxTheta returns the laser_max_theta value or the default.
func (c *TuningConfig) GetLaserMaxTheta() float64 {
	if c.LaserMaxTheta == nil {
		return math.Pi / 2
	}
	return *c.LaserMaxTheta
}

// GetLaserMaxRange returns the laser_max_range value or the default.
func (c *TuningConfig) GetLaserMaxRange() float64 {
	if c.LaserMaxRange == nil {
		return 500
	}
	return *c.LaserMaxRange
}

// GetLaserAngleNoise returns the laser_angle_noise value or the default.
func (c *TuningConfig) GetLaserAngleNoise() float64 {
	if c.LaserAngleNoise == nil {
		return 0.05
	}
	return *c.LaserAngleNoise
}

// GetLaserRangeNoise returns the laser_range_noise value or the default.
func (c *TuningConfig) GetLaserRangeNoise() float64 {
	if c.LaserRangeNoise == nil {
		return 0.05
	}
	return *c.LaserRangeNoise
}

// GetLaserMountOffset returns the laser_mount_offset value or the default.
func (c *TuningConfig) GetLaserMountOffset() float64 {
	if c.LaserMountOffset == nil {
		return 0
	}
	return *c.LaserMountOffset
}

// GetFitter returns the fitter value or the default.
func (c *TuningConfig) GetFitter() string {
	if c.Fitter == nil || *c.Fitter == "" {
		return "iep"
	}
	return *c.Fitter
}

// GetDiscontinuityThreshold returns the discontinuity_threshold value or the default.
func (c *TuningConfig) GetDiscontinuityThreshold() float64 {
	if c.DiscontinuityThreshold == nil {
		return 60
	}
	return *c.DiscontinuityThreshold
}

// GetSplitThreshold returns the split_threshold value or the default.
func (c *TuningConfig) GetSplitThreshold() float64 {
	if c.SplitThreshold == nil {
		return 2
	}
	return *c.SplitThreshold
}

// GetRansacIterations returns the ransac_iterations value or the default.
func (c *TuningConfig) GetRansacIterations() int {
	if c.RansacIterations == nil {
		return 50
	}
	return *c.RansacIterations
}

// GetRansacInlierThreshold returns the ransac_inlier_threshold value or the default.
func (c *TuningConfig) GetRansacInlierThreshold() float64 {
	if c.RansacInlierThreshold == nil {
		return 2
	}
	return *c.RansacInlierThreshold
}

// GetMinLinePoints returns the min_line_points value or the default.
func (c *TuningConfig) GetMinLinePoints() int {
	if c.MinLinePoints == nil {
		return 5
	}
	return *c.MinLinePoints
}

// GetMinPointPoints returns the min_point_points value or the default.
func (c *TuningConfig) GetMinPointPoints() int {
	if c.MinPointPoints == nil {
		return 1
	}
	return *c.MinPointPoints
}

// GetProcessNoise returns the process_noise value or the default.
func (c *TuningConfig) GetProcessNoise() float64 {
	if c.ProcessNoise == nil {
		return 0.1
	}
	return *c.ProcessNoise
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 1
	}
	return *c.MeasurementNoise
}

// GetUpdateGate returns the update_gate value or the default.
func (c *TuningConfig) GetUpdateGate() float64 {
	if c.UpdateGate == nil {
		return 20
	}
	return *c.UpdateGate
}

// GetAugmentGate returns the augment_gate value or the default.
func (c *TuningConfig) GetAugmentGate() float64 {
	if c.AugmentGate == nil {
		return 200
	}
	return *c.AugmentGate
}

// GetStrictChecks returns the strict_checks value or the default.
func (c *TuningConfig) GetStrictChecks() bool {
	if c.StrictChecks == nil {
		return false
	}
	return *c.StrictChecks
}

// GetGridMinX returns the grid_min_x value or the default.
func (c *TuningConfig) GetGridMinX() float64 {
	if c.GridMinX == nil {
		return -1000
	}
	return *c.GridMinX
}

// GetGridMinY returns the grid_min_y value or the default.
func (c *TuningConfig) GetGridMinY() float64 {
	if c.GridMinY == nil {
		return -1000
	}
	return *c.GridMinY
}

// GetGridMaxX returns the grid_max_x value or the default.
func (c *TuningConfig) GetGridMaxX() float64 {
	if c.GridMaxX == nil {
		return 1000
	}
	return *c.GridMaxX
}

// GetGridMaxY returns the grid_max_y value or the default.
func (c *TuningConfig) GetGridMaxY() float64 {
	if c.GridMaxY == nil {
		return 1000
	}
	return *c.GridMaxY
}

// GetGridRows returns the grid_rows value or the default.
func (c *TuningConfig) GetGridRows() int {
	if c.GridRows == nil {
		return 500
	}
	return *c.GridRows
}

// GetGridCols returns the grid_cols value or the default.
func (c *TuningConfig) GetGridCols() int {
	if c.GridCols == nil {
		return 500
	}
	return *c.GridCols
}

// GetBlockThreshold returns the block_threshold value or the default.
func (c *TuningConfig) GetBlockThreshold() int {
	if c.BlockThreshold == nil {
		return 0
	}
	return *c.BlockThreshold
}

// GetGridConnectivity returns the grid_connectivity value or the default.
func (c *TuningConfig) GetGridConnectivity() int {
	if c.GridConnectivity == nil {
		return 8
	}
	return *c.GridConnectivity
}

// GetOrientationSlack returns the orientation_slack value or the default.
func (c *TuningConfig) GetOrientationSlack() float64 {
	if c.OrientationSlack == nil {
		return 0.01
	}
	return *c.OrientationSlack
}

// GetMilestoneSlack returns the milestone_slack value or the default.
func (c *TuningConfig) GetMilestoneSlack() float64 {
	if c.MilestoneSlack == nil {
		return 1
	}
	return *c.MilestoneSlack
}

// GetTurnRate returns the turn_rate value or the default.
func (c *TuningConfig) GetTurnRate() float64 {
	if c.TurnRate == nil {
		return 0.5
	}
	return *c.TurnRate
}

// GetDriveSpeed returns the drive_speed value or the default.
func (c *TuningConfig) GetDriveSpeed() float64 {
	if c.DriveSpeed == nil {
		return 10
	}
	return *c.DriveSpeed
}

// GetPhysicsInterval parses and returns the physics_interval as a time.Duration.
func (c *TuningConfig) GetPhysicsInterval() time.Duration {
	return parseDurationOr(c.PhysicsInterval, 10*time.Millisecond)
}

// GetControlInterval parses and returns the control_interval as a time.Duration.
func (c *TuningConfig) GetControlInterval() time.Duration {
	return parseDurationOr(c.ControlInterval, 20*time.Millisecond)
}

// GetSeed returns the seed value or the default.
func (c *TuningConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
