package slam

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/slamsim/internal/config"
)

// Numerical guards.
const (
	// MinDeterminantThreshold is the smallest innovation covariance
	// determinant treated as invertible.
	MinDeterminantThreshold = 1e-9
	// SingularDistanceRejection is the gate value reported for a singular
	// innovation covariance; it exceeds every sane gate.
	SingularDistanceRejection = 1e9
	// CovarianceTolerance bounds how negative a diagonal entry may become
	// through rounding before it is a contract violation.
	CovarianceTolerance = 1e-9
)

// Config holds the filter parameters.
type Config struct {
	ProcessNoise     float64 // std dev of the (v, omega) control
	MeasurementNoise float64 // std dev of each relative-position component
	UpdateGate       float64 // d^2 at or below which a measurement is fused
	AugmentGate      float64 // d^2 above which a measurement is a new landmark
	StrictChecks     bool    // panic on covariance contract violations
}

// DefaultConfig returns the filter parameters from the default tuning.
func DefaultConfig() Config {
	return ConfigFromTuning(config.DefaultTuningConfig())
}

// ConfigFromTuning extracts the filter parameters from cfg.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		ProcessNoise:     cfg.GetProcessNoise(),
		MeasurementNoise: cfg.GetMeasurementNoise(),
		UpdateGate:       cfg.GetUpdateGate(),
		AugmentGate:      cfg.GetAugmentGate(),
		StrictChecks:     cfg.GetStrictChecks(),
	}
}

// ProcessCov returns Q = ProcessNoise^2 * I2.
func (c Config) ProcessCov() *mat.SymDense {
	return isotropic(c.ProcessNoise)
}

// MeasurementCov returns R = MeasurementNoise^2 * I2.
func (c Config) MeasurementCov() *mat.SymDense {
	return isotropic(c.MeasurementNoise)
}

func isotropic(sigma float64) *mat.SymDense {
	v := sigma * sigma
	return mat.NewSymDense(2, []float64{v, 0, 0, v})
}
