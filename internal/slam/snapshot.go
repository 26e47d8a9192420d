package slam

import (
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/slamsim/internal/geom"
)

// Snapshot is a consistent copy of the estimate for observers.
type Snapshot struct {
	Pose      geom.Pose         `json:"pose"`
	PoseCov   [3][3]float64     `json:"pose_cov"`
	Landmarks []TrackedLandmark `json:"landmarks"`
	Stats     Stats             `json:"stats"`
	Healthy   bool              `json:"healthy"`
}

// Pose returns the estimated robot pose.
func (e *Estimator) Pose() geom.Pose {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return geom.Pose{X: e.mean[0], Y: e.mean[1], Heading: e.mean[2]}
}

// PoseCovariance returns the 3x3 robot block of the covariance.
func (e *Estimator) PoseCovariance() [3][3]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.poseCov()
}

func (e *Estimator) poseCov() [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < poseDim; i++ {
		for j := 0; j < poseDim; j++ {
			out[i][j] = e.cov.At(i, j)
		}
	}
	return out
}

// NumLandmarks returns the number of tracked landmarks.
func (e *Estimator) NumLandmarks() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.numLandmarks()
}

// StateDim returns 3 + 2L.
func (e *Estimator) StateDim() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.mean)
}

// Landmarks returns every tracked landmark in ID order.
func (e *Estimator) Landmarks() []TrackedLandmark {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.landmarks()
}

func (e *Estimator) landmarks() []TrackedLandmark {
	out := make([]TrackedLandmark, e.numLandmarks())
	for j := range out {
		idx := poseDim + 2*j
		out[j] = TrackedLandmark{
			ID:       j,
			Position: r2.Point{X: e.mean[idx], Y: e.mean[idx+1]},
			Cov: [2][2]float64{
				{e.cov.At(idx, idx), e.cov.At(idx, idx+1)},
				{e.cov.At(idx+1, idx), e.cov.At(idx+1, idx+1)},
			},
		}
	}
	return out
}

// Mean returns a copy of the state vector.
func (e *Estimator) Mean() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]float64(nil), e.mean...)
}

// Covariance returns a copy of the joint covariance.
func (e *Estimator) Covariance() *mat.SymDense {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := mat.NewSymDense(len(e.mean), nil)
	out.CopySym(e.cov)
	return out
}

// Stats returns the operation counters.
func (e *Estimator) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Healthy reports whether the covariance contract has held so far. Err
// returns the first violation.
func (e *Estimator) Healthy() bool { return e.Err() == nil }

// Err returns the first covariance contract violation, if any.
func (e *Estimator) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fault
}

// Snapshot returns a copy of everything observers display.
func (e *Estimator) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		Pose:      geom.Pose{X: e.mean[0], Y: e.mean[1], Heading: e.mean[2]},
		PoseCov:   e.poseCov(),
		Landmarks: e.landmarks(),
		Stats:     e.stats,
		Healthy:   e.fault == nil,
	}
}
