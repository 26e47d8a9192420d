package features

import (
	"github.com/golang/geo/r2"

	"github.com/banshee-data/slamsim/internal/geom"
)

// IEP is the iterative end-point (split) fitter.
type IEP struct {
	SplitThreshold float64
	MinLinePoints  int
	MinPointPoints int
}

// NewIEP creates an IEP fitter from cfg.
func NewIEP(cfg Config) *IEP {
	return &IEP{
		SplitThreshold: cfg.SplitThreshold,
		MinLinePoints:  max(cfg.MinLinePoints, 2),
		MinPointPoints: cfg.MinPointPoints,
	}
}

// Name implements RunFitter.
func (f *IEP) Name() string { return FitterIEP }

// Fit implements RunFitter.
func (f *IEP) Fit(run []r2.Point) Observation {
	var obs Observation
	f.split(run, &obs)
	return obs
}

// split recurses on the point furthest from the chord. Both halves keep the
// split point so adjacent segments share an endpoint.
func (f *IEP) split(run []r2.Point, obs *Observation) {
	if len(run) < f.MinLinePoints {
		pointFrom(run, f.MinPointPoints, obs)
		return
	}
	a, b := run[0], run[len(run)-1]
	k := furthestFromChord(run)
	if k > 0 && geom.PerpendicularDistance(run[k], a, b) > f.SplitThreshold {
		f.split(run[:k+1], obs)
		f.split(run[k:], obs)
		return
	}
	obs.Segments = append(obs.Segments, geom.Segment{A: a, B: b})
}

// furthestFromChord returns the interior index furthest from the chord
// between the run's endpoints, or -1 when every interior point lies on it.
func furthestFromChord(run []r2.Point) int {
	if len(run) < 3 {
		return -1
	}
	a, b := run[0], run[len(run)-1]
	worst, k := 0.0, -1
	for i := 1; i < len(run)-1; i++ {
		if d := geom.PerpendicularDistance(run[i], a, b); d > worst {
			worst, k = d, i
		}
	}
	return k
}
