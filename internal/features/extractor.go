package features

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/slamsim/internal/config"
	"github.com/banshee-data/slamsim/internal/geom"
)

// Fitter names accepted by NewRunFitter.
const (
	FitterIEP      = "iep"
	FitterRANSAC   = "ransac"
	FitterRANSACLS = "ransac-ls"
)

// ErrUnknownFitter is returned by NewRunFitter for an unrecognised name.
var ErrUnknownFitter = errors.New("unknown fitter")

// Config holds the extraction thresholds.
type Config struct {
	DiscontinuityThreshold float64 // range jump that starts a new run
	SplitThreshold         float64 // IEP: max chord deviation kept in one segment
	RansacIterations       int     // RANSAC: trials per extracted line
	RansacInlierThreshold  float64 // RANSAC: max distance to the candidate line
	MinLinePoints          int     // fewest points a segment may be built from
	MinPointPoints         int     // fewest points a point landmark may be built from
}

// DefaultConfig returns the thresholds from the default tuning.
func DefaultConfig() Config {
	return ConfigFromTuning(config.DefaultTuningConfig())
}

// ConfigFromTuning extracts the thresholds from cfg.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		DiscontinuityThreshold: cfg.GetDiscontinuityThreshold(),
		SplitThreshold:         cfg.GetSplitThreshold(),
		RansacIterations:       cfg.GetRansacIterations(),
		RansacInlierThreshold:  cfg.GetRansacInlierThreshold(),
		MinLinePoints:          cfg.GetMinLinePoints(),
		MinPointPoints:         cfg.GetMinPointPoints(),
	}
}

// Observation is the output of one extraction.
type Observation struct {
	Segments []geom.Segment `json:"segments"`
	Points   []r2.Point     `json:"points"`
}

func (o *Observation) merge(other Observation) {
	o.Segments = append(o.Segments, other.Segments...)
	o.Points = append(o.Points, other.Points...)
}

// RunFitter partitions one contiguous run of hits into segments and points.
type RunFitter interface {
	Name() string
	Fit(run []r2.Point) Observation
}

// NewRunFitter builds the fitter registered under name. seed drives the
// RANSAC sampler and is ignored by IEP.
func NewRunFitter(name string, cfg Config, seed int64) (RunFitter, error) {
	switch name {
	case FitterIEP:
		return NewIEP(cfg), nil
	case FitterRANSAC:
		return NewRANSAC(cfg, false, seed), nil
	case FitterRANSACLS:
		return NewRANSAC(cfg, true, seed), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownFitter, name)
}

// SplitRuns walks the beams in order and groups the valid hits into runs.
// hits holds the endpoints of the valid beams of ranges, in beam order. A run
// ends at an invalid beam or when consecutive valid ranges differ by more
// than threshold.
func SplitRuns(hits []r2.Point, ranges []float64, threshold float64) [][]r2.Point {
	var runs [][]r2.Point
	var run []r2.Point
	prev := math.NaN()
	j := 0
	flush := func() {
		if len(run) > 0 {
			runs = append(runs, run)
			run = nil
		}
	}
	for _, r := range ranges {
		if math.IsInf(r, 0) || math.IsNaN(r) {
			flush()
			prev = math.NaN()
			continue
		}
		if j >= len(hits) {
			break
		}
		if !math.IsNaN(prev) && math.Abs(r-prev) > threshold {
			flush()
		}
		run = append(run, hits[j])
		prev = r
		j++
	}
	flush()
	return runs
}

// Extractor applies segmentation and a swappable RunFitter.
type Extractor struct {
	cfg Config

	mu     sync.RWMutex
	fitter RunFitter
}

// NewExtractor creates an extractor using fitter.
func NewExtractor(cfg Config, fitter RunFitter) *Extractor {
	return &Extractor{cfg: cfg, fitter: fitter}
}

// SetFitter swaps the fitting strategy.
func (e *Extractor) SetFitter(f RunFitter) {
	e.mu.Lock()
	e.fitter = f
	e.mu.Unlock()
}

// Fitter returns the active fitting strategy.
func (e *Extractor) Fitter() RunFitter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fitter
}

// Extract segments the scan and fits every run.
func (e *Extractor) Extract(hits []r2.Point, ranges []float64) Observation {
	fitter := e.Fitter()
	var obs Observation
	for _, run := range SplitRuns(hits, ranges, e.cfg.DiscontinuityThreshold) {
		obs.merge(fitter.Fit(run))
	}
	return obs
}

// pointFrom emits the centroid of pts as a point landmark when there are
// enough of them.
func pointFrom(pts []r2.Point, minPoints int, obs *Observation) {
	if len(pts) == 0 || len(pts) < minPoints {
		return
	}
	obs.Points = append(obs.Points, geom.Centroid(pts))
}
