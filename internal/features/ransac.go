package features

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/slamsim/internal/geom"
)

// RANSAC extracts lines by random-sample consensus. It is not safe for
// concurrent use because it owns its random source.
type RANSAC struct {
	Iterations      int
	InlierThreshold float64
	MinLinePoints   int
	MinPointPoints  int
	LeastSquares    bool // refit each line to its inliers before computing endpoints

	rng *rand.Rand
}

// NewRANSAC creates a RANSAC fitter from cfg.
func NewRANSAC(cfg Config, leastSquares bool, seed int64) *RANSAC {
	return &RANSAC{
		Iterations:      max(cfg.RansacIterations, 1),
		InlierThreshold: cfg.RansacInlierThreshold,
		MinLinePoints:   max(cfg.MinLinePoints, 2),
		MinPointPoints:  cfg.MinPointPoints,
		LeastSquares:    leastSquares,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// Name implements RunFitter.
func (f *RANSAC) Name() string {
	if f.LeastSquares {
		return FitterRANSACLS
	}
	return FitterRANSAC
}

// Fit implements RunFitter.
func (f *RANSAC) Fit(run []r2.Point) Observation {
	var obs Observation
	idx := make([]int, len(run))
	for i := range idx {
		idx[i] = i
	}
	pool := make([]r2.Point, 0, len(run))
	for len(idx) >= f.MinLinePoints {
		pool = pool[:0]
		for _, i := range idx {
			pool = append(pool, run[i])
		}
		in, anchor, dir, ok := f.bestLine(pool)
		if !ok || countTrue(in) < f.MinLinePoints {
			break
		}
		inliers := make([]r2.Point, 0, len(pool))
		rest := idx[:0:0]
		for k, i := range idx {
			if in[k] {
				inliers = append(inliers, run[i])
			} else {
				rest = append(rest, i)
			}
		}
		if f.LeastSquares {
			if c, d, ok := totalLeastSquares(inliers); ok {
				anchor, dir = c, d
			}
		}
		obs.Segments = append(obs.Segments, extent(inliers, anchor, dir))
		idx = rest
	}
	f.leftovers(run, idx, &obs)
	return obs
}

// leftovers handles the beams no line claimed. idx is ascending, so it is
// cut into stretches of neighbouring beams and each stretch is fitted on
// its own. A stretch covering the whole run had no consensus line at all;
// it is split at the point furthest from its chord instead, so points only
// ever come from short contiguous pieces.
func (f *RANSAC) leftovers(run []r2.Point, idx []int, obs *Observation) {
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && idx[end] == idx[end-1]+1 {
			end++
		}
		piece := run[idx[start] : idx[end-1]+1]
		start = end

		switch {
		case len(piece) < f.MinLinePoints:
			pointFrom(piece, f.MinPointPoints, obs)
		case len(piece) < len(run):
			obs.merge(f.Fit(piece))
		default:
			k := furthestFromChord(piece)
			if k <= 0 {
				pointFrom(piece, f.MinPointPoints, obs)
				continue
			}
			obs.merge(f.Fit(piece[:k+1]))
			obs.merge(f.Fit(piece[k:]))
		}
	}
}

// bestLine samples candidate lines through two distinct pool points and
// returns the inlier mask of the best one.
func (f *RANSAC) bestLine(pool []r2.Point) (best []bool, anchor, dir r2.Point, ok bool) {
	n := len(pool)
	bestCount := -1
	mask := make([]bool, n)
	for trial := 0; trial < f.Iterations; trial++ {
		i := f.rng.Intn(n)
		j := f.rng.Intn(n - 1)
		if j >= i {
			j++
		}
		p, q := pool[i], pool[j]
		if q.Sub(p).Norm() < geom.Epsilon {
			continue
		}
		count := 0
		for k, pt := range pool {
			mask[k] = geom.PerpendicularDistance(pt, p, q) <= f.InlierThreshold
			if mask[k] {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			best = append(best[:0], mask...)
			anchor, dir = p, q.Sub(p).Normalize()
			ok = true
		}
	}
	return best, anchor, dir, ok
}

// extent projects pts onto the line through anchor along dir and returns the
// segment spanning the extreme projections.
func extent(pts []r2.Point, anchor, dir r2.Point) geom.Segment {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		t := p.Sub(anchor).Dot(dir)
		lo = math.Min(lo, t)
		hi = math.Max(hi, t)
	}
	return geom.Segment{A: anchor.Add(dir.Mul(lo)), B: anchor.Add(dir.Mul(hi))}
}

// totalLeastSquares fits a line minimising perpendicular residuals: it
// passes through the centroid along the principal eigenvector of the
// sample covariance.
func totalLeastSquares(pts []r2.Point) (centroid, dir r2.Point, ok bool) {
	if len(pts) < 2 {
		return r2.Point{}, r2.Point{}, false
	}
	data := mat.NewDense(len(pts), 2, nil)
	for i, p := range pts {
		data.Set(i, 0, p.X)
		data.Set(i, 1, p.Y)
	}
	cov := mat.NewSymDense(2, nil)
	stat.CovarianceMatrix(cov, data, nil)

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return r2.Point{}, r2.Point{}, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// Eigenvalues are ascending; the last column spans the line.
	dir = r2.Point{X: vecs.At(0, 1), Y: vecs.At(1, 1)}
	if dir.Norm() < geom.Epsilon {
		return r2.Point{}, r2.Point{}, false
	}
	return geom.Centroid(pts), dir.Normalize(), true
}

func countTrue(mask []bool) int {
	n := 0
	for _, b := range mask {
		if b {
			n++
		}
	}
	return n
}
