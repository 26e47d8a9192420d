package slam

import (
	"fmt"
	"math"
	"sync"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/slamsim/internal/geom"
	"github.com/banshee-data/slamsim/internal/monitoring"
)

const poseDim = 3

// Decision is the association outcome for one measurement.
type Decision int

const (
	DecisionUpdate Decision = iota
	DecisionAugment
	DecisionAmbiguous
	DecisionRejected // numerically unusable, e.g. a singular innovation
)

func (d Decision) String() string {
	switch d {
	case DecisionUpdate:
		return "update"
	case DecisionAugment:
		return "augment"
	case DecisionAmbiguous:
		return "ambiguous"
	case DecisionRejected:
		return "rejected"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// Stats counts filter operations since construction.
type Stats struct {
	Propagations uint64 `json:"propagations"`
	Updates      uint64 `json:"updates"`
	Augments     uint64 `json:"augments"`
	Ambiguous    uint64 `json:"ambiguous"`
	Rejected     uint64 `json:"rejected"`
	Violations   uint64 `json:"violations"`
}

// TrackedLandmark is one landmark estimate. ID is its stable index in the
// state vector.
type TrackedLandmark struct {
	ID       int           `json:"id"`
	Position r2.Point      `json:"position"`
	Cov      [2][2]float64 `json:"cov"`
}

// Estimator is the EKF-SLAM filter. Mutating methods must be called from a
// single goroutine; read accessors may be called concurrently.
type Estimator struct {
	mu sync.RWMutex

	cfg      Config
	mean     []float64
	cov      *mat.SymDense // view into an arena of order capacity
	capacity int
	stats    Stats
	fault    error
}

// NewEstimator starts the filter at start with zero pose uncertainty: the
// initial pose defines the map frame.
func NewEstimator(cfg Config, start geom.Pose) *Estimator {
	const initialCapacity = 3 + 2*16
	arena := mat.NewSymDense(initialCapacity, nil)
	return &Estimator{
		cfg:      cfg,
		mean:     append(make([]float64, 0, initialCapacity), start.X, start.Y, geom.WrapAngle(start.Heading)),
		cov:      arena.SliceSym(0, poseDim).(*mat.SymDense),
		capacity: initialCapacity,
	}
}

// Config returns the filter parameters.
func (e *Estimator) Config() Config { return e.cfg }

// Propagate advances the robot pose by the unicycle model under control u for
// dt seconds. q is the 2x2 covariance of u.
func (e *Estimator) Propagate(u geom.Control, q mat.Symmetric, dt float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	theta := e.mean[2]
	c, s := math.Cos(theta), math.Sin(theta)
	v, w := u.Linear, u.Angular

	// Step 1: Mean. Landmarks are static.
	e.mean[0] += v * c * dt
	e.mean[1] += v * s * dt
	e.mean[2] = geom.WrapAngle(theta + w*dt)

	// Step 2: Jacobians with respect to the pose and to the control.
	F := mat.NewDense(3, 3, []float64{
		1, 0, -v * s * dt,
		0, 1, v * c * dt,
		0, 0, 1,
	})
	G := mat.NewDense(3, 2, []float64{
		c * dt, 0,
		s * dt, 0,
		0, dt,
	})

	// Step 3: Robot block: F*Prr*F' + G*Q*G'.
	n := len(e.mean)
	top := e.rows(0, poseDim)
	var fp, prr, gq, gqg mat.Dense
	fp.Mul(F, top.Slice(0, poseDim, 0, poseDim))
	prr.Mul(&fp, F.T())
	gq.Mul(G, q)
	gqg.Mul(&gq, G.T())
	prr.Add(&prr, &gqg)
	for i := 0; i < poseDim; i++ {
		for j := i; j < poseDim; j++ {
			e.cov.SetSym(i, j, 0.5*(prr.At(i, j)+prr.At(j, i)))
		}
	}

	// Step 4: Robot-landmark cross blocks: F*Prl.
	if n > poseDim {
		var cross mat.Dense
		cross.Mul(F, top.Slice(0, poseDim, poseDim, n))
		for i := 0; i < poseDim; i++ {
			for k := poseDim; k < n; k++ {
				e.cov.SetSym(i, k, cross.At(i, k-poseDim))
			}
		}
	}

	e.stats.Propagations++
	e.check("propagate")
}

// AugmentOrUpdate fuses body-frame landmark measurements sequentially. Each
// measurement sees the state left by the previous one, including landmarks
// it added. r is the 2x2 measurement covariance.
func (e *Estimator) AugmentOrUpdate(zs []r2.Point, r mat.Symmetric) []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	decisions := make([]Decision, 0, len(zs))
	for _, z := range zs {
		d := e.fuse(z, r)
		switch d {
		case DecisionUpdate:
			e.stats.Updates++
		case DecisionAugment:
			e.stats.Augments++
		case DecisionAmbiguous:
			e.stats.Ambiguous++
		case DecisionRejected:
			e.stats.Rejected++
		}
		decisions = append(decisions, d)
	}
	e.check("augment/update")
	return decisions
}

func (e *Estimator) fuse(z r2.Point, r mat.Symmetric) Decision {
	if math.IsNaN(z.X) || math.IsNaN(z.Y) || math.IsInf(z.X, 0) || math.IsInf(z.Y, 0) {
		return DecisionRejected
	}

	// Step 1: Gate against every tracked landmark; keep the nearest.
	best, bestD2 := -1, math.Inf(1)
	var bestH *mat.Dense
	var bestS *mat.SymDense
	var bestY r2.Point
	for j := 0; j < e.numLandmarks(); j++ {
		zhat, h := e.observation(j)
		s := e.innovationCov(j, h, r)
		y := z.Sub(zhat)
		if d2 := mahalanobisSquared(y, s); d2 < bestD2 {
			best, bestD2, bestH, bestS, bestY = j, d2, h, s, y
		}
	}

	// Step 2: Three-way decision.
	switch {
	case best >= 0 && bestD2 <= e.cfg.UpdateGate:
		if !e.update(best, bestY, bestH, bestS) {
			return DecisionRejected
		}
		return DecisionUpdate
	case best < 0 || bestD2 > e.cfg.AugmentGate:
		e.augment(z, r)
		return DecisionAugment
	default:
		return DecisionAmbiguous
	}
}

// observation returns the predicted body-frame position of landmark j and
// the non-zero 2x5 block of the observation Jacobian over the columns
// (x, y, theta, lx, ly).
func (e *Estimator) observation(j int) (r2.Point, *mat.Dense) {
	x, y, theta := e.mean[0], e.mean[1], e.mean[2]
	idx := poseDim + 2*j
	dx, dy := e.mean[idx]-x, e.mean[idx+1]-y
	c, s := math.Cos(theta), math.Sin(theta)

	zhat := r2.Point{X: c*dx + s*dy, Y: -s*dx + c*dy}
	h := mat.NewDense(2, 5, []float64{
		-c, -s, -s*dx + c*dy, c, s,
		s, -c, -c*dx - s*dy, -s, c,
	})
	return zhat, h
}

func (e *Estimator) columns(j int) [5]int {
	idx := poseDim + 2*j
	return [5]int{0, 1, 2, idx, idx + 1}
}

// innovationCov returns S = H*P*H' + R restricted to the observed columns.
func (e *Estimator) innovationCov(j int, h *mat.Dense, r mat.Symmetric) *mat.SymDense {
	cols := e.columns(j)
	sub := mat.NewSymDense(5, nil)
	for a := 0; a < 5; a++ {
		for b := a; b < 5; b++ {
			sub.SetSym(a, b, e.cov.At(cols[a], cols[b]))
		}
	}
	var hp, hph mat.Dense
	hp.Mul(h, sub)
	hph.Mul(&hp, h.T())

	s := mat.NewSymDense(2, nil)
	s.SetSym(0, 0, hph.At(0, 0)+r.At(0, 0))
	s.SetSym(0, 1, 0.5*(hph.At(0, 1)+hph.At(1, 0))+r.At(0, 1))
	s.SetSym(1, 1, hph.At(1, 1)+r.At(1, 1))
	return s
}

// mahalanobisSquared returns y' S^-1 y for a 2x2 S, or
// SingularDistanceRejection when S is not safely invertible.
func mahalanobisSquared(y r2.Point, s mat.Symmetric) float64 {
	a, b, c := s.At(0, 0), s.At(0, 1), s.At(1, 1)
	det := a*c - b*b
	if !(det >= MinDeterminantThreshold) {
		return SingularDistanceRejection
	}
	return (c*y.X*y.X - 2*b*y.X*y.Y + a*y.Y*y.Y) / det
}

// update applies the EKF correction for landmark j with innovation y.
func (e *Estimator) update(j int, y r2.Point, h *mat.Dense, s *mat.SymDense) bool {
	n := len(e.mean)
	cols := e.columns(j)

	var chol mat.Cholesky
	if !chol.Factorize(s) {
		return false
	}

	// P*H' only touches the five observed columns of P.
	pc := mat.NewDense(n, 5, nil)
	for i := 0; i < n; i++ {
		for a, col := range cols {
			pc.Set(i, a, e.cov.At(i, col))
		}
	}
	var pht mat.Dense
	pht.Mul(pc, h.T())

	// Mean: x += P*H' * S^-1 * y.
	var sy, delta mat.VecDense
	if err := chol.SolveVecTo(&sy, mat.NewVecDense(2, []float64{y.X, y.Y})); err != nil {
		return false
	}
	delta.MulVec(&pht, &sy)

	// Covariance: P -= W*W' with W = P*H' * L^-T, where S = L*L'.
	var l, linv mat.TriDense
	chol.LTo(&l)
	if err := linv.InverseTri(&l); err != nil {
		return false
	}
	var w mat.Dense
	w.Mul(&pht, linv.T())

	for i := 0; i < n; i++ {
		e.mean[i] += delta.AtVec(i)
	}
	e.mean[2] = geom.WrapAngle(e.mean[2])
	e.cov.SymRankK(e.cov, -1, &w)
	return true
}

// augment appends a landmark at the world position of z.
func (e *Estimator) augment(z r2.Point, r mat.Symmetric) {
	n := len(e.mean)
	x, y, theta := e.mean[0], e.mean[1], e.mean[2]
	c, s := math.Cos(theta), math.Sin(theta)

	// Jacobians of l = p + Rot(theta)*z.
	gr := mat.NewDense(2, 3, []float64{
		1, 0, -s*z.X - c*z.Y,
		0, 1, c*z.X - s*z.Y,
	})
	rot := mat.NewDense(2, 2, []float64{c, -s, s, c})

	top := e.rows(0, poseDim)
	var cross mat.Dense
	cross.Mul(gr, top) // 2 x n

	var gp, pll, rr, rrt mat.Dense
	gp.Mul(gr, top.Slice(0, poseDim, 0, poseDim))
	pll.Mul(&gp, gr.T())
	rr.Mul(rot, r)
	rrt.Mul(&rr, rot.T())
	pll.Add(&pll, &rrt)

	e.grow(2)
	e.mean = append(e.mean, x+c*z.X-s*z.Y, y+s*z.X+c*z.Y)
	for k := 0; k < n; k++ {
		e.cov.SetSym(k, n, cross.At(0, k))
		e.cov.SetSym(k, n+1, cross.At(1, k))
	}
	e.cov.SetSym(n, n, pll.At(0, 0))
	e.cov.SetSym(n, n+1, 0.5*(pll.At(0, 1)+pll.At(1, 0)))
	e.cov.SetSym(n+1, n+1, pll.At(1, 1))
}

// grow extends the covariance by k rows and columns, moving it to an arena
// of twice the size when capacity runs out. New entries are unspecified.
func (e *Estimator) grow(k int) {
	n := e.cov.SymmetricDim()
	if n+k > e.capacity {
		capacity := max(2*e.capacity, n+k)
		arena := mat.NewSymDense(capacity, nil)
		view := arena.SliceSym(0, n).(*mat.SymDense)
		view.CopySym(e.cov)
		e.cov, e.capacity = view, capacity
	}
	e.cov = e.cov.GrowSym(k).(*mat.SymDense)
}

// rows copies rows [from, to) of the covariance into a dense matrix.
func (e *Estimator) rows(from, to int) *mat.Dense {
	n := len(e.mean)
	out := mat.NewDense(to-from, n, nil)
	for i := from; i < to; i++ {
		for k := 0; k < n; k++ {
			out.Set(i-from, k, e.cov.At(i, k))
		}
	}
	return out
}

func (e *Estimator) numLandmarks() int { return (len(e.mean) - poseDim) / 2 }

// check enforces the covariance contract: every diagonal entry finite and
// non-negative within CovarianceTolerance, and a finite mean.
func (e *Estimator) check(op string) {
	var err error
	for i := 0; i < len(e.mean); i++ {
		d := e.cov.At(i, i)
		if math.IsNaN(d) || math.IsInf(d, 0) || d < -CovarianceTolerance {
			err = fmt.Errorf("slam: %s left covariance diagonal %d = %v", op, i, d)
			break
		}
		if math.IsNaN(e.mean[i]) || math.IsInf(e.mean[i], 0) {
			err = fmt.Errorf("slam: %s left mean %d = %v", op, i, e.mean[i])
			break
		}
	}
	if err == nil {
		return
	}
	e.stats.Violations++
	if e.fault == nil {
		e.fault = err
	}
	if e.cfg.StrictChecks {
		panic(err)
	}
	monitoring.Logf("%v", err)
}
