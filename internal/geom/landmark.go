package geom

import (
	"math"

	"github.com/golang/geo/r2"
)

// Epsilon below which lengths and cross products are treated as zero.
const Epsilon = 1e-9

// Landmark is an immutable piece of static map geometry.
type Landmark interface {
	// ShortestRayDistance returns the distance along the unit direction dir
	// from origin to the nearest intersection in front of origin. ok is false
	// when the ray misses or the configuration is degenerate.
	ShortestRayDistance(origin, dir r2.Point) (dist float64, ok bool)

	// Bounds returns the axis-aligned box enclosing the landmark.
	Bounds() r2.Rect
}

// Segment is a wall between two endpoints.
type Segment struct {
	A r2.Point `json:"a"`
	B r2.Point `json:"b"`
}

// NewSegment builds a segment from raw coordinates.
func NewSegment(x1, y1, x2, y2 float64) Segment {
	return Segment{A: r2.Point{X: x1, Y: y1}, B: r2.Point{X: x2, Y: y2}}
}

// Length returns the Euclidean length of the segment.
func (s Segment) Length() float64 { return s.B.Sub(s.A).Norm() }

// Degenerate reports whether the segment has (near) zero length.
func (s Segment) Degenerate() bool { return s.Length() < Epsilon }

// Midpoint returns the centre of the segment.
func (s Segment) Midpoint() r2.Point { return s.A.Add(s.B).Mul(0.5) }

// Bounds implements Landmark.
func (s Segment) Bounds() r2.Rect { return r2.RectFromPoints(s.A, s.B) }

// ShortestRayDistance implements Landmark. Parallel and collinear rays never
// hit, nor does a zero-length segment.
func (s Segment) ShortestRayDistance(origin, dir r2.Point) (float64, bool) {
	if s.Degenerate() || dir.Norm() < Epsilon {
		return 0, false
	}
	d := dir.Normalize()
	e := s.B.Sub(s.A)
	denom := d.Cross(e)
	if math.Abs(denom) < Epsilon {
		return 0, false
	}
	ao := s.A.Sub(origin)
	dist := ao.Cross(e) / denom
	t := ao.Cross(d) / denom
	if dist < 0 || t < 0 || t > 1 {
		return 0, false
	}
	return dist, true
}

// Point is a round landmark such as a pillar. A zero radius is valid map
// data but can never be hit by a ray.
type Point struct {
	Center r2.Point `json:"center"`
	Radius float64  `json:"radius"`
}

// Bounds implements Landmark.
func (p Point) Bounds() r2.Rect {
	return r2.RectFromCenterSize(p.Center, r2.Point{X: 2 * p.Radius, Y: 2 * p.Radius})
}

// ShortestRayDistance implements Landmark. Returns false when the origin lies
// inside the disc.
func (p Point) ShortestRayDistance(origin, dir r2.Point) (float64, bool) {
	if p.Radius < Epsilon || dir.Norm() < Epsilon {
		return 0, false
	}
	d := dir.Normalize()
	oc := origin.Sub(p.Center)
	b := d.Dot(oc)
	c := oc.Dot(oc) - p.Radius*p.Radius
	if c < 0 {
		return 0, false
	}
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	dist := -b - math.Sqrt(disc)
	if dist < 0 {
		return 0, false
	}
	return dist, true
}

// NearestHit casts a ray against every landmark and returns the closest hit
// not further than maxRange.
func NearestHit(landmarks []Landmark, origin, dir r2.Point, maxRange float64) (float64, bool) {
	best := math.Inf(1)
	found := false
	for _, lm := range landmarks {
		d, ok := lm.ShortestRayDistance(origin, dir)
		if !ok || d > maxRange {
			continue
		}
		if d < best {
			best = d
			found = true
		}
	}
	return best, found
}
