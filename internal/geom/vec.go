package geom

import (
	"math"

	"github.com/golang/geo/r2"
)

// Unit returns the unit vector at heading theta.
func Unit(theta float64) r2.Point {
	return r2.Point{X: math.Cos(theta), Y: math.Sin(theta)}
}

// Rotate rotates p counter-clockwise by theta about the origin.
func Rotate(p r2.Point, theta float64) r2.Point {
	c, s := math.Cos(theta), math.Sin(theta)
	return r2.Point{X: c*p.X - s*p.Y, Y: s*p.X + c*p.Y}
}

// WrapAngle maps a to (-pi, pi].
func WrapAngle(a float64) float64 {
	if a > -math.Pi && a <= math.Pi {
		return a
	}
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Bearing returns the heading of the vector from -> to.
func Bearing(from, to r2.Point) float64 {
	d := to.Sub(from)
	return math.Atan2(d.Y, d.X)
}

// PerpendicularDistance returns the distance from p to the infinite line
// through a and b. When a and b coincide it falls back to |p-a|.
func PerpendicularDistance(p, a, b r2.Point) float64 {
	ab := b.Sub(a)
	n := ab.Norm()
	if n < Epsilon {
		return p.Sub(a).Norm()
	}
	return math.Abs(ab.Cross(p.Sub(a))) / n
}

// Centroid returns the mean of pts. The zero point is returned for an empty
// slice.
func Centroid(pts []r2.Point) r2.Point {
	if len(pts) == 0 {
		return r2.Point{}
	}
	var sum r2.Point
	for _, p := range pts {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(pts)))
}
