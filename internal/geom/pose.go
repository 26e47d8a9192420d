package geom

import "github.com/golang/geo/r2"

// Pose is a planar position and heading.
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Position returns the (x, y) part of the pose.
func (p Pose) Position() r2.Point { return r2.Point{X: p.X, Y: p.Y} }

// ToBody expresses the world point w in the frame of p: x forward along the
// heading, y to the left.
func (p Pose) ToBody(w r2.Point) r2.Point {
	return Rotate(w.Sub(p.Position()), -p.Heading)
}

// ToWorld is the inverse of ToBody.
func (p Pose) ToWorld(b r2.Point) r2.Point {
	return p.Position().Add(Rotate(b, p.Heading))
}

// Control is a (linear, angular) velocity pair.
type Control struct {
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

// Sub returns c - o.
func (c Control) Sub(o Control) Control {
	return Control{Linear: c.Linear - o.Linear, Angular: c.Angular - o.Angular}
}
