// Package geom holds the static map primitives used by the simulator and the
// feature extractor: wall segments, round point landmarks and the ray queries
// the range sensor casts against them.
//
// All coordinates are world units on the golang/geo r2 plane. Headings are
// radians, counter-clockwise from +X.
package geom
