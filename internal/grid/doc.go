// Package grid is the occupancy map the planner searches.
//
// A Grid covers a fixed world rectangle with rows x cols uniform cells and
// keeps two count planes: obstacle hits, which decide whether a cell is
// blocked, and observed-free traversals from sensor rays, which separate
// known-empty space from space never seen. A* and line-of-sight queries
// operate on cell indices (row*cols + col) and only consult the hit plane.
package grid
