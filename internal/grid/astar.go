package grid

import (
	"container/heap"
	"math"

	"github.com/golang/geo/r2"
)

type node struct {
	cell    int
	g, h, f float64
	parent  int
	index   int
}

// openSet is a min-heap of nodes ordered by f, then h, then cell index so
// that equal-cost searches expand in a fixed order.
type openSet []*node

func (q openSet) Len() int { return len(q) }

func (q openSet) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.h != b.h {
		return a.h < b.h
	}
	return a.cell < b.cell
}

func (q openSet) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *openSet) Push(x any) {
	n := x.(*node)
	n.index = len(*q)
	*q = append(*q, n)
}

func (q *openSet) Pop() any {
	old := *q
	n := old[len(old)-1]
	old[len(old)-1] = nil
	n.index = -1
	*q = old[:len(old)-1]
	return n
}

var (
	neighbours4 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	neighbours8 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// PlanPath runs A* from the cell containing start to the cell containing
// goal. Step cost and heuristic are Euclidean distances between cell
// centres. The result lists cells from start to goal inclusive; it is nil
// when either end is outside the extent or blocked, or when the goal is
// unreachable.
func (g *Grid) PlanPath(start, goal r2.Point) []int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s, ok := g.CellOf(start)
	if !ok || g.blocked(s) {
		return nil
	}
	t, ok := g.CellOf(goal)
	if !ok || g.blocked(t) {
		return nil
	}
	if s == t {
		return []int{s}
	}

	moves := neighbours8
	if g.cfg.Connectivity == 4 {
		moves = neighbours4
	}
	goalCentre := g.CenterOf(t)
	heuristic := func(c int) float64 { return g.CenterOf(c).Sub(goalCentre).Norm() }

	nodes := make(map[int]*node)
	closed := make(map[int]bool)
	first := &node{cell: s, h: heuristic(s), parent: -1}
	first.f = first.h
	nodes[s] = first
	open := &openSet{}
	heap.Push(open, first)

	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		if cur.cell == t {
			return g.reconstruct(nodes, cur)
		}
		closed[cur.cell] = true

		row, col := g.RowCol(cur.cell)
		for _, m := range moves {
			nc, nr := col+m[0], row+m[1]
			if !g.inside(nc, nr) {
				continue
			}
			next := g.cell(nc, nr)
			if closed[next] || g.blocked(next) {
				continue
			}
			// Diagonal moves may not squeeze between blocked orthogonal cells.
			if m[0] != 0 && m[1] != 0 &&
				(g.blocked(g.cell(col+m[0], row)) || g.blocked(g.cell(col, row+m[1]))) {
				continue
			}
			step := math.Hypot(float64(m[0])*g.cellW, float64(m[1])*g.cellH)
			tentative := cur.g + step

			n, seen := nodes[next]
			if !seen {
				n = &node{cell: next, g: tentative, h: heuristic(next), parent: cur.cell}
				n.f = n.g + n.h
				nodes[next] = n
				heap.Push(open, n)
				continue
			}
			if tentative < n.g {
				n.g = tentative
				n.f = n.g + n.h
				n.parent = cur.cell
				heap.Fix(open, n.index)
			}
		}
	}
	return nil
}

func (g *Grid) reconstruct(nodes map[int]*node, end *node) []int {
	var path []int
	for n := end; ; n = nodes[n.parent] {
		path = append(path, n.cell)
		if n.parent < 0 {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
