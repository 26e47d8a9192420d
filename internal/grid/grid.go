package grid

import (
	"math"
	"sync"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"

	"github.com/banshee-data/slamsim/internal/config"
)

// Config describes the grid geometry.
type Config struct {
	Extent         r2.Rect
	Rows           int
	Cols           int
	BlockThreshold int // a cell is blocked when its hit count exceeds this
	Connectivity   int // 4 or 8
}

// DefaultConfig returns the grid geometry from the default tuning.
func DefaultConfig() Config {
	return ConfigFromTuning(config.DefaultTuningConfig())
}

// ConfigFromTuning extracts the grid geometry from cfg.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Extent: r2.Rect{
			X: r1.Interval{Lo: cfg.GetGridMinX(), Hi: cfg.GetGridMaxX()},
			Y: r1.Interval{Lo: cfg.GetGridMinY(), Hi: cfg.GetGridMaxY()},
		},
		Rows:           cfg.GetGridRows(),
		Cols:           cfg.GetGridCols(),
		BlockThreshold: cfg.GetBlockThreshold(),
		Connectivity:   cfg.GetGridConnectivity(),
	}
}

// CellState classifies a cell for exploration and display.
type CellState int

const (
	Unknown CellState = iota
	Free
	Occupied
)

func (s CellState) String() string {
	switch s {
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	}
	return "unknown"
}

// Grid is safe for concurrent readers; mutation is expected from a single
// goroutine.
type Grid struct {
	mu sync.RWMutex

	cfg          Config
	cellW, cellH float64
	hits         []uint32
	free         []uint32
}

// New allocates an empty grid.
func New(cfg Config) *Grid {
	if cfg.Connectivity != 4 {
		cfg.Connectivity = 8
	}
	n := cfg.Rows * cfg.Cols
	return &Grid{
		cfg:   cfg,
		cellW: cfg.Extent.X.Length() / float64(cfg.Cols),
		cellH: cfg.Extent.Y.Length() / float64(cfg.Rows),
		hits:  make([]uint32, n),
		free:  make([]uint32, n),
	}
}

// Config returns the grid geometry.
func (g *Grid) Config() Config { return g.cfg }

// CellSize returns the width and height of one cell.
func (g *Grid) CellSize() (w, h float64) { return g.cellW, g.cellH }

// Len returns the number of cells.
func (g *Grid) Len() int { return len(g.hits) }

// index returns the unclamped (col, row) of p.
func (g *Grid) index(p r2.Point) (col, row int) {
	col = int(math.Floor((p.X - g.cfg.Extent.X.Lo) / g.cellW))
	row = int(math.Floor((p.Y - g.cfg.Extent.Y.Lo) / g.cellH))
	// The far edges belong to the last cell.
	if p.X == g.cfg.Extent.X.Hi {
		col = g.cfg.Cols - 1
	}
	if p.Y == g.cfg.Extent.Y.Hi {
		row = g.cfg.Rows - 1
	}
	return col, row
}

func (g *Grid) inside(col, row int) bool {
	return col >= 0 && col < g.cfg.Cols && row >= 0 && row < g.cfg.Rows
}

func (g *Grid) cell(col, row int) int { return row*g.cfg.Cols + col }

// CellOf returns the cell containing p. ok is false outside the extent.
func (g *Grid) CellOf(p r2.Point) (cell int, ok bool) {
	col, row := g.index(p)
	if !g.inside(col, row) {
		return -1, false
	}
	return g.cell(col, row), true
}

// RowCol splits a cell index.
func (g *Grid) RowCol(cell int) (row, col int) {
	return cell / g.cfg.Cols, cell % g.cfg.Cols
}

// CenterOf returns the world centre of cell.
func (g *Grid) CenterOf(cell int) r2.Point {
	row, col := g.RowCol(cell)
	return r2.Point{
		X: g.cfg.Extent.X.Lo + (float64(col)+0.5)*g.cellW,
		Y: g.cfg.Extent.Y.Lo + (float64(row)+0.5)*g.cellH,
	}
}

// CoordinatesOf maps cells to their centres.
func (g *Grid) CoordinatesOf(cells []int) []r2.Point {
	out := make([]r2.Point, len(cells))
	for i, c := range cells {
		out[i] = g.CenterOf(c)
	}
	return out
}

// AddHit records an obstacle at p. With inflation > 0 every cell whose
// centre lies within inflation of p is counted too. Points outside the
// extent are ignored.
func (g *Grid) AddHit(p r2.Point, inflation float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	centre, ok := g.CellOf(p)
	if !ok {
		return
	}
	g.hits[centre]++
	if inflation <= 0 {
		return
	}

	clo, rlo := g.index(r2.Point{X: p.X - inflation, Y: p.Y - inflation})
	chi, rhi := g.index(r2.Point{X: p.X + inflation, Y: p.Y + inflation})
	r2max := inflation * inflation
	for row := max(rlo, 0); row <= min(rhi, g.cfg.Rows-1); row++ {
		for col := max(clo, 0); col <= min(chi, g.cfg.Cols-1); col++ {
			c := g.cell(col, row)
			if c == centre {
				continue
			}
			d := g.CenterOf(c).Sub(p)
			if d.Dot(d) <= r2max {
				g.hits[c]++
			}
		}
	}
}

// RasterizeFreeRay marks the cells crossed by the segment from -> to as
// observed free. The cell containing to holds the obstacle and is not
// marked. Cells outside the extent are skipped.
func (g *Grid) RasterizeFreeRay(from, to r2.Point) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c0, r0 := g.index(from)
	c1, r1 := g.index(to)
	bresenham(c0, r0, c1, r1, func(col, row int) bool {
		if col == c1 && row == r1 {
			return false
		}
		if g.inside(col, row) {
			g.free[g.cell(col, row)]++
		}
		return true
	})
}

// bresenham visits every cell on the integer line from (x0,y0) to (x1,y1)
// inclusive, in order, until visit returns false.
func bresenham(x0, y0, x1, y1 int, visit func(x, y int) bool) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		if !visit(x0, y0) {
			return
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// HitsAt returns the obstacle count of cell.
func (g *Grid) HitsAt(cell int) uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hits[cell]
}

// FreeAt returns the observed-free count of cell.
func (g *Grid) FreeAt(cell int) uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.free[cell]
}

func (g *Grid) blocked(cell int) bool {
	return int64(g.hits[cell]) > int64(g.cfg.BlockThreshold)
}

// Blocked reports whether cell holds more hits than the threshold.
func (g *Grid) Blocked(cell int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.blocked(cell)
}

// State classifies cell. Obstacle evidence wins over free evidence.
func (g *Grid) State(cell int) CellState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	switch {
	case g.blocked(cell):
		return Occupied
	case g.free[cell] > 0:
		return Free
	}
	return Unknown
}

// PathBlocked reports whether any cell of a plan is blocked.
func (g *Grid) PathBlocked(cells []int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range cells {
		if g.blocked(c) {
			return true
		}
	}
	return false
}

// LineOfSight reports whether the rasterised segment between two cells
// crosses no blocked cell, endpoints included.
func (g *Grid) LineOfSight(a, b int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ra, ca := g.RowCol(a)
	rb, cb := g.RowCol(b)
	clear := true
	bresenham(ca, ra, cb, rb, func(col, row int) bool {
		if g.blocked(g.cell(col, row)) {
			clear = false
		}
		return clear
	})
	return clear
}

// PathLength returns the Euclidean length through the centres of cells.
func (g *Grid) PathLength(cells []int) float64 {
	total := 0.0
	for i := 1; i < len(cells); i++ {
		total += g.CenterOf(cells[i]).Sub(g.CenterOf(cells[i-1])).Norm()
	}
	return total
}

// Snapshot is a compact copy of the grid for observers.
type Snapshot struct {
	Rows      int     `json:"rows"`
	Cols      int     `json:"cols"`
	MinX      float64 `json:"min_x"`
	MinY      float64 `json:"min_y"`
	CellW     float64 `json:"cell_w"`
	CellH     float64 `json:"cell_h"`
	Occupied  []int   `json:"occupied"`
	FreeCells int     `json:"free_cells"`
}

// Snapshot lists the blocked cells and counts the observed-free ones.
func (g *Grid) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Snapshot{
		Rows: g.cfg.Rows, Cols: g.cfg.Cols,
		MinX: g.cfg.Extent.X.Lo, MinY: g.cfg.Extent.Y.Lo,
		CellW: g.cellW, CellH: g.cellH,
	}
	for c := range g.hits {
		if g.blocked(c) {
			s.Occupied = append(s.Occupied, c)
		} else if g.free[c] > 0 {
			s.FreeCells++
		}
	}
	return s
}
