// Package scene describes the static world the robot drives through:
// walls, round point landmarks, the start pose and the goal offset.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/slamsim/internal/fsutil"
	"github.com/banshee-data/slamsim/internal/geom"
)

// ErrUnknownScene is returned for a built-in name that does not exist.
var ErrUnknownScene = errors.New("unknown scene")

const maxSceneBytes = 4 << 20

// Scene is a loaded world.
type Scene struct {
	Name   string
	Start  geom.Pose
	Goal   r2.Point // offset from the start position
	Walls  []geom.Segment
	Points []geom.Point
}

// file is the on-disk JSON layout.
type file struct {
	Name  string `json:"name"`
	Start struct {
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		Heading float64 `json:"heading"`
	} `json:"start"`
	Goal struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	} `json:"goal"`
	Walls  [][4]float64 `json:"walls"`
	Points [][3]float64 `json:"points"`
}

// Parse decodes a JSON scene. Zero-length walls and non-positive radii are
// rejected.
func Parse(data []byte) (*Scene, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scene: %w", err)
	}
	s := &Scene{
		Name:  f.Name,
		Start: geom.Pose{X: f.Start.X, Y: f.Start.Y, Heading: geom.WrapAngle(f.Start.Heading)},
		Goal:  r2.Point{X: f.Goal.DX, Y: f.Goal.DY},
	}
	for i, w := range f.Walls {
		seg := geom.NewSegment(w[0], w[1], w[2], w[3])
		if seg.Degenerate() {
			return nil, fmt.Errorf("wall %d has zero length", i)
		}
		s.Walls = append(s.Walls, seg)
	}
	for i, p := range f.Points {
		if p[2] <= 0 {
			return nil, fmt.Errorf("point %d has non-positive radius %v", i, p[2])
		}
		s.Points = append(s.Points, geom.Point{Center: r2.Point{X: p[0], Y: p[1]}, Radius: p[2]})
	}
	return s, nil
}

// Load reads a .json scene through fsys. The scene name defaults to the
// file's base name.
func Load(fsys fsutil.FileSystem, path string) (*Scene, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".json" {
		return nil, fmt.Errorf("scene file must have .json extension, got %q", ext)
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene %s: %w", path, err)
	}
	if len(data) > maxSceneBytes {
		return nil, fmt.Errorf("scene %s exceeds %d bytes", path, maxSceneBytes)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// Resolve returns the built-in scene called nameOrPath, or loads it as a
// file when it ends in .json.
func Resolve(fsys fsutil.FileSystem, nameOrPath string) (*Scene, error) {
	if strings.HasSuffix(strings.ToLower(nameOrPath), ".json") {
		return Load(fsys, nameOrPath)
	}
	return Builtin(nameOrPath)
}

// Landmarks returns walls and points as one list for ray casting.
func (s *Scene) Landmarks() []geom.Landmark {
	out := make([]geom.Landmark, 0, len(s.Walls)+len(s.Points))
	for _, w := range s.Walls {
		out = append(out, w)
	}
	for _, p := range s.Points {
		out = append(out, p)
	}
	return out
}

// GoalPoint returns the absolute goal position.
func (s *Scene) GoalPoint() r2.Point {
	return s.Start.Position().Add(s.Goal)
}

// Bounds returns the rectangle enclosing every landmark and the start.
func (s *Scene) Bounds() r2.Rect {
	b := r2.RectFromPoints(s.Start.Position())
	for _, l := range s.Landmarks() {
		b = b.Union(l.Bounds())
	}
	return b
}

// --- built-ins ---

var builtins = map[string]func() *Scene{
	"square_room": SquareRoom,
	"rectangle":   Rectangle,
	"pillars":     Pillars,
}

// Names lists the built-in scenes.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a fresh copy of a built-in scene.
func Builtin(name string) (*Scene, error) {
	mk, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownScene, name, strings.Join(Names(), ", "))
	}
	return mk(), nil
}

func box(minX, minY, maxX, maxY float64) []geom.Segment {
	return []geom.Segment{
		geom.NewSegment(minX, minY, maxX, minY),
		geom.NewSegment(maxX, minY, maxX, maxY),
		geom.NewSegment(maxX, maxY, minX, maxY),
		geom.NewSegment(minX, maxY, minX, minY),
	}
}

// SquareRoom is a 400x400 room centred on the start with the goal 100
// units north. The start sits on a default grid cell centre.
func SquareRoom() *Scene {
	return &Scene{
		Name:  "square_room",
		Start: geom.Pose{X: 2, Y: 2, Heading: math.Pi / 2},
		Goal:  r2.Point{X: 0, Y: 100},
		Walls: box(-198, -198, 202, 202),
	}
}

// Rectangle is a long room with an inner partition the robot must drive
// around to reach a goal offset by (160, 50).
func Rectangle() *Scene {
	walls := box(-250, -120, 250, 120)
	walls = append(walls, geom.NewSegment(0, -120, 0, 60))
	return &Scene{
		Name:  "rectangle",
		Start: geom.Pose{X: -100, Y: 0},
		Goal:  r2.Point{X: 160, Y: 50},
		Walls: walls,
	}
}

// Pillars is a room with round landmarks the estimator can track.
func Pillars() *Scene {
	s := &Scene{
		Name:  "pillars",
		Start: geom.Pose{X: -150, Y: 0},
		Goal:  r2.Point{X: 300, Y: 0},
		Walls: box(-300, -200, 300, 200),
	}
	for _, c := range []r2.Point{{X: -60, Y: 80}, {X: -60, Y: -80}, {X: 40, Y: 60}, {X: 40, Y: -60}, {X: 120, Y: 100}, {X: 120, Y: -100}} {
		s.Points = append(s.Points, geom.Point{Center: c, Radius: 3})
	}
	return s
}
