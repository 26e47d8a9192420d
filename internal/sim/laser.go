package sim

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/slamsim/internal/config"
	"github.com/banshee-data/slamsim/internal/geom"
)

// InvalidRange marks a beam that hit nothing within range.
var InvalidRange = math.Inf(1)

// ValidRange reports whether r is a real measurement.
func ValidRange(r float64) bool {
	return !math.IsInf(r, 0) && !math.IsNaN(r)
}

// LaserConfig describes the beam fan and its noise.
type LaserConfig struct {
	Count       int
	MinTheta    float64 // relative to heading
	MaxTheta    float64
	MaxRange    float64
	AngleNoise  float64 // bound of uniform jitter, as a fraction of Resolution
	RangeNoise  float64 // bound of uniform additive range noise
	MountOffset float64 // sensor origin along the heading from the robot centre
}

// DefaultLaserConfig returns the sensor model from the default tuning.
func DefaultLaserConfig() LaserConfig {
	return LaserConfigFromTuning(config.DefaultTuningConfig())
}

// LaserConfigFromTuning extracts the sensor model from cfg.
func LaserConfigFromTuning(cfg *config.TuningConfig) LaserConfig {
	return LaserConfig{
		Count:       cfg.GetLaserCount(),
		MinTheta:    cfg.GetLaserMinTheta(),
		MaxTheta:    cfg.GetLaserMaxTheta(),
		MaxRange:    cfg.GetLaserMaxRange(),
		AngleNoise:  cfg.GetLaserAngleNoise(),
		RangeNoise:  cfg.GetLaserRangeNoise(),
		MountOffset: cfg.GetLaserMountOffset(),
	}
}

// Resolution is the nominal angular spacing used to scale jitter.
func (c LaserConfig) Resolution() float64 {
	return (c.MaxTheta - c.MinTheta) / float64(c.Count)
}

// BeamAngle returns the nominal angle of beam i relative to the heading.
func (c LaserConfig) BeamAngle(i int) float64 {
	if c.Count < 2 {
		return c.MinTheta
	}
	return c.MinTheta + (c.MaxTheta-c.MinTheta)*float64(i)/float64(c.Count-1)
}

// Origin returns the sensor position for a robot at pose.
func (c LaserConfig) Origin(pose Pose) r2.Point {
	return pose.Position().Add(geom.Unit(pose.Heading).Mul(c.MountOffset))
}

// Project maps ranges to world-frame endpoints as seen from pose, using
// nominal beam angles. Invalid beams are skipped, so the result is in beam
// order but may be shorter than ranges.
func (c LaserConfig) Project(pose Pose, ranges []float64) []r2.Point {
	origin := c.Origin(pose)
	hits := make([]r2.Point, 0, len(ranges))
	for i, r := range ranges {
		if !ValidRange(r) {
			continue
		}
		hits = append(hits, origin.Add(geom.Unit(pose.Heading+c.BeamAngle(i)).Mul(r)))
	}
	return hits
}

// Scan is one complete sweep. Seq increases by one per published scan and is
// the timestamp consumers gate on.
type Scan struct {
	Seq     uint64        `json:"seq"`
	SimTime time.Duration `json:"sim_time"`
	Ranges  []float64     `json:"ranges"`
}

// Clone returns a deep copy.
func (s Scan) Clone() Scan {
	s.Ranges = append([]float64(nil), s.Ranges...)
	return s
}

// ValidCount returns the number of valid beams.
func (s Scan) ValidCount() int {
	n := 0
	for _, r := range s.Ranges {
		if ValidRange(r) {
			n++
		}
	}
	return n
}

// Laser is the range sensor. Update is intended for a single writer; any
// number of goroutines may call Measurements.
type Laser struct {
	cfg LaserConfig

	writeMu sync.Mutex // serialises Update and guards rng/seq
	rng     *rand.Rand
	seq     uint64

	latest atomic.Pointer[Scan]
}

// NewLaser creates a sensor with its own deterministic noise source.
func NewLaser(cfg LaserConfig, seed int64) *Laser {
	return &Laser{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Config returns the sensor model.
func (l *Laser) Config() LaserConfig { return l.cfg }

// Update casts a full sweep from pose and publishes it.
func (l *Laser) Update(pose Pose, simTime time.Duration, landmarks []geom.Landmark) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	origin := l.cfg.Origin(pose)
	jitter := l.cfg.AngleNoise * l.cfg.Resolution()
	ranges := make([]float64, l.cfg.Count)
	for i := range ranges {
		theta := pose.Heading + l.cfg.BeamAngle(i) + jitter*l.uniform()
		d, ok := geom.NearestHit(landmarks, origin, geom.Unit(theta), l.cfg.MaxRange)
		if !ok {
			ranges[i] = InvalidRange
			continue
		}
		ranges[i] = d + l.cfg.RangeNoise*l.uniform()
	}

	l.seq++
	l.latest.Store(&Scan{Seq: l.seq, SimTime: simTime, Ranges: ranges})
}

// uniform returns a sample in [-1, 1).
func (l *Laser) uniform() float64 { return 2*l.rng.Float64() - 1 }

// Measurements returns a copy of the latest scan. ok is false before the
// first Update.
func (l *Laser) Measurements() (Scan, bool) {
	s := l.latest.Load()
	if s == nil {
		return Scan{}, false
	}
	return s.Clone(), true
}

// LatestSeq returns the sequence number of the latest scan, or 0.
func (l *Laser) LatestSeq() uint64 {
	if s := l.latest.Load(); s != nil {
		return s.Seq
	}
	return 0
}
