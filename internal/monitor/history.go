package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/slamsim/internal/geom"
	"github.com/banshee-data/slamsim/internal/pipeline"
)

// DefaultHistorySize holds a little over three minutes at 20 Hz.
const DefaultHistorySize = 4096

// Sample is the per-tick summary kept by History.
type Sample struct {
	Tick          uint64        `json:"tick"`
	SimTime       time.Duration `json:"sim_time"`
	TruePose      geom.Pose     `json:"true_pose"`
	Estimate      geom.Pose     `json:"estimate"`
	PositionError float64       `json:"position_error"`
	HeadingError  float64       `json:"heading_error"`
	CovTrace      float64       `json:"cov_trace"`
	Landmarks     int           `json:"landmarks"`
	Replanned     bool          `json:"replanned"`
}

// History is a fixed-size ring of samples fed as a pipeline observer.
// Paused frames are not recorded.
type History struct {
	mu   sync.RWMutex
	buf  []Sample
	next int
	full bool
}

// NewHistory creates a ring holding up to size samples.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]Sample, size)}
}

// Observe implements pipeline.Observer.
func (h *History) Observe(_ context.Context, f pipeline.Frame) {
	if f.Paused {
		return
	}
	s := Sample{
		Tick:          f.Tick,
		SimTime:       f.SimTime,
		TruePose:      f.TruePose,
		Estimate:      f.Estimate,
		PositionError: f.PositionError(),
		HeadingError:  f.HeadingError(),
		CovTrace:      f.CovarianceTrace(),
		Landmarks:     len(f.Landmarks),
		Replanned:     f.Replanned,
	}

	h.mu.Lock()
	h.buf[h.next] = s
	h.next++
	if h.next == len(h.buf) {
		h.next = 0
		h.full = true
	}
	h.mu.Unlock()
}

// Len returns the number of samples held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// Samples returns the held samples, oldest first.
func (h *History) Samples() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.full {
		return append([]Sample(nil), h.buf[:h.next]...)
	}
	out := make([]Sample, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}
