package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/slamsim/internal/config"
	"github.com/banshee-data/slamsim/internal/features"
	"github.com/banshee-data/slamsim/internal/pipeline"
	"github.com/banshee-data/slamsim/internal/scene"
	"github.com/banshee-data/slamsim/internal/testutil"
	"github.com/banshee-data/slamsim/internal/version"
)

// newRig builds a square-room pipeline with a history observer and steps it
// a few control ticks.
func newRig(t *testing.T, ticks int) (*pipeline.Pipeline, *Server) {
	t.Helper()
	h := NewHistory(64)
	p, err := pipeline.New(pipeline.Options{
		Tuning:    config.DefaultTuningConfig(),
		Scene:     scene.SquareRoom(),
		Observers: []pipeline.Observer{h},
	})
	require.NoError(t, err)
	for i := 0; i < ticks; i++ {
		p.StepSynchronous(context.Background(), 20*time.Millisecond)
	}
	return p, NewServer(Config{Address: "127.0.0.1:0", Pipeline: p, History: h})
}

// --- history ---

func TestHistoryRingKeepsNewest(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	for i := uint64(1); i <= 5; i++ {
		h.Observe(context.Background(), pipeline.Frame{Tick: i})
	}
	h.Observe(context.Background(), pipeline.Frame{Tick: 6, Paused: true})

	require.Equal(t, 3, h.Len())
	var ticks []uint64
	for _, s := range h.Samples() {
		ticks = append(ticks, s.Tick)
	}
	assert.Equal(t, []uint64{3, 4, 5}, ticks)
}

func TestHistoryDerivedValues(t *testing.T) {
	t.Parallel()

	h := NewHistory(0)
	f := pipeline.Frame{Tick: 1, Replanned: true}
	f.TruePose.X, f.Estimate.X = 3, 0
	f.PoseCov[0][0], f.PoseCov[1][1], f.PoseCov[2][2] = 1, 2, 3
	h.Observe(context.Background(), f)

	s := h.Samples()
	require.Len(t, s, 1)
	assert.InDelta(t, 3.0, s[0].PositionError, 1e-12)
	assert.InDelta(t, 6.0, s[0].CovTrace, 1e-12)
	assert.True(t, s[0].Replanned)
}

// --- JSON endpoints ---

func TestStateEndpoint(t *testing.T) {
	t.Parallel()
	_, s := newRig(t, 5)

	rec := testutil.Serve(s, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st State
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, "square_room", st.Scene)
	assert.Equal(t, uint64(5), st.Frame.Tick)
	assert.Greater(t, st.Grid.Rows, 0)
	assert.NotEmpty(t, st.Frame.Plan)

	rec = testutil.Serve(s, http.MethodPost, "/api/state", "{}")
	testutil.AssertStatusCode(t, rec, http.StatusMethodNotAllowed)
}

func TestHistoryAndVersionEndpoints(t *testing.T) {
	t.Parallel()
	_, s := newRig(t, 4)

	rec := testutil.Serve(s, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var samples []Sample
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&samples))
	assert.Len(t, samples, 4)

	rec = testutil.Serve(s, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info version.Info
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, version.Current(), info)

	rec = testutil.Serve(s, http.MethodGet, "/health", "")
	testutil.AssertStatusCode(t, rec, http.StatusOK)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestPauseEndpoint(t *testing.T) {
	t.Parallel()
	p, s := newRig(t, 1)

	rec := testutil.Serve(s, http.MethodPost, "/api/pause", `{"paused": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, p.Paused())

	rec = testutil.Serve(s, http.MethodGet, "/api/pause", "")
	assert.JSONEq(t, `{"paused": true}`, rec.Body.String())

	rec = testutil.Serve(s, http.MethodPost, "/api/pause", `{"pause": false}`)
	testutil.AssertStatusCode(t, rec, http.StatusBadRequest)
	assert.True(t, p.Paused())

	rec = testutil.Serve(s, http.MethodDelete, "/api/pause", "")
	testutil.AssertStatusCode(t, rec, http.StatusMethodNotAllowed)
}

func TestFitterEndpoint(t *testing.T) {
	t.Parallel()
	p, s := newRig(t, 1)

	rec := testutil.Serve(s, http.MethodPost, "/api/fitter", `{"name": "ransac"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	f := p.StepSynchronous(context.Background(), 20*time.Millisecond)
	assert.Equal(t, features.FitterRANSAC, f.Fitter)

	rec = testutil.Serve(s, http.MethodPost, "/api/fitter", `{"name": "hough"}`)
	testutil.AssertStatusCode(t, rec, http.StatusBadRequest)
	assert.Contains(t, rec.Body.String(), "unknown fitter")
}

func TestGoalEndpoint(t *testing.T) {
	t.Parallel()
	p, s := newRig(t, 1)

	rec := testutil.Serve(s, http.MethodPost, "/api/goal", `{"x": 50, "y": 50}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	f := p.StepSynchronous(context.Background(), 20*time.Millisecond)
	assert.Equal(t, r2.Point{X: 50, Y: 50}, f.Goal)

	rec = testutil.Serve(s, http.MethodPost, "/api/goal", `{"x": 1e6, "y": 0}`)
	testutil.AssertStatusCode(t, rec, http.StatusBadRequest)
	assert.Contains(t, rec.Body.String(), "outside the grid")
}

// --- charts and plot ---

func TestChartPages(t *testing.T) {
	t.Parallel()
	_, s := newRig(t, 10)

	for _, path := range []string{"/debug/charts/error", "/debug/charts/map"} {
		rec := testutil.Serve(s, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "echarts", path)
	}
}

func TestPlotPNG(t *testing.T) {
	t.Parallel()
	_, s := newRig(t, 10)

	rec := testutil.Serve(s, http.MethodGet, "/debug/plot.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

// --- server lifecycle ---

func TestStartStopsOnCancel(t *testing.T) {
	t.Parallel()
	_, s := newRig(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
