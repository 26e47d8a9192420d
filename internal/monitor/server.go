// Package monitor serves the live state of a running pipeline over HTTP:
// JSON state and controls, echarts debug pages and a PNG trajectory plot.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/slamsim/internal/grid"
	"github.com/banshee-data/slamsim/internal/httputil"
	"github.com/banshee-data/slamsim/internal/monitoring"
	"github.com/banshee-data/slamsim/internal/pipeline"
	"github.com/banshee-data/slamsim/internal/scene"
	"github.com/banshee-data/slamsim/internal/version"
)

// Controls is the part of *pipeline.Pipeline the server needs.
type Controls interface {
	Latest() pipeline.Frame
	Grid() *grid.Grid
	Scene() *scene.Scene
	SetPaused(paused bool)
	Paused() bool
	SetFitter(name string) error
	SetGoal(goal r2.Point)
}

// State is the /api/state response.
type State struct {
	Scene string         `json:"scene"`
	Frame pipeline.Frame `json:"frame"`
	Grid  grid.Snapshot  `json:"grid"`
}

// PauseRequest is the /api/pause body.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// FitterRequest is the /api/fitter body.
type FitterRequest struct {
	Name string `json:"name"`
}

// GoalRequest is the /api/goal body, in world coordinates.
type GoalRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Config configures a Server.
type Config struct {
	Address  string
	Pipeline Controls
	// History feeds the charts and the plot. It must also be registered as
	// a pipeline observer by the caller.
	History *History
}

// Server is the HTTP monitor.
type Server struct {
	address string
	pipe    Controls
	history *History
	plotter *TrajectoryPlotter
	mux     *http.ServeMux
	server  *http.Server
}

// NewServer creates a monitor with its routes registered.
func NewServer(cfg Config) *Server {
	h := cfg.History
	if h == nil {
		h = NewHistory(DefaultHistorySize)
	}
	s := &Server{
		address: cfg.Address,
		pipe:    cfg.Pipeline,
		history: h,
		plotter: NewTrajectoryPlotter(cfg.Pipeline.Scene().Walls),
		mux:     http.NewServeMux(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Mux exposes the route table so other packages can attach debug routes.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// History returns the sample ring the charts draw from.
func (s *Server) History() *History { return s.history }

// Plotter returns the trajectory plotter.
func (s *Server) Plotter() *TrajectoryPlotter { return s.plotter }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("monitor: listening on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("monitor server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("monitor: shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("monitor: force close error: %v", err)
		}
	}
	monitoring.Logf("monitor: stopped")
	return nil
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/history", s.handleHistory)
	s.mux.HandleFunc("/api/version", s.handleVersion)
	s.mux.HandleFunc("/api/pause", s.handlePause)
	s.mux.HandleFunc("/api/fitter", s.handleFitter)
	s.mux.HandleFunc("/api/goal", s.handleGoal)
	s.mux.HandleFunc("/debug/charts/error", s.handleErrorChart)
	s.mux.HandleFunc("/debug/charts/map", s.handleMapChart)
	s.mux.HandleFunc("/debug/plot.png", s.handlePlot)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	f := s.pipe.Latest()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":  "ok",
		"tick":    f.Tick,
		"healthy": f.Healthy,
		"paused":  s.pipe.Paused(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, State{
		Scene: s.pipe.Scene().Name,
		Frame: s.pipe.Latest(),
		Grid:  s.pipe.Grid().Snapshot(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, s.history.Samples())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, version.Current())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		httputil.WriteJSONOK(w, PauseRequest{Paused: s.pipe.Paused()})
		return
	}
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req PauseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	s.pipe.SetPaused(req.Paused)
	monitoring.Logf("monitor: paused=%v", req.Paused)
	httputil.WriteJSONOK(w, PauseRequest{Paused: s.pipe.Paused()})
}

func (s *Server) handleFitter(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		httputil.WriteJSONOK(w, FitterRequest{Name: s.pipe.Latest().Fitter})
		return
	}
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req FitterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.pipe.SetFitter(req.Name); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, req)
}

func (s *Server) handleGoal(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		g := s.pipe.Latest().Goal
		httputil.WriteJSONOK(w, GoalRequest{X: g.X, Y: g.Y})
		return
	}
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req GoalRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	goal := r2.Point{X: req.X, Y: req.Y}
	if !s.pipe.Grid().Config().Extent.ContainsPoint(goal) {
		httputil.BadRequest(w, fmt.Sprintf("goal (%g, %g) is outside the grid", req.X, req.Y))
		return
	}
	s.pipe.SetGoal(goal)
	monitoring.Logf("monitor: goal set to (%.1f, %.1f)", req.X, req.Y)
	httputil.WriteJSON(w, http.StatusAccepted, req)
}

func (s *Server) handleErrorChart(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := renderErrorChart(&buf, s.history.Samples()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleMapChart(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := renderMapChart(&buf, s.plotter.Walls, s.history.Samples(), s.pipe.Latest()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.plotter.WritePNG(&buf, s.history.Samples(), s.pipe.Latest()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("plot error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
