// Package sqlite records simulation runs in a SQLite database: one row per
// run, one per control tick and one per replan.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/slamsim/internal/geom"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Store wraps the recorder database.
type Store struct {
	*sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path and migrates it to the latest
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// Pragmas are per connection; one writer is all the recorder needs.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	s := &Store{DB: db, path: path, now: time.Now}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// RunInfo describes a run when it starts.
type RunInfo struct {
	Scene      string
	Fitter     string
	Seed       int64
	ConfigJSON string
}

// Run is a stored run.
type Run struct {
	ID          string     `json:"run_id"`
	Scene       string     `json:"scene"`
	Fitter      string     `json:"fitter"`
	Seed        int64      `json:"seed"`
	ConfigJSON  string     `json:"config_json"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Ticks       uint64     `json:"ticks"`
	ReachedGoal bool       `json:"reached_goal"`
}

// PoseRecord is one tick of a run.
type PoseRecord struct {
	Tick        uint64  `json:"tick"`
	SimTime     float64 `json:"sim_time_s"`
	TrueX       float64 `json:"true_x"`
	TrueY       float64 `json:"true_y"`
	TrueHeading float64 `json:"true_heading"`
	EstX        float64 `json:"est_x"`
	EstY        float64 `json:"est_y"`
	EstHeading  float64 `json:"est_heading"`
	CovTrace    float64 `json:"cov_trace"`
	Landmarks   int     `json:"landmarks"`
}

// PositionError is the distance between the true and estimated positions.
func (p PoseRecord) PositionError() float64 {
	return math.Hypot(p.TrueX-p.EstX, p.TrueY-p.EstY)
}

// ReplanRecord is one planner invocation.
type ReplanRecord struct {
	Tick   uint64  `json:"tick"`
	Cells  int     `json:"cells"`
	Length float64 `json:"length"`
	OK     bool    `json:"ok"`
}

// CreateRun inserts a new run and returns its id.
func (s *Store) CreateRun(ctx context.Context, info RunInfo) (string, error) {
	id := uuid.NewString()
	cfg := info.ConfigJSON
	if cfg == "" {
		cfg = "{}"
	}
	_, err := s.ExecContext(ctx,
		`INSERT INTO runs (run_id, scene, fitter, seed, config_json, started_unix_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, info.Scene, info.Fitter, info.Seed, cfg, s.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// RecordPose stores one tick. Recording the same tick twice replaces it.
func (s *Store) RecordPose(ctx context.Context, runID string, p PoseRecord) error {
	_, err := s.ExecContext(ctx,
		`INSERT OR REPLACE INTO poses (
			run_id, tick, sim_time_s, true_x, true_y, true_heading,
			est_x, est_y, est_heading, cov_trace, landmarks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(p.Tick), p.SimTime, p.TrueX, p.TrueY, p.TrueHeading,
		p.EstX, p.EstY, p.EstHeading, p.CovTrace, p.Landmarks)
	if err != nil {
		return fmt.Errorf("failed to record pose for tick %d: %w", p.Tick, err)
	}
	return nil
}

// RecordReplan stores one planner result.
func (s *Store) RecordReplan(ctx context.Context, runID string, r ReplanRecord) error {
	_, err := s.ExecContext(ctx,
		`INSERT OR REPLACE INTO replans (run_id, tick, cells, path_length, ok)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, int64(r.Tick), r.Cells, r.Length, r.OK)
	if err != nil {
		return fmt.Errorf("failed to record replan for tick %d: %w", r.Tick, err)
	}
	return nil
}

// FinishRun stamps the end of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, ticks uint64, reachedGoal bool) error {
	res, err := s.ExecContext(ctx,
		`UPDATE runs SET finished_unix_ms = ?, ticks = ?, reached_goal = ? WHERE run_id = ?`,
		s.now().UnixMilli(), int64(ticks), reachedGoal, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `run_id, scene, fitter, seed, config_json, started_unix_ms, finished_unix_ms, ticks, reached_goal`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
		ticks    int64
	)
	if err := row.Scan(&r.ID, &r.Scene, &r.Fitter, &r.Seed, &r.ConfigJSON, &started, &finished, &ticks, &r.ReachedGoal); err != nil {
		return nil, err
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		r.FinishedAt = &t
	}
	r.Ticks = uint64(ticks)
	return &r, nil
}

// GetRun returns the run with id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_unix_ms DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// ListPoses returns every recorded tick of a run in order.
func (s *Store) ListPoses(ctx context.Context, runID string) ([]PoseRecord, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT tick, sim_time_s, true_x, true_y, true_heading, est_x, est_y, est_heading, cov_trace, landmarks
		 FROM poses WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list poses: %w", err)
	}
	defer rows.Close()

	var out []PoseRecord
	for rows.Next() {
		var p PoseRecord
		var tick int64
		if err := rows.Scan(&tick, &p.SimTime, &p.TrueX, &p.TrueY, &p.TrueHeading,
			&p.EstX, &p.EstY, &p.EstHeading, &p.CovTrace, &p.Landmarks); err != nil {
			return nil, fmt.Errorf("failed to scan pose: %w", err)
		}
		p.Tick = uint64(tick)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListReplans returns the planner history of a run in order.
func (s *Store) ListReplans(ctx context.Context, runID string) ([]ReplanRecord, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT tick, cells, path_length, ok FROM replans WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list replans: %w", err)
	}
	defer rows.Close()

	var out []ReplanRecord
	for rows.Next() {
		var r ReplanRecord
		var tick int64
		if err := rows.Scan(&tick, &r.Cells, &r.Length, &r.OK); err != nil {
			return nil, fmt.Errorf("failed to scan replan: %w", err)
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ErrorSummary aggregates the localisation error of a run.
type ErrorSummary struct {
	Samples      int     `json:"samples"`
	MeanError    float64 `json:"mean_error"`
	RMSE         float64 `json:"rmse"`
	MaxError     float64 `json:"max_error"`
	FinalError   float64 `json:"final_error"`
	HeadingRMSE  float64 `json:"heading_rmse"`
	MeanCovTrace float64 `json:"mean_cov_trace"`
}

// ErrorSummary computes the localisation error statistics of a run. A run
// without poses yields a zero summary.
func (s *Store) ErrorSummary(ctx context.Context, runID string) (ErrorSummary, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return ErrorSummary{}, err
	}
	poses, err := s.ListPoses(ctx, runID)
	if err != nil {
		return ErrorSummary{}, err
	}
	return Summarise(poses), nil
}

// Summarise computes error statistics over poses.
func Summarise(poses []PoseRecord) ErrorSummary {
	if len(poses) == 0 {
		return ErrorSummary{}
	}
	pos := make([]float64, len(poses))
	heading := make([]float64, len(poses))
	trace := make([]float64, len(poses))
	for i, p := range poses {
		pos[i] = p.PositionError()
		heading[i] = geom.WrapAngle(p.EstHeading - p.TrueHeading)
		trace[i] = p.CovTrace
	}
	n := float64(len(poses))
	return ErrorSummary{
		Samples:      len(poses),
		MeanError:    stat.Mean(pos, nil),
		RMSE:         math.Sqrt(floats.Dot(pos, pos) / n),
		MaxError:     floats.Max(pos),
		FinalError:   pos[len(pos)-1],
		HeadingRMSE:  math.Sqrt(floats.Dot(heading, heading) / n),
		MeanCovTrace: stat.Mean(trace, nil),
	}
}
