package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang/geo/r2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/slamsim/internal/config"
	"github.com/banshee-data/slamsim/internal/fsutil"
	"github.com/banshee-data/slamsim/internal/monitor"
	"github.com/banshee-data/slamsim/internal/monitoring"
	"github.com/banshee-data/slamsim/internal/pipeline"
	"github.com/banshee-data/slamsim/internal/scene"
	"github.com/banshee-data/slamsim/internal/storage/sqlite"
	"github.com/banshee-data/slamsim/internal/visualiser"
)

// loadTuning reads the config file (or the built-in defaults) and applies
// the flag overrides.
func loadTuning(o options) (*config.TuningConfig, error) {
	cfg := config.DefaultTuningConfig()
	if o.configPath != "" {
		loaded, err := config.LoadTuningConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.extractor != "" {
		name := o.extractor
		cfg.Fitter = &name
	}
	if o.seedSet {
		seed := o.seed
		cfg.Seed = &seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, o options) (err error) {
	fsys := fsutil.OSFileSystem{}
	cfg, err := loadTuning(o)
	if err != nil {
		return err
	}
	sc, err := scene.Resolve(fsys, o.sceneName)
	if err != nil {
		return err
	}

	historySize := monitor.DefaultHistorySize
	if o.headless && o.maxTicks > historySize {
		historySize = o.maxTicks
	}
	history := monitor.NewHistory(historySize)
	observers := []pipeline.Observer{history}

	var store *sqlite.Store
	var rec *sqlite.Recorder
	if o.dbPath != "" {
		store, err = sqlite.Open(o.dbPath)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, store.Close()) }()

		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		rec, err = sqlite.NewRecorder(ctx, store, sqlite.RunInfo{
			Scene:      sc.Name,
			Fitter:     cfg.GetFitter(),
			Seed:       cfg.GetSeed(),
			ConfigJSON: string(cfgJSON),
		})
		if err != nil {
			return err
		}
		observers = append(observers, rec)
		monitoring.Logf("slamsim: recording run %s to %s", rec.RunID(), o.dbPath)
	}

	var pub *visualiser.Publisher
	if o.grpcListen != "" && !o.headless {
		vc := visualiser.DefaultConfig()
		vc.ListenAddr = o.grpcListen
		pub = visualiser.NewPublisher(vc)
		observers = append(observers, pub)
	}

	p, err := pipeline.New(pipeline.Options{Tuning: cfg, Scene: sc, Observers: observers})
	if err != nil {
		return err
	}
	if o.goalSet {
		p.SetGoal(r2.Point{X: o.goalX, Y: o.goalY})
	}
	monitoring.Logf("slamsim: scene=%s fitter=%s seed=%d", sc.Name, cfg.GetFitter(), cfg.GetSeed())

	if o.headless {
		p.RunUntil(ctx, o.maxTicks)
	} else if err := runLive(ctx, o, p, history, store, pub); err != nil {
		return err
	}

	return finish(o, p, history, store, rec)
}

// runLive runs the pipeline on wall-clock tickers beside the monitor and the
// visualiser until ctx is done or -duration elapses.
func runLive(ctx context.Context, o options, p *pipeline.Pipeline, history *monitor.History, store *sqlite.Store, pub *visualiser.Publisher) error {
	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(ctx) })

	if o.listen != "" {
		srv := monitor.NewServer(monitor.Config{Address: o.listen, Pipeline: p, History: history})
		if store != nil {
			if err := store.AttachAdminRoutes(srv.Mux()); err != nil {
				return err
			}
		}
		g.Go(func() error { return srv.Start(ctx) })
	}
	if pub != nil {
		g.Go(func() error { return pub.ListenAndServe(ctx) })
	}
	return g.Wait()
}

// finish stamps the recorded run, logs the outcome and writes the plot.
func finish(o options, p *pipeline.Pipeline, history *monitor.History, store *sqlite.Store, rec *sqlite.Recorder) error {
	ctx := context.Background()
	f := p.Latest()
	monitoring.Logf("slamsim: stopped at tick %d at_goal=%v landmarks=%d position_error=%.3f",
		f.Tick, f.AtGoal, len(f.Landmarks), f.PositionError())

	var err error
	if rec != nil {
		if ferr := rec.Finish(ctx); ferr != nil {
			err = multierr.Append(err, ferr)
		} else if sum, serr := store.ErrorSummary(ctx, rec.RunID()); serr != nil {
			err = multierr.Append(err, serr)
		} else {
			monitoring.Logf("slamsim: run %s frames=%d rmse=%.3f max=%.3f heading_rmse=%.4f write_failures=%d",
				rec.RunID(), rec.Frames(), sum.RMSE, sum.MaxError, sum.HeadingRMSE, rec.Failures())
		}
	}
	if o.plotPath != "" {
		plotter := monitor.NewTrajectoryPlotter(p.Scene().Walls)
		if perr := plotter.Save(fsutil.OSFileSystem{}, o.plotPath, history.Samples(), f); perr != nil {
			err = multierr.Append(err, perr)
		} else {
			monitoring.Logf("slamsim: wrote %s", o.plotPath)
		}
	}
	return err
}
