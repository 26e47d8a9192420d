// Command slamsim runs the robot simulation: EKF-SLAM over a simulated laser,
// occupancy-grid planning and waypoint control, with an HTTP monitor, an
// optional gRPC frame stream and an optional sqlite run recorder.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/slamsim/internal/features"
	"github.com/banshee-data/slamsim/internal/monitoring"
	"github.com/banshee-data/slamsim/internal/scene"
	"github.com/banshee-data/slamsim/internal/version"
)

type options struct {
	configPath string
	sceneName  string
	goalX      float64
	goalY      float64
	goalSet    bool
	extractor  string
	seed       int64
	seedSet    bool
	duration   time.Duration
	headless   bool
	maxTicks   int
	dbPath     string
	listen     string
	grpcListen string
	plotPath   string
	debug      bool
	version    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("slamsim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Tuning config JSON (defaults built in)")
	fs.StringVar(&o.sceneName, "scene", "square_room", fmt.Sprintf("Built-in scene %v or a .json scene file", scene.Names()))
	fs.Float64Var(&o.goalX, "goal-x", 0, "Goal X in world coordinates (overrides the scene goal)")
	fs.Float64Var(&o.goalY, "goal-y", 0, "Goal Y in world coordinates (overrides the scene goal)")
	fs.StringVar(&o.extractor, "extractor", "", "Feature extractor: iep, ransac or ransac-ls (overrides config)")
	fs.Int64Var(&o.seed, "seed", 0, "Random seed (overrides config)")
	fs.DurationVar(&o.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	fs.BoolVar(&o.headless, "headless", false, "Step the simulation as fast as possible until the goal or -max-ticks")
	fs.IntVar(&o.maxTicks, "max-ticks", 6000, "Tick limit for -headless")
	fs.StringVar(&o.dbPath, "db", "", "Record the run to this sqlite file")
	fs.StringVar(&o.listen, "listen", ":8090", "Monitor HTTP listen address (empty disables)")
	fs.StringVar(&o.grpcListen, "grpc-listen", "", "Visualiser gRPC listen address (empty disables)")
	fs.StringVar(&o.plotPath, "plot", "", "Write a trajectory PNG here on exit")
	fs.BoolVar(&o.debug, "debug", false, "Development logging")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "goal-x", "goal-y":
			o.goalSet = true
		case "seed":
			o.seedSet = true
		}
	})

	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if o.extractor != "" {
		if _, err := features.NewRunFitter(o.extractor, features.DefaultConfig(), 0); err != nil {
			return o, err
		}
	}
	if o.headless && o.maxTicks <= 0 {
		return o, errors.New("-max-ticks must be positive")
	}
	if o.duration < 0 {
		return o, errors.New("-duration must not be negative")
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if o.version {
		fmt.Println(version.String())
		return
	}

	logger, err := monitoring.NewLogger(o.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	monitoring.UseZap(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o); err != nil {
		logger.Sugar().Errorf("slamsim: %v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}
