// Command slamctl inspects and steers a running slamsim through its HTTP
// monitor.
//
//	slamctl [-monitor URL] state|history|version|pause|resume|fitter NAME|goal X Y
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/slamsim/internal/monitor"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr, nil); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run parses args and executes one command. A nil client talks to the
// -monitor URL.
func run(args []string, stdout, stderr io.Writer, client *monitor.Client) error {
	fs := flag.NewFlagSet("slamctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	monitorURL := fs.String("monitor", "http://localhost:8090", "Base URL of the slamsim monitor")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: slamctl [flags] state|history|version|pause|resume|fitter NAME|goal X Y")
	}
	if client == nil {
		client = monitor.NewClient(nil, *monitorURL)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "state":
		st, err := client.State(ctx)
		if err != nil {
			return err
		}
		f := st.Frame
		fmt.Fprintf(stdout, "scene=%s tick=%d paused=%v fitter=%s\n", st.Scene, f.Tick, f.Paused, f.Fitter)
		fmt.Fprintf(stdout, "true=(%.2f, %.2f, %.3f) est=(%.2f, %.2f, %.3f) error=%.3f\n",
			f.TruePose.X, f.TruePose.Y, f.TruePose.Heading, f.Estimate.X, f.Estimate.Y, f.Estimate.Heading, f.PositionError())
		fmt.Fprintf(stdout, "landmarks=%d plan_cells=%d at_goal=%v occupied=%d\n",
			len(f.Landmarks), f.PlanCells, f.AtGoal, len(st.Grid.Occupied))
		return nil
	case "history":
		samples, err := client.History(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(samples)
	case "version":
		info, err := client.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s (%s, built %s)\n", info.Version, info.GitSHA, info.BuildTime)
		return nil
	case "pause", "resume":
		return client.SetPaused(ctx, cmd == "pause")
	case "fitter":
		if len(rest) != 1 {
			return errors.New("usage: slamctl fitter NAME")
		}
		return client.SetFitter(ctx, rest[0])
	case "goal":
		if len(rest) != 2 {
			return errors.New("usage: slamctl goal X Y")
		}
		x, err := strconv.ParseFloat(rest[0], 64)
		if err != nil {
			return fmt.Errorf("invalid X %q: %w", rest[0], err)
		}
		y, err := strconv.ParseFloat(rest[1], 64)
		if err != nil {
			return fmt.Errorf("invalid Y %q: %w", rest[1], err)
		}
		return client.SetGoal(ctx, x, y)
	}
	return fmt.Errorf("unknown command %q", cmd)
}
