package visualiser

import (
	"github.com/golang/geo/r2"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/slamsim/internal/geom"
	"github.com/banshee-data/slamsim/internal/pipeline"
)

// StreamOptions selects what each streamed frame carries.
type StreamOptions struct {
	IncludeLandmarks   bool
	IncludePlan        bool
	IncludeObservation bool
	// Every sends one frame in Every. Values below 2 send all frames.
	Every int
}

// DefaultStreamOptions sends poses, landmarks and the plan on every tick.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{IncludeLandmarks: true, IncludePlan: true, Every: 1}
}

// ParseStreamOptions reads options from a request. Missing fields keep
// their defaults.
func ParseStreamOptions(req *structpb.Struct) StreamOptions {
	opts := DefaultStreamOptions()
	if req == nil {
		return opts
	}
	f := req.GetFields()
	if v, ok := f["include_landmarks"]; ok {
		opts.IncludeLandmarks = v.GetBoolValue()
	}
	if v, ok := f["include_plan"]; ok {
		opts.IncludePlan = v.GetBoolValue()
	}
	if v, ok := f["include_observation"]; ok {
		opts.IncludeObservation = v.GetBoolValue()
	}
	if v, ok := f["every"]; ok && v.GetNumberValue() >= 1 {
		opts.Every = int(v.GetNumberValue())
	}
	return opts
}

// Struct encodes the options as a request.
func (o StreamOptions) Struct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"include_landmarks":   o.IncludeLandmarks,
		"include_plan":        o.IncludePlan,
		"include_observation": o.IncludeObservation,
		"every":               o.Every,
	})
}

func pose(p geom.Pose) map[string]interface{} {
	return map[string]interface{}{"x": p.X, "y": p.Y, "heading": p.Heading}
}

func point(p r2.Point) []interface{} { return []interface{}{p.X, p.Y} }

// FrameToStruct encodes a frame for the wire.
func FrameToStruct(f pipeline.Frame, opts StreamOptions) (*structpb.Struct, error) {
	m := map[string]interface{}{
		"tick":           f.Tick,
		"sim_time_s":     f.SimTime.Seconds(),
		"paused":         f.Paused,
		"true_pose":      pose(f.TruePose),
		"estimate":       pose(f.Estimate),
		"position_error": f.PositionError(),
		"cov_trace":      f.CovarianceTrace(),
		"healthy":        f.Healthy,
		"command":        map[string]interface{}{"linear": f.Command.Linear, "angular": f.Command.Angular},
		"goal":           point(f.Goal),
		"at_goal":        f.AtGoal,
		"replanned":      f.Replanned,
		"fitter":         f.Fitter,
		"landmark_count": len(f.Landmarks),
	}

	if opts.IncludeLandmarks {
		lms := make([]interface{}, len(f.Landmarks))
		for i, lm := range f.Landmarks {
			lms[i] = map[string]interface{}{
				"id":  lm.ID,
				"x":   lm.Position.X,
				"y":   lm.Position.Y,
				"cov": []interface{}{lm.Cov[0][0], lm.Cov[0][1], lm.Cov[1][1]},
			}
		}
		m["landmarks"] = lms
	}

	if opts.IncludePlan {
		plan := make([]interface{}, len(f.Plan))
		for i, p := range f.Plan {
			plan[i] = point(p)
		}
		m["plan"] = plan
		m["milestone"] = f.Milestone
	}

	if opts.IncludeObservation && f.Scan {
		segs := make([]interface{}, len(f.Observation.Segments))
		for i, s := range f.Observation.Segments {
			segs[i] = []interface{}{s.A.X, s.A.Y, s.B.X, s.B.Y}
		}
		pts := make([]interface{}, len(f.Observation.Points))
		for i, p := range f.Observation.Points {
			pts[i] = point(p)
		}
		decisions := make([]interface{}, len(f.Decisions))
		for i, d := range f.Decisions {
			decisions[i] = d.String()
		}
		m["observation"] = map[string]interface{}{
			"segments":  segs,
			"points":    pts,
			"decisions": decisions,
		}
	}

	return structpb.NewStruct(m)
}
