package monitor

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/slamsim/internal/httputil"
	"github.com/banshee-data/slamsim/internal/version"
)

// Client drives a running monitor over HTTP.
type Client struct {
	HTTPClient httputil.HTTPClient
	BaseURL    string
}

// NewClient creates a monitor client. A nil httpClient gets a 30s timeout
// client.
func NewClient(httpClient httputil.HTTPClient, baseURL string) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second})
	}
	return &Client{HTTPClient: httpClient, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Client) url(path string) string { return c.BaseURL + path }

// State fetches the latest frame and grid snapshot.
func (c *Client) State(ctx context.Context) (State, error) {
	var st State
	err := httputil.DoJSON(ctx, c.HTTPClient, http.MethodGet, c.url("/api/state"), nil, &st)
	return st, err
}

// History fetches the sample ring.
func (c *Client) History(ctx context.Context) ([]Sample, error) {
	var out []Sample
	err := httputil.DoJSON(ctx, c.HTTPClient, http.MethodGet, c.url("/api/history"), nil, &out)
	return out, err
}

// Version fetches the server build metadata.
func (c *Client) Version(ctx context.Context) (version.Info, error) {
	var info version.Info
	err := httputil.DoJSON(ctx, c.HTTPClient, http.MethodGet, c.url("/api/version"), nil, &info)
	return info, err
}

// SetPaused pauses or resumes the simulation.
func (c *Client) SetPaused(ctx context.Context, paused bool) error {
	return httputil.DoJSON(ctx, c.HTTPClient, http.MethodPost, c.url("/api/pause"), PauseRequest{Paused: paused}, nil)
}

// SetFitter switches the extraction strategy.
func (c *Client) SetFitter(ctx context.Context, name string) error {
	return httputil.DoJSON(ctx, c.HTTPClient, http.MethodPost, c.url("/api/fitter"), FitterRequest{Name: name}, nil)
}

// SetGoal moves the goal.
func (c *Client) SetGoal(ctx context.Context, x, y float64) error {
	return httputil.DoJSON(ctx, c.HTTPClient, http.MethodPost, c.url("/api/goal"), GoalRequest{X: x, Y: y}, nil)
}
