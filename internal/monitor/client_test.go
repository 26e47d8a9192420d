package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/slamsim/internal/httputil"
	"github.com/banshee-data/slamsim/internal/version"
)

// --- against a live monitor ---

func TestClientAgainstServer(t *testing.T) {
	t.Parallel()
	p, s := newRig(t, 3)
	srv := httptest.NewServer(s)
	defer srv.Close()

	c := NewClient(httputil.NewStandardClient(srv.Client()), srv.URL+"/")
	ctx := context.Background()

	st, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Frame.Tick)

	samples, err := c.History(ctx)
	require.NoError(t, err)
	assert.Len(t, samples, 3)

	info, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.Current(), info)

	require.NoError(t, c.SetPaused(ctx, true))
	assert.True(t, p.Paused())
	require.NoError(t, c.SetPaused(ctx, false))
	assert.False(t, p.Paused())

	require.NoError(t, c.SetGoal(ctx, 40, 40))

	err = c.SetFitter(ctx, "nope")
	var se *httputil.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

// --- request shapes ---

func TestClientRequests(t *testing.T) {
	t.Parallel()

	mock := httputil.NewMockHTTPClient()
	c := NewClient(mock, "http://monitor:8090")
	ctx := context.Background()

	require.NoError(t, c.SetFitter(ctx, "ransac-ls"))
	require.NoError(t, c.SetGoal(ctx, 1.5, -2))

	req, body := mock.Request(0)
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://monitor:8090/api/fitter", req.URL.String())
	assert.JSONEq(t, `{"name": "ransac-ls"}`, body)

	req, body = mock.Request(1)
	require.NotNil(t, req)
	assert.Equal(t, "/api/goal", req.URL.Path)
	assert.JSONEq(t, `{"x": 1.5, "y": -2}`, body)
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, "http://localhost:8090")
	sc, ok := c.HTTPClient.(*httputil.StandardClient)
	require.True(t, ok)
	assert.NotZero(t, sc.Timeout)
}
