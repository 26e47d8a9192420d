package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- StandardClient ---

func TestNewStandardClient(t *testing.T) {
	t.Parallel()

	custom := &http.Client{}
	assert.Same(t, custom, NewStandardClient(custom).Client)
	assert.Same(t, http.DefaultClient, NewStandardClient(nil).Client)
}

func TestDoJSONAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Paused bool `json:"paused"`
		}
		if err := DecodeJSON(r, &in); err != nil {
			BadRequest(w, err.Error())
			return
		}
		WriteJSONOK(w, map[string]bool{"paused": in.Paused})
	}))
	defer srv.Close()

	c := NewStandardClient(srv.Client())
	var out map[string]bool
	require.NoError(t, DoJSON(context.Background(), c, http.MethodPost, srv.URL, map[string]bool{"paused": true}, &out))
	assert.True(t, out["paused"])

	err := DoJSON(context.Background(), c, http.MethodPost, srv.URL, map[string]int{"other": 1}, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Contains(t, se.Message, "unknown field")
}

// --- MockHTTPClient ---

func TestMockHTTPClientQueue(t *testing.T) {
	t.Parallel()

	mock := NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"tick": 7}`).
		AddResponse(http.StatusNotFound, `{"error": "no such run"}`).
		AddErrorResponse(errors.New("connection refused"))

	var out struct {
		Tick int `json:"tick"`
	}
	require.NoError(t, DoJSON(context.Background(), mock, http.MethodGet, "http://x/api/state", nil, &out))
	assert.Equal(t, 7, out.Tick)

	err := DoJSON(context.Background(), mock, http.MethodPost, "http://x/api/goal", map[string]float64{"x": 1}, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "http status 404: no such run", se.Error())

	err = DoJSON(context.Background(), mock, http.MethodGet, "http://x/api/state", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	// Exhausted queue answers 200.
	require.NoError(t, DoJSON(context.Background(), mock, http.MethodGet, "http://x/api/state", nil, nil))

	assert.Equal(t, 4, mock.RequestCount())
	req, body := mock.Request(1)
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"x": 1}`, body)

	req, _ = mock.Request(9)
	assert.Nil(t, req)
}

func TestStatusErrorWithoutMessage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "http status 502", (&StatusError{Code: 502}).Error())
}
