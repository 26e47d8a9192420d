// Package testutil holds assertions and request helpers shared by the
// simulation, estimator and monitor tests.
package testutil

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/slamsim/internal/geom"
)

// TB is the part of testing.TB the assertions need.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
}

// AssertPointNear fails unless got lies within tol of want on both axes.
func AssertPointNear(t TB, want, got r2.Point, tol float64, msgAndArgs ...any) bool {
	t.Helper()
	ok := assert.InDelta(t, want.X, got.X, tol, msgAndArgs...)
	return assert.InDelta(t, want.Y, got.Y, tol, msgAndArgs...) && ok
}

// AssertPoseNear compares positions within posTol and headings within
// headingTol, measuring the heading difference across the ±pi seam.
func AssertPoseNear(t TB, want, got geom.Pose, posTol, headingTol float64, msgAndArgs ...any) bool {
	t.Helper()
	ok := AssertPointNear(t, want.Position(), got.Position(), posTol, msgAndArgs...)
	dh := math.Abs(geom.WrapAngle(got.Heading - want.Heading))
	if dh > headingTol {
		t.Errorf("heading %.6f differs from %.6f by %.6f (tolerance %.6f) %s",
			got.Heading, want.Heading, dh, headingTol, messageFrom(msgAndArgs))
		return false
	}
	return ok
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t TB, rec *httptest.ResponseRecorder, want int) bool {
	t.Helper()
	if rec.Code != want {
		t.Errorf("status code = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
		return false
	}
	return true
}

// Serve sends one request through h and returns the recorded response. An
// empty body sends no body at all.
func Serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func messageFrom(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return ""
	}
	if format, ok := msgAndArgs[0].(string); ok {
		if len(msgAndArgs) == 1 {
			return format
		}
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return ""
}
