package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("probe", 200, time.Millisecond)
	m.Probe("skipped")
	m.Submission("staff", "succeeded")
	m.Encode("ok")
	require.Zero(t, m.SubmissionCount("staff", "succeeded"))
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Submission("staff", "succeeded")
	m.Submission("staff", "succeeded")
	m.ObserveRequest("create", 0, time.Millisecond)

	require.Equal(t, 2.0, m.SubmissionCount("staff", "succeeded"))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("create", "error")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	require.True(t, strings.Contains(string(body), "staffconsole_submissions_total"))
}
