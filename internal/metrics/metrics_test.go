package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/metrics"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.SessionIssued()
	m.Lifecycle("rotated")
	m.HTTP("GET", "/x", 200, time.Millisecond)
	m.RealtimeConnections(1)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := metrics.New()
	m.SessionIssued()
	m.Lifecycle("revoked")
	m.Message("valid")

	n, err := testutil.GatherAndCount(m.Registry(), "cipherlink_kdc_sessions_issued_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `cipherlink_lifecycle_transitions_total{type="revoked"} 1`))
	assert.True(t, strings.Contains(body, `cipherlink_relay_messages_total{signature="valid"} 1`))
}
