package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/bumper/internal/relay"
)

func TestMetrics_Observers(t *testing.T) {
	m := New()

	m.RelayCompleted(relay.Completion{Outcome: relay.OutcomeOK, Latency: 20 * time.Millisecond})
	m.RelayCompleted(relay.Completion{Outcome: relay.OutcomeTimeout, Latency: 10 * time.Second})
	m.RelayCompleted(relay.Completion{Outcome: relay.OutcomeOK})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.relayTotal.WithLabelValues(relay.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayTotal.WithLabelValues(relay.OutcomeTimeout)))

	m.TokenIssued()
	m.TokensRevoked("expired", 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokensIssued))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tokensRevoked.WithLabelValues("expired")))

	m.SweepTaskCompleted("tokens", 2, nil)
	m.SweepTaskCompleted("tokens", 0, errors.New("locked"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepRuns.WithLabelValues("tokens", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepRuns.WithLabelValues("tokens", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sweepRemoved.WithLabelValues("tokens")))

	m.ObserveHTTP("/lookup.do", "POST", 200, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/lookup.do", "POST", "200")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	require.NoError(t, m.RegisterGauge("relay", "pending", "Outstanding relayed commands", func() float64 { return 4 }))
	assert.Error(t, m.RegisterGauge("relay", "pending", "duplicate", func() float64 { return 0 }))

	m.TokenIssued()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bumper_relay_pending 4")
	assert.Contains(t, string(body), "bumper_auth_tokens_issued_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
