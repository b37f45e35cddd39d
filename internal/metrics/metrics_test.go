package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vaxsim/internal/calibration"
)

var _ calibration.Metrics = (*Calibration)(nil)

func TestCalibrationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCalibration(reg)

	m.ObserveTrial("accepted", 10*time.Millisecond)
	m.ObserveTrial("rejected", 20*time.Millisecond)
	m.ObserveTrial("rejected", 5*time.Millisecond)
	m.SetAccepted(1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Trials.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Trials.WithLabelValues("rejected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Trials.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Accepted))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Duration))
}

func TestNewCalibration_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCalibration(reg)
	assert.Panics(t, func() { NewCalibration(reg) })
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCalibration(reg)
	m.ObserveTrial("accepted", time.Millisecond)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `vaxsim_calibration_trials_total{outcome="accepted"} 1`)
}
