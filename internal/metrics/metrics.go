// Package metrics exposes calibration progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/vaxsim/internal/monitoring"
)

const namespace = "vaxsim"

// Calibration records trial outcomes of an ABC run.
type Calibration struct {
	Trials   *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Accepted prometheus.Gauge
}

// NewCalibration registers the calibration metrics on reg.
func NewCalibration(reg prometheus.Registerer) *Calibration {
	f := promauto.With(reg)
	return &Calibration{
		Trials: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calibration_trials_total",
				Help:      "Total number of simulated calibration trials by outcome",
			},
			[]string{"outcome"},
		),
		Duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "calibration_trial_duration_seconds",
				Help:      "Duration of one simulation trial in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"outcome"},
		),
		Accepted: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "calibration_accepted_samples",
				Help:      "Number of accepted samples in the current run",
			},
		),
	}
}

func (c *Calibration) ObserveTrial(outcome string, d time.Duration) {
	c.Trials.WithLabelValues(outcome).Inc()
	c.Duration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (c *Calibration) SetAccepted(n int) {
	c.Accepted.Set(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log monitoring.Logger) error {
	log = monitoring.OrNop(log)
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("serving metrics on %s/metrics", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("metrics server shutdown: %v", err)
		}
		return nil
	}
}
