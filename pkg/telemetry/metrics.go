package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/openfroyo/fwgen/pkg/engine"
)

var _ engine.BuildObserver = (*Metrics)(nil)

// Metrics provides Prometheus metrics for configuration builds. It
// implements engine.BuildObserver so a Builder reports into it directly.
type Metrics struct {
	config MetricsConfig

	// Build metrics
	buildsStarted  prometheus.Counter
	buildsFinished *prometheus.CounterVec
	buildDuration  *prometheus.HistogramVec
	activeBuilds   prometheus.Gauge

	// Registration metrics
	registrations        *prometheus.CounterVec
	registrationDuration *prometheus.HistogramVec

	// Error metrics
	configErrors *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		buildsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_started_total",
				Help:      "Total number of configuration builds started",
			},
		),
		buildsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_finished_total",
				Help:      "Total number of configuration builds finished",
			},
			[]string{"status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of configuration builds in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		activeBuilds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_builds",
				Help:      "Current number of builds in progress",
			},
		),

		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "component_registrations_total",
				Help:      "Total number of component registrations",
			},
			[]string{"component"},
		),
		registrationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "component_registration_duration_seconds",
				Help:      "Duration of component registration in seconds",
				Buckets:   buckets,
			},
			[]string{"component"},
		),

		configErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_errors_total",
				Help:      "Total number of configuration errors by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.buildsStarted,
		m.buildsFinished,
		m.buildDuration,
		m.activeBuilds,
		m.registrations,
		m.registrationDuration,
		m.configErrors,
	)

	return m, nil
}

// BuildStarted counts a started build.
func (m *Metrics) BuildStarted() {
	if m.buildsStarted == nil {
		return
	}
	m.buildsStarted.Inc()
	m.activeBuilds.Inc()
}

// BuildFinished records a finished build with its status and duration.
func (m *Metrics) BuildFinished(status engine.BuildStatus, duration time.Duration) {
	if m.buildsFinished == nil {
		return
	}
	m.buildsFinished.WithLabelValues(string(status)).Inc()
	m.buildDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
	m.activeBuilds.Dec()
}

// ComponentRegistered records one registration step.
func (m *Metrics) ComponentRegistered(component string, duration time.Duration) {
	if m.registrations == nil {
		return
	}
	m.registrations.WithLabelValues(component).Inc()
	m.registrationDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// ConfigErrorRecorded counts a configuration error by kind.
func (m *Metrics) ConfigErrorRecorded(kind engine.ErrorKind) {
	if m.configErrors == nil {
		return
	}
	m.configErrors.WithLabelValues(string(kind)).Inc()
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteToTextfile writes all metrics to path in the text exposition format.
// The file is written atomically so a collector never sees a partial file.
func (m *Metrics) WriteToTextfile(path string) error {
	if m.registry == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing metrics and stops it when
// ctx is done. It is a no-op when metrics are disabled or no listen address
// is configured.
func (m *Metrics) StartMetricsServer(ctx context.Context, logger zerolog.Logger) error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Log error but don't fail the application
			logger.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("address", m.config.ListenAddress).Str("path", path).Msg("Metrics server started")
	return nil
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}
