package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/openfroyo/fwgen/pkg/components"
	"github.com/openfroyo/fwgen/pkg/engine"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	return m
}

func TestMetricsObserver(t *testing.T) {
	m := newTestMetrics(t)

	m.BuildStarted()
	m.BuildStarted()
	if got := testutil.ToFloat64(m.activeBuilds); got != 2 {
		t.Fatalf("Expected 2 active builds, got: %v", got)
	}

	m.ComponentRegistered("esp32", time.Millisecond)
	m.ComponentRegistered("esp32", time.Millisecond)
	m.ConfigErrorRecorded(engine.KindMissingDependency)
	m.BuildFinished(engine.BuildStatusSucceeded, 10*time.Millisecond)
	m.BuildFinished(engine.BuildStatusFailed, 5*time.Millisecond)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"started", testutil.ToFloat64(m.buildsStarted), 2},
		{"succeeded", testutil.ToFloat64(m.buildsFinished.WithLabelValues("succeeded")), 1},
		{"failed", testutil.ToFloat64(m.buildsFinished.WithLabelValues("failed")), 1},
		{"active", testutil.ToFloat64(m.activeBuilds), 0},
		{"registrations", testutil.ToFloat64(m.registrations.WithLabelValues("esp32")), 2},
		{"errors", testutil.ToFloat64(m.configErrors.WithLabelValues("missing_dependency")), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("Expected %v, got: %v", tt.want, tt.got)
			}
		})
	}
}

func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// None of these may panic.
	m.BuildStarted()
	m.BuildFinished(engine.BuildStatusSucceeded, time.Second)
	m.ComponentRegistered("esp32", time.Second)
	m.ConfigErrorRecorded(engine.KindInvalidValue)

	if m.Registry() != nil {
		t.Fatal("Expected nil registry when disabled")
	}
	if err := m.WriteToTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("Expected no-op textfile write, got: %v", err)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got: %d", rec.Code)
	}
}

func TestMetricsFromBuild(t *testing.T) {
	registry, err := components.NewRegistry()
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}
	m := newTestMetrics(t)
	builder := engine.NewBuilder(registry, zerolog.Nop()).WithObserver(m)

	ok := engine.NewRawConfig("ok.yaml").Add("esp32", engine.Options{"board": "devkit"})
	if _, err := builder.Build(context.Background(), ok); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	bad := engine.NewRawConfig("bad.yaml").Add("wifi", engine.Options{"ssid": "home"})
	if _, err := builder.Build(context.Background(), bad); err == nil {
		t.Fatal("Expected build without esp32 to fail")
	}

	if got := testutil.ToFloat64(m.buildsFinished.WithLabelValues("succeeded")); got != 1 {
		t.Errorf("Expected 1 succeeded build, got: %v", got)
	}
	if got := testutil.ToFloat64(m.buildsFinished.WithLabelValues("failed")); got != 1 {
		t.Errorf("Expected 1 failed build, got: %v", got)
	}
	if got := testutil.ToFloat64(m.registrations.WithLabelValues("esp32")); got != 1 {
		t.Errorf("Expected esp32 to be registered once, got: %v", got)
	}
	if got := testutil.ToFloat64(m.configErrors.WithLabelValues("missing_dependency")); got < 1 {
		t.Errorf("Expected a missing_dependency error, got: %v", got)
	}
}

func TestWriteToTextfile(t *testing.T) {
	m := newTestMetrics(t)
	m.BuildStarted()
	m.BuildFinished(engine.BuildStatusSucceeded, time.Millisecond)

	path := filepath.Join(t.TempDir(), "fwgen.prom")
	if err := m.WriteToTextfile(path); err != nil {
		t.Fatalf("Failed to write textfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), `fwgen_builds_finished_total{status="succeeded"} 1`) {
		t.Fatalf("Expected finished counter in textfile, got:\n%s", data)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := newTestMetrics(t)
	m.BuildStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "fwgen_builds_started_total 1") {
		t.Fatalf("Expected started counter, got:\n%s", rec.Body.String())
	}
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(2 * time.Millisecond)
	if timer.Duration() < 2*time.Millisecond {
		t.Fatalf("Expected at least 2ms, got: %v", timer.Duration())
	}
}
