// Package metrics exposes the node's loop counters to Prometheus.
//
// All recording methods are safe to call on a nil *Metrics, so components
// can be constructed without metrics in tests.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graylogic_node"

// Connection layers reported by Reconnect and SetConnected.
const (
	LayerNetwork   = "network"
	LayerMessaging = "messaging"
)

// shutdownTimeout bounds the metrics listener shutdown.
const shutdownTimeout = 2 * time.Second

// healthTimeout bounds one /healthz request across every check.
const healthTimeout = 5 * time.Second

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check HealthCheck
}

// Metrics holds the node's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	publishFailed  prometheus.Counter
	commands       *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	connected      *prometheus.GaugeVec
	mirrorFailures prometheus.Counter

	checksMu sync.RWMutex
	checks   []namedCheck
}

// New creates and registers the node collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_cycles_total",
			Help:      "Sensor publish cycles by result (ok, partial, skipped).",
		}, []string{"result"}),
		publishFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_failed_total",
			Help:      "Individual MQTT publishes that returned an error.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands received on the command channel by kind.",
		}, []string{"kind"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Successful (re)connections by layer.",
		}, []string{"layer"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 when the layer is connected.",
		}, []string{"layer"}),
		mirrorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_failures_total",
			Help:      "Readings the telemetry mirror failed to write.",
		}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.publishFailed,
		m.commands,
		m.reconnects,
		m.connected,
		m.mirrorFailures,
		collectors.NewGoCollector(),
	)

	return m
}

// CycleOK records a reading published on every channel.
func (m *Metrics) CycleOK() {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues("ok").Inc()
}

// CyclePartial records a reading where at least one channel publish failed.
func (m *Metrics) CyclePartial() {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues("partial").Inc()
}

// CycleSkipped records a cycle dropped because a sensor read failed.
func (m *Metrics) CycleSkipped() {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues("skipped").Inc()
}

// PublishFailed records a failed publish.
func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailed.Inc()
}

// Command records a received command by kind.
func (m *Metrics) Command(kind string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind).Inc()
}

// Reconnect records a successful connection on layer.
func (m *Metrics) Reconnect(layer string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(layer).Inc()
}

// SetConnected sets the connection gauge for layer.
func (m *Metrics) SetConnected(layer string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.connected.WithLabelValues(layer).Set(v)
}

// MirrorFailed records a failed telemetry mirror write.
func (m *Metrics) MirrorFailed() {
	if m == nil {
		return
	}
	m.mirrorFailures.Inc()
}

// TrackBreaker exports a circuit breaker as graylogic_node_breaker_open{name},
// 1 while state reports "open".
func (m *Metrics) TrackBreaker(name string, state func() string) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "breaker_open",
		Help:        "1 while the named circuit breaker is open.",
		ConstLabels: prometheus.Labels{"name": name},
	}, func() float64 {
		if state() == "open" {
			return 1
		}
		return 0
	}))
}

// AddHealthCheck registers check under name for the /healthz route.
func (m *Metrics) AddHealthCheck(name string, check HealthCheck) {
	if m == nil {
		return
	}
	m.checksMu.Lock()
	m.checks = append(m.checks, namedCheck{name: name, check: check})
	m.checksMu.Unlock()
}

// healthResponse is the /healthz body.
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthHandler runs every registered check and answers 200 when all pass,
// 503 otherwise.
func (m *Metrics) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		m.checksMu.RLock()
		checks := make([]namedCheck, len(m.checks))
		copy(checks, m.checks)
		m.checksMu.RUnlock()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				resp.Checks[c.name] = err.Error()
				resp.Status = "unhealthy"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr until ctx is cancelled, serving /metrics and /healthz.
//
// Returns:
//   - nil on clean shutdown
//   - error if the listener fails to start or stops unexpectedly
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", m.HealthHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics listener: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics listener: %w", err)
		}
		return nil
	}
}
