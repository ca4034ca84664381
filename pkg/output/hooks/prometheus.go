package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waftester/wpscout/pkg/duration"
	"github.com/waftester/wpscout/pkg/hosterrors"
	"github.com/waftester/wpscout/pkg/output/dispatcher"
	"github.com/waftester/wpscout/pkg/output/events"
	"github.com/waftester/wpscout/pkg/probe"
)

// Compile-time interface checks.
var (
	_ dispatcher.Hook = (*PrometheusHook)(nil)
	_ probe.Observer  = (*PrometheusHook)(nil)
)

// PrometheusHook exposes scan metrics for Prometheus scraping. Scan
// lifecycle metrics come from events; request metrics come from the probe
// client, which the hook observes directly.
type PrometheusHook struct {
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry
	opts     PrometheusOptions
	logger   *slog.Logger

	requestsTotal       *prometheus.CounterVec
	requestErrorsTotal  *prometheus.CounterVec
	responseTimeSeconds *prometheus.HistogramVec
	findingsTotal       *prometheus.CounterVec
	phaseDuration       *prometheus.HistogramVec
	phaseFailuresTotal  *prometheus.CounterVec
	scansTotal          *prometheus.CounterVec
	scanDurationSeconds prometheus.Gauge

	mu     sync.Mutex
	closed bool
}

// PrometheusOptions configures the Prometheus hook.
type PrometheusOptions struct {
	// Addr is the listen address (default ":9090"). Use "127.0.0.1:0" for
	// an ephemeral port.
	Addr string

	// Path for the metrics endpoint (default "/metrics").
	Path string

	// NoServer registers the metrics without serving them.
	NoServer bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// NewPrometheusHook creates the hook and, unless NoServer is set, starts
// serving metrics. The listener is bound before returning, so an address
// in use is reported here.
func NewPrometheusHook(opts PrometheusOptions) (*PrometheusHook, error) {
	if opts.Addr == "" {
		opts.Addr = ":9090"
	}
	if opts.Path == "" {
		opts.Path = "/metrics"
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = duration.MetricsReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = duration.MetricsWriteTimeout
	}

	hook := &PrometheusHook{
		registry: prometheus.NewRegistry(),
		opts:     opts,
		logger:   orDefault(opts.Logger),
	}
	if err := hook.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if opts.NoServer {
		return hook, nil
	}
	if err := hook.startServer(); err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	return hook, nil
}

func (h *PrometheusHook) initMetrics() error {
	h.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpscout_requests_total",
			Help: "Total number of probes sent to the target",
		},
		[]string{"method", "code"},
	)
	h.requestErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpscout_request_errors_total",
			Help: "Probes that failed at the transport level, by kind",
		},
		[]string{"kind"},
	)
	h.responseTimeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wpscout_response_time_seconds",
			Help:    "Probe round trip time in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"method"},
	)
	h.findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpscout_findings_total",
			Help: "Findings reported, by severity",
		},
		[]string{"severity"},
	)
	h.phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wpscout_phase_duration_seconds",
			Help:    "Wall time of each scan phase in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"phase"},
	)
	h.phaseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpscout_phase_failures_total",
			Help: "Phases that failed internally",
		},
		[]string{"phase"},
	)
	h.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpscout_scans_total",
			Help: "Finished scans, by status",
		},
		[]string{"status"},
	)
	h.scanDurationSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wpscout_scan_duration_seconds",
		Help: "Duration of the last finished scan in seconds",
	})

	collectors := []prometheus.Collector{
		h.requestsTotal,
		h.requestErrorsTotal,
		h.responseTimeSeconds,
		h.findingsTotal,
		h.phaseDuration,
		h.phaseFailuresTotal,
		h.scansTotal,
		h.scanDurationSeconds,
	}
	for _, c := range collectors {
		if err := h.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (h *PrometheusHook) startServer() error {
	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return err
	}
	h.listener = ln

	mux := http.NewServeMux()
	mux.Handle(h.opts.Path, h.Handler())
	h.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  h.opts.ReadTimeout,
		WriteTimeout: h.opts.WriteTimeout,
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Handler returns the metrics handler for this hook's registry.
func (h *PrometheusHook) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the hook's private registry.
func (h *PrometheusHook) Registry() *prometheus.Registry { return h.registry }

// ObserveProbe records one probe. It is called concurrently by the probe
// client.
func (h *PrometheusHook) ObserveProbe(method string, status int, kind hosterrors.Kind, elapsed time.Duration) {
	code := "error"
	if kind == "" {
		code = strconv.Itoa(status)
	}
	h.requestsTotal.WithLabelValues(method, code).Inc()
	if kind != "" {
		h.requestErrorsTotal.WithLabelValues(string(kind)).Inc()
		return
	}
	h.responseTimeSeconds.WithLabelValues(method).Observe(elapsed.Seconds())
}

// EventTypes returns the event types this hook handles.
func (h *PrometheusHook) EventTypes() []events.EventType {
	return []events.EventType{
		events.EventTypePhase,
		events.EventTypeFinding,
		events.EventTypeComplete,
	}
}

// OnEvent updates the lifecycle metrics.
func (h *PrometheusHook) OnEvent(_ context.Context, event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	switch e := event.(type) {
	case *events.PhaseEvent:
		h.phaseDuration.WithLabelValues(e.Name).Observe(e.Duration.Seconds())
		if e.Failed() {
			h.phaseFailuresTotal.WithLabelValues(e.Name).Inc()
		}
	case *events.FindingEvent:
		h.findingsTotal.WithLabelValues(e.Finding.Severity.String()).Inc()
	case *events.CompleteEvent:
		h.scansTotal.WithLabelValues(e.Status).Inc()
		h.scanDurationSeconds.Set(e.Duration.Seconds())
	}
	return nil
}

// Close shuts down the metrics server.
func (h *PrometheusHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	if h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), duration.MetricsReadTimeout)
	defer cancel()
	return h.server.Shutdown(ctx)
}

// MetricsAddr returns the URL metrics are served at, or "" without a
// server.
func (h *PrometheusHook) MetricsAddr() string {
	if h.listener == nil {
		return ""
	}
	return "http://" + h.listener.Addr().String() + h.opts.Path
}
