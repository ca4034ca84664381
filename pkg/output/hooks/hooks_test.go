package hooks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/hosterrors"
	"github.com/waftester/wpscout/pkg/output/dispatcher"
	"github.com/waftester/wpscout/pkg/output/events"
)

func lifecycle() []events.Event {
	return []events.Event{
		events.NewStart("scan-1", "https://example.com", "safe", 2),
		events.NewPhase("scan-1", "headers", "Security headers", 1, 1, 1500*time.Millisecond, nil),
		events.NewPhase("scan-1", "users", "User enumeration", 0, 0, 200*time.Millisecond, errors.New("boom")),
		events.NewFinding("scan-1", finding.Finding{Code: "WPS-050", Title: "Missing HSTS", Severity: finding.Low}),
		events.NewFinding("scan-1", finding.Finding{Code: "WPS-030", Title: "Backup", Severity: finding.Critical}),
		events.NewComplete("scan-1", "completed", finding.Summary{Critical: 1, Low: 1, Total: 2}, 9, 3*time.Second, nil),
	}
}

func TestLoggerHook(t *testing.T) {
	var buf bytes.Buffer
	hook := NewLoggerHook(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	for _, e := range lifecycle() {
		require.NoError(t, hook.OnEvent(context.Background(), e))
	}

	out := buf.String()
	assert.Contains(t, out, `"msg":"scan started"`)
	assert.Contains(t, out, `"msg":"phase failed"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"code":"WPS-030"`)
	assert.Contains(t, out, `"msg":"scan complete"`)
	assert.Equal(t, 6, strings.Count(out, `"scan_id":"scan-1"`))
}

func TestPrometheusHook_Events(t *testing.T) {
	hook, err := NewPrometheusHook(PrometheusOptions{NoServer: true})
	require.NoError(t, err)
	defer hook.Close()

	d := dispatcher.New(nil)
	d.RegisterHook(hook)
	for _, e := range lifecycle() {
		d.Dispatch(context.Background(), e)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(hook.findingsTotal.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.findingsTotal.WithLabelValues("low")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.scansTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.phaseFailuresTotal.WithLabelValues("users")))
	assert.Equal(t, 3.0, testutil.ToFloat64(hook.scanDurationSeconds))
	assert.Equal(t, "", hook.MetricsAddr())
}

func TestPrometheusHook_ObserveProbe(t *testing.T) {
	hook, err := NewPrometheusHook(PrometheusOptions{NoServer: true})
	require.NoError(t, err)

	hook.ObserveProbe(http.MethodGet, 200, "", 30*time.Millisecond)
	hook.ObserveProbe(http.MethodGet, 200, "", 40*time.Millisecond)
	hook.ObserveProbe(http.MethodGet, 404, "", 10*time.Millisecond)
	hook.ObserveProbe(http.MethodHead, 0, hosterrors.KindTimeout, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(hook.requestsTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.requestsTotal.WithLabelValues("HEAD", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.requestErrorsTotal.WithLabelValues("timeout")))

	rec := httptest.NewRecorder()
	hook.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `wpscout_requests_total{code="404",method="GET"} 1`)
	assert.Contains(t, rec.Body.String(), "wpscout_response_time_seconds_bucket")
}

func TestPrometheusHook_Serves(t *testing.T) {
	hook, err := NewPrometheusHook(PrometheusOptions{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer hook.Close()

	hook.ObserveProbe(http.MethodGet, 200, "", time.Millisecond)

	resp, err := http.Get(hook.MetricsAddr())
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "wpscout_requests_total")

	require.NoError(t, hook.Close())
	require.NoError(t, hook.Close())
}

func TestPrometheusHook_AddrInUse(t *testing.T) {
	first, err := NewPrometheusHook(PrometheusOptions{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer first.Close()

	addr := strings.TrimSuffix(strings.TrimPrefix(first.MetricsAddr(), "http://"), "/metrics")
	_, err = NewPrometheusHook(PrometheusOptions{Addr: addr})
	assert.Error(t, err)
}

func TestOTelHook_RecordsOnScanSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	hook := NewOTelHookWithProvider(OTelOptions{}, tp)
	assert.Equal(t, "wpscout", hook.ServiceName())
	assert.Equal(t, "localhost:4317", hook.Endpoint())

	ctx, span := tp.Tracer("test").Start(context.Background(), "scan")
	for _, e := range lifecycle() {
		require.NoError(t, hook.OnEvent(ctx, e))
	}
	span.End()

	// No span in context: ignored.
	require.NoError(t, hook.OnEvent(context.Background(), lifecycle()[0]))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, codes.Ok, s.Status().Code)

	var names []string
	for _, ev := range s.Events() {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"phase_complete", "phase_complete", "finding", "finding"}, names)

	attrs := map[string]string{}
	for _, kv := range s.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "https://example.com", attrs["wpscout.target"])
	assert.Equal(t, "completed", attrs["wpscout.status"])

	require.NoError(t, hook.Close())
	require.NoError(t, hook.Close())
}

func TestOTelHook_FailedScanSetsErrorStatus(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	hook := NewOTelHookWithProvider(OTelOptions{}, tp)
	defer hook.Close()

	ctx, span := tp.Tracer("test").Start(context.Background(), "scan")
	ev := events.NewComplete("s", "failed", finding.Summary{}, 1, time.Second, errors.New("dns failure"))
	require.NoError(t, hook.OnEvent(ctx, ev))
	span.End()

	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, codes.Error, rec.Ended()[0].Status().Code)
	assert.Equal(t, "dns failure", rec.Ended()[0].Status().Description)
}

func TestNewOTelHook_LazyConnect(t *testing.T) {
	hook, err := NewOTelHook(OTelOptions{
		Endpoint:        "127.0.0.1:1",
		Insecure:        true,
		ShutdownTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1", hook.Endpoint())
	_ = hook.Close()
}
