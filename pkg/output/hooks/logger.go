// Package hooks provides dispatcher hooks that turn scan events into log
// records, Prometheus metrics and OpenTelemetry span events.
package hooks

import (
	"context"
	"log/slog"

	"github.com/waftester/wpscout/pkg/output/dispatcher"
	"github.com/waftester/wpscout/pkg/output/events"
)

// orDefault returns l if non-nil, otherwise slog.Default().
func orDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// LoggerHook writes one structured record per event.
type LoggerHook struct {
	logger *slog.Logger
}

var _ dispatcher.Hook = (*LoggerHook)(nil)

// NewLoggerHook returns a hook writing to l, or slog.Default() when nil.
func NewLoggerHook(l *slog.Logger) *LoggerHook {
	return &LoggerHook{logger: orDefault(l)}
}

// EventTypes returns nil to receive every event.
func (h *LoggerHook) EventTypes() []events.EventType { return nil }

// OnEvent logs the event.
func (h *LoggerHook) OnEvent(ctx context.Context, event events.Event) error {
	l := h.logger.With(slog.String("scan_id", event.ScanID()))
	switch e := event.(type) {
	case *events.StartEvent:
		l.InfoContext(ctx, "scan started",
			slog.String("target", e.Target),
			slog.String("mode", e.Mode),
			slog.Float64("rate", e.Rate))
	case *events.PhaseEvent:
		attrs := []any{
			slog.String("phase", e.Name),
			slog.Int("findings", e.Findings),
			slog.Int64("requests", e.Requests),
			slog.Duration("duration", e.Duration),
		}
		if e.Failed() {
			l.WarnContext(ctx, "phase failed", append(attrs, slog.String("error", e.Error))...)
			return nil
		}
		l.InfoContext(ctx, "phase complete", attrs...)
	case *events.FindingEvent:
		l.DebugContext(ctx, "finding",
			slog.String("code", e.Finding.Code),
			slog.String("severity", e.Finding.Severity.String()),
			slog.String("title", e.Finding.Title))
	case *events.CompleteEvent:
		attrs := []any{
			slog.String("status", e.Status),
			slog.Int("findings", e.Summary.Total),
			slog.Int64("requests", e.Requests),
			slog.Duration("duration", e.Duration),
		}
		if e.Error != "" {
			attrs = append(attrs, slog.String("error", e.Error))
		}
		l.InfoContext(ctx, "scan complete", attrs...)
	default:
		l.DebugContext(ctx, "event", slog.String("type", string(event.EventType())))
	}
	return nil
}
