// Package dispatcher routes scan events to registered hooks.
//
// The dispatcher decouples the orchestrator, which only emits events, from
// the integrations that consume them (logs, metrics, traces).
package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/waftester/wpscout/pkg/output/events"
)

// Hook is the interface for event hooks.
type Hook interface {
	// OnEvent is called for each matching event.
	OnEvent(ctx context.Context, event events.Event) error

	// EventTypes returns the event types this hook handles.
	// Return nil or empty slice to receive all events.
	EventTypes() []events.EventType
}

// Dispatcher routes events to hooks. It is safe for concurrent use.
type Dispatcher struct {
	mu     sync.RWMutex
	hooks  []Hook
	closed bool
	logger *slog.Logger
}

// New creates a dispatcher. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// RegisterHook adds a hook. Hooks receive events in registration order.
func (d *Dispatcher) RegisterHook(h Hook) {
	if h == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, h)
}

// Hooks returns the number of registered hooks.
func (d *Dispatcher) Hooks() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.hooks)
}

// Dispatch sends an event to every hook that handles its type. A failing
// hook is logged and does not stop delivery to the others. A nil
// dispatcher drops the event.
func (d *Dispatcher) Dispatch(ctx context.Context, event events.Event) {
	if d == nil || event == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	for _, h := range d.hooks {
		if !supports(h, event.EventType()) {
			continue
		}
		if err := h.OnEvent(ctx, event); err != nil {
			d.logger.Warn("event hook failed",
				slog.String("event", string(event.EventType())),
				slog.String("error", err.Error()))
		}
	}
}

func supports(h Hook, t events.EventType) bool {
	types := h.EventTypes()
	return len(types) == 0 || slices.Contains(types, t)
}

// Close closes every hook that implements io.Closer. Events dispatched
// after Close are dropped.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	for _, h := range d.hooks {
		if c, ok := h.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
