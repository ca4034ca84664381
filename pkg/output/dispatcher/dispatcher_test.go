package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/output/events"
)

type recordingHook struct {
	mu     sync.Mutex
	types  []events.EventType
	got    []events.EventType
	err    error
	closed bool
}

func (h *recordingHook) OnEvent(_ context.Context, e events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, e.EventType())
	return h.err
}

func (h *recordingHook) EventTypes() []events.EventType { return h.types }

func (h *recordingHook) Close() error {
	h.closed = true
	return nil
}

type plainHook struct{ n int }

func (h *plainHook) OnEvent(context.Context, events.Event) error { h.n++; return nil }
func (h *plainHook) EventTypes() []events.EventType            { return nil }

func TestDispatch_FiltersByType(t *testing.T) {
	all := &recordingHook{}
	onlyFindings := &recordingHook{types: []events.EventType{events.EventTypeFinding}}

	d := New(nil)
	d.RegisterHook(all)
	d.RegisterHook(onlyFindings)
	d.RegisterHook(nil)
	assert.Equal(t, 2, d.Hooks())

	ctx := context.Background()
	d.Dispatch(ctx, events.NewStart("s", "https://example.com", "safe", 1))
	d.Dispatch(ctx, events.NewFinding("s", finding.Finding{Code: "WPS-050"}))
	d.Dispatch(ctx, events.NewComplete("s", "completed", finding.Summary{}, 3, 0, nil))

	assert.Equal(t, []events.EventType{events.EventTypeStart, events.EventTypeFinding, events.EventTypeComplete}, all.got)
	assert.Equal(t, []events.EventType{events.EventTypeFinding}, onlyFindings.got)
}

func TestDispatch_FailingHookDoesNotStopOthers(t *testing.T) {
	bad := &recordingHook{err: errors.New("webhook down")}
	good := &recordingHook{}
	d := New(nil)
	d.RegisterHook(bad)
	d.RegisterHook(good)

	d.Dispatch(context.Background(), events.NewStart("s", "t", "safe", 1))
	assert.Len(t, bad.got, 1)
	assert.Len(t, good.got, 1)
}

func TestClose(t *testing.T) {
	closer := &recordingHook{}
	plain := &plainHook{}
	d := New(nil)
	d.RegisterHook(closer)
	d.RegisterHook(plain)

	require.NoError(t, d.Close())
	assert.True(t, closer.closed)
	require.NoError(t, d.Close())

	d.Dispatch(context.Background(), events.NewStart("s", "t", "safe", 1))
	assert.Empty(t, closer.got, "dropped after close")
	assert.Zero(t, plain.n)
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(context.Background(), events.NewStart("s", "t", "safe", 1))
	assert.NoError(t, d.Close())
}

func TestPhaseEvent(t *testing.T) {
	ev := events.NewPhase("s", "users", "User enumeration", 2, 7, 0, errors.New("boom"))
	assert.True(t, ev.Failed())
	assert.Equal(t, "boom", ev.Error)
	assert.Equal(t, "s", ev.ScanID())
	assert.False(t, ev.Timestamp().IsZero())
}
