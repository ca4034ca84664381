// Package events defines the scan lifecycle events emitted by the
// orchestrator and consumed by output hooks.
package events

import (
	"time"

	"github.com/waftester/wpscout/pkg/finding"
)

// EventType identifies the kind of event.
type EventType string

const (
	// EventTypeStart is emitted once the consent gate passes and before the
	// first probe is sent.
	EventTypeStart EventType = "scan_start"

	// EventTypePhase is emitted when a scan phase finishes, in completion order.
	EventTypePhase EventType = "phase_complete"

	// EventTypeFinding is emitted for each deduplicated finding.
	EventTypeFinding EventType = "finding"

	// EventTypeComplete is emitted exactly once per started scan.
	EventTypeComplete EventType = "scan_complete"
)

// Event is the interface all events implement.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
	ScanID() string
}

// BaseEvent contains fields common to all events.
type BaseEvent struct {
	Type EventType `json:"type"`
	Time time.Time `json:"timestamp"`
	Scan string    `json:"scan_id"`
}

// EventType returns the type of this event.
func (e BaseEvent) EventType() EventType { return e.Type }

// Timestamp returns when this event was created.
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ScanID returns the scan identifier.
func (e BaseEvent) ScanID() string { return e.Scan }

func base(t EventType, scanID string) BaseEvent {
	return BaseEvent{Type: t, Time: time.Now(), Scan: scanID}
}

// StartEvent announces a scan.
type StartEvent struct {
	BaseEvent
	Target string  `json:"target"`
	Mode   string  `json:"mode"`
	Rate   float64 `json:"rate"`
}

// NewStart returns a StartEvent stamped with the current time.
func NewStart(scanID, target, mode string, rate float64) *StartEvent {
	return &StartEvent{BaseEvent: base(EventTypeStart, scanID), Target: target, Mode: mode, Rate: rate}
}

// PhaseEvent reports a finished phase. The detection gate reports as
// phase "fingerprint".
type PhaseEvent struct {
	BaseEvent
	Name     string        `json:"name"`
	Label    string        `json:"label"`
	Findings int           `json:"findings"`
	Requests int64         `json:"requests"`
	Duration time.Duration `json:"-"`
	Error    string        `json:"error,omitempty"`
}

// Failed reports whether the phase errored.
func (e *PhaseEvent) Failed() bool { return e.Error != "" }

// NewPhase returns a PhaseEvent. err may be nil.
func NewPhase(scanID, name, label string, findings int, requests int64, d time.Duration, err error) *PhaseEvent {
	ev := &PhaseEvent{
		BaseEvent: base(EventTypePhase, scanID),
		Name:      name,
		Label:     label,
		Findings:  findings,
		Requests:  requests,
		Duration:  d,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// FindingEvent carries one finding.
type FindingEvent struct {
	BaseEvent
	Finding finding.Finding `json:"finding"`
}

// NewFinding returns a FindingEvent.
func NewFinding(scanID string, f finding.Finding) *FindingEvent {
	return &FindingEvent{BaseEvent: base(EventTypeFinding, scanID), Finding: f}
}

// CompleteEvent closes a scan.
type CompleteEvent struct {
	BaseEvent
	Status   string          `json:"status"`
	Summary  finding.Summary `json:"summary"`
	Requests int64           `json:"requests"`
	Duration time.Duration   `json:"-"`
	Error    string          `json:"error,omitempty"`
}

// NewComplete returns a CompleteEvent.
func NewComplete(scanID, status string, summary finding.Summary, requests int64, d time.Duration, err error) *CompleteEvent {
	ev := &CompleteEvent{
		BaseEvent: base(EventTypeComplete, scanID),
		Status:    status,
		Summary:   summary,
		Requests:  requests,
		Duration:  d,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
