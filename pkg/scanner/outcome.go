package scanner

import (
	"errors"
	"fmt"
	"time"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/hosterrors"
	"github.com/waftester/wpscout/pkg/report"
	"github.com/waftester/wpscout/pkg/scheduler"
	"github.com/waftester/wpscout/pkg/store"
)

// Status is the terminal state of a scan.
type Status string

const (
	StatusCompleted Status = "completed"
	// StatusAborted means the target answered but is not WordPress.
	StatusAborted Status = "aborted"
	// StatusFailed means detection could not reach the target.
	StatusFailed Status = "failed"
	// StatusInterrupted means the scan context ended before the scan did.
	StatusInterrupted Status = "interrupted"
)

// stored maps a terminal status to the persisted one. The store has no
// interrupted state.
func (s Status) stored() store.Status {
	switch s {
	case StatusCompleted:
		return store.StatusCompleted
	case StatusFailed:
		return store.StatusFailed
	default:
		return store.StatusAborted
	}
}

var (
	// ErrConsentRequired is matched by every *ConsentRequiredError.
	ErrConsentRequired = errors.New("scanner: domain ownership verification required")

	// ErrNotWordPress is the Outcome error of an aborted scan.
	ErrNotWordPress = errors.New("scanner: target is not a WordPress site")
)

// ConsentRequiredError is returned by Scan, before any request is sent,
// when the scan needs a verified domain and the domain is not verified.
type ConsentRequiredError struct {
	Domain string
	// Reason names what triggered the gate, e.g. "aggressive mode".
	Reason string
	// Err is set when the verification lookup itself failed.
	Err error
}

func (e *ConsentRequiredError) Error() string {
	msg := fmt.Sprintf("domain %s requires consent verification for %s; run: wpscout consent gen --domain %s",
		e.Domain, e.Reason, e.Domain)
	if e.Err != nil {
		msg += fmt.Sprintf(" (lookup failed: %v)", e.Err)
	}
	return msg
}

func (e *ConsentRequiredError) Is(target error) bool { return target == ErrConsentRequired }

func (e *ConsentRequiredError) Unwrap() error { return e.Err }

// Outcome is the frozen result of one scan.
type Outcome struct {
	ID     string
	Target check.Target
	Mode   string
	Rate   float64

	StartedAt  time.Time
	FinishedAt time.Time

	// Requests is the total number of probes sent, detection included.
	Requests int64
	// Findings in phase completion order, detection first.
	Findings []finding.Finding
	// Phases in completion order, detection first.
	Phases []scheduler.PhaseResult
	// Failed lists the fan-out phases that errored.
	Failed []string

	Status Status
	// ErrorKind classifies the transport failure of a failed scan.
	ErrorKind hosterrors.Kind
	Err       error
	// Reason explains a negative detection.
	Reason  string
	Version string

	Report   *report.Report
	JSONPath string
	HTMLPath string
}

// Duration returns the wall time of the scan.
func (o *Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Summary returns severity counts over the deduplicated findings.
func (o *Outcome) Summary() finding.Summary {
	if o.Report != nil {
		return o.Report.Summary
	}
	return finding.Summarize(finding.Dedupe(o.Findings))
}

// ReportPaths returns the written report files.
func (o *Outcome) ReportPaths() []string {
	var out []string
	for _, p := range []string{o.JSONPath, o.HTMLPath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
