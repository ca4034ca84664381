package check

import (
	"context"

	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/hosterrors"
	"github.com/waftester/wpscout/pkg/probe"
)

// Verdict is the tag of a DetectionOutcome.
type Verdict int

const (
	// VerdictNegative: the target answered but is not the expected application.
	VerdictNegative Verdict = iota
	// VerdictPositive: the target is the expected application.
	VerdictPositive
	// VerdictTransportFailure: detection could not complete.
	VerdictTransportFailure
)

func (v Verdict) String() string {
	switch v {
	case VerdictPositive:
		return "positive"
	case VerdictTransportFailure:
		return "transport_failure"
	default:
		return "negative"
	}
}

// DetectionOutcome is the result of the mandatory gate phase.
type DetectionOutcome struct {
	Verdict Verdict
	// Kind is set for VerdictTransportFailure.
	Kind hosterrors.Kind
	// Err is the underlying transport error for VerdictTransportFailure.
	Err error
	// Reason explains a negative verdict.
	Reason string
	// Version is the detected application version, if any.
	Version string
	// Findings are emitted only on a positive verdict.
	Findings []finding.Finding
}

// Positive returns a positive outcome.
func Positive(version string, findings ...finding.Finding) DetectionOutcome {
	return DetectionOutcome{Verdict: VerdictPositive, Version: version, Findings: findings}
}

// Negative returns a negative outcome.
func Negative(reason string) DetectionOutcome {
	return DetectionOutcome{Verdict: VerdictNegative, Reason: reason}
}

// TransportFailure returns a failed outcome classified from err.
func TransportFailure(err error) DetectionOutcome {
	kind := probe.KindOf(err)
	if kind == "" {
		kind = hosterrors.Classify(err)
	}
	return DetectionOutcome{Verdict: VerdictTransportFailure, Kind: kind, Err: err}
}

// Detector is the mandatory gate check. Unlike a Check, its transport
// errors are part of its result.
type Detector interface {
	Name() string
	Detect(ctx context.Context, target Target, env *Env) DetectionOutcome
}
