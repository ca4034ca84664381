// Package scheduler runs a scan's phases: the mandatory detection gate,
// strictly first and alone, then every other check concurrently on a
// bounded number of goroutines.
//
// A fan-out phase that fails or panics is contained at the phase boundary.
// It contributes no findings and no requests, and its siblings carry on.
// Results are collected in completion order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/defaults"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/logging"
	"github.com/waftester/wpscout/pkg/probe"
)

// TracerName is the instrumentation scope of phase spans.
const TracerName = "github.com/waftester/wpscout/pkg/scheduler"

// PhaseResult is the outcome of one fan-out phase.
type PhaseResult struct {
	Name     string
	Label    string
	Findings []finding.Finding
	// Requests is the number of probes the phase sent, or 0 if it failed.
	Requests int64
	Duration time.Duration
	// Err is set when the phase failed internally.
	Err error
}

// Result aggregates the fan-out phases that finished.
type Result struct {
	// Phases in completion order.
	Phases   []PhaseResult
	Findings []finding.Finding
	Requests int64
	// Failed lists phases that errored or panicked.
	Failed []string
	// Cancelled is set when the context ended before every phase reported.
	Cancelled bool
}

// Scheduler owns the fan-out phase list.
type Scheduler struct {
	phases   []check.PhaseDescriptor
	poolSize int
	logger   *slog.Logger
	tracer   trace.Tracer
	onPhase  func(PhaseResult)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxWorkers sizes the phase pool at min(defaults.PhasePoolCap, n).
func WithMaxWorkers(n int) Option {
	return func(s *Scheduler) {
		s.poolSize = PoolSize(n)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// OnPhaseComplete registers fn to be called, from the collecting goroutine,
// as each fan-out phase reports.
func OnPhaseComplete(fn func(PhaseResult)) Option {
	return func(s *Scheduler) { s.onPhase = fn }
}

// PoolSize returns the number of phases allowed to run at once for a
// configured worker count.
func PoolSize(maxWorkers int) int {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return min(defaults.PhasePoolCap, maxWorkers)
}

// New creates a scheduler for the given fan-out phases.
func New(phases []check.PhaseDescriptor, opts ...Option) *Scheduler {
	s := &Scheduler{
		phases:   phases,
		poolSize: PoolSize(defaults.MaxWorkers),
		logger:   slog.Default(),
		tracer:   otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phases returns the registered fan-out phases.
func (s *Scheduler) Phases() []check.PhaseDescriptor {
	return append([]check.PhaseDescriptor(nil), s.phases...)
}

// PoolSize returns the phase concurrency in effect.
func (s *Scheduler) PoolSize() int { return s.poolSize }

// Gate runs the detector synchronously. A panic inside the detector is
// reported as a generic transport failure so the scan fails rather than
// proceeding on an unknown target.
func (s *Scheduler) Gate(ctx context.Context, det check.Detector, target check.Target, env *check.Env) (out check.DetectionOutcome) {
	ctx = logging.ContextAttrs(ctx, slog.String("phase", det.Name()))
	ctx, span := s.tracer.Start(ctx, "phase "+det.Name(), trace.WithAttributes(
		attribute.String("wpscout.phase", det.Name()),
		attribute.Bool("wpscout.gate", true),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := &check.CheckError{Check: det.Name(), Err: fmt.Errorf("%w: %v", check.ErrPanic, r)}
			s.logger.ErrorContext(ctx, "detection panicked", slog.Any("panic", r))
			out = check.TransportFailure(err)
		}
		span.SetAttributes(attribute.String("wpscout.verdict", out.Verdict.String()))
		if out.Verdict == check.VerdictTransportFailure {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, string(out.Kind))
		}
		s.logger.InfoContext(ctx, "detection finished",
			slog.String("verdict", out.Verdict.String()),
			slog.String("version", out.Version),
			slog.Duration("elapsed", time.Since(start)))
	}()

	return det.Detect(ctx, target, env)
}

// FanOut runs every registered phase with at most PoolSize running at once
// and returns as soon as all have reported or ctx ends. Phases still running
// after cancellation are abandoned; they observe ctx through their probes.
func (s *Scheduler) FanOut(ctx context.Context, target check.Target, env *check.Env) Result {
	results := make(chan PhaseResult, len(s.phases))

	go func() {
		var g errgroup.Group
		g.SetLimit(s.poolSize)
		for _, ph := range s.phases {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				results <- s.runPhase(ctx, ph, target, env)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var res Result
	for {
		select {
		case r, ok := <-results:
			if !ok {
				if ctx.Err() != nil && len(res.Phases) < len(s.phases) {
					res.Cancelled = true
				}
				return res
			}
			res.Phases = append(res.Phases, r)
			res.Findings = append(res.Findings, r.Findings...)
			res.Requests += r.Requests
			if r.Err != nil {
				res.Failed = append(res.Failed, r.Name)
			}
			if s.onPhase != nil {
				s.onPhase(r)
			}
		case <-ctx.Done():
			res.Cancelled = true
			s.logger.WarnContext(ctx, "fan-out interrupted",
				slog.Int("completed", len(res.Phases)),
				slog.Int("total", len(s.phases)))
			return res
		}
	}
}

func (s *Scheduler) runPhase(ctx context.Context, ph check.PhaseDescriptor, target check.Target, env *check.Env) (res PhaseResult) {
	name := ph.Name()
	res = PhaseResult{Name: name, Label: ph.Label}

	var counter probe.Counter
	ctx = probe.WithCounter(ctx, &counter)
	ctx = logging.ContextAttrs(ctx, slog.String("phase", name))
	ctx, span := s.tracer.Start(ctx, "phase "+name, trace.WithAttributes(
		attribute.String("wpscout.phase", name),
		attribute.Int("wpscout.estimated_requests", ph.EstimatedRequests),
	))
	defer span.End()

	start := time.Now()
	s.logger.DebugContext(ctx, "phase started", slog.Int("estimated_requests", ph.EstimatedRequests))

	defer func() {
		if r := recover(); r != nil {
			res.Err = &check.CheckError{Check: name, Err: fmt.Errorf("%w: %v", check.ErrPanic, r)}
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			res.Findings = nil
			res.Requests = 0
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "phase failed")
			s.logger.ErrorContext(ctx, "phase failed",
				slog.String("error", res.Err.Error()),
				slog.Duration("elapsed", res.Duration))
			return
		}
		res.Requests = counter.Load()
		span.SetAttributes(
			attribute.Int("wpscout.findings", len(res.Findings)),
			attribute.Int64("wpscout.requests", res.Requests),
		)
		s.logger.InfoContext(ctx, "phase complete",
			slog.Int("findings", len(res.Findings)),
			slog.Int64("requests", res.Requests),
			slog.Duration("elapsed", res.Duration))
	}()

	findings, err := ph.Check.Scan(ctx, target, env)
	if err != nil {
		var ce *check.CheckError
		if !errors.As(err, &ce) {
			err = &check.CheckError{Check: name, Err: err}
		}
		res.Err = err
		return res
	}
	res.Findings = findings
	return res
}
