// Package scanner runs one scan end to end: it gates the scan on domain
// consent, builds the rate-limited probe client, runs WordPress detection
// and then the fan-out phases, and finalizes the outcome into a report,
// the scan history and the event stream.
//
// Only invalid input, a missing consent or an unusable client
// configuration make Scan return an error. Every other failure ends up in
// the returned Outcome's Status.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/checks"
	"github.com/waftester/wpscout/pkg/cli"
	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/defaults"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/httpclient"
	"github.com/waftester/wpscout/pkg/logging"
	"github.com/waftester/wpscout/pkg/output/dispatcher"
	"github.com/waftester/wpscout/pkg/output/events"
	"github.com/waftester/wpscout/pkg/probe"
	"github.com/waftester/wpscout/pkg/ratelimit"
	"github.com/waftester/wpscout/pkg/report"
	"github.com/waftester/wpscout/pkg/scheduler"
	"github.com/waftester/wpscout/pkg/store"
	"github.com/waftester/wpscout/pkg/workerpool"
)

// DetectionLabel is the report label of the detection phase.
const DetectionLabel = "WordPress detection"

// ConsentChecker reports whether a domain's ownership has been verified.
type ConsentChecker interface {
	IsDomainVerified(ctx context.Context, domain string) (bool, error)
}

// Persister records the scan history. Every call is best effort.
type Persister interface {
	StartScan(ctx context.Context, tool, domain, targetURL, mode string) (string, error)
	AddFindings(ctx context.Context, scanID string, findings []finding.Finding) (int, error)
	FinishScan(ctx context.Context, id string, c store.Completion) error
}

// Analyzer writes the AI section of a report.
type Analyzer interface {
	Analyze(ctx context.Context, r *report.Report) (*report.AIAnalysis, error)
}

// Options are the per-scan choices of the caller.
type Options struct {
	// Mode is config.ModeSafe or config.ModeAggressive. Empty uses the
	// configured default mode.
	Mode string
	// UseAI adds an AI analysis to a completed scan's report.
	UseAI bool
}

// Scanner runs scans against a configuration snapshot.
type Scanner struct {
	cfg        config.Config
	consent    ConsentChecker
	store      Persister
	analyzer   Analyzer
	dispatcher *dispatcher.Dispatcher
	observer   probe.Observer
	logger     *slog.Logger
	tracer     trace.Tracer
	detector   check.Detector
	phases     func(check.Settings) []check.PhaseDescriptor
	now        func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithConsent sets the consent lookup used by the pre-scan gate. Without
// one, every scan that needs consent is refused.
func WithConsent(c ConsentChecker) Option {
	return func(s *Scanner) { s.consent = c }
}

// WithStore persists scans and findings.
func WithStore(p Persister) Option {
	return func(s *Scanner) { s.store = p }
}

// WithAnalyzer enables AI analysis for scans run with UseAI.
func WithAnalyzer(a Analyzer) Option {
	return func(s *Scanner) { s.analyzer = a }
}

// WithDispatcher sends lifecycle events to d.
func WithDispatcher(d *dispatcher.Dispatcher) Option {
	return func(s *Scanner) { s.dispatcher = d }
}

// WithObserver reports every probe to o.
func WithObserver(o probe.Observer) Option {
	return func(s *Scanner) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scanner) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithDetector replaces the WordPress detector.
func WithDetector(d check.Detector) Option {
	return func(s *Scanner) {
		if d != nil {
			s.detector = d
		}
	}
}

// WithPhases replaces the fan-out phase list.
func WithPhases(fn func(check.Settings) []check.PhaseDescriptor) Option {
	return func(s *Scanner) {
		if fn != nil {
			s.phases = fn
		}
	}
}

// WithClock sets the clock used for scan timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a scanner over a copy of cfg.
func New(cfg config.Config, opts ...Option) *Scanner {
	s := &Scanner{
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   otel.Tracer(scheduler.TracerName),
		detector: checks.Detector(),
		phases:   checks.Phases,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConsentReason returns what makes a scan need a verified domain, or ""
// when it does not. Aggressive mode, AI analysis and any effective rate at
// or above defaults.RateConsentThreshold all require consent.
func ConsentReason(mode string, rate float64, useAI bool) string {
	switch {
	case mode == config.ModeAggressive:
		return "aggressive mode"
	case rate >= defaults.RateConsentThreshold:
		return fmt.Sprintf("a rate of %.1f req/s", rate)
	case useAI:
		return "AI analysis"
	default:
		return ""
	}
}

// Scan runs one scan against rawTarget.
func (s *Scanner) Scan(ctx context.Context, rawTarget string, opts Options) (*Outcome, error) {
	target, err := check.NewTarget(rawTarget)
	if err != nil {
		return nil, err
	}
	mode := opts.Mode
	if mode == "" {
		mode = s.cfg.Scan.DefaultMode
	}
	if mode != config.ModeSafe && mode != config.ModeAggressive {
		return nil, fmt.Errorf("scanner: unknown mode %q", mode)
	}
	rate := s.cfg.Scan.EffectiveRate(mode)

	if err := s.checkConsent(ctx, target.Domain, ConsentReason(mode, rate, opts.UseAI)); err != nil {
		return nil, err
	}

	env, pool, err := s.environment(rate)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	out := &Outcome{
		Target:    target,
		Mode:      mode,
		Rate:      rate,
		StartedAt: s.now(),
	}
	out.ID = s.startScan(ctx, out)

	ctx = logging.ContextAttrs(ctx,
		slog.String("scan_id", out.ID),
		slog.String("target", target.URL))
	ctx, span := s.tracer.Start(ctx, "scan", trace.WithAttributes(
		attribute.String("wpscout.scan_id", out.ID),
		attribute.String("wpscout.target", target.URL),
		attribute.String("wpscout.mode", mode),
		attribute.Float64("wpscout.rate", rate),
	))
	defer span.End()

	s.logger.InfoContext(ctx, "scan started",
		slog.String("mode", mode),
		slog.Float64("rate", rate),
		slog.Int("phases", len(s.phases(env.Settings))+1))
	s.dispatcher.Dispatch(ctx, events.NewStart(out.ID, target.URL, mode, rate))

	s.run(ctx, target, env, out)

	// The scan context may be cancelled; finalization still has to run.
	s.finalize(context.WithoutCancel(ctx), out, opts)

	span.SetAttributes(
		attribute.String("wpscout.status", string(out.Status)),
		attribute.Int64("wpscout.requests", out.Requests),
		attribute.Int("wpscout.findings", len(out.Findings)),
	)
	if out.Status == StatusFailed {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(out.ErrorKind))
	}
	return out, nil
}

func (s *Scanner) checkConsent(ctx context.Context, domain, reason string) error {
	if reason == "" {
		return nil
	}
	if s.consent == nil {
		return &ConsentRequiredError{Domain: domain, Reason: reason}
	}
	ok, err := s.consent.IsDomainVerified(ctx, domain)
	if err != nil {
		s.logger.WarnContext(ctx, "consent lookup failed",
			slog.String("domain", domain),
			slog.String("error", err.Error()))
		return &ConsentRequiredError{Domain: domain, Reason: reason, Err: err}
	}
	if !ok {
		return &ConsentRequiredError{Domain: domain, Reason: reason}
	}
	return nil
}

// environment builds the per-scan probe client and pool. Both are scoped
// to one scan so the rate budget never leaks between scans.
func (s *Scanner) environment(rate float64) (*check.Env, *workerpool.Pool, error) {
	hc, err := httpclient.New(ClientConfig(s.cfg))
	if err != nil {
		return nil, nil, err
	}

	popts := []probe.Option{probe.WithLogger(s.logger)}
	if s.observer != nil {
		popts = append(popts, probe.WithObserver(s.observer))
	}
	client := probe.New(hc, ratelimit.New(rate, ratelimit.DefaultBurst(rate)), popts...)

	pool := workerpool.New(s.maxWorkers()).WithLogger(s.logger)
	env := &check.Env{
		Probe:    client,
		Pool:     pool,
		Settings: check.SettingsFrom(s.cfg.WordPress),
		Logger:   s.logger,
	}
	return env, pool, nil
}

// ClientConfig derives the HTTP client settings of a scan from cfg.
func ClientConfig(cfg config.Config) httpclient.Config {
	sc := cfg.Scan
	hc := httpclient.DefaultConfig()
	hc.ConnectTimeout = sc.ConnectTimeout()
	hc.ReadTimeout = sc.ReadTimeout()
	hc.VerifyTLS = sc.VerifySSL
	hc.FollowRedirects = sc.FollowRedirects
	if sc.MaxRedirects > 0 {
		hc.MaxRedirects = sc.MaxRedirects
	}
	if sc.UserAgent != "" {
		hc.UserAgent = sc.UserAgent
	}
	hc.Proxy = cfg.Advanced.Proxy
	if len(cfg.Advanced.CustomHeaders) > 0 {
		hc.Headers = make(http.Header, len(cfg.Advanced.CustomHeaders))
		for k, v := range cfg.Advanced.CustomHeaders {
			hc.Headers.Set(k, v)
		}
	}
	return hc
}

func (s *Scanner) maxWorkers() int {
	n := s.cfg.Advanced.MaxWorkers
	if n <= 0 {
		return defaults.MaxWorkers
	}
	return min(n, defaults.MaxWorkersLimit)
}

// startScan records the scan and returns its id. A store failure falls
// back to a local id.
func (s *Scanner) startScan(ctx context.Context, out *Outcome) string {
	if s.store != nil {
		id, err := s.store.StartScan(ctx, defaults.ToolName, out.Target.Domain, out.Target.URL, out.Mode)
		if err == nil {
			return id
		}
		s.logger.WarnContext(ctx, "scan history unavailable",
			slog.String("op", "start"),
			slog.String("error", err.Error()))
	}
	return uuid.NewString()
}

// run drives detection and, when it is positive, the fan-out phases.
func (s *Scanner) run(ctx context.Context, target check.Target, env *check.Env, out *Outcome) {
	sched := scheduler.New(s.phases(env.Settings),
		scheduler.WithMaxWorkers(s.maxWorkers()),
		scheduler.WithLogger(s.logger),
		scheduler.WithTracer(s.tracer),
		scheduler.OnPhaseComplete(func(r scheduler.PhaseResult) {
			s.dispatcher.Dispatch(ctx, events.NewPhase(out.ID, r.Name, r.Label,
				len(r.Findings), r.Requests, r.Duration, r.Err))
		}),
	)

	var counter probe.Counter
	start := time.Now()
	det := sched.Gate(probe.WithCounter(ctx, &counter), s.detector, target, env)
	gate := scheduler.PhaseResult{
		Name:     s.detector.Name(),
		Label:    DetectionLabel,
		Findings: det.Findings,
		Requests: counter.Load(),
		Duration: time.Since(start),
	}
	if det.Verdict == check.VerdictTransportFailure {
		gate.Err = det.Err
	}
	out.Phases = append(out.Phases, gate)
	out.Findings = append(out.Findings, det.Findings...)
	out.Requests += gate.Requests
	out.Version = det.Version
	s.dispatcher.Dispatch(ctx, events.NewPhase(out.ID, gate.Name, gate.Label,
		len(gate.Findings), gate.Requests, gate.Duration, gate.Err))

	if interrupted(ctx) {
		out.Status = StatusInterrupted
		out.Err = context.Cause(ctx)
		return
	}

	switch det.Verdict {
	case check.VerdictTransportFailure:
		out.Status = StatusFailed
		out.ErrorKind = det.Kind
		out.Err = det.Err
		s.logger.ErrorContext(ctx, "target unreachable",
			slog.String("kind", string(det.Kind)),
			slog.String("error", det.Err.Error()))
		return
	case check.VerdictNegative:
		out.Status = StatusAborted
		out.Reason = det.Reason
		out.Err = ErrNotWordPress
		s.logger.WarnContext(ctx, "WordPress not detected, aborting scan",
			slog.String("reason", det.Reason))
		return
	}

	res := sched.FanOut(ctx, target, env)
	out.Phases = append(out.Phases, res.Phases...)
	out.Findings = append(out.Findings, res.Findings...)
	out.Requests += res.Requests
	out.Failed = res.Failed

	if res.Cancelled || interrupted(ctx) {
		out.Status = StatusInterrupted
		out.Err = context.Cause(ctx)
		return
	}
	out.Status = StatusCompleted
}

func interrupted(ctx context.Context) bool {
	return ctx.Err() != nil || cli.Interrupted(ctx)
}

// finalize builds the report, writes report files and history, and emits
// the closing events. It runs once per scan, after every phase returned.
func (s *Scanner) finalize(ctx context.Context, out *Outcome, opts Options) {
	out.FinishedAt = s.now()

	in := report.Input{
		ScanID:          out.ID,
		Target:          out.Target.URL,
		Domain:          out.Target.Domain,
		Mode:            out.Mode,
		Status:          string(out.Status),
		StartedAt:       out.StartedAt,
		FinishedAt:      out.FinishedAt,
		Findings:        out.Findings,
		Phases:          reportPhases(out.Phases),
		Requests:        out.Requests,
		Rate:            out.Rate,
		ConsentVerified: ConsentReason(out.Mode, out.Rate, opts.UseAI) != "",
	}
	if out.Err != nil {
		in.Error = out.Err.Error()
	}
	r := report.Create(in)
	out.Report = r

	if opts.UseAI && out.Status == StatusCompleted {
		s.analyze(ctx, r)
	}
	s.writeReports(ctx, out)

	for _, f := range r.Findings {
		s.dispatcher.Dispatch(ctx, events.NewFinding(out.ID, f))
	}
	s.finishScan(ctx, out)

	logAttrs := []any{
		slog.String("status", string(out.Status)),
		slog.Int("findings", len(r.Findings)),
		slog.Int64("requests", out.Requests),
		slog.Duration("elapsed", out.Duration()),
	}
	if out.ErrorKind != "" {
		logAttrs = append(logAttrs, slog.String("kind", string(out.ErrorKind)))
	}
	s.logger.InfoContext(ctx, "scan finished", logAttrs...)
	s.dispatcher.Dispatch(ctx, events.NewComplete(out.ID, string(out.Status), r.Summary,
		out.Requests, out.Duration(), out.Err))
}

func (s *Scanner) analyze(ctx context.Context, r *report.Report) {
	if s.analyzer == nil {
		s.logger.WarnContext(ctx, "AI analysis requested but no provider is configured")
		return
	}
	analysis, err := s.analyzer.Analyze(ctx, r)
	if err != nil {
		s.logger.WarnContext(ctx, "AI analysis failed, report written without it",
			slog.String("error", err.Error()))
		return
	}
	r.AI = analysis
}

// writeReports saves the configured formats. A failed scan has no report
// file; an aborted or interrupted one gets JSON only.
func (s *Scanner) writeReports(ctx context.Context, out *Outcome) {
	dir := s.cfg.Paths.ReportDir
	if dir == "" || out.Status == StatusFailed {
		return
	}
	rc := s.cfg.Reporting
	if rc.GenerateJSON {
		path, err := report.SaveJSON(dir, out.Report)
		if err != nil {
			s.logger.ErrorContext(ctx, "writing report failed", slog.String("format", "json"),
				slog.String("error", err.Error()))
		} else {
			out.JSONPath = path
		}
	}
	if rc.GenerateHTML && out.Status == StatusCompleted {
		path, err := report.SaveHTML(dir, out.Report, report.HTMLOptions{IncludeEvidence: rc.HTMLIncludeEvidence})
		if err != nil {
			s.logger.ErrorContext(ctx, "writing report failed", slog.String("format", "html"),
				slog.String("error", err.Error()))
		} else {
			out.HTMLPath = path
		}
	}
}

func (s *Scanner) finishScan(ctx context.Context, out *Outcome) {
	if s.store == nil {
		return
	}
	warn := func(op string, err error) {
		level := slog.LevelWarn
		if errors.Is(err, store.ErrReadOnly) {
			level = slog.LevelDebug
		}
		s.logger.Log(ctx, level, "scan history unavailable",
			slog.String("op", op),
			slog.String("error", err.Error()))
	}

	if _, err := s.store.AddFindings(ctx, out.ID, out.Report.Findings); err != nil {
		warn("findings", err)
	}
	summary := out.Report.Summary
	c := store.Completion{
		Status:         out.Status.stored(),
		ReportJSONPath: out.JSONPath,
		ReportHTMLPath: out.HTMLPath,
		Summary:        &summary,
	}
	if out.Err != nil {
		c.Error = out.Err.Error()
		if out.ErrorKind != "" {
			c.Error = fmt.Sprintf("%s: %v", out.ErrorKind, out.Err)
		}
	}
	if err := s.store.FinishScan(ctx, out.ID, c); err != nil {
		warn("finish", err)
	}
}

func reportPhases(phases []scheduler.PhaseResult) []report.Phase {
	out := make([]report.Phase, len(phases))
	for i, p := range phases {
		out[i] = report.Phase{
			Name:            p.Name,
			Label:           p.Label,
			Findings:        len(p.Findings),
			Requests:        p.Requests,
			DurationSeconds: p.Duration.Round(time.Millisecond).Seconds(),
			Failed:          p.Err != nil,
		}
	}
	return out
}
