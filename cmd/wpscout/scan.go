package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/waftester/wpscout/pkg/ai"
	"github.com/waftester/wpscout/pkg/cli"
	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/consent"
	"github.com/waftester/wpscout/pkg/output/dispatcher"
	"github.com/waftester/wpscout/pkg/output/hooks"
	"github.com/waftester/wpscout/pkg/scanner"
	"github.com/waftester/wpscout/pkg/scheduler"
	"github.com/waftester/wpscout/pkg/ui"
)

type scanFlags struct {
	target       string
	aggressive   bool
	rate         float64
	timeout      float64
	threads      int
	useAI        bool
	html         bool
	json         bool
	reportDir    string
	proxy        string
	insecure     bool
	headers      []string
	metricsAddr  string
	otelEndpoint string
}

func newScanCmd(a *app) *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a WordPress site",
		Example: `  wpscout scan --target https://example.com
  wpscout scan --target example.com --html --report-dir ./reports
  wpscout scan --target example.com --aggressive --use-ai`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runScan(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.target, "target", "t", "", "target URL or domain")
	fl.BoolVar(&f.aggressive, "aggressive", false, "use the aggressive rate tier (requires consent)")
	fl.Float64Var(&f.rate, "rate", 0, "requests per second, overriding the mode's tier")
	fl.Float64Var(&f.timeout, "timeout", 0, "read timeout in seconds")
	fl.IntVar(&f.threads, "threads", 0, "maximum concurrent probes")
	fl.BoolVar(&f.useAI, "use-ai", false, "add an AI-written analysis to the report (requires consent)")
	fl.BoolVar(&f.html, "html", false, "write an HTML report")
	fl.BoolVar(&f.json, "json", false, "write a JSON report")
	fl.StringVar(&f.reportDir, "report-dir", "", "report output directory")
	fl.StringVar(&f.proxy, "proxy", "", "HTTP or SOCKS5 proxy URL")
	fl.BoolVar(&f.insecure, "insecure", false, "skip TLS certificate verification")
	fl.StringArrayVarP(&f.headers, "header", "H", nil, `extra request header as "Name: value" (repeatable)`)
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fl.StringVar(&f.otelEndpoint, "otel-endpoint", "", "export traces to this OTLP/gRPC endpoint")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

// apply overlays the command-line flags onto cfg.
func (f scanFlags) apply(cfg *config.Config) error {
	if f.rate < 0 {
		return fmt.Errorf("%w: --rate must not be negative", config.ErrInvalidConfig)
	}
	if f.rate > 0 {
		cfg.Scan.RateOverride = f.rate
	}
	if f.timeout > 0 {
		cfg.Scan.TimeoutRead = f.timeout
	}
	if f.threads != 0 {
		cfg.Advanced.MaxWorkers = f.threads
	}
	if f.json || f.html {
		cfg.Reporting.GenerateJSON = f.json
		cfg.Reporting.GenerateHTML = f.html
	}
	if f.reportDir != "" {
		cfg.Paths.ReportDir = f.reportDir
	}
	if f.proxy != "" {
		cfg.Advanced.Proxy = f.proxy
	}
	if f.insecure {
		cfg.Scan.VerifySSL = false
	}
	if len(f.headers) > 0 {
		hs, err := parseHeaders(f.headers)
		if err != nil {
			return err
		}
		if cfg.Advanced.CustomHeaders == nil {
			cfg.Advanced.CustomHeaders = make(map[string]string, len(hs))
		}
		for k, v := range hs {
			cfg.Advanced.CustomHeaders[k] = v
		}
	}
	if f.metricsAddr != "" {
		cfg.Telemetry.MetricsAddr = f.metricsAddr
	}
	if f.otelEndpoint != "" {
		cfg.Telemetry.OTelEndpoint = f.otelEndpoint
	}
	return cfg.Validate()
}

// parseHeaders splits "Name: value" pairs.
func parseHeaders(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("invalid header %q (want \"Name: value\")", h)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func (f scanFlags) mode() string {
	if f.aggressive {
		return config.ModeAggressive
	}
	return ""
}

func (a *app) runScan(cmd *cobra.Command, f scanFlags) error {
	ctx := cmd.Context()
	cfg := a.cfg
	if err := f.apply(&cfg); err != nil {
		return err
	}
	mode := f.mode()
	if mode == "" {
		mode = cfg.Scan.DefaultMode
	}

	ui.PrintBanner(a.stdout)
	ui.PrintOptions(a.stdout, []ui.Option{
		{Name: "Target", Value: f.target},
		{Name: "Mode", Value: mode},
		{Name: "Rate", Value: strconv.FormatFloat(cfg.Scan.EffectiveRate(mode), 'f', 1, 64) + " req/s"},
		{Name: "Phases", Value: strconv.Itoa(scheduler.PoolSize(cfg.Advanced.MaxWorkers)) + " concurrent"},
		{Name: "Reports", Value: cfg.Paths.ReportDir},
	})

	d, observer, err := a.outputs(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			a.logger.Warn("closing output hooks failed", slog.String("error", err.Error()))
		}
	}()

	opts := []scanner.Option{
		scanner.WithLogger(a.logger),
		scanner.WithDispatcher(d),
	}
	if observer != nil {
		opts = append(opts, scanner.WithObserver(observer))
	}
	st := a.openStore(ctx)
	cm := []consent.Option{consent.WithLogger(a.logger)}
	if st != nil {
		defer st.Close()
		opts = append(opts, scanner.WithStore(st))
		cm = append(cm, consent.WithStore(st))
	}
	opts = append(opts, scanner.WithConsent(consent.NewManager(cfg.Consent, nil, cm...)))
	if f.useAI {
		client, err := ai.NewClient(cfg.AI, nil)
		if err != nil {
			ui.PrintWarning(a.stderr, fmt.Sprintf("AI analysis disabled: %v", err))
		} else {
			opts = append(opts, scanner.WithAnalyzer(ai.NewAnalyzer(client, cfg.AI, a.logger)))
		}
	}

	out, err := scanner.New(cfg, opts...).Scan(ctx, f.target, scanner.Options{Mode: mode, UseAI: f.useAI})
	if err != nil {
		if errors.Is(err, scanner.ErrConsentRequired) {
			ui.PrintError(a.stderr, err.Error())
			return &cli.ExitError{Code: cli.ExitFailure, Err: err, Silent: true}
		}
		return err
	}

	a.printOutcome(out)
	if code := cli.ExitCodeForStatus(string(out.Status)); code != cli.ExitOK {
		return &cli.ExitError{Code: code, Err: fmt.Errorf("scan %s", out.Status), Silent: true}
	}
	return nil
}

// outputs builds the event dispatcher with the hooks cfg asks for. The
// Prometheus hook also observes individual probes.
func (a *app) outputs(cfg config.Config) (*dispatcher.Dispatcher, *hooks.PrometheusHook, error) {
	d := dispatcher.New(a.logger)
	d.RegisterHook(hooks.NewLoggerHook(a.logger))

	var prom *hooks.PrometheusHook
	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		h, err := hooks.NewPrometheusHook(hooks.PrometheusOptions{Addr: addr, Logger: a.logger})
		if err != nil {
			_ = d.Close()
			return nil, nil, err
		}
		d.RegisterHook(h)
		prom = h
		a.logger.Info("serving metrics", slog.String("addr", h.MetricsAddr()))
	}
	if ep := cfg.Telemetry.OTelEndpoint; ep != "" {
		h, err := hooks.NewOTelHook(hooks.OTelOptions{Endpoint: ep, Insecure: true})
		if err != nil {
			_ = d.Close()
			return nil, nil, err
		}
		d.RegisterHook(h)
	}
	return d, prom, nil
}

func (a *app) printOutcome(out *scanner.Outcome) {
	w := a.stdout
	fmt.Fprintln(w)

	switch out.Status {
	case scanner.StatusFailed:
		ui.PrintError(w, fmt.Sprintf("Scan failed: %s (%v)", out.ErrorKind, out.Err))
		fmt.Fprintf(w, "    %s\n", out.ErrorKind.Hint())
	case scanner.StatusAborted:
		ui.PrintWarning(w, fmt.Sprintf("Scan aborted: target is not a WordPress site (%s)", out.Reason))
	case scanner.StatusInterrupted:
		ui.PrintWarning(w, "Scan interrupted; partial results were saved.")
	default:
		msg := "Scan completed"
		if out.Version != "" {
			msg += ", WordPress " + out.Version
		}
		ui.PrintSuccess(w, msg)
	}

	rows := make([]ui.PhaseRow, len(out.Phases))
	for i, p := range out.Phases {
		rows[i] = ui.PhaseRow{
			Label:    p.Label,
			Findings: len(p.Findings),
			Requests: p.Requests,
			Duration: p.Duration,
			Failed:   p.Err != nil,
		}
	}
	ui.PrintPhases(w, rows)

	if out.Report != nil && out.Status != scanner.StatusFailed {
		fmt.Fprintln(w, ui.SectionStyle.Render("Findings"))
		ui.PrintFindings(w, out.Report.Findings, a.verbose)
		ui.PrintSeveritySummary(w, out.Summary())
	}
	ui.PrintStatus(w, string(out.Status), out.Requests, out.Duration(), out.ReportPaths()...)
}
