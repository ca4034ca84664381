package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/defaults"
	"github.com/waftester/wpscout/pkg/logging"
	"github.com/waftester/wpscout/pkg/store"
	"github.com/waftester/wpscout/pkg/ui"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	dbPath     string
	verbose    bool
	logJSON    bool
	noColor    bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, logger: slog.Default()}

	root := &cobra.Command{
		Use:   defaults.ToolName,
		Short: "WordPress security scanner",
		Long: `wpscout checks a WordPress site for exposed files, disclosed versions,
enumerable users, missing security headers and common misconfigurations.

Safe mode runs at a low request rate and needs no setup. Aggressive mode,
AI analysis and rates of 10 req/s or more require proof of domain ownership
(see "wpscout consent").`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ~/.wpscout/config.yaml)")
	pf.StringVar(&a.dbPath, "db", "", "scan history database path")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging and finding evidence")
	pf.BoolVar(&a.logJSON, "log-json", false, "write logs as JSON")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newScanCmd(a), newConsentCmd(a), newVersionCmd(a))
	return root
}

// load reads the configuration and builds the logger. Flags that belong to
// a single subcommand are applied by that subcommand.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Paths.Database = a.dbPath
	}
	if a.logJSON {
		cfg.Logging.JSON = true
	}
	a.cfg = cfg.ExpandPaths()

	a.logger = logging.New(logging.Options{
		Level:         a.cfg.Logging.Level,
		Verbose:       a.verbose,
		JSON:          a.cfg.Logging.JSON,
		RedactSecrets: a.cfg.Logging.RedactSecrets,
		Writer:        a.stderr,
	})
	slog.SetDefault(a.logger)
	ui.ConfigureColor(a.stdout, a.noColor)
	return nil
}

// openStore opens the history database. Scans run without history when it
// cannot be opened, so a failure is only logged.
func (a *app) openStore(ctx context.Context) *store.Store {
	if a.cfg.Paths.Database == "" {
		return nil
	}
	st, err := store.Open(ctx, a.cfg.Paths.Database, store.WithLogger(a.logger))
	if err != nil {
		a.logger.WarnContext(ctx, "scan history disabled",
			slog.String("path", a.cfg.Paths.Database),
			slog.String("error", err.Error()))
		return nil
	}
	if st.ReadOnly() {
		ui.PrintWarning(a.stderr, fmt.Sprintf("Database %s is read-only; history will not be saved.", st.Path()))
	}
	return st
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(a.stdout, "%s %s\n", defaults.ToolName, defaults.Version)
		},
	}
}
