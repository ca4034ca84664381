// Package check defines the contract every vulnerability check satisfies and
// the tagged result of the mandatory detection phase.
//
// Checks receive the scan's shared Env: one probe.Client (and so one rate
// budget) and one workerpool.Pool for their internal fan-out. A check never
// builds its own HTTP client. Non-mandatory checks treat a transport error
// on any single probe as "no evidence" and carry on; only a Detector's
// transport errors reach the orchestrator.
package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/probe"
	"github.com/waftester/wpscout/pkg/workerpool"
)

// Check is one independent vulnerability module.
type Check interface {
	// Name is a stable identifier such as "plugins".
	Name() string
	// Scan probes target and returns its findings. It returns an error only
	// when the check cannot run at all.
	Scan(ctx context.Context, target Target, env *Env) ([]finding.Finding, error)
}

// Env is what a check may use while scanning.
type Env struct {
	Probe    *probe.Client
	Pool     *workerpool.Pool
	Settings Settings
	Logger   *slog.Logger
}

// Log returns env's logger, or the default logger.
func (e *Env) Log() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Settings are the per-check tunables taken from the scan configuration.
type Settings struct {
	CommonPaths     []string
	CommonPlugins   []string
	CommonThemes    []string
	MaxPlugins      int
	MaxThemes       int
	MaxUsers        int
	CheckAuthorIDOR bool
	CheckRESTAPI    bool
}

// SettingsFrom copies the WordPress section of the configuration.
func SettingsFrom(wp config.WordPress) Settings {
	return Settings{
		CommonPaths:     slices.Clone(wp.CommonPaths),
		CommonPlugins:   slices.Clone(wp.CommonPlugins),
		CommonThemes:    slices.Clone(wp.CommonThemes),
		MaxPlugins:      wp.MaxPluginsCheck,
		MaxThemes:       wp.MaxThemesCheck,
		MaxUsers:        wp.MaxUsersCheck,
		CheckAuthorIDOR: wp.CheckAuthorIDOR,
		CheckRESTAPI:    wp.CheckRESTAPI,
	}
}

// CheckError reports a check that could not run.
type CheckError struct {
	Check string
	Err   error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("check %s: %v", e.Check, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }

// ErrPanic marks a CheckError recovered from a panic.
var ErrPanic = errors.New("check panicked")

// Func adapts a function to the Check interface.
type Func struct {
	ID string
	Fn func(ctx context.Context, target Target, env *Env) ([]finding.Finding, error)
}

// Name implements Check.
func (f Func) Name() string { return f.ID }

// Scan implements Check.
func (f Func) Scan(ctx context.Context, target Target, env *Env) ([]finding.Finding, error) {
	return f.Fn(ctx, target, env)
}

// PhaseDescriptor pairs a check with its display label and the number of
// requests it is expected to send. The estimate is only logged.
type PhaseDescriptor struct {
	Label             string
	Check             Check
	EstimatedRequests int
}

// Name returns the check's identifier.
func (d PhaseDescriptor) Name() string { return d.Check.Name() }
