// Package cli holds process-level plumbing for the wpscout command:
// signal handling and exit codes.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ErrInterrupted is the cancellation cause recorded when SIGINT or SIGTERM
// arrives.
var ErrInterrupted = errors.New("cli: interrupted")

// SignalContext returns a context cancelled with cause ErrInterrupted on
// SIGINT/SIGTERM. If a second signal arrives within gracePeriod the
// process exits with ExitInterrupted. Calling the returned cancel func
// stops watching for signals, including during the grace period.
//
// Usage:
//
//	ctx, cancel := cli.SignalContext(context.Background(), 5*time.Second, os.Stderr)
//	defer cancel()
func SignalContext(parent context.Context, gracePeriod time.Duration, w io.Writer) (context.Context, context.CancelFunc) {
	return signalContextWithNotifier(parent, gracePeriod, w, nil, nil)
}

// sigChan, if non-nil, overrides the real signal channel.
// exitFn, if non-nil, overrides os.Exit.
func signalContextWithNotifier(
	parent context.Context,
	gracePeriod time.Duration,
	w io.Writer,
	sigChan chan os.Signal,
	exitFn func(int),
) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	ownChannel := sigChan == nil
	if ownChannel {
		sigChan = make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	}
	if exitFn == nil {
		exitFn = os.Exit
	}
	if w == nil {
		w = io.Discard
	}

	stop := make(chan struct{})
	var stopOnce sync.Once

	go func() {
		defer func() {
			if ownChannel {
				signal.Stop(sigChan)
			}
		}()
		select {
		case <-sigChan:
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Interrupt received, finishing the scan record (press Ctrl+C again to force quit)...")
			cancel(ErrInterrupted)

			timer := time.NewTimer(gracePeriod)
			defer timer.Stop()
			select {
			case <-sigChan:
				exitFn(ExitInterrupted)
			case <-timer.C:
			case <-stop:
			}
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		cancel(context.Canceled)
		stopOnce.Do(func() { close(stop) })
	}
}

// Interrupted reports whether ctx was cancelled by a signal.
func Interrupted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrInterrupted)
}
