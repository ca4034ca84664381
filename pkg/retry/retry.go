// Package retry runs an operation until it succeeds, a permanent error is
// returned, the attempts run out or the context ends.
//
// Consent verification uses it with a constant delay: DNS records and
// uploaded files often take a few seconds to become visible.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy defines the backoff algorithm.
type Strategy int

const (
	// Constant waits Delay between every attempt.
	Constant Strategy = iota
	// Linear waits Delay * attempt.
	Linear
	// Exponential waits Delay * 2^(attempt-1).
	Exponential
)

// Config controls retry behaviour.
type Config struct {
	Attempts int           // total attempts including the first; <= 0 means one
	Delay    time.Duration // base delay between attempts
	MaxDelay time.Duration // cap on a single delay; 0 means uncapped
	Strategy Strategy
	Jitter   bool // +/-25% on each delay

	// OnRetry is called before each wait with the 1-based attempt that
	// just failed and the delay that follows.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// ConstantConfig returns a config with attempts spaced delay apart.
func ConstantConfig(attempts int, delay time.Duration) Config {
	return Config{Attempts: attempts, Delay: delay, Strategy: Constant}
}

// PermanentError stops the loop; Do returns the wrapped error.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Do calls fn with the 1-based attempt number until it returns nil.
// It returns the last error when attempts run out, the unwrapped error of
// a PermanentError, or ctx.Err() when the context ends while waiting.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context, attempt int) error) error {
	attempts := max(cfg.Attempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		if attempt == attempts {
			break
		}

		delay := Delay(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}

// Delay returns the wait after the given failed attempt (1-based).
func Delay(cfg Config, attempt int) time.Duration {
	attempt = max(attempt, 1)
	var d time.Duration
	switch cfg.Strategy {
	case Linear:
		d = cfg.Delay * time.Duration(attempt)
	case Exponential:
		d = cfg.Delay * time.Duration(math.Pow(2, float64(attempt-1)))
	default:
		d = cfg.Delay
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if cfg.Jitter && d > 0 {
		if quarter := int64(d) / 4; quarter > 0 {
			j := time.Duration(rand.Int64N(quarter))
			if rand.IntN(2) == 0 {
				d += j
			} else {
				d -= j
			}
		}
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
