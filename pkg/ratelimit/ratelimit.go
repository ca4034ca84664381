// Package ratelimit governs the request rate against a single target.
//
// A Limiter is a token bucket shared by every goroutine that probes the
// target. Callers reserve tokens under a short critical section and sleep
// outside of it, so many concurrent checks can consult the bucket without
// serializing on each other's wait time.
package ratelimit

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/waftester/wpscout/pkg/defaults"
)

// Limiter is a token bucket limiter. It is safe for concurrent use.
type Limiter struct {
	bucket *rate.Limiter
	rps    float64
	burst  int

	acquired  atomic.Int64
	delayed   atomic.Int64
	totalWait atomic.Int64 // nanoseconds
}

// DefaultBurst returns the burst capacity used when none is configured:
// twice the rate, but never fewer than defaults.BurstMin tokens.
func DefaultBurst(rps float64) int {
	b := int(2 * rps)
	if b < defaults.BurstMin {
		b = defaults.BurstMin
	}
	return b
}

// New creates a limiter allowing rps requests per second with bursts of up
// to burst requests. rps is clamped to defaults.RateMin; burst <= 0 selects
// DefaultBurst(rps). The bucket starts full.
func New(rps float64, burst int) *Limiter {
	if math.IsNaN(rps) || rps < defaults.RateMin {
		rps = defaults.RateMin
	}
	if burst <= 0 {
		burst = DefaultBurst(rps)
	}
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(rps), burst),
		rps:    rps,
		burst:  burst,
	}
}

// Rate returns the configured requests per second after clamping.
func (l *Limiter) Rate() float64 { return l.rps }

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int { return l.burst }

// TryAcquire reserves n tokens and returns how long the caller must wait
// before using them. It never blocks: when the bucket is short, the balance
// goes negative to hold the caller's slot and the deficit is returned as a
// wait of deficit/rate. The caller sleeps outside any lock.
func (l *Limiter) TryAcquire(n int) time.Duration {
	wait, _ := l.reserve(n)
	return wait
}

// reserve takes n tokens in chunks no larger than the burst, so requests
// bigger than the bucket still queue instead of being rejected.
func (l *Limiter) reserve(n int) (time.Duration, []*rate.Reservation) {
	if n <= 0 {
		return 0, nil
	}

	now := time.Now()
	var (
		wait time.Duration
		held []*rate.Reservation
	)
	for remaining := n; remaining > 0; {
		chunk := min(remaining, l.burst)
		r := l.bucket.ReserveN(now, chunk)
		if !r.OK() {
			break
		}
		held = append(held, r)
		if d := r.DelayFrom(now); d > wait {
			wait = d
		}
		remaining -= chunk
	}

	l.acquired.Add(int64(n))
	if wait > 0 {
		l.delayed.Add(1)
		l.totalWait.Add(int64(wait))
	}
	return wait, held
}

// Wait reserves n tokens and sleeps until they are usable or ctx is done.
// On cancellation the reservation is handed back to the bucket and the
// call is removed from Stats.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wait, held := l.reserve(n)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		now := time.Now()
		for _, r := range held {
			r.CancelAt(now)
		}
		l.acquired.Add(-int64(n))
		l.delayed.Add(-1)
		l.totalWait.Add(-int64(wait))
		return ctx.Err()
	}
}

// Stats is a point-in-time view of the limiter.
type Stats struct {
	Rate            float64
	Burst           int
	TokensAvailable float64 // negative while callers hold reservations
	Acquired        int64
	Delayed         int64
	TotalWait       time.Duration
}

// Stats returns current limiter statistics.
func (l *Limiter) Stats() Stats {
	return Stats{
		Rate:            l.rps,
		Burst:           l.burst,
		TokensAvailable: l.bucket.TokensAt(time.Now()),
		Acquired:        l.acquired.Load(),
		Delayed:         l.delayed.Load(),
		TotalWait:       time.Duration(l.totalWait.Load()),
	}
}
