// Package workerpool provides the bounded goroutine pool that checks submit
// their per-probe work into. One pool is shared by every phase of a scan,
// so the number of probes in flight never exceeds the pool's capacity no
// matter how many checks fan out at once.
//
// Tasks must not submit into the pool they run on.
package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("workerpool: closed")

// Pool manages a fixed set of worker goroutines, started lazily.
type Pool struct {
	workers int32
	tasks   chan func()

	running atomic.Int32
	panics  atomic.Int64
	closed  atomic.Bool
	closeMu sync.RWMutex
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// New creates a pool with the given number of workers. workers <= 0 uses
// GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		workers: int32(workers),
		tasks:   make(chan func(), workers*4),
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger used to report recovered task panics.
func (p *Pool) WithLogger(l *slog.Logger) *Pool {
	if l != nil {
		p.logger = l
	}
	return p
}

// Submit queues task, blocking while the queue is full. It returns
// ctx.Err() if ctx ends first and ErrClosed if the pool is closed.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.spawn()

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) spawn() {
	for {
		running := p.running.Load()
		if running >= p.workers {
			return
		}
		if p.running.CompareAndSwap(running, running+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *Pool) worker() {
	defer func() {
		p.running.Add(-1)
		p.wg.Done()
	}()
	for task := range p.tasks {
		p.run(task)
	}
}

// run executes one task, containing any panic so the worker survives.
func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("workerpool task panicked", slog.Any("panic", r))
		}
	}()
	if task != nil {
		task()
	}
}

// Running returns the current number of running workers.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Cap returns the worker capacity.
func (p *Pool) Cap() int { return int(p.workers) }

// Waiting returns the number of queued tasks.
func (p *Pool) Waiting() int { return len(p.tasks) }

// Panics returns how many tasks panicked.
func (p *Pool) Panics() int64 { return p.panics.Load() }

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
	p.closeMu.Lock()
	if p.closed.Swap(true) {
		p.closeMu.Unlock()
		return
	}
	close(p.tasks)
	p.closeMu.Unlock()
	p.wg.Wait()
}

// Map applies fn to each item on the pool and returns results in input
// order. Items not yet submitted when ctx ends keep the zero value of R;
// tasks already queued still run and are awaited.
func Map[T, R any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) R) []R {
	results := make([]R, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		err := p.Submit(ctx, func() {
			defer wg.Done()
			results[i] = fn(ctx, item)
		})
		if err != nil {
			wg.Done()
			break
		}
	}
	wg.Wait()
	return results
}

// Filter returns the items for which fn reports true, in input order.
func Filter[T any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) bool) []T {
	keep := Map(ctx, p, items, fn)
	out := make([]T, 0, len(items))
	for i, item := range items {
		if keep[i] {
			out = append(out, item)
		}
	}
	return out
}
