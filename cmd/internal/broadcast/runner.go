package broadcast

import (
	"context"
	"log/slog"
	"sync"
)

// Runner executes detached jobs on a bounded pool. Dispatch runs outlive the
// request that triggered them, so they run here instead of on a raw
// goroutine: the pool caps concurrent runs and survives panics, and shutdown
// can wait for in-flight work.
type Runner struct {
	slots  chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRunner constructs a Runner allowing up to maxConcurrent jobs.
func NewRunner(maxConcurrent int, logger *slog.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		slots:  make(chan struct{}, maxConcurrent),
		logger: logger,
	}
}

// Go starts fn on the pool. It returns ErrBusy when all slots are taken and
// ErrClosed after Close has been called. fn runs detached from the caller.
func (r *Runner) Go(name string, fn func()) error {
	if r == nil || fn == nil {
		return ErrInvalidInput
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	select {
	case r.slots <- struct{}{}:
	default:
		r.mu.Unlock()
		return ErrBusy
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() { <-r.slots }()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("detached job panicked", "job", name, "panic", rec)
			}
		}()
		fn()
	}()
	return nil
}

// Close stops accepting jobs and waits for in-flight ones until ctx expires.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
