package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

var ErrRunnerClosed = errors.New("task runner closed")

// Runner executes detached background jobs. Each job gets its own error
// boundary and a context that outlives the request which spawned it.
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewRunner(logger *slog.Logger, timeout time.Duration) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Go starts fn on its own goroutine. Cancellation of parent does not stop
// the job; values carried by parent are kept.
func (r *Runner) Go(parent context.Context, name string, fn func(context.Context) error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	ctx := context.WithoutCancel(parent)
	go func() {
		defer r.wg.Done()
		r.run(ctx, name, fn)
	}()
	return nil
}

func (r *Runner) run(ctx context.Context, name string, fn func(context.Context) error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
				r.logger.Error("task_panic", "task", name, "panic", rec, "stack", string(debug.Stack()))
			}
		}()
		return fn(ctx)
	}()

	if err != nil {
		r.logger.Error("task_failed", "task", name, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return
	}
	r.logger.Debug("task_done", "task", name, "duration_ms", time.Since(start).Milliseconds())
}

// Wait blocks until every started job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown refuses new jobs and waits for running ones until ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
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
