package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskRunner executes work that must outlive the request that scheduled it.
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context))
}

// BackgroundRunner runs each task on its own goroutine with a fresh deadline.
// Wait drains in-flight tasks on shutdown.
type BackgroundRunner struct {
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewBackgroundRunner(timeout time.Duration, logger *zap.Logger) *BackgroundRunner {
	return &BackgroundRunner{timeout: timeout, logger: logger}
}

func (r *BackgroundRunner) Go(name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("Background task panicked", zap.String("task", name), zap.Any("panic", rec))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		start := time.Now()
		fn(ctx)
		r.logger.Debug("Background task finished", zap.String("task", name), zap.Duration("duration", time.Since(start)))
	}()
}

// Wait blocks until every scheduled task has returned or ctx is done.
func (r *BackgroundRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background tasks still running: %w", ctx.Err())
	}
}

// InlineRunner runs tasks on the caller's goroutine.
type InlineRunner struct{}

func (InlineRunner) Go(_ string, fn func(ctx context.Context)) {
	fn(context.Background())
}
