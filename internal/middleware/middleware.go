package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pavelc4/aether-fetch/pkg/logger"
)

const slowHandler = 100 * time.Millisecond

type Handler func(ctx context.Context) error

type Middleware func(Handler) Handler

// Recover turns a panic into an error so one bad update cannot kill the
// process.
func Recover(next Handler) Handler {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered", "error", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return next(ctx)
	}
}

func Logger(name string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context) error {
			start := time.Now()
			err := next(ctx)

			duration := time.Since(start)
			switch {
			case err != nil:
				logger.ErrorWithDuration("Handler failed", start, "name", name, "error", err)
			case duration > slowHandler:
				logger.Info("Handler completed (slow)", "name", name, "duration", duration)
			default:
				logger.Debug("Handler completed", "name", name, "duration", duration)
			}
			return err
		}
	}
}

// Chain applies middlewares so that the first one listed runs outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Group runs update handlers in their own goroutines and can wait for the
// ones still in flight at shutdown.
type Group struct {
	wg sync.WaitGroup
}

func (g *Group) Go(ctx context.Context, name string, h Handler) {
	run := Chain(h, Logger(name), Recover)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		_ = run(ctx)
	}()
}

// Wait blocks until every handler has returned or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
