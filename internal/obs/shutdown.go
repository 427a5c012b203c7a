package obs

import (
	"context"
	"sync"
	"time"
)

// GracefulShutdown runs registered teardown functions in LIFO order,
// bounded by a timeout, matching the source's "main thread delivers a
// stop signal, joins the master, then runs deinit and the report
// generator" shutdown sequence.
type GracefulShutdown struct {
	mu      sync.Mutex
	fns     []func() error
	timeout time.Duration
	log     *Logger
}

// NewGracefulShutdown creates a shutdown manager with the given bound.
func NewGracefulShutdown(timeout time.Duration, log *Logger) *GracefulShutdown {
	if log == nil {
		log = Default("shutdown")
	}
	return &GracefulShutdown{timeout: timeout, log: log}
}

// Register adds a teardown step. Steps run in reverse registration order.
func (g *GracefulShutdown) Register(fn func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fns = append(g.fns, fn)
}

// Run executes every registered step, in LIFO order, sequentially (each
// step may depend on state the previous step tore down, so steps are
// not parallelized the way independent component shutdowns would be).
func (g *GracefulShutdown) Run(ctx context.Context) error {
	g.mu.Lock()
	fns := make([]func() error, len(g.fns))
	copy(fns, g.fns)
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var first error
		for i := len(fns) - 1; i >= 0; i-- {
			if err := fns[i](); err != nil {
				g.log.Error("shutdown step failed", Int("index", i), Err(err))
				if first == nil {
					first = err
				}
			}
		}
		done <- first
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		g.log.Warn("graceful shutdown timed out")
		return ctx.Err()
	}
}
