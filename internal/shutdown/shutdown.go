// Package shutdown provides coordinated shutdown for the worker's
// components. Components stop in reverse order of registration, so the
// transport server (registered last) drains before the stores beneath it
// close.
//
// Usage:
//
//	coord := shutdown.NewCoordinator(logger)
//	coord.Register("audit", shutdown.Func(store.Close))
//	coord.Register("server", server)
//	// On shutdown:
//	coord.Shutdown(ctx) // stops server first, then audit
package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Shutdowner is implemented by components participating in coordinated
// shutdown. Shutdown should respect the context's deadline and return
// ctx.Err() if it cannot complete in time.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Func adapts a plain close function into a Shutdowner.
type Func func() error

// Shutdown implements Shutdowner.
func (f Func) Shutdown(context.Context) error { return f() }

// component tracks a registered component for shutdown.
type component struct {
	name       string
	shutdowner Shutdowner
}

// Coordinator manages ordered shutdown of multiple components.
// Components are shut down in reverse order of registration (LIFO).
type Coordinator struct {
	components []component
	logger     *slog.Logger
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		logger: logger.With(slog.String("component", "shutdown")),
	}
}

// Register adds a component to be shut down. Components registered later
// (which may depend on earlier components) are shut down first.
func (c *Coordinator) Register(name string, s Shutdowner) {
	c.components = append(c.components, component{name: name, shutdowner: s})
	c.logger.Debug("registered shutdown handler", slog.String("handler", name))
}

// Shutdown stops all registered components in reverse order. The context's
// deadline applies to the entire sequence. A failing component does not stop
// the sequence; the first error is returned after all components have been
// attempted.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.logger.Info("starting coordinated shutdown",
		slog.Int("components", len(c.components)),
	)

	var firstErr error

	for i := len(c.components) - 1; i >= 0; i-- {
		comp := c.components[i]

		select {
		case <-ctx.Done():
			c.logger.Error("shutdown deadline exceeded",
				slog.String("remaining_component", comp.name),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("shutdown deadline exceeded at component %s: %w", comp.name, ctx.Err())
			}
			return firstErr
		default:
		}

		start := time.Now()
		err := comp.shutdowner.Shutdown(ctx)
		duration := time.Since(start)

		if err != nil {
			c.logger.Error("component shutdown failed",
				slog.String("handler", comp.name),
				slog.Duration("duration", duration),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to shutdown %s: %w", comp.name, err)
			}
			continue
		}

		c.logger.Info("component shutdown complete",
			slog.String("handler", comp.name),
			slog.Duration("duration", duration),
		)
	}

	return firstErr
}

// ComponentCount returns the number of registered components.
func (c *Coordinator) ComponentCount() int {
	return len(c.components)
}
