package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder appends its name to a shared slice when shut down.
type recorder struct {
	name  string
	order *[]string
	err   error
}

func (r *recorder) Shutdown(context.Context) error {
	*r.order = append(*r.order, r.name)
	return r.err
}

func TestShutdownOrderIsLIFO(t *testing.T) {
	coord := NewCoordinator(nopLogger())
	var order []string

	coord.Register("first", &recorder{name: "first", order: &order})
	coord.Register("second", &recorder{name: "second", order: &order})
	coord.Register("third", &recorder{name: "third", order: &order})

	if err := coord.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("shutdown order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("shutdown order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestShutdownContinuesPastFailure(t *testing.T) {
	coord := NewCoordinator(nopLogger())
	var order []string
	boom := errors.New("boom")

	coord.Register("first", &recorder{name: "first", order: &order})
	coord.Register("failing", &recorder{name: "failing", order: &order, err: boom})

	err := coord.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Shutdown error = %v, want wrapped %v", err, boom)
	}
	// The earlier component must still have been shut down.
	if len(order) != 2 || order[1] != "first" {
		t.Errorf("shutdown order = %v, want failing then first", order)
	}
}

func TestShutdownDeadline(t *testing.T) {
	coord := NewCoordinator(nopLogger())
	var order []string

	coord.Register("never-reached", &recorder{name: "never-reached", order: &order})

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(5 * time.Millisecond)

	err := coord.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown error = %v, want deadline exceeded", err)
	}
	if len(order) != 0 {
		t.Errorf("components ran after deadline: %v", order)
	}
}

func TestFuncAdapter(t *testing.T) {
	coord := NewCoordinator(nopLogger())
	closed := false

	coord.Register("store", Func(func() error {
		closed = true
		return nil
	}))

	if err := coord.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !closed {
		t.Error("Func adapter was not invoked")
	}
	if coord.ComponentCount() != 1 {
		t.Errorf("ComponentCount = %d, want 1", coord.ComponentCount())
	}
}
