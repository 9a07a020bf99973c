package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRunnerRunsJob(t *testing.T) {
	t.Parallel()

	r := NewRunner(2, discardLogger())

	done := make(chan struct{})
	if err := r.Go("job", func() { close(done) }); err != nil {
		t.Fatalf("Go: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("job did not run")
	}
}

func TestRunnerRejectsWhenFull(t *testing.T) {
	t.Parallel()

	r := NewRunner(1, discardLogger())

	release := make(chan struct{})
	started := make(chan struct{})
	if err := r.Go("blocker", func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Go: %v", err)
	}
	<-started

	if err := r.Go("second", func() {}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(release)
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The slot is free again, but the runner is closed.
	if err := r.Go("late", func() {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRunnerRecoversPanic(t *testing.T) {
	t.Parallel()

	r := NewRunner(1, discardLogger())

	if err := r.Go("boom", func() { panic("boom") }); err != nil {
		t.Fatalf("Go: %v", err)
	}
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The slot must have been released despite the panic.
	r2 := NewRunner(1, discardLogger())
	if err := r2.Go("a", func() { panic("x") }); err != nil {
		t.Fatalf("Go: %v", err)
	}
	_ = r2.Close(context.Background())
}

func TestRunnerCloseHonorsContext(t *testing.T) {
	t.Parallel()

	r := NewRunner(1, discardLogger())

	release := make(chan struct{})
	defer close(release)
	if err := r.Go("slow", func() { <-release }); err != nil {
		t.Fatalf("Go: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
