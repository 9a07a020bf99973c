// Package broadcast delivers messages to many recipients at a fixed pace and
// keeps a persistent ledger of every run. Delivery is sequential: the
// messaging channel throttles senders, so pacing is a correctness concern,
// not an optimization.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	defaultDelay         = 100 * time.Millisecond
	defaultProgressEvery = 10
)

// Sender delivers one message to one recipient over the messaging channel.
type Sender interface {
	Send(ctx context.Context, externalID int64, text string) error
}

// Target identifies one recipient of a dispatch run.
type Target struct {
	UserID     int64
	ExternalID int64
}

// Progress is a snapshot of a running dispatch. Final is true exactly once
// per run, after the last target has been attempted.
type Progress struct {
	RunID  string
	Sent   int
	Failed int
	Done   int
	Total  int
	Final  bool
}

// Summary is the terminal outcome of a dispatch run.
type Summary struct {
	RunID  string
	Sent   int
	Failed int
	Total  int
}

// Job describes one dispatch run.
type Job struct {
	RunID   string
	Text    string
	Targets []Target

	// TextFor overrides Text per target when set. Used for personalized
	// deliveries such as assignment notifications.
	TextFor func(tg Target) string

	// OnDelivered runs after each successful send.
	OnDelivered func(ctx context.Context, tg Target)

	// OnFailed runs after each failed send attempt.
	OnFailed func(ctx context.Context, tg Target, err error)

	// OnProgress observes periodic snapshots plus exactly one final snapshot.
	// A periodic snapshot fires after every Nth successful send, except when
	// that send was the last target: the final snapshot follows immediately
	// and covers it.
	OnProgress func(p Progress)
}

// Dispatcher runs broadcast jobs one target at a time with a fixed delay
// between attempts.
type Dispatcher struct {
	sender Sender
	delay  time.Duration
	every  int
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher) error

// WithDelay sets the minimum pause between consecutive send attempts.
// Zero disables pacing.
func WithDelay(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) error {
		if d < 0 {
			return ErrInvalidInput
		}
		dp.delay = d
		return nil
	}
}

// WithProgressEvery sets how many successful sends separate periodic
// progress snapshots.
func WithProgressEvery(n int) DispatcherOption {
	return func(dp *Dispatcher) error {
		if n <= 0 {
			return ErrInvalidInput
		}
		dp.every = n
		return nil
	}
}

// WithLogger sets the dispatch logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(dp *Dispatcher) error {
		if l == nil {
			return ErrInvalidInput
		}
		dp.logger = l
		return nil
	}
}

// NewDispatcher constructs a Dispatcher with the default 100ms pacing.
func NewDispatcher(sender Sender, opts ...DispatcherOption) (*Dispatcher, error) {
	if sender == nil {
		return nil, ErrInvalidInput
	}
	d := &Dispatcher{
		sender: sender,
		delay:  defaultDelay,
		every:  defaultProgressEvery,
		logger: slog.Default(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// NewRunID returns a sortable unique id for a dispatch run.
func NewRunID() string {
	return ulid.Make().String()
}

// Run executes the job to completion and returns its summary. A canceled
// context stops pacing early; the remaining targets are counted as failed.
// Run never returns before the final progress snapshot has been observed.
func (d *Dispatcher) Run(ctx context.Context, job Job) Summary {
	total := len(job.Targets)
	sum := Summary{RunID: job.RunID, Total: total}

	if total == 0 {
		d.finish(job, &sum)
		return sum
	}

	started := time.Now()
	runsTotal.Inc()
	runsInFlight.Inc()
	defer runsInFlight.Dec()

	for i, tg := range job.Targets {
		if i > 0 && d.delay > 0 {
			if err := d.sleep(ctx, d.delay); err != nil {
				sum.Failed += total - i
				d.logger.Warn("broadcast interrupted",
					"run_id", job.RunID, "done", i, "total", total, "error", err)
				break
			}
		}

		text := job.Text
		if job.TextFor != nil {
			text = job.TextFor(tg)
		}
		if err := d.sender.Send(ctx, tg.ExternalID, text); err != nil {
			sum.Failed++
			sendsTotal.WithLabelValues("error").Inc()
			d.logger.Warn("broadcast send failed",
				"run_id", job.RunID, "external_id", tg.ExternalID, "error", err)
			if job.OnFailed != nil {
				job.OnFailed(ctx, tg, err)
			}
			continue
		}

		sum.Sent++
		sendsTotal.WithLabelValues("ok").Inc()
		if job.OnDelivered != nil {
			job.OnDelivered(ctx, tg)
		}
		if job.OnProgress != nil && sum.Sent%d.every == 0 && i+1 < total {
			job.OnProgress(Progress{
				RunID: job.RunID,
				Sent:  sum.Sent, Failed: sum.Failed,
				Done: i + 1, Total: total,
			})
		}
	}

	runDuration.Observe(time.Since(started).Seconds())
	d.finish(job, &sum)

	d.logger.Info("broadcast finished",
		"run_id", job.RunID, "sent", sum.Sent, "failed", sum.Failed, "total", sum.Total)
	return sum
}

func (d *Dispatcher) finish(job Job, sum *Summary) {
	if job.OnProgress == nil {
		return
	}
	job.OnProgress(Progress{
		RunID: job.RunID,
		Sent:  sum.Sent, Failed: sum.Failed,
		Done: sum.Sent + sum.Failed, Total: sum.Total,
		Final: true,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
