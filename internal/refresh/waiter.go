package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// DefaultSettleDelay is the fixed wait used when no completion signal is
	// available. It is a guess at ingestion latency, not a guarantee.
	DefaultSettleDelay = 30 * time.Second
	// DefaultPollInterval is how often TaskWaiter checks the task state.
	DefaultPollInterval = time.Second
)

var (
	// ErrIngestionFailed reports that the ingestion task ended in the archive.
	ErrIngestionFailed = errors.New("refresh: ingestion task failed")
	// ErrNoCompletionSignal reports an Ack without a task to follow.
	ErrNoCompletionSignal = errors.New("refresh: no task id to wait on")
)

// FixedDelay waits a constant settling delay after the trigger. It is kept as
// a fallback for deployments where task state cannot be inspected.
type FixedDelay struct {
	Delay time.Duration
	after func(time.Duration) <-chan time.Time
}

// NewFixedDelay returns a FixedDelay waiter; non-positive delays use
// DefaultSettleDelay.
func NewFixedDelay(delay time.Duration) *FixedDelay {
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	return &FixedDelay{Delay: delay, after: time.After}
}

// Wait sleeps for the delay or until ctx is done.
func (w *FixedDelay) Wait(ctx context.Context, _ Ack) error {
	after := w.after
	if after == nil {
		after = time.After
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-after(w.Delay):
		return nil
	}
}

// TaskInspector reads queued task state; *asynq.Inspector satisfies it.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

// TaskWaiter follows the ingestion task in the queue until it completes or is
// archived, which is the completion signal the fixed delay only approximates.
type TaskWaiter struct {
	inspector TaskInspector
	interval  time.Duration
	timeout   time.Duration
	after     func(time.Duration) <-chan time.Time
}

// NewTaskWaiter polls inspector every interval for at most timeout.
func NewTaskWaiter(inspector TaskInspector, interval, timeout time.Duration) *TaskWaiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TaskWaiter{inspector: inspector, interval: interval, timeout: timeout, after: time.After}
}

// Wait returns nil once the task completed. A task that is no longer known to
// the queue is treated as completed, since completed tasks drop out once their
// retention expires.
func (w *TaskWaiter) Wait(ctx context.Context, ack Ack) error {
	if ack.TaskID == "" {
		return ErrNoCompletionSignal
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var lastErr error
	for {
		info, err := w.inspector.GetTaskInfo(ack.Queue, ack.TaskID)
		switch {
		case errors.Is(err, asynq.ErrTaskNotFound):
			return nil
		case err != nil:
			lastErr = err
		case info.State == asynq.TaskStateCompleted:
			return nil
		case info.State == asynq.TaskStateArchived:
			return fmt.Errorf("%w: %s", ErrIngestionFailed, info.LastErr)
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("refresh: waiting for task %s: %w (last inspector error: %v)", ack.TaskID, ctx.Err(), lastErr)
			}
			return fmt.Errorf("refresh: waiting for task %s: %w", ack.TaskID, ctx.Err())
		case <-w.after(w.interval):
		}
	}
}
