package outcomes

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rafaeljc/arbiter/internal/config"
	"github.com/rafaeljc/arbiter/internal/observability"
	"github.com/rafaeljc/arbiter/internal/validation"
)

// Job status labels.
const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusInvalid = "invalid"
)

// Advancer applies an advance-created event. *decision.Engine satisfies it.
type Advancer interface {
	AdvanceCreated(ctx context.Context, runID, outcomeID string) error
}

// Worker drains the outcome queue.
type Worker struct {
	logger     *slog.Logger
	config     config.WorkerConfig
	queue      *Queue
	deadLetter *Queue
	advancer   Advancer
}

// NewWorker creates a worker. Events that stay failing after
// cfg.MaxRetries retries, and payloads that cannot be decoded, are moved to
// cfg.DeadLetterKey when it is set and dropped otherwise.
func NewWorker(logger *slog.Logger, cfg config.WorkerConfig, queue *Queue, advancer Advancer) *Worker {
	validation.AssertNotNil(queue, "outcome queue")
	validation.AssertNotNil(advancer, "advancer")
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 5 * time.Second
	}

	w := &Worker{
		logger:   logger,
		config:   cfg,
		queue:    queue,
		advancer: advancer,
	}
	if cfg.DeadLetterKey != "" {
		w.deadLetter = NewQueue(queue.client, cfg.DeadLetterKey)
	}
	return w
}

// Run pops and applies events until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting outcome worker",
		slog.String("queue", w.queue.Key()),
		slog.String("pop_timeout", w.config.PopTimeout.String()),
	)

	for {
		if ctx.Err() != nil {
			w.logger.Info("outcome worker stopping...")
			return nil
		}

		w.observeDepth(ctx)

		msg, ok, err := w.queue.Pop(ctx, w.config.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("queue pop failed", slog.String("error", err.Error()))
			w.sleep(ctx, w.config.BaseRetryDelay)
			continue
		}
		if !ok {
			continue
		}

		w.Process(ctx, msg)
	}
}

// Process applies a single raw message, retrying transient failures.
func (w *Worker) Process(ctx context.Context, msg string) {
	start := time.Now()
	defer func() {
		observability.OutcomeJobDuration.Observe(time.Since(start).Seconds())
	}()

	event, err := DecodeMessage(msg)
	if err != nil {
		w.logger.Warn("discarding invalid outcome message", slog.String("message", msg), slog.String("error", err.Error()))
		observability.OutcomeJobsTotal.WithLabelValues(statusInvalid).Inc()
		w.deadLetterMessage(ctx, msg)
		return
	}

	log := w.logger.With(slog.String("run_id", event.RunID), slog.String("outcome_id", event.OutcomeID))

	delay := w.config.BaseRetryDelay
	for attempt := 0; ; attempt++ {
		err = w.advancer.AdvanceCreated(ctx, event.RunID, event.OutcomeID)
		if err == nil {
			observability.OutcomeJobsTotal.WithLabelValues(statusSuccess).Inc()
			log.Info("advance linked", slog.Int("attempts", attempt+1))
			return
		}
		if attempt >= w.config.MaxRetries || errors.Is(err, context.Canceled) {
			break
		}
		log.Warn("advance failed, retrying", slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
		if !w.sleep(ctx, delay) {
			break
		}
		delay *= 2
	}

	observability.OutcomeJobsTotal.WithLabelValues(statusFail).Inc()
	log.Error("advance failed permanently", slog.String("error", err.Error()))
	w.deadLetterMessage(ctx, msg)
}

func (w *Worker) deadLetterMessage(ctx context.Context, msg string) {
	if w.deadLetter == nil {
		return
	}
	// The run context may already be cancelled during shutdown.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := w.deadLetter.push(pushCtx, msg); err != nil {
		w.logger.Error("failed to dead-letter outcome message", slog.String("message", msg), slog.String("error", err.Error()))
	}
}

func (w *Worker) observeDepth(ctx context.Context) {
	n, err := w.queue.Len(ctx)
	if err != nil {
		return
	}
	observability.OutcomeQueueDepth.Set(float64(n))
}

// sleep waits for d and reports false if ctx ended first.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
