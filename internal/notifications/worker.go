package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	BatchSize         int
	PollInterval      time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	NumWorkers        int
	SendTimeout       time.Duration
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:         100,
		PollInterval:      time.Second,
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        5 * time.Minute,
		BackoffMultiplier: 2.0,
		NumWorkers:        2,
		SendTimeout:       15 * time.Second,
	}
}

// Worker delivers queued notifications.
type Worker struct {
	config     WorkerConfig
	queue      *Queue
	dispatcher *Dispatcher
	renderer   *Renderer
	now        func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a new notification worker.
func NewWorker(config WorkerConfig, queue *Queue, dispatcher *Dispatcher, renderer *Renderer) *Worker {
	return &Worker{
		config:     config,
		queue:      queue,
		dispatcher: dispatcher,
		renderer:   renderer,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting notification worker",
		"workers", w.config.NumWorkers,
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Stop stops all workers and drops whatever is still queued.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()

	if pending := w.queue.Close(); len(pending) > 0 {
		slog.Warn("dropping undelivered notifications", "count", len(pending))
		for _, item := range pending {
			recordNotificationSent(string(item.Channel.Type), "dropped")
		}
	}
	slog.Info("notification worker stopped")
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processBatch(ctx, workerID)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context, workerID int) {
	items := w.queue.FetchReady(w.now(), w.config.BatchSize)
	if len(items) == 0 {
		return
	}

	slog.Debug("processing notifications", "worker", workerID, "count", len(items))
	recordQueueFetched(len(items))

	for _, item := range items {
		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item *QueueItem) {
	ctx = ctxlog.With(ctx,
		"item_id", item.ID,
		"incident_id", item.IncidentID,
		"channel", item.Channel.Name,
	)
	logger := ctxlog.FromContext(ctx)

	channelType := item.Channel.Type
	start := time.Now()

	subject, body, err := w.renderer.Render(channelType, item.Payload)
	if err != nil {
		logger.Error("failed to render", "error", err)
		recordNotificationSent(string(channelType), "failed")
		return
	}

	notification := Notification{
		To:      item.Channel.Target,
		Subject: subject,
		Body:    body,
		Payload: &item.Payload,
	}

	sendCtx := ctx
	if w.config.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, w.config.SendTimeout)
		defer cancel()
	}

	err = w.dispatcher.SendToChannel(sendCtx, channelType, notification)
	duration := time.Since(start)

	if err != nil {
		w.handleSendError(ctx, item, err)
		return
	}

	recordNotificationSent(string(channelType), "success")
	recordNotificationDuration(string(channelType), duration)
	recordFinalAttempts(string(channelType), "success", item.Attempts+1)

	logger.Debug("notification sent", "duration", duration)
}

func (w *Worker) handleSendError(ctx context.Context, item *QueueItem, err error) {
	logger := ctxlog.FromContext(ctx)
	channelType := string(item.Channel.Type)
	item.Attempts++
	item.LastError = err.Error()

	logger.Warn("send failed",
		"attempt", item.Attempts,
		"max_attempts", item.MaxAttempts,
		"error", err,
	)

	if !isRetryable(err) {
		recordNotificationSent(channelType, "failed")
		recordFinalAttempts(channelType, "failed", item.Attempts)
		return
	}

	if item.Attempts >= item.MaxAttempts {
		logger.Error("notification failed",
			"error", fmt.Errorf("max attempts exceeded: %w", err),
		)
		recordNotificationSent(channelType, "failed")
		recordFinalAttempts(channelType, "failed", item.Attempts)
		return
	}

	item.NextAttemptAt = w.calculateNextAttempt(item.Attempts)
	if qErr := w.queue.Enqueue(item); qErr != nil {
		logger.Error("failed to schedule retry", "error", qErr)
		recordNotificationSent(channelType, "dropped")
		return
	}
	recordNotificationSent(channelType, "retry")

	logger.Info("notification scheduled for retry",
		"next_attempt", item.NextAttemptAt,
	)
}

func (w *Worker) calculateNextAttempt(attempt int) time.Time {
	backoff := float64(w.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= w.config.BackoffMultiplier
	}

	if backoff > float64(w.config.MaxBackoff) {
		backoff = float64(w.config.MaxBackoff)
	}

	return w.now().Add(time.Duration(backoff))
}

// isRetryable checks if an error is retryable. Unknown errors are retried.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}

// RetryableError wraps an error and marks it as retryable or not.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a retryable error.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError creates a non-retryable error.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}
