package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shridarpatil/queuebot/internal/config"
	"github.com/shridarpatil/queuebot/internal/metrics"
	"github.com/shridarpatil/queuebot/internal/notify"
	"github.com/shridarpatil/queuebot/internal/queue"
	"github.com/shridarpatil/queuebot/pkg/whatsapp"
	"github.com/zerodha/logf"
	"gorm.io/gorm"
)

// depthInterval is how often the queue depth gauge is refreshed.
const depthInterval = 15 * time.Second

// Worker processes notification jobs from the queue
type Worker struct {
	Config    *config.Config
	Log       logf.Logger
	Handler   queue.JobHandler
	Consumer  *queue.RedisConsumer
	Publisher *queue.Publisher
	Metrics   *metrics.Metrics
}

// Ensure Worker implements JobHandler interface
var _ queue.JobHandler = (*Worker)(nil)

// New creates a new Worker instance
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, m *metrics.Metrics, log logf.Logger) (*Worker, error) {
	consumer, err := queue.NewRedisConsumer(rdb, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	wa := whatsapp.NewWithTimeout(log, time.Duration(cfg.WhatsApp.TimeoutSecs)*time.Second)
	dispatcher := notify.NewDispatcher(cfg, db, rdb, wa, m, log)
	// The worker delivers; failed jobs are retried by the consumer.
	dispatcher.Queue = nil

	return &Worker{
		Config:    cfg,
		Log:       log,
		Handler:   dispatcher,
		Consumer:  consumer,
		Publisher: queue.NewPublisher(rdb, log),
		Metrics:   m,
	}, nil
}

// Run starts the worker and processes jobs until context is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.Log.Info("Worker starting")

	w.sampleDepth(ctx)
	go w.reportDepth(ctx)

	err := w.Consumer.Consume(ctx, w)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("consumer error: %w", err)
	}

	w.Log.Info("Worker stopped")
	return nil
}

// HandleNotificationJob delivers a single notification job
func (w *Worker) HandleNotificationJob(ctx context.Context, job *queue.Job) error {
	timeout := time.Duration(w.Config.Notifications.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	// each channel gets the timeout; webhook retries need extra room
	ctx, cancel := context.WithTimeout(ctx, 4*timeout)
	defer cancel()

	start := time.Now()
	if err := w.Handler.HandleNotificationJob(ctx, job); err != nil {
		return err
	}
	w.Log.Debug("Notification job delivered", "job_id", job.ID, "type", job.Type,
		"ticket_number", job.Ticket.TicketNumber, "took", time.Since(start).String())
	return nil
}

func (w *Worker) reportDepth(ctx context.Context) {
	ticker := time.NewTicker(depthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sampleDepth(ctx)
		}
	}
}

func (w *Worker) sampleDepth(ctx context.Context) {
	if w.Publisher == nil || w.Metrics == nil {
		return
	}
	n, err := w.Publisher.Depth(ctx)
	if err != nil {
		w.Log.Warn("Failed to read queue depth", "error", err)
		return
	}
	w.Metrics.SetQueueDepth(n)
}

// Close cleans up worker resources
func (w *Worker) Close() error {
	if w.Consumer != nil {
		return w.Consumer.Close()
	}
	return nil
}
