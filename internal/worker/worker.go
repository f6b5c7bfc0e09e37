// Package worker runs batches requested over RabbitMQ and on a cron schedule.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

// BatchRunner runs one batch to completion
type BatchRunner interface {
	SubmitBatch(ctx context.Context, profileIDs []string, concurrency int) (*domain.BatchResult, error)
}

// ProfileLister lists stored profiles for the scheduled auto submit
type ProfileLister interface {
	List(ctx context.Context, filter domain.ProfileFilter) ([]domain.Profile, error)
}

// DeliverySource starts a consumer on the batch request queue
type DeliverySource interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Engine      BatchRunner
	Profiles    ProfileLister
	Deliveries  DeliverySource // nil disables the queue consumer
	ConsumerTag string
	Concurrency int    // batches run at the same time
	Schedule    string // cron expression; empty disables auto submit
}

// Worker represents the background batch worker
type Worker struct {
	logger      *slog.Logger
	engine      BatchRunner
	profiles    ProfileLister
	deliveries  DeliverySource
	consumerTag string
	concurrency int
	schedule    string
	jobsChan    chan *batchMessage
	cron        *cron.Cron
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// batchMessage is one consumed batch request with its delivery handle
type batchMessage struct {
	request  domain.BatchRequest
	delivery amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) (*Worker, error) {
	if cfg.Engine == nil {
		return nil, errors.New("worker requires an engine")
	}
	if cfg.Deliveries == nil && cfg.Schedule == "" {
		return nil, errors.New("worker requires a delivery source or a schedule")
	}
	if cfg.Schedule != "" && cfg.Profiles == nil {
		return nil, errors.New("scheduled auto submit requires a profile lister")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	consumerTag := cfg.ConsumerTag
	if consumerTag == "" {
		consumerTag = "report-worker"
	}

	return &Worker{
		logger:      logger,
		engine:      cfg.Engine,
		profiles:    cfg.Profiles,
		deliveries:  cfg.Deliveries,
		consumerTag: consumerTag,
		concurrency: concurrency,
		schedule:    cfg.Schedule,
		jobsChan:    make(chan *batchMessage),
	}, nil
}

// Start begins consuming batch requests and, when configured, the auto
// submit schedule. It blocks until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Bool("consumer", w.deliveries != nil),
		slog.String("schedule", w.schedule),
	)

	if w.deliveries != nil {
		deliveries, err := w.setupConsumer()
		if err != nil {
			return err
		}

		w.spawnWorkerPool(ctx)

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.startMessageDispatcher(ctx, deliveries)
		}()
	}

	if w.schedule != "" {
		if err := w.startScheduler(ctx); err != nil {
			return err
		}
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop waits for running batches and scheduled runs to return. The
// context passed to Start must be canceled first.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		if w.cron != nil {
			<-w.cron.Stop().Done()
		}
		w.wg.Wait()
		w.logger.Info("Worker stopped")
	})
}
