// Package notify forwards job progress updates to the message broker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

const (
	contentTypeJSON   = "application/json"
	defaultBufferSize = 256
	publishTimeout    = 5 * time.Second
)

// Publisher sends one message to the broker
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Config holds progress publisher configuration
type Config struct {
	Logger     *slog.Logger
	Publisher  Publisher
	RoutingKey string
	BufferSize int
}

// ProgressPublisher publishes JobUpdates from a background goroutine so
// that a slow broker never stalls the engine. Updates are dropped when the
// buffer is full.
type ProgressPublisher struct {
	logger     *slog.Logger
	publisher  Publisher
	routingKey string
	updates    chan domain.JobUpdate
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewProgressPublisher creates the publisher and starts its send loop
func NewProgressPublisher(cfg *Config) *ProgressPublisher {
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}

	p := &ProgressPublisher{
		logger:     cfg.Logger,
		publisher:  cfg.Publisher,
		routingKey: cfg.RoutingKey,
		updates:    make(chan domain.JobUpdate, size),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// EncodeUpdate renders an update as the JSON message body
func EncodeUpdate(update domain.JobUpdate) ([]byte, error) {
	body, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job update: %w", err)
	}
	return body, nil
}

// OnJobUpdate queues an update for publishing
func (p *ProgressPublisher) OnJobUpdate(update domain.JobUpdate) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	select {
	case p.updates <- update:
	default:
		p.logger.Warn("Progress buffer full, dropping job update",
			slog.String("batch_id", update.BatchID),
			slog.String("profile_id", update.ProfileID),
			slog.String("status", string(update.Status)),
		)
	}
}

func (p *ProgressPublisher) run() {
	defer p.wg.Done()

	for update := range p.updates {
		body, err := EncodeUpdate(update)
		if err != nil {
			p.logger.Error("Failed to encode job update", slog.Any("error", err))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = p.publisher.Publish(ctx, p.routingKey, body, contentTypeJSON)
		cancel()

		if err != nil {
			p.logger.Warn("Failed to publish job update",
				slog.String("batch_id", update.BatchID),
				slog.String("profile_id", update.ProfileID),
				slog.Any("error", err),
			)
		}
	}
}

// Close stops accepting updates and waits until queued ones are sent
func (p *ProgressPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.updates)
	p.mu.Unlock()

	p.wg.Wait()
}
