package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

// setupConsumer starts consuming the batch request queue with manual ACK
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.deliveries.Consume(w.consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.consumerTag),
	)

	return deliveries, nil
}

// parseBatchRequest decodes and validates a delivery body
func parseBatchRequest(body []byte) (domain.BatchRequest, error) {
	var req domain.BatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("%w: %v", domain.ErrInvalidBatchRequest, err)
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches batch requests to the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(w.jobsChan)

	w.logger.Info("Message dispatcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			req, err := parseBatchRequest(delivery.Body)
			if err != nil {
				w.logger.Error("Rejecting malformed batch request",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages go to the DLQ
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			select {
			case w.jobsChan <- &batchMessage{request: req, delivery: delivery}:
				w.logger.Debug("Batch request dispatched to worker pool",
					slog.String("request_id", req.RequestID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching batch request")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
