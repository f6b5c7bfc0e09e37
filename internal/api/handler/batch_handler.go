package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/report-autofill/internal/api/dto"
	"github.com/cuongbtq/report-autofill/internal/domain"
)

// CreateBatch handles POST /api/v1/batches
// Runs a batch inline, or queues it for the worker service when async is set
func (h *BatchHandler) CreateBatch(c *gin.Context) {
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if req.Async {
		h.enqueue(c, &req)
		return
	}

	result, err := h.engine.SubmitBatch(c.Request.Context(), req.ProfileIDs, req.Concurrency)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrBatchCanceled):
			h.logger.Warn("Batch canceled by client", slog.String("error", err.Error()))
			c.JSON(http.StatusRequestTimeout, gin.H{"error": err.Error(), "result": result})
		default:
			h.logger.Error("Batch aborted", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *BatchHandler) enqueue(c *gin.Context, req *dto.CreateBatchRequest) {
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "async batches require RabbitMQ"})
		return
	}

	msg := domain.BatchRequest{
		RequestID:   uuid.NewString(),
		ProfileIDs:  req.ProfileIDs,
		Concurrency: req.Concurrency,
		RequestedAt: time.Now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	body, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode batch request", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to encode batch request"})
		return
	}

	if err := h.publisher.PublishWithRetry(c.Request.Context(), h.publisher.RequestRoutingKey(), body, "application/json"); err != nil {
		h.logger.Error("Failed to queue batch request",
			slog.String("request_id", msg.RequestID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: "Failed to queue batch request"})
		return
	}

	h.logger.Info("Batch request queued",
		slog.String("request_id", msg.RequestID),
		slog.Int("profiles", len(msg.ProfileIDs)),
	)

	c.JSON(http.StatusAccepted, dto.QueuedBatchResponse{
		RequestID:  msg.RequestID,
		ProfileIDs: msg.ProfileIDs,
		Status:     "QUEUED",
	})
}
