package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cuongbtq/report-autofill/internal/api/dto"
	"github.com/cuongbtq/report-autofill/internal/domain"
	"github.com/cuongbtq/report-autofill/internal/engine"
	"github.com/cuongbtq/report-autofill/internal/storage"
)

// HealthChecker reports whether the database is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BatchPublisher queues batch requests for the worker service
type BatchPublisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
	RequestRoutingKey() string
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Health    HealthChecker
	Profiles  *storage.ProfileStore
	Recorder  *storage.SubmissionRecorder
	Engine    *engine.Engine
	Publisher BatchPublisher // nil when RabbitMQ is disabled
	Gatherer  prometheus.Gatherer
}

// ProfileHandler handles profile-related HTTP requests
type ProfileHandler struct {
	logger   *slog.Logger
	profiles *storage.ProfileStore
	recorder *storage.SubmissionRecorder
}

// NewProfileHandler creates a new ProfileHandler instance
func NewProfileHandler(deps *Dependencies) *ProfileHandler {
	return &ProfileHandler{
		logger:   deps.Logger,
		profiles: deps.Profiles,
		recorder: deps.Recorder,
	}
}

// BatchHandler handles batch submission requests
type BatchHandler struct {
	logger    *slog.Logger
	engine    *engine.Engine
	publisher BatchPublisher
}

// NewBatchHandler creates a new BatchHandler instance
func NewBatchHandler(deps *Dependencies) *BatchHandler {
	return &BatchHandler{
		logger:    deps.Logger,
		engine:    deps.Engine,
		publisher: deps.Publisher,
	}
}

// HealthHandler serves GET /health
func HealthHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Warn("Health check failed", slog.String("error", err.Error()))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "report-api-service",
					"error":   err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "report-api-service",
		})
	}
}

// statusFor maps a store error to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidProfileID), errors.Is(err, domain.ErrInvalidFields):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *ProfileHandler) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.String("error", err.Error()))
	} else {
		h.logger.Debug(msg, slog.String("error", err.Error()))
	}
	c.JSON(status, dto.ErrorResponse{Error: err.Error()})
}
