package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

type message struct {
	routingKey  string
	body        []byte
	contentType string
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, body []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message{routingKey: routingKey, body: body, contentType: contentType})
	return nil
}

func newTestPublisher(publisher Publisher) *ProgressPublisher {
	return NewProgressPublisher(&Config{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Publisher:  publisher,
		RoutingKey: "batch.progress",
	})
}

func TestProgressPublisher_PublishesInOrder(t *testing.T) {
	fake := &fakePublisher{}
	p := newTestPublisher(fake)

	at := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	statuses := []domain.JobStatus{
		domain.JobStatusPending,
		domain.JobStatusInFlight,
		domain.JobStatusSucceeded,
	}
	for i, status := range statuses {
		p.OnJobUpdate(domain.JobUpdate{
			BatchID:   "b1",
			ProfileID: "ali",
			Revision:  2,
			Attempt:   i,
			Status:    status,
			At:        at,
		})
	}
	p.Close()

	require.Len(t, fake.messages, 3)
	for i, msg := range fake.messages {
		assert.Equal(t, "batch.progress", msg.routingKey)
		assert.Equal(t, "application/json", msg.contentType)

		var update domain.JobUpdate
		require.NoError(t, json.Unmarshal(msg.body, &update))
		assert.Equal(t, statuses[i], update.Status)
		assert.Equal(t, "ali", update.ProfileID)
		assert.Equal(t, at, update.At)
	}
}

func TestEncodeUpdate(t *testing.T) {
	body, err := EncodeUpdate(domain.JobUpdate{
		BatchID:   "b1",
		ProfileID: "ali",
		Revision:  1,
		Attempt:   1,
		Status:    domain.JobStatusFailedRetryable,
		Detail:    "502 bad gateway",
		At:        time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"batch_id": "b1",
		"profile_id": "ali",
		"revision": 1,
		"attempt": 1,
		"status": "FAILED_RETRYABLE",
		"detail": "502 bad gateway",
		"at": "2025-03-14T10:00:00Z"
	}`, string(body))
}

func TestProgressPublisher_CloseIsIdempotent(t *testing.T) {
	fake := &fakePublisher{err: errors.New("channel closed")}
	p := newTestPublisher(fake)

	p.OnJobUpdate(domain.JobUpdate{BatchID: "b1", Status: domain.JobStatusPending})
	p.Close()
	p.Close()

	assert.NotPanics(t, func() {
		p.OnJobUpdate(domain.JobUpdate{BatchID: "b1", Status: domain.JobStatusSucceeded})
	})
	assert.Empty(t, fake.messages)
}
