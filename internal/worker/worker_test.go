package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

type fakeEngine struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (e *fakeEngine) SubmitBatch(ctx context.Context, profileIDs []string, concurrency int) (*domain.BatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, profileIDs)
	return &domain.BatchResult{BatchID: "b1"}, e.err
}

func (e *fakeEngine) batches() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.calls...)
}

type fakeLister struct {
	profiles []domain.Profile
	err      error
}

func (l *fakeLister) List(ctx context.Context, filter domain.ProfileFilter) ([]domain.Profile, error) {
	return l.profiles, l.err
}

type fakeSource struct {
	ch  chan amqp.Delivery
	err error
}

func (s *fakeSource) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	return s.ch, s.err
}

type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	settled []settlement
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, ack: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) snapshot() []settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]settlement(nil), a.settled...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func delivery(t *testing.T, ack amqp.Acknowledger, tag uint64, body any) amqp.Delivery {
	t.Helper()
	var data []byte
	switch b := body.(type) {
	case string:
		data = []byte(b)
	default:
		var err error
		data, err = json.Marshal(b)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: data}
}

func TestNewWorker_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "consumer only", cfg: Config{Engine: &fakeEngine{}, Deliveries: &fakeSource{}}},
		{name: "schedule only", cfg: Config{Engine: &fakeEngine{}, Profiles: &fakeLister{}, Schedule: "@daily"}},
		{name: "missing engine", cfg: Config{Deliveries: &fakeSource{}}, wantErr: true},
		{name: "nothing to do", cfg: Config{Engine: &fakeEngine{}}, wantErr: true},
		{name: "schedule without lister", cfg: Config{Engine: &fakeEngine{}, Schedule: "@daily"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Logger = testLogger()
			_, err := NewWorker(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestWorker_ConsumesBatchRequests(t *testing.T) {
	engine := &fakeEngine{}
	source := &fakeSource{ch: make(chan amqp.Delivery, 3)}
	ack := &fakeAcknowledger{}

	w, err := NewWorker(&Config{
		Logger:      testLogger(),
		Engine:      engine,
		Deliveries:  source,
		Concurrency: 2,
	})
	require.NoError(t, err)

	source.ch <- delivery(t, ack, 1, domain.BatchRequest{RequestID: "r1", ProfileIDs: []string{"ali", "sara"}})
	source.ch <- delivery(t, ack, 2, "{not json")
	source.ch <- delivery(t, ack, 3, domain.BatchRequest{RequestID: "r3"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return len(ack.snapshot()) == 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	w.Stop()

	byTag := make(map[uint64]settlement)
	for _, s := range ack.snapshot() {
		byTag[s.tag] = s
	}
	assert.Equal(t, settlement{tag: 1, ack: true}, byTag[1])
	assert.Equal(t, settlement{tag: 2}, byTag[2])
	assert.Equal(t, settlement{tag: 3}, byTag[3])
	assert.Equal(t, [][]string{{"ali", "sara"}}, engine.batches())
}

func TestWorker_StorageFailureRequeues(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("batch b1 aborted: %w", domain.NewStorageError("get profile", errors.New("disk I/O error")))}
	source := &fakeSource{ch: make(chan amqp.Delivery, 1)}
	ack := &fakeAcknowledger{}

	w, err := NewWorker(&Config{Logger: testLogger(), Engine: engine, Deliveries: source})
	require.NoError(t, err)

	source.ch <- delivery(t, ack, 7, domain.BatchRequest{RequestID: "r7", ProfileIDs: []string{"ali"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return len(ack.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	w.Stop()

	assert.Equal(t, []settlement{{tag: 7, requeue: true}}, ack.snapshot())
}

func TestWorker_ConsumeError(t *testing.T) {
	w, err := NewWorker(&Config{
		Logger:     testLogger(),
		Engine:     &fakeEngine{},
		Deliveries: &fakeSource{err: errors.New("channel closed")},
	})
	require.NoError(t, err)

	err = w.Start(context.Background())
	assert.ErrorContains(t, err, "channel closed")
}

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "storage failure", err: domain.NewStorageError("append", errors.New("locked")), want: true},
		{name: "canceled", err: fmt.Errorf("batch b1: %w: %w", domain.ErrBatchCanceled, context.Canceled), want: true},
		{name: "invalid request", err: domain.ErrInvalidBatchRequest, want: false},
		{name: "unknown", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeue(tt.err))
		})
	}
}

func TestParseBatchRequest(t *testing.T) {
	req, err := parseBatchRequest([]byte(`{"request_id":"r1","profile_ids":["ali"],"concurrency":2}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", req.RequestID)
	assert.Equal(t, 2, req.Concurrency)

	_, err = parseBatchRequest([]byte(`[]`))
	assert.ErrorIs(t, err, domain.ErrInvalidBatchRequest)

	_, err = parseBatchRequest([]byte(`{"request_id":"r1","profile_ids":[]}`))
	assert.ErrorIs(t, err, domain.ErrInvalidBatchRequest)
}

func TestAutoSubmit(t *testing.T) {
	t.Run("submits every profile", func(t *testing.T) {
		engine := &fakeEngine{}
		w, err := NewWorker(&Config{
			Logger:   testLogger(),
			Engine:   engine,
			Profiles: &fakeLister{profiles: []domain.Profile{{ID: "ali"}, {ID: "sara"}}},
			Schedule: "@daily",
		})
		require.NoError(t, err)

		w.autoSubmit(context.Background())
		assert.Equal(t, [][]string{{"ali", "sara"}}, engine.batches())
	})

	t.Run("no profiles", func(t *testing.T) {
		engine := &fakeEngine{}
		w, err := NewWorker(&Config{Logger: testLogger(), Engine: engine, Profiles: &fakeLister{}, Schedule: "@daily"})
		require.NoError(t, err)

		w.autoSubmit(context.Background())
		assert.Empty(t, engine.batches())
	})

	t.Run("list failure", func(t *testing.T) {
		engine := &fakeEngine{}
		w, err := NewWorker(&Config{Logger: testLogger(), Engine: engine, Profiles: &fakeLister{err: errors.New("db down")}, Schedule: "@daily"})
		require.NoError(t, err)

		w.autoSubmit(context.Background())
		assert.Empty(t, engine.batches())
	})
}

func TestStartScheduler(t *testing.T) {
	w, err := NewWorker(&Config{Logger: testLogger(), Engine: &fakeEngine{}, Profiles: &fakeLister{}, Schedule: "not a schedule"})
	require.NoError(t, err)

	err = w.Start(context.Background())
	assert.ErrorContains(t, err, "invalid auto submit schedule")

	w, err = NewWorker(&Config{Logger: testLogger(), Engine: &fakeEngine{}, Profiles: &fakeLister{}, Schedule: "@every 1h"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	cancel()
	require.NoError(t, <-done)
	w.Stop()
}
