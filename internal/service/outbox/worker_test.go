package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/metrics"
	"github.com/vladislavdragonenkov/warehouse/internal/storage/memory"
	"github.com/vladislavdragonenkov/warehouse/internal/warehouse"
)

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-1",
				AggregateType: "order",
				AggregateID:   "1",
				EventType:     domain.TimelineOrderConfirmed,
				Payload:       []byte(`{"status":"confirmed"}`),
			},
		},
	}
	publisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	if got := worker.ProcessOnce(context.Background()); got != 1 {
		t.Fatalf("expected 1 published message, got %d", got)
	}
	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if repo.sentIDs[0] != "msg-1" {
		t.Fatalf("expected sent id msg-1, got %s", repo.sentIDs[0])
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-2",
				AggregateType: "order",
				AggregateID:   "2",
				EventType:     domain.TimelineOrderCancelled,
				Payload:       []byte(`{"status":"cancelled"}`),
			},
		},
	}
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlqPublisher := &stubPublisher{}
	reg := prometheus.NewRegistry()

	worker := NewWorker(
		repo,
		publisher,
		WithDLQPublisher(dlqPublisher),
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(reg)),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	if got := worker.ProcessOnce(context.Background()); got != 0 {
		t.Fatalf("expected 0 published messages, got %d", got)
	}
	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 0 {
		t.Fatalf("expected 0 sent marks, got %d", got)
	}
	if got := len(repo.failedIDs); got != 1 {
		t.Fatalf("expected 1 failed mark, got %d", got)
	}
	if repo.failedIDs[0] != "msg-2" {
		t.Fatalf("expected failed id msg-2, got %s", repo.failedIDs[0])
	}
	if got := dlqPublisher.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(dlqPublisher.last().Payload, &envelope))
	assert.Equal(t, "msg-2", envelope["outbox_id"])
	assert.Equal(t, "2", envelope["aggregate_id"])
	assert.Contains(t, envelope["publish_error"], "broker unavailable")
	assert.Equal(t, map[string]any{"status": "cancelled"}, envelope["payload"])

	expected := `
# HELP warehouse_outbox_publish_attempts_total Total number of outbox publish attempts grouped by result.
# TYPE warehouse_outbox_publish_attempts_total counter
warehouse_outbox_publish_attempts_total{result="dlq"} 1
warehouse_outbox_publish_attempts_total{result="failed"} 1
warehouse_outbox_publish_attempts_total{result="retry"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "warehouse_outbox_publish_attempts_total"))
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-3",
				AggregateType: "order",
				AggregateID:   "3",
				EventType:     domain.TimelineOrderShipped,
				Payload:       []byte(`{"status":"shipped"}`),
			},
		},
	}
	publisher := &stubPublisher{
		sequenceErrors: []error{
			errors.New("attempt 1"),
			errors.New("attempt 2"),
			nil,
		},
	}

	worker := NewWorker(
		repo,
		publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
}

func TestWorker_ProcessOnce_PullError(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pullErr: errors.New("db down")}
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher)

	assert.Zero(t, worker.ProcessOnce(context.Background()))
	assert.Zero(t, publisher.calls())
}

func TestWorker_ProcessOnce_CancelledContext(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{{ID: "msg-4", Payload: []byte(`{}`)}}}
	publisher := &stubPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Zero(t, NewWorker(repo, publisher).ProcessOnce(ctx))
	assert.Zero(t, publisher.calls())
	assert.Empty(t, repo.sentIDs)
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	worker := NewWorker(nil, nil, WithRetryBaseDelay(10*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, worker.retryBackoff(1))
	assert.Equal(t, 20*time.Millisecond, worker.retryBackoff(2))
	assert.Equal(t, 40*time.Millisecond, worker.retryBackoff(3))

	huge := NewWorker(nil, nil, WithRetryBaseDelay(time.Duration(1<<62)))
	assert.Equal(t, time.Duration(1<<63-1), huge.retryBackoff(4))

	disabled := NewWorker(nil, nil, WithRetryBaseDelay(-time.Second))
	assert.Zero(t, disabled.retryBackoff(5))
}

func TestWorker_DefaultsForInvalidOptions(t *testing.T) {
	t.Parallel()

	worker := NewWorker(nil, nil,
		WithPollInterval(0),
		WithBatchSize(-1),
		WithMaxAttempts(0),
		nil,
	)
	assert.Equal(t, defaultPollInterval, worker.pollInterval)
	assert.Equal(t, defaultBatchSize, worker.batchSize)
	assert.Equal(t, defaultMaxAttempts, worker.maxAttempts)
	assert.NotNil(t, worker.logger)
}

func TestWorker_PublishesEventsFromMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()

	err := warehouse.Within(ctx, store, func(ops warehouse.Operations) error {
		customer, err := ops.CreateCustomer(ctx, "Bradley Pitt", "bradley@gmail.com")
		if err != nil {
			return err
		}
		table, err := ops.CreateProduct(ctx, "Table", 10, 1000.0)
		if err != nil {
			return err
		}
		order, err := ops.CreateOrder(ctx, customer.ID, []int64{table.ID})
		if err != nil {
			return err
		}
		_, err = ops.ConfirmOrder(ctx, order.ID)
		return err
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	publisher := &stubPublisher{}
	worker := NewWorker(store.Outbox(), publisher,
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(reg)),
		WithRetryBaseDelay(0),
	)

	assert.Equal(t, 2, worker.ProcessOnce(ctx))
	assert.Equal(t, []string{domain.TimelineOrderCreated, domain.TimelineOrderConfirmed}, publisher.eventTypes())

	stats, err := store.Outbox().Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
	assert.Zero(t, worker.ProcessOnce(ctx))

	expected := `
# HELP warehouse_outbox_pending_records Current number of pending records in transactional outbox.
# TYPE warehouse_outbox_pending_records gauge
warehouse_outbox_pending_records 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "warehouse_outbox_pending_records"))
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{}
	publisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_Run_DisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewWorker(&stubOutboxRepo{}, nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker must return immediately")
	}
}

type stubOutboxRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	pullErr   error
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pullErr != nil {
		return nil, s.pullErr
	}
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(context.Context) (domain.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.OutboxStats{
		PendingCount: len(s.pending),
	}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
	published      []domain.OutboxMessage
}

func (s *stubPublisher) Publish(event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		if err == nil {
			s.published = append(s.published, event)
		}
		return err
	}
	if s.err == nil {
		s.published = append(s.published, event)
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.published) == 0 {
		return domain.OutboxMessage{}
	}
	return s.published[len(s.published)-1]
}

func (s *stubPublisher) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.published))
	for _, event := range s.published {
		types = append(types, event.EventType)
	}
	return types
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)

func TestDecodeDeadLetter(t *testing.T) {
	t.Parallel()

	letter, err := DecodeDeadLetter([]byte(`{"outbox_id":"m-1","aggregate_type":"order","aggregate_id":"5","event_type":"order.created","payload":{"order_id":5},"publish_error":"boom"}`))
	require.NoError(t, err)
	assert.Equal(t, "boom", letter.PublishError)

	msg := letter.Message()
	assert.Equal(t, "m-1", msg.ID)
	assert.Equal(t, "5", msg.AggregateID)
	assert.Equal(t, domain.TimelineOrderCreated, msg.EventType)
	assert.JSONEq(t, `{"order_id":5}`, string(msg.Payload))

	for _, raw := range []string{`not json`, `{"payload":{}}`, `{"outbox_id":"m-2"}`} {
		_, err := DecodeDeadLetter([]byte(raw))
		assert.Error(t, err, raw)
	}
}
