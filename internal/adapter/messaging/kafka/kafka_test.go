package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	messaging "github.com/GranFenrir/event-reservation-system-sub000/internal/adapter/messaging/kafka"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/services"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader hands out queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeHandler struct {
	mu       sync.Mutex
	errs     []error
	outcomes []domain.SettlementOutcome
}

func (h *fakeHandler) OnSettlement(_ context.Context, outcome domain.SettlementOutcome) (*services.SettlementResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.outcomes = append(h.outcomes, outcome)
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &services.SettlementResult{Record: domain.SettlementRecord{
		IdempotencyKey: outcome.IdempotencyKey,
		ReservationID:  outcome.ReservationID,
		Applied:        true,
		ResultStatus:   domain.ReservationConfirmed,
	}}, nil
}

func TestPublisher_Publish(t *testing.T) {
	writer := &fakeWriter{}
	publisher := messaging.NewPublisher(writer, zerolog.Nop())

	msg := domain.OutboxMessage{
		ID:          uuid.New(),
		AggregateID: uuid.New(),
		EventType:   domain.EventReservationConfirmed,
		Payload:     []byte(`{"type":"reservation.confirmed"}`),
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, publisher.Publish(context.Background(), msg))
	require.Len(t, writer.msgs, 1)

	out := writer.msgs[0]
	assert.Equal(t, msg.AggregateID.String(), string(out.Key))
	assert.Equal(t, msg.Payload, out.Value)
	require.NotEmpty(t, out.Headers)
	assert.Equal(t, "event-type", out.Headers[0].Key)
	assert.Equal(t, "reservation.confirmed", string(out.Headers[0].Value))
}

func TestPublisher_WriteError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("leader not available")}
	publisher := messaging.NewPublisher(writer, zerolog.Nop())

	err := publisher.Publish(context.Background(), domain.OutboxMessage{AggregateID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func settlementMessage(t *testing.T, offset int64, outcome domain.SettlementOutcome, headers ...kafka.Header) kafka.Message {
	t.Helper()

	body, err := json.Marshal(outcome)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(outcome.ReservationID.String()), Value: body, Headers: headers}
}

func runConsumer(t *testing.T, reader *fakeReader, handler *fakeHandler) {
	t.Helper()

	consumer := messaging.NewSettlementConsumer(reader, handler, messaging.ConsumerConfig{
		RetryInitial: time.Millisecond,
		RetryMax:     time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	select {
	case <-reader.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the queue")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestSettlementConsumer_CommitsProcessedMessages(t *testing.T) {
	resID := uuid.New()
	reader := newFakeReader(
		settlementMessage(t, 1, domain.SettlementOutcome{ReservationID: resID, Outcome: domain.SettlementSuccess, Amount: 100, IdempotencyKey: "pay-1"}),
		settlementMessage(t, 2, domain.SettlementOutcome{ReservationID: resID, Outcome: domain.SettlementFailure},
			kafka.Header{Key: "idempotency-key", Value: []byte("pay-2")}),
	)
	handler := &fakeHandler{}

	runConsumer(t, reader, handler)

	require.Len(t, handler.outcomes, 2)
	assert.Equal(t, "pay-1", handler.outcomes[0].IdempotencyKey)
	assert.Equal(t, "pay-2", handler.outcomes[1].IdempotencyKey, "key falls back to the header")
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func TestSettlementConsumer_SkipsPoisonMessages(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Offset: 7, Value: []byte("not json")},
		settlementMessage(t, 8, domain.SettlementOutcome{ReservationID: uuid.New(), Outcome: "MAYBE", IdempotencyKey: "k"}),
	)
	handler := &fakeHandler{}

	runConsumer(t, reader, handler)

	assert.Empty(t, handler.outcomes)
	assert.Equal(t, []int64{7, 8}, reader.committed)
}

func TestSettlementConsumer_RetriesTransientFailures(t *testing.T) {
	outcome := domain.SettlementOutcome{ReservationID: uuid.New(), Outcome: domain.SettlementSuccess, Amount: 1, IdempotencyKey: "pay-1"}
	reader := newFakeReader(settlementMessage(t, 3, outcome))
	handler := &fakeHandler{errs: []error{
		domain.Transient(errors.New("connection reset")),
		domain.Transient(errors.New("connection reset")),
		nil,
	}}

	runConsumer(t, reader, handler)

	assert.Len(t, handler.outcomes, 3)
	assert.Equal(t, []int64{3}, reader.committed)
}

func TestSettlementConsumer_CommitsRejectedOutcomes(t *testing.T) {
	outcome := domain.SettlementOutcome{ReservationID: uuid.New(), Outcome: domain.SettlementSuccess, Amount: 1, IdempotencyKey: "pay-1"}
	reader := newFakeReader(settlementMessage(t, 4, outcome))
	handler := &fakeHandler{errs: []error{domain.ErrIdempotencyConflict}}

	runConsumer(t, reader, handler)

	assert.Len(t, handler.outcomes, 1)
	assert.Equal(t, []int64{4}, reader.committed)
}
