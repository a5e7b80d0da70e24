package mq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeAcknowledger фиксирует ack/nack, чтобы проверить подтверждения
// без брокера.
type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(_ uint64, _ bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	return f.Nack(0, false, requeue)
}

func capturedBody(t *testing.T, payload AnalysisCapturedPayload) []byte {
	t.Helper()
	body, err := json.Marshal(Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeAnalysisCaptured,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return body
}

func newTestConsumer(handler CapturedHandler) *CapturedConsumer {
	return NewCapturedConsumer(nil, slog.New(slog.DiscardHandler), handler, 1)
}

func TestConsumerHandleAcksOnSuccess(t *testing.T) {
	analysisID := uuid.New()

	var got AnalysisCapturedPayload
	c := newTestConsumer(func(_ context.Context, payload AnalysisCapturedPayload) error {
		got = payload
		return nil
	})

	ack := &fakeAcknowledger{}
	c.handle(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         capturedBody(t, AnalysisCapturedPayload{AnalysisID: analysisID, Status: "completed"}),
	})

	if !ack.acked || ack.nacked {
		t.Errorf("expected ack, got acked=%v nacked=%v", ack.acked, ack.nacked)
	}
	if got.AnalysisID != analysisID {
		t.Errorf("handler got analysis_id %s, want %s", got.AnalysisID, analysisID)
	}
}

func TestConsumerHandleRequeuesOnHandlerError(t *testing.T) {
	c := newTestConsumer(func(context.Context, AnalysisCapturedPayload) error {
		return errors.New("transient failure")
	})

	ack := &fakeAcknowledger{}
	c.handle(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         capturedBody(t, AnalysisCapturedPayload{AnalysisID: uuid.New()}),
	})

	// Ошибка обработчика — повторная доставка, не DLQ
	if !ack.nacked || !ack.requeue {
		t.Errorf("expected nack with requeue, got nacked=%v requeue=%v", ack.nacked, ack.requeue)
	}
}

func TestConsumerHandleDropsMalformedMessage(t *testing.T) {
	c := newTestConsumer(func(context.Context, AnalysisCapturedPayload) error {
		t.Error("handler must not be called for a malformed message")
		return nil
	})

	ack := &fakeAcknowledger{}
	c.handle(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte("not json"),
	})

	// Нечитаемое сообщение уходит в DLQ: nack без requeue
	if !ack.nacked || ack.requeue {
		t.Errorf("expected nack without requeue, got nacked=%v requeue=%v", ack.nacked, ack.requeue)
	}
}

func TestDecodeCapturedRejectsForeignType(t *testing.T) {
	body, err := json.Marshal(Message{
		ID:        uuid.New().String(),
		Type:      "something.else",
		Payload:   map[string]any{"analysis_id": uuid.New().String()},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}

	if _, err := decodeCaptured(body); err == nil {
		t.Error("expected error for foreign message type")
	}
}
