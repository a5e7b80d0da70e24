package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// CapturedHandler обрабатывает событие analysis.captured.
// Ошибка возвращает сообщение в очередь для повторной доставки.
type CapturedHandler func(ctx context.Context, payload AnalysisCapturedPayload) error

// CapturedConsumer читает события analysis.captured из очереди
// analyses.captured с ручным подтверждением: успех — ack, ошибка
// обработчика — requeue, нечитаемое сообщение — nack без requeue
// (через DLQ-аргументы очереди уходит в dlq.processing).
//
// Жизненным циклом управляет ctx, переданный в Start.
type CapturedConsumer struct {
	conn     *Connection
	logger   *slog.Logger
	handler  CapturedHandler
	prefetch int
}

// NewCapturedConsumer создаёт consumer событий analysis.captured.
func NewCapturedConsumer(conn *Connection, logger *slog.Logger, handler CapturedHandler, prefetch int) *CapturedConsumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &CapturedConsumer{
		conn:     conn,
		logger:   logger,
		handler:  handler,
		prefetch: prefetch,
	}
}

// Start блокируется до отмены ctx. При обрыве соединения ждёт
// восстановления и подписывается заново.
func (c *CapturedConsumer) Start(ctx context.Context) error {
	for {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "queue", QueueAnalysesCaptured, "error", err)
			if err := c.awaitReconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("consuming analysis.captured events",
			"queue", QueueAnalysesCaptured,
			"prefetch", c.prefetch,
		)

		if err := c.drain(ctx, deliveries); err != nil {
			return err
		}

		// Канал доставок закрылся — соединение оборвалось.
		c.logger.Warn("delivery channel closed, waiting for reconnect")
		if err := c.awaitReconnect(ctx); err != nil {
			return err
		}
	}
}

func (c *CapturedConsumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(QueueAnalysesCaptured),
		"",    // consumer tag
		false, // auto-ack выключен, подтверждаем вручную
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", QueueAnalysesCaptured, err)
	}

	return deliveries, nil
}

func (c *CapturedConsumer) awaitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.ReconnectNotify():
		return nil
	}
}

// drain обрабатывает доставки, пока канал открыт. nil — канал закрыт
// брокером, ctx.Err() — остановка потребителя.
func (c *CapturedConsumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *CapturedConsumer) handle(ctx context.Context, d amqp.Delivery) {
	payload, err := decodeCaptured(d.Body)
	if err != nil {
		c.logger.Error("dropping malformed analysis.captured event",
			"error", err,
			"body", string(d.Body),
		)
		d.Nack(false, false)
		return
	}

	c.logger.Debug("received analysis.captured event", "analysis_id", payload.AnalysisID)

	if err := c.handler(ctx, payload); err != nil {
		c.logger.Error("analysis.captured handler failed",
			"analysis_id", payload.AnalysisID,
			"error", err,
		)
		d.Nack(false, true)
		return
	}

	d.Ack(false)
}

// decodeCaptured разбирает конверт Message и payload события.
// Payload внутри конверта — произвольный JSON, поэтому он
// доразбирается через повторный marshal.
func decodeCaptured(body []byte) (AnalysisCapturedPayload, error) {
	var payload AnalysisCapturedPayload

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return payload, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if msg.Type != MessageTypeAnalysisCaptured {
		return payload, fmt.Errorf("unexpected message type %q", msg.Type)
	}

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return payload, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("unmarshal payload: %w", err)
	}

	return payload, nil
}
