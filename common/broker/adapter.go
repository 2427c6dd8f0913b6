package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Adapter is the event bus adapter (component A): it serializes payloads
// to JSON, attaches the shared publish auth token, and declares the
// per-topic queue + DLX wiring each subscriber needs.
type Adapter struct {
	ch        *amqp.Channel
	authToken string
	logger    *slog.Logger
}

func NewAdapter(ch *amqp.Channel, authToken string, logger *slog.Logger) *Adapter {
	return &Adapter{ch: ch, authToken: authToken, logger: logger}
}

// Publish sends payload as JSON to topic with the bearer token attached.
// Subscribers trust the broker and ignore the token; it exists so a
// misconfigured publisher is at least visible in the headers.
func (a *Adapter) Publish(ctx context.Context, topic string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}

	headers := InjectTraceContext(ctx)
	headers["x-publish-auth-token"] = a.authToken

	err = a.ch.PublishWithContext(ctx, topic, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Headers:      headers,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	a.logger.Debug("published event", slog.String("topic", topic))
	return nil
}

// Handler processes one delivered envelope. Returning an error signals an
// infrastructure failure — the message is retried/DLQ'd. Business-level
// rejections must be recorded in local state and the handler must return
// nil so the broker never redelivers them (§4.1's handler contract).
type Handler func(ctx context.Context, body []byte) error

// Subscribe declares queueName bound to topic (with DLX routing already in
// place from Connect), and dispatches every delivery to handler. Acks on
// success, runs the common retry/backoff/DLQ path on handler error.
func (a *Adapter) Subscribe(queueName, topic string, handler Handler) error {
	_, err := a.ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": DLX,
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	if err := a.ch.QueueBind(queueName, topic, topic, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s to %s: %w", queueName, topic, err)
	}

	msgs, err := a.ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", queueName, err)
	}

	go func() {
		for d := range msgs {
			ctx := ExtractTraceContext(context.Background(), d.Headers)
			if err := handler(ctx, d.Body); err != nil {
				a.logger.Error("handler failed, retrying", slog.String("topic", topic), slog.Any("error", err))
				if rerr := HandleRetry(a.ch, &d); rerr != nil {
					a.logger.Error("retry dispatch failed", slog.String("topic", topic), slog.Any("error", rerr))
				}
				continue
			}
			d.Ack(false)
		}
	}()

	return nil
}

// DecodePayload unmarshals body into v, transparently unwrapping a
// CloudEvents-style {"data": ...} envelope when present, with "data" as
// either a nested object or a JSON-encoded string (§4.1, §6).
func DecodePayload(body []byte, v interface{}) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
		var asString string
		if err := json.Unmarshal(envelope.Data, &asString); err == nil {
			return json.Unmarshal([]byte(asString), v)
		}
		return json.Unmarshal(envelope.Data, v)
	}
	return json.Unmarshal(body, v)
}
