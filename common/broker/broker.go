package broker

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topic names for the saga event bus. Every participant publishes and
// subscribes using these constants so a typo never silently creates a
// second, unbound exchange.
const (
	InventoryCheck            = "inventory-check"
	InventoryResponse         = "inventory-response"
	CustomerCheck             = "customer-check"
	CustomerResponse          = "customer-response"
	PaymentRequest            = "payment-request"
	PaymentCompleted          = "payment-completed"
	PaymentFailed             = "payment-failed"
	CompensateInventory       = "compensate-inventory"
	InventoryCompensated      = "inventory-compensated"
	CustomerDeletionRequest   = "customer.deletion.request"
	CustomerDeletionResponse  = "customer.deletion.response"
	CustomerDeletionResult    = "customer.deletion.result"
	CustomerDeletionCompleted = "customer.deletion.completed"
)

// Topics lists every exchange that must exist before any service binds a
// queue to it. Declared once at Connect time so publish order across
// services never matters.
var Topics = []string{
	InventoryCheck,
	InventoryResponse,
	CustomerCheck,
	CustomerResponse,
	PaymentRequest,
	PaymentCompleted,
	PaymentFailed,
	CompensateInventory,
	InventoryCompensated,
	CustomerDeletionRequest,
	CustomerDeletionResponse,
	CustomerDeletionResult,
	CustomerDeletionCompleted,
}

// MaxRetryCount bounds in-process redelivery attempts before a message is
// handed off to its topic's dead letter queue.
const MaxRetryCount = 3

// DLX is the dead letter exchange every per-topic queue routes to once a
// message exhausts MaxRetryCount.
const DLX = "dlx"

// Connect dials RabbitMQ, opens a channel, and declares the DLX/DLQ and
// topic exchange topology shared by every participant. The returned close
// function shuts the channel down before the connection, in that order.
func Connect(user, pass, host, port string) (*amqp.Channel, func() error, error) {
	address := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)

	conn, err := amqp.Dial(address)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := createDLQAndDLX(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create DLQ: %w", err)
	}

	if err := createExchanges(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create exchanges: %w", err)
	}

	closeFn := func() error {
		if err := ch.Close(); err != nil {
			return err
		}
		return conn.Close()
	}

	return ch, closeFn, nil
}

// HandleRetry increments the delivery's x-retry-count header and either
// republishes it to the originating exchange with a linear backoff, or
// (past MaxRetryCount) nacks without requeue so RabbitMQ's native DLX
// routing takes over.
func HandleRetry(ch *amqp.Channel, d *amqp.Delivery) error {
	if d.Headers == nil {
		d.Headers = amqp.Table{}
	}

	retryCount, ok := d.Headers["x-retry-count"].(int64)
	if !ok {
		retryCount = 0
	}
	retryCount++
	d.Headers["x-retry-count"] = retryCount

	log.Printf("retrying delivery on %s, retry count: %d", d.RoutingKey, retryCount)

	if retryCount >= MaxRetryCount {
		log.Printf("max retries reached for %s, routing to %s.dlq", d.RoutingKey, d.RoutingKey)
		return d.Nack(false, false)
	}

	time.Sleep(time.Second * time.Duration(retryCount))

	return ch.PublishWithContext(
		context.Background(),
		d.Exchange,
		d.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Headers:      d.Headers,
			Body:         d.Body,
			DeliveryMode: amqp.Persistent,
		},
	)
}

func createDLQAndDLX(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(DLX, "direct", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare DLX exchange: %w", err)
	}

	for _, topic := range Topics {
		dlq := topic + ".dlq"
		_, err := ch.QueueDeclare(dlq, true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to declare DLQ %s: %w", dlq, err)
		}

		if err := ch.QueueBind(dlq, topic, DLX, false, nil); err != nil {
			return fmt.Errorf("failed to bind DLQ %s to DLX: %w", dlq, err)
		}
	}

	return nil
}

func createExchanges(ch *amqp.Channel) error {
	for _, topic := range Topics {
		err := ch.ExchangeDeclare(topic, "direct", true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to declare %s exchange: %w", topic, err)
		}
	}
	return nil
}
