package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const soldOutQueueName = "slots.soldout"

// Publisher pushes sold-out notifications to the broker. Messages are
// persistent and the queue durable so notifications survive broker restarts.
type Publisher struct {
	url string
}

func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

// PublishSoldOut publishes one SlotSoldOutEvent to the slots.soldout queue.
// Errors are returned so the caller can log and move on; a failed
// notification must never fail the slot mutation it rode along with.
func (p *Publisher) PublishSoldOut(ctx context.Context, event SlotSoldOutEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel open failed: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive
	// broker restarts.
	if _, err := ch.QueueDeclare(
		soldOutQueueName, // name
		true,             // durable
		false,            // autoDelete
		false,            // exclusive
		false,            // noWait
		nil,              // args
	); err != nil {
		return fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sold-out event failed: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",               // default exchange
		soldOutQueueName, // routing key = queue name
		false,            // mandatory
		false,            // immediate
		pub,
	); err != nil {
		return fmt.Errorf("rabbitmq publish failed: %w", err)
	}

	log.Printf("notify: published sold-out for slot %s (%s %s)", event.SlotID, event.SlotDate, event.SlotTime)
	return nil
}
