package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartSoldOutConsumer connects to the broker, declares the slots.soldout
// queue and consumes it, appending one line per notification to
// logs/soldout.log. It runs a reconnect loop with capped dial backoff and
// returns only when ctx is cancelled. Bad payloads are rejected without
// requeue to avoid tight redelivery loops.
func StartSoldOutConsumer(ctx context.Context, url string) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("soldout-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(ctx, conn); err != nil {
			log.Printf("soldout-consumer: consume loop ended: %v; reconnecting", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("soldout-consumer: set QoS failed: %v", err)
	}

	if _, err := ch.QueueDeclare(soldOutQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(soldOutQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(d.Body); err != nil {
				log.Printf("soldout-consumer: handle message failed: %v", err)
				_ = d.Nack(false, false) // reject, do not requeue
				continue
			}
			_ = d.Ack(false)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func handleMessage(body []byte) error {
	var ev SlotSoldOutEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "soldout.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Slot sold out | slot_id=%s | experience_id=%s | date=%s | time=%s | capacity=%d\n",
		ev.SoldOutAt, ev.SlotID, ev.ExperienceID, ev.SlotDate, ev.SlotTime, ev.TotalCapacity)

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
