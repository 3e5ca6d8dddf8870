package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/tmasaiti/zimproperty/internal/store"
	"github.com/tmasaiti/zimproperty/pkg/rabbitmq"
)

const (
	outboxBatchSize       = 50
	outboxPollInterval    = 1200 * time.Millisecond
	outboxStaleProcessing = 2 * time.Minute
	maxRetryDelaySeconds  = 300
)

var errMalformedOutboxPayload = errors.New("outbox payload is not valid JSON")

// OutboxStore is the slice of the repository the dispatcher drains.
type OutboxStore interface {
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]store.OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}

// OutboxDispatcher moves events staged in event_outbox to the broker. Events
// are written in the same transaction as the change that caused them, so a
// broker outage delays delivery but never loses an event.
type OutboxDispatcher struct {
	outbox OutboxStore
	dial   func() (rabbitmq.Publisher, error)
	pub    rabbitmq.Publisher
}

type flushResult struct {
	claimed   int
	published int
	failed    int
}

// NewOutboxDispatcher publishes to the RabbitMQ broker at rabbitURL.
func NewOutboxDispatcher(outbox OutboxStore, rabbitURL string) *OutboxDispatcher {
	return NewOutboxDispatcherWithPublisher(outbox, func() (rabbitmq.Publisher, error) {
		return rabbitmq.NewEventProducer(rabbitURL)
	})
}

// NewOutboxDispatcherWithPublisher opens its publisher lazily through dial and
// reopens it after any publish failure.
func NewOutboxDispatcherWithPublisher(outbox OutboxStore, dial func() (rabbitmq.Publisher, error)) *OutboxDispatcher {
	return &OutboxDispatcher{outbox: outbox, dial: dial}
}

// Run drains the outbox until ctx is cancelled. A full batch is followed
// immediately by another claim so a backlog clears without waiting on the ticker.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(outboxPollInterval)
	defer ticker.Stop()
	defer d.resetPublisher()

	for {
		result, err := d.flushOnce(ctx)
		if err != nil && ctx.Err() == nil {
			log.Printf("level=error component=outbox msg=\"flush failed\" err=%v", err)
		}
		if result.published > 0 || result.failed > 0 {
			log.Printf("level=info component=outbox msg=\"batch dispatched\" published=%d failed=%d", result.published, result.failed)
		}
		if err == nil && result.claimed == outboxBatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *OutboxDispatcher) flushOnce(ctx context.Context) (flushResult, error) {
	var result flushResult
	messages, err := d.outbox.ClaimOutboxMessages(ctx, outboxBatchSize, int(outboxStaleProcessing.Seconds()))
	if err != nil {
		return result, err
	}
	result.claimed = len(messages)

	for _, message := range messages {
		if err := d.deliver(ctx, message); err != nil {
			result.failed++
			retryAfter := retryDelaySeconds(message.Attempts)
			if errors.Is(err, errMalformedOutboxPayload) {
				retryAfter = maxRetryDelaySeconds
			}
			log.Printf("level=warn component=outbox msg=\"publish failed; scheduling retry\" id=%d routing_key=%s attempts=%d retry_after=%d err=%v",
				message.ID, message.RoutingKey, message.Attempts, retryAfter, err)
			if markErr := d.outbox.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error()); markErr != nil {
				log.Printf("level=error component=outbox msg=\"failed to mark message failed\" id=%d err=%v", message.ID, markErr)
			}
			continue
		}

		result.published++
		if err := d.outbox.MarkOutboxPublished(ctx, message.ID); err != nil {
			log.Printf("level=error component=outbox msg=\"failed to mark message published\" id=%d err=%v", message.ID, err)
		}
	}
	return result, nil
}

// deliver publishes the stored payload bytes unchanged.
func (d *OutboxDispatcher) deliver(ctx context.Context, message store.OutboxMessage) error {
	if !json.Valid(message.Payload) {
		return errMalformedOutboxPayload
	}
	if d.pub == nil {
		pub, err := d.dial()
		if err != nil {
			return err
		}
		d.pub = pub
	}
	if err := d.pub.Publish(ctx, message.Exchange, message.RoutingKey, json.RawMessage(message.Payload)); err != nil {
		d.resetPublisher()
		return err
	}
	return nil
}

func (d *OutboxDispatcher) resetPublisher() {
	if d.pub == nil {
		return
	}
	d.pub.Close()
	d.pub = nil
}

// retryDelaySeconds doubles per attempt: 1s before the first, capped at five minutes.
func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	if attempt >= 9 {
		return maxRetryDelaySeconds
	}
	return min(1<<attempt, maxRetryDelaySeconds)
}
