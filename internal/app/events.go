package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/internal/store"
	"github.com/tmasaiti/zimproperty/pkg/rabbitmq"
)

const fanoutTimeout = 30 * time.Second

// EventConsumer reacts to marketplace events delivered from the broker.
type EventConsumer struct {
	repo store.Repository
	now  func() time.Time
}

func NewEventConsumer(repo store.Repository) *EventConsumer {
	return &EventConsumer{repo: repo, now: time.Now}
}

// Bindings maps routing keys to handlers for rabbitmq.Consumer.ConsumeWithBindings.
func (c *EventConsumer) Bindings() map[string]func([]byte) bool {
	return map[string]func([]byte) bool{
		domain.RoutingPropertyCreated: c.HandlePropertyCreated,
	}
}

// HandlePropertyCreated notifies every agent with an active subscription about
// a new listing. Notifications carry a dedupe key so a redelivered event does
// not notify anyone twice. Returning false re-queues the event.
func (c *EventConsumer) HandlePropertyCreated(body []byte) bool {
	var event domain.PropertyCreatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=event_consumer msg=\"malformed property.created payload; dropping\" err=%v", err)
		return true
	}
	if event.PropertyID <= 0 {
		log.Printf("level=warn component=event_consumer msg=\"property.created without property id; dropping\"")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), fanoutTimeout)
	defer cancel()

	agentIDs, err := c.repo.ListActiveSubscriberIDs(ctx, c.now())
	if err != nil {
		log.Printf("level=error component=event_consumer msg=\"failed to list subscribers\" property_id=%d err=%v", event.PropertyID, err)
		return false
	}

	created := 0
	for _, agentID := range agentIDs {
		notification := newPropertyNotification(agentID, event)
		inserted, err := c.repo.CreateNotification(ctx, &notification)
		if err != nil {
			log.Printf("level=error component=event_consumer msg=\"failed to notify subscriber\" property_id=%d agent_id=%d err=%v", event.PropertyID, agentID, err)
			return false
		}
		if inserted {
			created++
		}
	}

	log.Printf("level=info component=event_consumer msg=\"new listing fanned out\" property_id=%d subscribers=%d created=%d", event.PropertyID, len(agentIDs), created)
	return true
}

// LocalPublisher delivers events to in-process handlers. It stands in for the
// broker when RABBITMQ_URL is not configured.
type LocalPublisher struct {
	handlers map[string]func([]byte) bool
}

var _ rabbitmq.Publisher = (*LocalPublisher)(nil)

func NewLocalPublisher(handlers map[string]func([]byte) bool) *LocalPublisher {
	return &LocalPublisher{handlers: handlers}
}

func (p *LocalPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	handler, ok := p.handlers[routingKey]
	if !ok {
		return nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if !handler(payload) {
		return errLocalHandlerFailed(routingKey)
	}
	return nil
}

func (p *LocalPublisher) Close() {}

type errLocalHandlerFailed string

func (e errLocalHandlerFailed) Error() string {
	return "local handler failed for routing key " + string(e)
}
