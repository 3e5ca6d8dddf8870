package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/internal/store"
)

type fanoutRepoStub struct {
	store.Repository

	subscribers   []int64
	listErr       error
	dedupe        map[string]bool
	notifications []domain.Notification
}

func (s *fanoutRepoStub) ListActiveSubscriberIDs(ctx context.Context, now time.Time) ([]int64, error) {
	return s.subscribers, s.listErr
}

func (s *fanoutRepoStub) CreateNotification(ctx context.Context, notification *domain.Notification) (bool, error) {
	if notification.DedupeKey != nil {
		if s.dedupe[*notification.DedupeKey] {
			return false, nil
		}
		s.dedupe[*notification.DedupeKey] = true
	}
	s.notifications = append(s.notifications, *notification)
	return true, nil
}

func propertyCreatedBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(domain.PropertyCreatedEvent{
		PropertyID: 10,
		SellerID:   2,
		Type:       domain.PropertyLand,
		Location:   "Ruwa",
		Price:      "20000.00",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestHandlePropertyCreated_NotifiesEachSubscriberOnce(t *testing.T) {
	repo := &fanoutRepoStub{subscribers: []int64{5, 6}, dedupe: map[string]bool{}}
	consumer := NewEventConsumer(repo)
	body := propertyCreatedBody(t)

	if !consumer.HandlePropertyCreated(body) {
		t.Fatal("expected ack")
	}
	if !consumer.HandlePropertyCreated(body) {
		t.Fatal("expected ack on redelivery")
	}

	if len(repo.notifications) != 2 {
		t.Fatalf("expected 2 notifications after redelivery, got %d", len(repo.notifications))
	}
	first := repo.notifications[0]
	if first.UserID != 5 || first.Type != domain.NotificationNewProperty {
		t.Fatalf("unexpected notification %+v", first)
	}
	if first.LinkURL == nil || *first.LinkURL != "/agent/property/10" {
		t.Fatalf("unexpected link %v", first.LinkURL)
	}
	if want := "A new land property is available in Ruwa for $20000.00."; first.Message != want {
		t.Fatalf("unexpected message %q", first.Message)
	}
}

func TestHandlePropertyCreated_RequeuesOnStoreError(t *testing.T) {
	repo := &fanoutRepoStub{listErr: errors.New("db down"), dedupe: map[string]bool{}}
	if NewEventConsumer(repo).HandlePropertyCreated(propertyCreatedBody(t)) {
		t.Fatal("expected nack so the event is redelivered")
	}
}

func TestHandlePropertyCreated_DropsMalformedPayload(t *testing.T) {
	repo := &fanoutRepoStub{dedupe: map[string]bool{}}
	consumer := NewEventConsumer(repo)
	if !consumer.HandlePropertyCreated([]byte("{not json")) {
		t.Fatal("expected malformed payload to be acked and dropped")
	}
	if !consumer.HandlePropertyCreated([]byte(`{"seller_id":2}`)) {
		t.Fatal("expected payload without property id to be acked and dropped")
	}
}

func TestLocalPublisher_RoutesByKey(t *testing.T) {
	var received []byte
	publisher := NewLocalPublisher(map[string]func([]byte) bool{
		domain.RoutingPropertyCreated: func(body []byte) bool {
			received = body
			return true
		},
		domain.RoutingLeadPurchased: func([]byte) bool { return false },
	})

	payload := map[string]interface{}{"property_id": 10}
	if err := publisher.Publish(context.Background(), domain.EventExchange, domain.RoutingPropertyCreated, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(received) != `{"property_id":10}` {
		t.Fatalf("unexpected body %s", received)
	}
	if err := publisher.Publish(context.Background(), domain.EventExchange, domain.RoutingAgentRegistered, payload); err != nil {
		t.Fatalf("expected unbound key to be a no-op, got %v", err)
	}
	if err := publisher.Publish(context.Background(), domain.EventExchange, domain.RoutingLeadPurchased, payload); err == nil {
		t.Fatal("expected a failing handler to surface an error")
	}
}
