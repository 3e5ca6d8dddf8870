/**
 * @description
 * This file contains the core business logic entry point for the marketplace.
 * The `Service` struct coordinates the repository, the session signer, the
 * payment processor client and the optional Redis-backed cache and limiter.
 *
 * Key features:
 * - Accounts and sessions (accounts.go).
 * - Listings and lead purchases (marketplace.go).
 * - Subscriptions, payments and the processor webhook (billing.go).
 * - Notifications (notifications.go) and admin moderation (moderation.go).
 *
 * @dependencies
 * - internal/auth, internal/domain, internal/store: identity, models and data access.
 * - pkg/stripeclient: payment intent creation and webhook verification.
 */

package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/tmasaiti/zimproperty/internal/auth"
	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/internal/store"
	"github.com/tmasaiti/zimproperty/pkg/stripeclient"
)

// PaymentIntentCreator creates processor payment intents.
type PaymentIntentCreator interface {
	CreatePaymentIntent(ctx context.Context, params stripeclient.PaymentIntentParams) (*stripeclient.PaymentIntent, error)
}

// RateLimiter counts attempts per scope and subject inside a window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// PropertyCache stores browse results keyed by filter.
type PropertyCache interface {
	Get(ctx context.Context, filter domain.PropertyFilter) ([]domain.Property, bool, error)
	Set(ctx context.Context, filter domain.PropertyFilter, properties []domain.Property) error
	Invalidate(ctx context.Context) error
}

// Service provides the core business logic for the marketplace.
type Service struct {
	repo     store.Repository
	signer   *auth.SessionSigner
	exchange string

	payments      PaymentIntentCreator
	webhookSecret string

	cache       PropertyCache
	limiter     RateLimiter
	loginPerMin int
	now         func() time.Time
}

// NewService creates a new marketplace service instance.
func NewService(repo store.Repository, signer *auth.SessionSigner, exchange string) *Service {
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = domain.EventExchange
	}
	return &Service{
		repo:     repo,
		signer:   signer,
		exchange: exchange,
		now:      time.Now,
	}
}

// SetPaymentGateway wires the processor client and the webhook signing secret.
func (s *Service) SetPaymentGateway(payments PaymentIntentCreator, webhookSecret string) {
	s.payments = payments
	s.webhookSecret = strings.TrimSpace(webhookSecret)
}

// SetPropertyCache enables browse result caching.
func (s *Service) SetPropertyCache(cache PropertyCache) {
	s.cache = cache
}

// SetLoginRateLimiter enables login throttling at perMinute attempts per client.
func (s *Service) SetLoginRateLimiter(limiter RateLimiter, perMinute int) {
	s.limiter = limiter
	s.loginPerMin = perMinute
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Exchange is the topic exchange outbox events are staged for.
func (s *Service) Exchange() string {
	return s.exchange
}

func (s *Service) invalidatePropertyCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Printf("level=warn component=property_cache msg=\"cache invalidation failed\" err=%v", err)
	}
}
