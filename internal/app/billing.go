package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/internal/store"
	"github.com/tmasaiti/zimproperty/pkg/stripeclient"
)

const (
	webhookProvider = "stripe"
	maxPlanMonths   = 24

	eventPaymentSucceeded = "payment_intent.succeeded"
	eventPaymentFailed    = "payment_intent.payment_failed"
)

// WebhookResult describes how a verified webhook was handled.
type WebhookResult struct {
	Duplicate bool
}

func planDescription(plan domain.SubscriptionType) string {
	return "Subscription payment: " + string(plan)
}

// CreateCheckout creates a processor payment intent for a subscription plan
// and returns its client secret.
func (s *Service) CreateCheckout(ctx context.Context, agent *domain.User, req domain.CheckoutRequest) (string, error) {
	if s.payments == nil {
		return "", ErrPaymentsNotConfigured
	}
	if req.Months == 0 {
		req.Months = 1
	}

	var errs fieldErrors
	if !req.PlanType.Valid() {
		errs.add("planType", "Plan type must be pay_per_lead or unlimited")
	}
	if req.Price == nil || !req.Price.IsPositive() {
		errs.add("price", "Price must be greater than 0")
	}
	if req.Months < 1 || req.Months > maxPlanMonths {
		errs.add("months", fmt.Sprintf("Months must be between 1 and %d", maxPlanMonths))
	}
	if err := errs.err(); err != nil {
		return "", err
	}

	description := planDescription(req.PlanType)
	intent, err := s.payments.CreatePaymentIntent(ctx, stripeclient.PaymentIntentParams{
		Amount:      req.Price.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Currency:    "usd",
		Description: description,
		Metadata: map[string]string{
			"userId":      strconv.FormatInt(agent.ID, 10),
			"planType":    string(req.PlanType),
			"months":      strconv.Itoa(req.Months),
			"description": description,
		},
	})
	if err != nil {
		log.Printf("level=error component=billing msg=\"payment intent creation failed\" agent_id=%d err=%v", agent.ID, err)
		return "", &PaymentProviderError{Err: err}
	}

	log.Printf("level=info component=billing msg=\"payment intent created\" agent_id=%d intent_id=%s plan=%s", agent.ID, intent.ID, req.PlanType)
	return intent.ClientSecret, nil
}

// HandleWebhook verifies and applies a processor callback. Each event id takes
// effect at most once.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if s.webhookSecret == "" {
		return nil, &WebhookSignatureError{Err: errors.New("webhook signing secret is not configured")}
	}
	event, err := stripeclient.ConstructEvent(payload, signature, s.webhookSecret, s.now())
	if err != nil {
		return nil, &WebhookSignatureError{Err: err}
	}

	switch event.Type {
	case eventPaymentSucceeded:
		return s.applyPaymentSucceeded(ctx, event, payload)
	case eventPaymentFailed:
		inserted, err := s.repo.RecordWebhookEvent(ctx, store.WebhookEventRecord{
			Provider:  webhookProvider,
			EventID:   event.ID,
			EventType: event.Type,
			Payload:   payload,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("level=warn component=billing msg=\"payment failed\" event_id=%s duplicate=%t", event.ID, !inserted)
		return &WebhookResult{Duplicate: !inserted}, nil
	default:
		log.Printf("level=info component=billing msg=\"unhandled webhook event type\" event_id=%s type=%s", event.ID, event.Type)
		return &WebhookResult{}, nil
	}
}

func (s *Service) applyPaymentSucceeded(ctx context.Context, event *stripeclient.Event, payload []byte) (*WebhookResult, error) {
	intent, err := event.PaymentIntent()
	if err != nil {
		return nil, &WebhookSignatureError{Err: err}
	}

	ignore := func(reason string) (*WebhookResult, error) {
		log.Printf("level=warn component=billing msg=\"payment ignored\" event_id=%s intent_id=%s reason=%q", event.ID, intent.ID, reason)
		inserted, err := s.repo.RecordWebhookEvent(ctx, store.WebhookEventRecord{
			Provider:  webhookProvider,
			EventID:   event.ID,
			EventType: event.Type,
			Payload:   payload,
		})
		if err != nil {
			return nil, err
		}
		return &WebhookResult{Duplicate: !inserted}, nil
	}

	agentID, err := strconv.ParseInt(strings.TrimSpace(intent.Metadata["userId"]), 10, 64)
	if err != nil || agentID <= 0 {
		return ignore("missing userId metadata")
	}
	plan := domain.SubscriptionType(intent.Metadata["planType"])
	if !plan.Valid() {
		return ignore("unknown planType metadata")
	}
	months, err := strconv.Atoi(strings.TrimSpace(intent.Metadata["months"]))
	if err != nil || months < 1 {
		months = 1
	}

	user, err := s.repo.FindUserByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ignore("user not found")
		}
		return nil, err
	}
	if user.Role != domain.RoleAgent {
		return ignore("user is not an agent")
	}

	description := strings.TrimSpace(intent.Description)
	if description == "" {
		description = strings.TrimSpace(intent.Metadata["description"])
	}
	if description == "" {
		description = planDescription(plan)
	}

	sub, duplicate, err := s.repo.ActivateSubscriptionFromWebhook(ctx, store.WebhookActivationParams{
		Provider:        webhookProvider,
		EventID:         event.ID,
		EventType:       event.Type,
		Payload:         payload,
		AgentID:         agentID,
		PlanType:        plan,
		Months:          months,
		Amount:          decimal.New(intent.Amount, -2),
		PaymentIntentID: intent.ID,
		Description:     description,
		Now:             s.now(),
		Notification:    subscriptionActivatedNotification,
		Exchange:        s.exchange,
	})
	if err != nil {
		return nil, err
	}
	if duplicate {
		log.Printf("level=info component=billing msg=\"duplicate webhook ignored\" event_id=%s", event.ID)
		return &WebhookResult{Duplicate: true}, nil
	}

	log.Printf("level=info component=billing msg=\"subscription activated\" agent_id=%d subscription_id=%d end_date=%s",
		agentID, sub.ID, sub.EndDate.Format("2006-01-02"))
	return &WebhookResult{}, nil
}

// SelectSubscription sets the agent's plan directly. Only pay_per_lead may be
// chosen this way; unlimited is sold through checkout.
func (s *Service) SelectSubscription(ctx context.Context, agent *domain.User, req domain.SelectSubscriptionRequest) (*domain.Subscription, error) {
	if req.Type == "" || req.Price == nil || req.Months == 0 {
		return nil, badRequest("Type, price and months are required")
	}

	var errs fieldErrors
	if !req.Type.Valid() {
		errs.add("type", "Type must be pay_per_lead or unlimited")
	}
	if !req.Price.IsPositive() {
		errs.add("price", "Price must be greater than 0")
	}
	if req.Months < 1 || req.Months > maxPlanMonths {
		errs.add("months", fmt.Sprintf("Months must be between 1 and %d", maxPlanMonths))
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	if req.Type == domain.SubscriptionUnlimited {
		return nil, ErrUnlimitedRequiresCheckout
	}

	return s.repo.SelectSubscription(ctx, store.SelectSubscriptionParams{
		AgentID: agent.ID,
		Type:    req.Type,
		Price:   *req.Price,
		EndDate: s.now().AddDate(0, req.Months, 0),
	})
}

// CurrentSubscription returns the agent's active subscription.
func (s *Service) CurrentSubscription(ctx context.Context, agent *domain.User) (*domain.Subscription, error) {
	return s.repo.FindActiveSubscription(ctx, agent.ID)
}

// TopUp records a completed payment. Agent payments credit the prepaid balance.
func (s *Service) TopUp(ctx context.Context, user *domain.User, req domain.TopUpRequest) (*domain.Payment, error) {
	var errs fieldErrors
	if req.Amount == nil || !req.Amount.IsPositive() {
		errs.add("amount", "Amount must be greater than 0")
	}
	if !req.Method.Valid() {
		errs.add("method", "Method must be one of ecocash, bank_transfer, cash, stripe")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		UserID: user.ID,
		Amount: *req.Amount,
		Method: req.Method,
		Status: domain.PaymentStatusCompleted,
	}
	if description := strings.TrimSpace(req.Description); description != "" {
		payment.Description = &description
	}

	if err := s.repo.CreatePaymentAndCredit(ctx, payment, user.Role == domain.RoleAgent); err != nil {
		return nil, err
	}
	log.Printf("level=info component=billing msg=\"payment recorded\" user_id=%d payment_id=%d amount=%s method=%s",
		user.ID, payment.ID, payment.Amount.StringFixed(2), payment.Method)
	return payment, nil
}

// PaymentHistory returns the caller's payments, newest first.
func (s *Service) PaymentHistory(ctx context.Context, user *domain.User) ([]domain.Payment, error) {
	return s.repo.ListPaymentsByUser(ctx, user.ID)
}
