package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

const subscriptionColumns = `id, agent_id, type, price, start_date, end_date, is_active, auto_renew`

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		sub     domain.Subscription
		subType string
	)
	err := row.Scan(&sub.ID, &sub.AgentID, &subType, &sub.Price, &sub.StartDate, &sub.EndDate, &sub.IsActive, &sub.AutoRenew)
	if err != nil {
		return nil, err
	}
	sub.Type = domain.SubscriptionType(subType)
	return &sub, nil
}

const paymentColumns = `id, user_id, amount, method, status, reference_id, description, created_at, subscription_id, lead_purchase_id`

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		payment domain.Payment
		method  string
	)
	err := row.Scan(
		&payment.ID,
		&payment.UserID,
		&payment.Amount,
		&method,
		&payment.Status,
		&payment.ReferenceID,
		&payment.Description,
		&payment.CreatedAt,
		&payment.SubscriptionID,
		&payment.LeadPurchaseID,
	)
	if err != nil {
		return nil, err
	}
	payment.Method = domain.PaymentMethod(method)
	return &payment, nil
}

func (r *PostgresRepository) FindActiveSubscription(ctx context.Context, agentID int64) (*domain.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE agent_id = $1 AND is_active
		LIMIT 1
	`, agentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func lockActiveSubscriptionTx(ctx context.Context, tx pgx.Tx, agentID int64) (*domain.Subscription, error) {
	sub, err := scanSubscription(tx.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE agent_id = $1 AND is_active
		FOR UPDATE
	`, agentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// SelectSubscription updates the agent's active subscription in place or
// creates one starting now.
func (r *PostgresRepository) SelectSubscription(ctx context.Context, params SelectSubscriptionParams) (*domain.Subscription, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := lockActiveSubscriptionTx(ctx, tx, params.AgentID)
	if err != nil {
		return nil, err
	}

	var sub *domain.Subscription
	if current != nil {
		sub, err = scanSubscription(tx.QueryRow(ctx, `
			UPDATE subscriptions SET type = $1, price = $2, end_date = $3
			WHERE id = $4
			RETURNING `+subscriptionColumns, string(params.Type), params.Price, params.EndDate, current.ID))
	} else {
		sub, err = scanSubscription(tx.QueryRow(ctx, `
			INSERT INTO subscriptions (agent_id, type, price, end_date, is_active, auto_renew)
			VALUES ($1, $2, $3, $4, TRUE, FALSE)
			RETURNING `+subscriptionColumns, params.AgentID, string(params.Type), params.Price, params.EndDate))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}

func insertWebhookEventTx(ctx context.Context, q querier, provider, eventID, eventType string, payload []byte) (bool, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO webhook_events (provider, event_id, event_type, payload)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (provider, event_id) DO NOTHING
		RETURNING id
	`, provider, eventID, eventType, string(payload)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return true, nil
}

// RecordWebhookEvent stores a verified event that carries no side effects.
// It reports false when the event id was already recorded.
func (r *PostgresRepository) RecordWebhookEvent(ctx context.Context, record WebhookEventRecord) (bool, error) {
	return insertWebhookEventTx(ctx, r.db, record.Provider, record.EventID, record.EventType, record.Payload)
}

// ActivateSubscriptionFromWebhook applies a successful payment exactly once per
// event id. The second return value is true when the event was a duplicate.
func (r *PostgresRepository) ActivateSubscriptionFromWebhook(ctx context.Context, params WebhookActivationParams) (*domain.Subscription, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	inserted, err := insertWebhookEventTx(ctx, tx, params.Provider, params.EventID, params.EventType, params.Payload)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		return nil, true, nil
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	months := params.Months
	if months < 1 {
		months = 1
	}

	current, err := lockActiveSubscriptionTx(ctx, tx, params.AgentID)
	if err != nil {
		return nil, false, err
	}

	var sub *domain.Subscription
	if current != nil {
		base := current.EndDate
		if base.Before(now) {
			base = now
		}
		sub, err = scanSubscription(tx.QueryRow(ctx, `
			UPDATE subscriptions SET type = $1, price = $2, end_date = $3, auto_renew = TRUE
			WHERE id = $4
			RETURNING `+subscriptionColumns, string(params.PlanType), params.Amount, base.AddDate(0, months, 0), current.ID))
	} else {
		sub, err = scanSubscription(tx.QueryRow(ctx, `
			INSERT INTO subscriptions (agent_id, type, price, start_date, end_date, is_active, auto_renew)
			VALUES ($1, $2, $3, $4, $5, TRUE, TRUE)
			RETURNING `+subscriptionColumns, params.AgentID, string(params.PlanType), params.Amount, now, now.AddDate(0, months, 0)))
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to activate subscription: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (user_id, amount, method, status, reference_id, description, subscription_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, params.AgentID, params.Amount, string(domain.PaymentStripe), domain.PaymentStatusCompleted, params.PaymentIntentID, params.Description, sub.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record subscription payment: %w", err)
	}

	if params.Notification != nil {
		notification := params.Notification(*sub)
		notification.UserID = params.AgentID
		if _, err := insertNotification(ctx, tx, &notification); err != nil {
			return nil, false, err
		}
	}

	event := domain.SubscriptionActivatedEvent{
		SubscriptionID: sub.ID,
		AgentID:        sub.AgentID,
		Type:           sub.Type,
		EndDate:        sub.EndDate,
		PaymentIntent:  params.PaymentIntentID,
	}
	if err := enqueueEventTx(ctx, tx, params.Exchange, domain.RoutingSubscriptionActivated, event); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return sub, false, nil
}

// CreatePaymentAndCredit records a completed payment and, when creditAgent is
// set, adds the amount to the agent's balance in the same transaction.
func (r *PostgresRepository) CreatePaymentAndCredit(ctx context.Context, payment *domain.Payment, creditAgent bool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	saved, err := scanPayment(tx.QueryRow(ctx, `
		INSERT INTO payments (user_id, amount, method, status, reference_id, description, subscription_id, lead_purchase_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+paymentColumns,
		payment.UserID,
		payment.Amount,
		string(payment.Method),
		payment.Status,
		payment.ReferenceID,
		payment.Description,
		payment.SubscriptionID,
		payment.LeadPurchaseID,
	))
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	if creditAgent {
		tag, err := tx.Exec(ctx, `UPDATE agent_profiles SET balance = balance + $1 WHERE user_id = $2`, payment.Amount, payment.UserID)
		if err != nil {
			return fmt.Errorf("failed to credit agent balance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAgentProfileNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	*payment = *saved
	return nil
}

func (r *PostgresRepository) ListPaymentsByUser(ctx context.Context, userID int64) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

// ListActiveSubscriberIDs returns agents whose subscription is active and not past its end date.
func (r *PostgresRepository) ListActiveSubscriberIDs(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT agent_id FROM subscriptions WHERE is_active AND end_date > $1 ORDER BY agent_id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) LapseSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE subscriptions SET is_active = FALSE WHERE is_active AND end_date <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
