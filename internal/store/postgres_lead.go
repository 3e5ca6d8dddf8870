package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

const leadColumns = `lp.id, lp.agent_id, lp.property_id, lp.purchase_date, lp.price, lp.contacted, lp.status, lp.seller_rating, lp.feedback, lp.flagged, lp.flag_reason, lp.flag_status, lp.flagged_at, lp.flag_resolution`

func leadScanTargets(lead *domain.LeadPurchase) ([]any, func()) {
	var (
		status     string
		flagStatus *string
	)
	targets := []any{
		&lead.ID,
		&lead.AgentID,
		&lead.PropertyID,
		&lead.PurchaseDate,
		&lead.Price,
		&lead.Contacted,
		&status,
		&lead.SellerRating,
		&lead.Feedback,
		&lead.Flagged,
		&lead.FlagReason,
		&flagStatus,
		&lead.FlaggedAt,
		&lead.FlagResolution,
	}
	finish := func() {
		lead.Status = domain.LeadStatus(status)
		lead.FlagStatus = nil
		if flagStatus != nil {
			fs := domain.FlagStatus(*flagStatus)
			lead.FlagStatus = &fs
		}
	}
	return targets, finish
}

func scanLead(row rowScanner) (*domain.LeadPurchase, error) {
	var lead domain.LeadPurchase
	targets, finish := leadScanTargets(&lead)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	finish()
	return &lead, nil
}

func (r *PostgresRepository) HasPurchasedLead(ctx context.Context, agentID, propertyID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM lead_purchases WHERE agent_id = $1 AND property_id = $2)
	`, agentID, propertyID).Scan(&exists)
	return exists, err
}

// PurchaseLead performs the whole purchase in one transaction: availability and
// duplicate checks, the locked balance check and debit, the purchase row, the
// payment row, the seller notification and the lead.purchased event.
func (r *PostgresRepository) PurchaseLead(ctx context.Context, params PurchaseLeadParams) (*domain.LeadPurchase, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var (
		propertyStatus string
		sellerID       int64
	)
	err = tx.QueryRow(ctx, `SELECT status, seller_id FROM properties WHERE id = $1 FOR SHARE`, params.PropertyID).
		Scan(&propertyStatus, &sellerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPropertyNotFound
		}
		return nil, err
	}
	if domain.PropertyStatus(propertyStatus) != domain.PropertyActive {
		return nil, ErrPropertyUnavailable
	}

	var alreadyPurchased bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM lead_purchases WHERE agent_id = $1 AND property_id = $2)
	`, params.AgentID, params.PropertyID).Scan(&alreadyPurchased)
	if err != nil {
		return nil, err
	}
	if alreadyPurchased {
		return nil, ErrLeadAlreadyPurchased
	}

	var (
		verification string
		balance      decimal.Decimal
	)
	// Use FOR UPDATE to lock the profile row, preventing concurrent debits.
	err = tx.QueryRow(ctx, `
		SELECT verification_status, balance FROM agent_profiles WHERE user_id = $1 FOR UPDATE
	`, params.AgentID).Scan(&verification, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentProfileNotFound
		}
		return nil, err
	}
	if domain.VerificationStatus(verification) != domain.VerificationApproved {
		return nil, ErrAgentNotVerified
	}
	if balance.LessThan(params.Price) {
		return nil, ErrInsufficientBalance
	}

	lead, err := scanLead(tx.QueryRow(ctx, `
		INSERT INTO lead_purchases AS lp (agent_id, property_id, price, contacted, status)
		VALUES ($1, $2, $3, FALSE, 'pending')
		RETURNING `+leadColumns, params.AgentID, params.PropertyID, params.Price))
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "lead_purchases_agent_property_key" {
			return nil, ErrLeadAlreadyPurchased
		}
		return nil, fmt.Errorf("failed to insert lead purchase: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE agent_profiles SET balance = balance - $1 WHERE user_id = $2`, params.Price, params.AgentID); err != nil {
		return nil, fmt.Errorf("failed to debit agent balance: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (user_id, amount, method, status, description, lead_purchase_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, params.AgentID, params.Price, string(domain.PaymentEcocash), domain.PaymentStatusCompleted, params.PaymentDescription, lead.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record lead payment: %w", err)
	}

	notification := params.SellerNotification
	notification.UserID = sellerID
	if _, err := insertNotification(ctx, tx, &notification); err != nil {
		return nil, err
	}

	event := domain.LeadPurchasedEvent{
		PurchaseID: lead.ID,
		AgentID:    lead.AgentID,
		PropertyID: lead.PropertyID,
		SellerID:   sellerID,
		Price:      lead.Price.StringFixed(2),
	}
	if err := enqueueEventTx(ctx, tx, params.Exchange, domain.RoutingLeadPurchased, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return lead, nil
}

func (r *PostgresRepository) ListPurchasedLeads(ctx context.Context, agentID int64) ([]domain.LeadPurchaseWithProperty, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+leadColumns+`, `+propertyColumns+`
		FROM lead_purchases lp
		JOIN properties p ON p.id = lp.property_id
		WHERE lp.agent_id = $1
		ORDER BY lp.purchase_date DESC, lp.id DESC
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.LeadPurchaseWithProperty, 0)
	for rows.Next() {
		var item domain.LeadPurchaseWithProperty
		leadTargets, finishLead := leadScanTargets(&item.LeadPurchase)
		propertyTargets, finishProperty := propertyScanTargets(&item.Property)
		if err := rows.Scan(append(leadTargets, propertyTargets...)...); err != nil {
			return nil, err
		}
		finishLead()
		if err := finishProperty(); err != nil {
			return nil, err
		}
		leads = append(leads, item)
	}
	return leads, rows.Err()
}

func (r *PostgresRepository) FindLeadPurchaseByID(ctx context.Context, id int64) (*domain.LeadPurchase, error) {
	lead, err := scanLead(r.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM lead_purchases lp WHERE lp.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return lead, nil
}

// UpdateLeadPurchase writes the non-nil fields of update. Flagging opens a new
// flag; unflagging withdraws a flag that is still open.
func (r *PostgresRepository) UpdateLeadPurchase(ctx context.Context, id int64, update domain.LeadUpdate) (*domain.LeadPurchase, error) {
	var (
		assignments []string
		args        []any
	)
	set := func(clause string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf(clause, len(args)))
	}

	if update.Contacted != nil {
		set("contacted = $%d", *update.Contacted)
	}
	if update.Status != nil {
		set("status = $%d", string(*update.Status))
	}
	if update.SellerRating != nil {
		set("seller_rating = $%d", *update.SellerRating)
	}
	if update.Feedback != nil {
		set("feedback = $%d", *update.Feedback)
	}
	if update.Flagged != nil {
		if *update.Flagged {
			assignments = append(assignments, "flagged = TRUE", "flag_status = 'open'", "flagged_at = NOW()", "flag_resolution = NULL")
			reason := ""
			if update.FlagReason != nil {
				reason = *update.FlagReason
			}
			set("flag_reason = $%d", reason)
		} else {
			assignments = append(assignments,
				"flagged = FALSE",
				"flag_status = CASE WHEN flag_status = 'open' THEN NULL ELSE flag_status END",
			)
		}
	}

	if len(assignments) == 0 {
		return r.FindLeadPurchaseByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE lead_purchases AS lp SET %s WHERE lp.id = $%d RETURNING %s`,
		strings.Join(assignments, ", "), len(args), leadColumns)

	lead, err := scanLead(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return lead, nil
}
