package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

const joinedUserColumns = `u.id, u.username, u.password, u.email, u.first_name, u.last_name, u.phone, u.role, u.created_at, u.whatsapp_preferred`

func (r *PostgresRepository) ListPendingAgents(ctx context.Context) ([]domain.PendingAgent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ap.id, ap.user_id, ap.agency_name, ap.license_document, ap.verification_status,
			ap.verification_date, ap.verification_note, ap.rating, ap.balance, `+joinedUserColumns+`
		FROM agent_profiles ap
		JOIN users u ON u.id = ap.user_id
		WHERE ap.verification_status = 'pending'
		ORDER BY u.created_at DESC, ap.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := make([]domain.PendingAgent, 0)
	for rows.Next() {
		var (
			agent  domain.PendingAgent
			status string
			role   string
		)
		err := rows.Scan(
			&agent.ID, &agent.UserID, &agent.AgencyName, &agent.LicenseDocument, &status,
			&agent.VerificationDate, &agent.VerificationNote, &agent.Rating, &agent.Balance,
			&agent.User.ID, &agent.User.Username, &agent.User.Password, &agent.User.Email,
			&agent.User.FirstName, &agent.User.LastName, &agent.User.Phone, &role,
			&agent.User.CreatedAt, &agent.User.WhatsappPreferred,
		)
		if err != nil {
			return nil, err
		}
		agent.VerificationStatus = domain.VerificationStatus(status)
		agent.User.Role = domain.Role(role)
		agent.User.Password = ""
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// ReviewAgentVerification moves a pending profile to approved or rejected and
// notifies the agent. Reviewed profiles are terminal.
func (r *PostgresRepository) ReviewAgentVerification(ctx context.Context, params VerificationReviewParams) (*domain.AgentProfile, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT verification_status FROM agent_profiles WHERE user_id = $1 FOR UPDATE`, params.AgentUserID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentProfileNotFound
		}
		return nil, err
	}
	if domain.VerificationStatus(current) != domain.VerificationPending {
		return nil, ErrVerificationAlreadyReviewed
	}

	profile, err := scanAgentProfile(tx.QueryRow(ctx, `
		UPDATE agent_profiles
		SET verification_status = $1, verification_date = $2, verification_note = $3
		WHERE user_id = $4
		RETURNING `+agentProfileColumns,
		string(params.Status), params.ReviewedAt, params.Note, params.AgentUserID))
	if err != nil {
		return nil, fmt.Errorf("failed to update agent verification: %w", err)
	}

	notification := params.Notification
	notification.UserID = params.AgentUserID
	if _, err := insertNotification(ctx, tx, &notification); err != nil {
		return nil, err
	}

	event := domain.AgentVerificationEvent{
		UserID: params.AgentUserID,
		Status: params.Status,
		Note:   params.Note,
	}
	if err := enqueueEventTx(ctx, tx, params.Exchange, domain.RoutingAgentVerification, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return profile, nil
}

func (r *PostgresRepository) ListFlaggedLeads(ctx context.Context) ([]domain.FlaggedLead, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+leadColumns+`, `+propertyColumns+`, `+joinedUserColumns+`
		FROM lead_purchases lp
		JOIN properties p ON p.id = lp.property_id
		JOIN users u ON u.id = lp.agent_id
		WHERE lp.flag_status = 'open'
		ORDER BY lp.flagged_at DESC, lp.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flagged := make([]domain.FlaggedLead, 0)
	for rows.Next() {
		var (
			item domain.FlaggedLead
			role string
		)
		leadTargets, finishLead := leadScanTargets(&item.LeadPurchase)
		propertyTargets, finishProperty := propertyScanTargets(&item.Property)
		targets := append(leadTargets, propertyTargets...)
		targets = append(targets,
			&item.Agent.ID, &item.Agent.Username, &item.Agent.Password, &item.Agent.Email,
			&item.Agent.FirstName, &item.Agent.LastName, &item.Agent.Phone, &role,
			&item.Agent.CreatedAt, &item.Agent.WhatsappPreferred,
		)
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		finishLead()
		if err := finishProperty(); err != nil {
			return nil, err
		}
		item.Agent.Role = domain.Role(role)
		item.Agent.Password = ""
		flagged = append(flagged, item)
	}
	return flagged, rows.Err()
}

// ResolveFlag applies an admin decision to an open flag. Removing archives the
// listing and closes every other open flag on it.
func (r *PostgresRepository) ResolveFlag(ctx context.Context, params ResolveFlagParams) (*domain.LeadPurchase, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	lead, err := scanLead(tx.QueryRow(ctx, `SELECT `+leadColumns+` FROM lead_purchases lp WHERE lp.id = $1 FOR UPDATE`, params.LeadPurchaseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	if lead.FlagStatus == nil || *lead.FlagStatus != domain.FlagOpen {
		return nil, ErrFlagNotOpen
	}

	switch params.Action {
	case domain.FlagActionRemove:
		var sellerID int64
		err = tx.QueryRow(ctx, `UPDATE properties SET status = 'archived' WHERE id = $1 RETURNING seller_id`, lead.PropertyID).Scan(&sellerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrPropertyNotFound
			}
			return nil, fmt.Errorf("failed to archive property: %w", err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE lead_purchases SET flag_status = 'removed', flag_resolution = $1
			WHERE property_id = $2 AND flag_status = 'open'
		`, params.Reason, lead.PropertyID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve flags: %w", err)
		}

		if params.SellerNotification != nil {
			notification := *params.SellerNotification
			notification.UserID = sellerID
			if _, err := insertNotification(ctx, tx, &notification); err != nil {
				return nil, err
			}
		}

		event := domain.PropertyRemovedEvent{
			PropertyID: lead.PropertyID,
			SellerID:   sellerID,
			Reason:     params.Reason,
		}
		if err := enqueueEventTx(ctx, tx, params.Exchange, domain.RoutingPropertyRemoved, event); err != nil {
			return nil, err
		}
	default:
		var resolution *string
		if params.Reason != "" {
			resolution = &params.Reason
		}
		_, err = tx.Exec(ctx, `
			UPDATE lead_purchases SET flag_status = 'dismissed', flag_resolution = $1 WHERE id = $2
		`, resolution, lead.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to dismiss flag: %w", err)
		}
	}

	notification := params.AgentNotification
	notification.UserID = lead.AgentID
	if _, err := insertNotification(ctx, tx, &notification); err != nil {
		return nil, err
	}

	updated, err := scanLead(tx.QueryRow(ctx, `SELECT `+leadColumns+` FROM lead_purchases lp WHERE lp.id = $1`, lead.ID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// GetSystemStats aggregates the admin dashboard counters.
func (r *PostgresRepository) GetSystemStats(ctx context.Context) (*domain.SystemStats, error) {
	var stats domain.SystemStats
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM agent_profiles WHERE verification_status = 'pending'),
			(SELECT COUNT(*) FROM properties WHERE status = 'active'),
			(SELECT COUNT(*) FROM lead_purchases),
			(SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status = 'completed'),
			(SELECT COUNT(*) FROM lead_purchases WHERE flag_status = 'open')
	`).Scan(&stats.PendingAgents, &stats.ActiveLeads, &stats.LeadPurchases, &stats.TotalRevenue, &stats.OpenFlags)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
