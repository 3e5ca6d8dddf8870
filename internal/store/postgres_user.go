package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

const userColumns = `id, username, password, email, first_name, last_name, phone, role, created_at, whatsapp_preferred`

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Password,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&role,
		&user.CreatedAt,
		&user.WhatsappPreferred,
	)
	if err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	return &user, nil
}

const agentProfileColumns = `id, user_id, agency_name, license_document, verification_status, verification_date, verification_note, rating, balance`

func scanAgentProfile(row rowScanner) (*domain.AgentProfile, error) {
	var (
		profile domain.AgentProfile
		status  string
	)
	err := row.Scan(
		&profile.ID,
		&profile.UserID,
		&profile.AgencyName,
		&profile.LicenseDocument,
		&status,
		&profile.VerificationDate,
		&profile.VerificationNote,
		&profile.Rating,
		&profile.Balance,
	)
	if err != nil {
		return nil, err
	}
	profile.VerificationStatus = domain.VerificationStatus(status)
	return &profile, nil
}

// CreateUser inserts the user, the agent profile when present and the admin
// notifications in one transaction.
func (r *PostgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (*domain.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	user := params.User
	err = tx.QueryRow(ctx, `
		INSERT INTO users (username, password, email, first_name, last_name, phone, role, whatsapp_preferred)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`,
		user.Username,
		user.Password,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Phone,
		string(user.Role),
		user.WhatsappPreferred,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case "users_username_key":
				return nil, ErrUsernameTaken
			case "users_email_key":
				return nil, ErrEmailTaken
			}
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	if profile := params.AgentProfile; profile != nil {
		status := profile.VerificationStatus
		if status == "" {
			status = domain.VerificationPending
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO agent_profiles (user_id, agency_name, license_document, verification_status, verification_date, balance)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, user.ID, profile.AgencyName, profile.LicenseDocument, string(status), profile.VerificationDate, profile.Balance)
		if err != nil {
			return nil, fmt.Errorf("failed to insert agent profile: %w", err)
		}

		event := domain.AgentRegisteredEvent{
			UserID:     user.ID,
			AgencyName: profile.AgencyName,
			Email:      user.Email,
		}
		if err := enqueueEventTx(ctx, tx, params.Exchange, domain.RoutingAgentRegistered, event); err != nil {
			return nil, err
		}
	}

	if n := params.AdminNotification; n != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO notifications (user_id, title, message, type, link_url)
			SELECT id, $1, $2, $3, $4 FROM users WHERE role = 'admin'
		`, n.Title, n.Message, n.Type, n.LinkURL)
		if err != nil {
			return nil, fmt.Errorf("failed to notify admins: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *PostgresRepository) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *PostgresRepository) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *PostgresRepository) FindAgentProfileByUserID(ctx context.Context, userID int64) (*domain.AgentProfile, error) {
	profile, err := scanAgentProfile(r.db.QueryRow(ctx, `SELECT `+agentProfileColumns+` FROM agent_profiles WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}

func (r *PostgresRepository) CreateSession(ctx context.Context, session domain.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, session.ID.String(), session.UserID, session.CreatedAt, session.ExpiresAt)
	return err
}

func (r *PostgresRepository) FindSessionByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	var (
		session   domain.Session
		sessionID string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id::text, user_id, created_at, expires_at FROM sessions WHERE id = $1
	`, id.String()).Scan(&sessionID, &session.UserID, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	session.ID, err = uuid.Parse(sessionID)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id.String())
	return err
}

func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
