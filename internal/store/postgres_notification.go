package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

const notificationColumns = `id, user_id, title, message, type, read, created_at, link_url`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Read, &n.CreatedAt, &n.LinkURL)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// insertNotification appends a notification. A notification whose dedupe key
// already exists is skipped and reported as not created.
func insertNotification(ctx context.Context, q querier, n *domain.Notification) (bool, error) {
	err := q.QueryRow(ctx, `
		INSERT INTO notifications (user_id, title, message, type, link_url, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING
		RETURNING id, read, created_at
	`, n.UserID, n.Title, n.Message, n.Type, n.LinkURL, n.DedupeKey).Scan(&n.ID, &n.Read, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) CreateNotification(ctx context.Context, notification *domain.Notification) (bool, error) {
	return insertNotification(ctx, r.db, notification)
}

func (r *PostgresRepository) ListNotifications(ctx context.Context, userID int64) ([]domain.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead flips read for a notification owned by userID.
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, userID, notificationID int64) (*domain.Notification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns, notificationID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return n, nil
}

func (r *PostgresRepository) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
