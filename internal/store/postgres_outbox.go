package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
)

// Outbox row states. A row that keeps failing is parked as dead after
// maxOutboxAttempts and left for an operator.
const (
	outboxPending    = "pending"
	outboxProcessing = "processing"
	outboxPublished  = "published"
	outboxDead       = "dead"

	maxOutboxAttempts  = 25
	maxOutboxErrorSize = 2000
)

// enqueueEventTx stages an event in the caller's transaction so it commits or
// rolls back with the change it describes. An empty exchange disables staging.
func enqueueEventTx(ctx context.Context, tx pgx.Tx, exchange, routingKey string, payload interface{}) error {
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", routingKey, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO event_outbox (exchange, routing_key, payload) VALUES ($1, $2, $3::jsonb)`,
		exchange, strings.TrimSpace(routingKey), string(body),
	); err != nil {
		return fmt.Errorf("stage %s event: %w", routingKey, err)
	}
	return nil
}

// ClaimOutboxMessages marks up to limit due rows as processing and returns
// them oldest first. Rows left in processing for longer than
// staleAfterSeconds belong to a crashed dispatcher and are claimed again.
func (r *PostgresRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if staleAfterSeconds <= 0 {
		staleAfterSeconds = 120
	}

	rows, err := r.db.Query(ctx, `
		UPDATE event_outbox
		SET status = $3,
			processing_started_at = NOW(),
			attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM event_outbox
			WHERE (status = $4 AND next_attempt_at <= NOW())
			   OR (status = $3 AND processing_started_at < NOW() - make_interval(secs => $2))
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, exchange, routing_key, payload::text, attempts
	`, limit, staleAfterSeconds, outboxProcessing, outboxPending)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboxMessage, error) {
		var (
			msg     OutboxMessage
			payload string
		)
		err := row.Scan(&msg.ID, &msg.Exchange, &msg.RoutingKey, &payload, &msg.Attempts)
		msg.Payload = []byte(payload)
		return msg, err
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	// RETURNING does not follow the subquery order.
	slices.SortFunc(messages, func(a, b OutboxMessage) int { return cmp.Compare(a.ID, b.ID) })
	return messages, nil
}

func (r *PostgresRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = $2, published_at = NOW(), processing_started_at = NULL, last_error = NULL
		WHERE id = $1
	`, id, outboxPublished)
	return err
}

// MarkOutboxFailed returns the row to pending after retryAfterSeconds, or
// parks it as dead once it has used up its attempts.
func (r *PostgresRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	reason = truncateErrorText(reason, maxOutboxErrorSize)
	_, err := r.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = CASE WHEN attempts >= $4 THEN $6 ELSE $5 END,
			next_attempt_at = NOW() + make_interval(secs => $2),
			processing_started_at = NULL,
			last_error = $3
		WHERE id = $1
	`, id, retryAfterSeconds, reason, maxOutboxAttempts, outboxPending, outboxDead)
	return err
}

// truncateErrorText cuts s to at most limit bytes on a rune boundary and
// replaces invalid sequences, since Postgres rejects malformed UTF-8.
func truncateErrorText(s string, limit int) string {
	s = strings.ToValidUTF8(s, "?")
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// PrunePublishedOutbox deletes rows published before the cutoff.
func (r *PostgresRepository) PrunePublishedOutbox(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM event_outbox WHERE status = $1 AND published_at < $2`,
		outboxPublished, before,
	)
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}
