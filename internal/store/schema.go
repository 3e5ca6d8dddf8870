package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements are applied in order on start-up. Every statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL,
		password TEXT NOT NULL,
		email TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		phone TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('seller', 'agent', 'admin')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		whatsapp_preferred BOOLEAN NOT NULL DEFAULT FALSE,
		CONSTRAINT users_username_key UNIQUE (username),
		CONSTRAINT users_email_key UNIQUE (email)
	)`,
	`CREATE TABLE IF NOT EXISTS agent_profiles (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		agency_name TEXT NOT NULL,
		license_document TEXT NOT NULL,
		verification_status TEXT NOT NULL DEFAULT 'pending'
			CHECK (verification_status IN ('pending', 'approved', 'rejected')),
		verification_date TIMESTAMPTZ,
		verification_note TEXT,
		rating INTEGER,
		balance NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		CONSTRAINT agent_profiles_user_id_key UNIQUE (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS properties (
		id BIGSERIAL PRIMARY KEY,
		seller_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL CHECK (type IN ('residential', 'commercial', 'land', 'apartment')),
		location TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		price NUMERIC(14,2) NOT NULL,
		size NUMERIC(14,2),
		description TEXT NOT NULL,
		photos JSONB NOT NULL DEFAULT '[]'::jsonb,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'active', 'expired', 'archived')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_status_created ON properties (status, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_seller ON properties (seller_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS lead_purchases (
		id BIGSERIAL PRIMARY KEY,
		agent_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		property_id BIGINT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
		purchase_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		price NUMERIC(14,2) NOT NULL,
		contacted BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'contacted', 'closed')),
		seller_rating INTEGER CHECK (seller_rating BETWEEN 1 AND 5),
		feedback TEXT,
		flagged BOOLEAN NOT NULL DEFAULT FALSE,
		flag_reason TEXT,
		flag_status TEXT CHECK (flag_status IN ('open', 'dismissed', 'removed')),
		flagged_at TIMESTAMPTZ,
		flag_resolution TEXT,
		CONSTRAINT lead_purchases_agent_property_key UNIQUE (agent_id, property_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lead_purchases_open_flags ON lead_purchases (flagged_at DESC) WHERE flag_status = 'open'`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id BIGSERIAL PRIMARY KEY,
		agent_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL CHECK (type IN ('pay_per_lead', 'unlimited')),
		price NUMERIC(14,2) NOT NULL,
		start_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_date TIMESTAMPTZ NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		auto_renew BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS subscriptions_one_active_per_agent ON subscriptions (agent_id) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount NUMERIC(14,2) NOT NULL,
		method TEXT NOT NULL CHECK (method IN ('ecocash', 'bank_transfer', 'cash', 'stripe')),
		status TEXT NOT NULL DEFAULT 'pending',
		reference_id TEXT,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		subscription_id BIGINT REFERENCES subscriptions(id) ON DELETE SET NULL,
		lead_purchase_id BIGINT REFERENCES lead_purchases(id) ON DELETE SET NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_user_created ON payments (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		type TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		link_url TEXT,
		dedupe_key TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS notifications_dedupe_key ON notifications (dedupe_key) WHERE dedupe_key IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions (expires_at)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		id BIGSERIAL PRIMARY KEY,
		provider TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT webhook_events_provider_event_key UNIQUE (provider, event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS event_outbox (
		id BIGSERIAL PRIMARY KEY,
		exchange TEXT NOT NULL,
		routing_key TEXT NOT NULL,
		payload JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processing_started_at TIMESTAMPTZ,
		published_at TIMESTAMPTZ,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_outbox_claim ON event_outbox (status, next_attempt_at)`,
}

// EnsureSchema creates every marketplace table and index that does not exist yet.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for i, statement := range schemaStatements {
		if _, err := db.Exec(ctx, statement); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i, err)
		}
	}
	return nil
}
