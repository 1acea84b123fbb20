package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the initial schema migration.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			password   TEXT NOT NULL,
			role       TEXT NOT NULL DEFAULT 'user',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

		CREATE TABLE IF NOT EXISTS subscriptions (
			id                     TEXT PRIMARY KEY,
			user_id                TEXT NOT NULL,
			name                   TEXT NOT NULL,
			tier                   TEXT NOT NULL,
			stripe_subscription_id TEXT NOT NULL UNIQUE,
			stripe_customer_id     TEXT NOT NULL,
			status                 TEXT NOT NULL DEFAULT 'active',
			current_period_start   TIMESTAMPTZ NOT NULL,
			current_period_end     TIMESTAMPTZ NOT NULL,
			cancel_at_period_end   BOOLEAN NOT NULL DEFAULT FALSE,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_user_id ON subscriptions(user_id);

		CREATE TABLE IF NOT EXISTS benefits (
			id              TEXT PRIMARY KEY,
			subscription_id TEXT NOT NULL REFERENCES subscriptions(id),
			name            TEXT NOT NULL,
			value           TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_benefits_subscription_id ON benefits(subscription_id);

		CREATE TABLE IF NOT EXISTS impact_metrics (
			id                   TEXT PRIMARY KEY,
			subscription_id      TEXT NOT NULL REFERENCES subscriptions(id),
			snapshot_date        DATE NOT NULL,
			businesses_supported INT NOT NULL DEFAULT 0,
			jobs_created         INT NOT NULL DEFAULT 0,
			dollars_circulated   BIGINT NOT NULL DEFAULT 0,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_impact_metrics_subscription_id ON impact_metrics(subscription_id);

		CREATE TABLE IF NOT EXISTS leads (
			id                 TEXT PRIMARY KEY,
			source             TEXT NOT NULL,
			business_name      TEXT NOT NULL,
			website            TEXT,
			owner_email        TEXT,
			status             TEXT NOT NULL DEFAULT 'pending_payment',
			payment_amount     BIGINT,
			listing_expires_at TIMESTAMPTZ,
			paid_at            TIMESTAMPTZ,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_leads_source_status ON leads(source, status);

		CREATE TABLE IF NOT EXISTS transactions (
			id                       TEXT PRIMARY KEY,
			user_id                  TEXT,
			amount                   BIGINT NOT NULL DEFAULT 0,
			status                   TEXT NOT NULL DEFAULT 'pending',
			stripe_payment_intent_id TEXT,
			stripe_charge_id         TEXT,
			created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_payment_intent ON transactions(stripe_payment_intent_id);
		CREATE INDEX IF NOT EXISTS idx_transactions_charge ON transactions(stripe_charge_id);

		CREATE TABLE IF NOT EXISTS connected_accounts (
			stripe_account_id TEXT PRIMARY KEY,
			user_id           TEXT,
			charges_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
			payouts_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
			status            TEXT NOT NULL DEFAULT 'restricted',
			requirements_due  TEXT[] NOT NULL DEFAULT '{}',
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
