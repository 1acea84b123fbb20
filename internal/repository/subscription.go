package repository

import (
	"context"
	"fmt"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// CreateIfAbsent inserts a subscription keyed on the Stripe subscription ID.
// Returns false (and no error) when a row for that ID already exists, so a
// replayed checkout event cannot provision a second subscription.
func (r *SubscriptionRepository) CreateIfAbsent(ctx context.Context, sub *domain.Subscription) (bool, error) {
	query := `
		INSERT INTO subscriptions (id, user_id, name, tier, stripe_subscription_id, stripe_customer_id,
			status, current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (stripe_subscription_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		sub.ID, sub.UserID, sub.Name, sub.Tier, sub.StripeSubscriptionID, sub.StripeCustomerID,
		sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindByUserID returns the most recent active subscription for a user.
func (r *SubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := selectSubscription + ` WHERE user_id = $1 AND status = 'active' ORDER BY created_at DESC LIMIT 1`
	return r.scanOne(r.db.QueryRow(ctx, query, userID))
}

// FindByID returns a subscription by its local ID.
func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*domain.Subscription, error) {
	query := selectSubscription + ` WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// FindByStripeID returns the subscription matching a Stripe subscription ID.
func (r *SubscriptionRepository) FindByStripeID(ctx context.Context, stripeSubID string) (*domain.Subscription, error) {
	query := selectSubscription + ` WHERE stripe_subscription_id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, stripeSubID))
}

// UpdateByStripeID applies provider-driven changes to the subscription matched
// by Stripe subscription ID. Returns false when no row matched.
func (r *SubscriptionRepository) UpdateByStripeID(ctx context.Context, stripeSubID string, upd domain.SubscriptionUpdate) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = $1, current_period_start = $2, current_period_end = $3,
			cancel_at_period_end = $4, updated_at = NOW()
		WHERE stripe_subscription_id = $5
	`
	tag, err := r.db.Exec(ctx, query,
		upd.Status, upd.CurrentPeriodStart, upd.CurrentPeriodEnd, upd.CancelAtPeriodEnd, stripeSubID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CancelByStripeID marks the matched subscription cancelled. The row is
// retained for history, never deleted.
func (r *SubscriptionRepository) CancelByStripeID(ctx context.Context, stripeSubID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = $1, updated_at = NOW() WHERE stripe_subscription_id = $2`,
		domain.SubStatusCancelled, stripeSubID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateBenefits inserts a benefit batch in one round trip.
func (r *SubscriptionRepository) CreateBenefits(ctx context.Context, benefits []*domain.Benefit) error {
	batch := &pgx.Batch{}
	for _, b := range benefits {
		batch.Queue(
			`INSERT INTO benefits (id, subscription_id, name, value, created_at) VALUES ($1, $2, $3, $4, $5)`,
			b.ID, b.SubscriptionID, b.Name, b.Value, b.CreatedAt,
		)
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to create benefits: %w", err)
	}
	return nil
}

// CreateImpactMetric seeds a zeroed impact snapshot for a new subscription.
func (r *SubscriptionRepository) CreateImpactMetric(ctx context.Context, m *domain.ImpactMetric) error {
	query := `
		INSERT INTO impact_metrics (id, subscription_id, snapshot_date, businesses_supported, jobs_created, dollars_circulated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		m.ID, m.SubscriptionID, m.SnapshotDate, m.BusinessesSupported, m.JobsCreated, m.DollarsCirculated, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create impact metric: %w", err)
	}
	return nil
}

// ListImpactMetrics returns impact snapshots for a subscription, newest first.
func (r *SubscriptionRepository) ListImpactMetrics(ctx context.Context, subscriptionID string) ([]*domain.ImpactMetric, error) {
	query := `
		SELECT id, subscription_id, snapshot_date, businesses_supported, jobs_created, dollars_circulated, created_at
		FROM impact_metrics WHERE subscription_id = $1 ORDER BY snapshot_date DESC
	`
	rows, err := r.db.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list impact metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*domain.ImpactMetric
	for rows.Next() {
		var m domain.ImpactMetric
		if err := rows.Scan(&m.ID, &m.SubscriptionID, &m.SnapshotDate,
			&m.BusinessesSupported, &m.JobsCreated, &m.DollarsCirculated, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan impact metric: %w", err)
		}
		metrics = append(metrics, &m)
	}
	return metrics, nil
}

const selectSubscription = `
	SELECT id, user_id, name, tier, stripe_subscription_id, stripe_customer_id,
		status, current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at
	FROM subscriptions`

func (r *SubscriptionRepository) scanOne(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.Name, &sub.Tier, &sub.StripeSubscriptionID, &sub.StripeCustomerID,
		&sub.Status, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // no matching subscription
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return &sub, nil
}
