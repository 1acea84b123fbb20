package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a pending transaction.
func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, amount, status, stripe_payment_intent_id, stripe_charge_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		t.ID, t.UserID, t.Amount, t.Status, t.StripePaymentIntentID, t.StripeChargeID, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// UpdateStatusByPaymentIntent sets the status of the transaction matched by
// Stripe payment-intent reference. Returns false when no row matched.
func (r *TransactionRepository) UpdateStatusByPaymentIntent(ctx context.Context, paymentIntentID, status string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = $1, updated_at = NOW() WHERE stripe_payment_intent_id = $2`,
		status, paymentIntentID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateStatusByCharge sets the status of the transaction matched by Stripe
// charge reference. Returns false when no row matched.
func (r *TransactionRepository) UpdateStatusByCharge(ctx context.Context, chargeID, status string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = $1, updated_at = NOW() WHERE stripe_charge_id = $2`,
		status, chargeID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListRecent returns the newest transactions for the admin dashboard.
func (r *TransactionRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT id, COALESCE(user_id, ''), amount, status,
			COALESCE(stripe_payment_intent_id, ''), COALESCE(stripe_charge_id, ''), created_at, updated_at
		FROM transactions ORDER BY created_at DESC LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Status,
			&t.StripePaymentIntentID, &t.StripeChargeID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, &t)
	}
	return txs, nil
}

// UpsertConnectedAccount persists the latest capability flags and derived
// status for a seller's payment account.
func (r *TransactionRepository) UpsertConnectedAccount(ctx context.Context, a *domain.ConnectedAccount) error {
	query := `
		INSERT INTO connected_accounts (stripe_account_id, user_id, charges_enabled, payouts_enabled, status, requirements_due, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (stripe_account_id) DO UPDATE SET
			charges_enabled = EXCLUDED.charges_enabled,
			payouts_enabled = EXCLUDED.payouts_enabled,
			status = EXCLUDED.status,
			requirements_due = EXCLUDED.requirements_due,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query,
		a.StripeAccountID, a.UserID, a.ChargesEnabled, a.PayoutsEnabled, a.Status, a.RequirementsDue, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert connected account: %w", err)
	}
	return nil
}
