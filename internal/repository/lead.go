package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LeadRepository struct {
	db *pgxpool.Pool
}

func NewLeadRepository(db *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{db: db}
}

const selectLead = `
	SELECT id, source, business_name, website, owner_email, status,
		COALESCE(payment_amount, 0), listing_expires_at, paid_at, created_at
	FROM leads`

// FindPendingByWebsite returns the oldest pending lead for a source+website pair.
func (r *LeadRepository) FindPendingByWebsite(ctx context.Context, source, website string) (*domain.Lead, error) {
	query := selectLead + `
		WHERE source = $1 AND website = $2 AND status = $3
		ORDER BY created_at ASC LIMIT 1`
	return r.scanOne(r.db.QueryRow(ctx, query, source, website, domain.LeadStatusPendingPayment))
}

// FindPendingByEmail returns the oldest pending lead for a source+email pair.
// Oldest-first keeps the match deterministic when an email has several
// pending listings under the same promotion.
func (r *LeadRepository) FindPendingByEmail(ctx context.Context, source, email string) (*domain.Lead, error) {
	query := selectLead + `
		WHERE source = $1 AND owner_email = $2 AND status = $3
		ORDER BY created_at ASC LIMIT 1`
	return r.scanOne(r.db.QueryRow(ctx, query, source, email, domain.LeadStatusPendingPayment))
}

// FindByID returns a lead by ID.
func (r *LeadRepository) FindByID(ctx context.Context, id string) (*domain.Lead, error) {
	return r.scanOne(r.db.QueryRow(ctx, selectLead+` WHERE id = $1`, id))
}

// MarkPaid promotes a lead to paid with the confirmed amount and computed
// listing expiry.
func (r *LeadRepository) MarkPaid(ctx context.Context, id string, amount int64, paidAt, expiresAt time.Time) error {
	query := `
		UPDATE leads
		SET status = $1, payment_amount = $2, paid_at = $3, listing_expires_at = $4
		WHERE id = $5
	`
	_, err := r.db.Exec(ctx, query, domain.LeadStatusPaid, amount, paidAt, expiresAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark lead paid: %w", err)
	}
	return nil
}

// Create inserts a new lead (used by import tooling and tests).
func (r *LeadRepository) Create(ctx context.Context, l *domain.Lead) error {
	query := `
		INSERT INTO leads (id, source, business_name, website, owner_email, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, l.ID, l.Source, l.BusinessName, l.Website, l.OwnerEmail, l.Status, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	return nil
}

func (r *LeadRepository) scanOne(row pgx.Row) (*domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(&l.ID, &l.Source, &l.BusinessName, &l.Website, &l.OwnerEmail,
		&l.Status, &l.PaymentAmount, &l.ListingExpiresAt, &l.PaidAt, &l.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find lead: %w", err)
	}
	return &l, nil
}
