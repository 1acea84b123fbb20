package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AdminHandler struct {
	db  *pgxpool.Pool
	txs *repository.TransactionRepository
}

func NewAdminHandler(db *pgxpool.Pool, txs *repository.TransactionRepository) *AdminHandler {
	return &AdminHandler{db: db, txs: txs}
}

// GetStats returns system-wide metrics.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	// Simple count queries
	var usersCount, activeSubsCount, paidLeadsCount, pendingLeadsCount int

	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM users").Scan(&usersCount); err != nil {
		log.Printf("Failed to count users: %v", err)
	}
	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM subscriptions WHERE status = 'active'").Scan(&activeSubsCount); err != nil {
		log.Printf("Failed to count subscriptions: %v", err)
	}
	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM leads WHERE status = 'paid'").Scan(&paidLeadsCount); err != nil {
		log.Printf("Failed to count paid leads: %v", err)
	}
	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM leads WHERE status = 'pending_payment'").Scan(&pendingLeadsCount); err != nil {
		log.Printf("Failed to count pending leads: %v", err)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"users":               usersCount,
		"activeSubscriptions": activeSubsCount,
		"paidListings":        paidLeadsCount,
		"pendingListings":     pendingLeadsCount,
	})
}

// ListTransactions returns the most recent transactions.
func (h *AdminHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	txs, err := h.txs.ListRecent(r.Context(), limit)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, txs)
}
