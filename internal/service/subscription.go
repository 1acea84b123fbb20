package service

import (
	"context"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/domain"
	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/repository"
)

type SubscriptionService struct {
	repo *repository.SubscriptionRepository
}

func NewSubscriptionService(repo *repository.SubscriptionRepository) *SubscriptionService {
	return &SubscriptionService{repo: repo}
}

// GetCurrentSubscription returns the active subscription for a user.
func (s *SubscriptionService) GetCurrentSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	return s.repo.FindByUserID(ctx, userID)
}

// GetImpact returns impact snapshots for a subscription, verifying ownership
// unless the caller is an admin.
func (s *SubscriptionService) GetImpact(ctx context.Context, subscriptionID, userID, role string) ([]*domain.ImpactMetric, error) {
	sub, err := s.repo.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find subscription", err)
	}
	if sub == nil {
		return nil, domain.ErrNotFound("subscription not found")
	}
	if sub.UserID != userID && role != "admin" {
		return nil, domain.ErrUnauthorized("not your subscription")
	}

	metrics, err := s.repo.ListImpactMetrics(ctx, sub.ID)
	if err != nil {
		return nil, domain.ErrInternal("failed to list impact metrics", err)
	}
	return metrics, nil
}
