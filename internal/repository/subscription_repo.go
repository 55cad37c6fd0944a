package repository

import (
	"context"
	"fmt"

	"scancodes/internal/models"

	"gorm.io/gorm"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) WithTx(tx *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: tx}
}

// GetWithPlan loads a subscription and its plan.
func (r *SubscriptionRepository) GetWithPlan(ctx context.Context, id uint) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.WithContext(ctx).Preload("Plan").First(&s, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("subscription %d", id))
	}
	return &s, nil
}

// SaveValidity writes the validity window back without touching the plan.
func (r *SubscriptionRepository) SaveValidity(ctx context.Context, s *models.Subscription) error {
	return r.db.WithContext(ctx).Model(s).Updates(map[string]any{
		"start_date": s.StartDate,
		"end_date":   s.EndDate,
		"is_active":  s.IsActive,
	}).Error
}
