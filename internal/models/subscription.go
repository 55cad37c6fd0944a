package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SubscriptionPlan struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"size:100;not null" json:"name"`
	Price        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"price"`
	DurationDays int             `gorm:"not null" json:"duration_days"`
	IsActive     bool            `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

type Subscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	PlanID    uint      `gorm:"not null" json:"plan_id"`
	StartDate time.Time `gorm:"not null" json:"start_date"`
	EndDate   time.Time `gorm:"not null" json:"end_date"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Plan *SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Extend pushes validity forward by the plan duration. A lapsed
// subscription restarts at now.
func (s *Subscription) Extend(now time.Time, days int) {
	d := time.Duration(days) * 24 * time.Hour
	if s.Expired(now) {
		s.StartDate = now
		s.EndDate = now.Add(d)
	} else {
		s.EndDate = s.EndDate.Add(d)
	}
	s.IsActive = true
}

func (s *Subscription) Expired(now time.Time) bool {
	return s.EndDate.Before(now)
}
