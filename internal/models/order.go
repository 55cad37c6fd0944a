package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"not null;index" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Status    string          `gorm:"size:20;not null;default:'pending';index" json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}
