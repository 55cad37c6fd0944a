package models

import (
	"time"

	"scancodes/pkg/payment"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Transaction is the financial side of a Payment, and the history row for
// wallet credits and debits.
type Transaction struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	Key             string            `gorm:"size:80;uniqueIndex;not null" json:"key"`
	Amount          decimal.Decimal   `gorm:"type:decimal(14,2);not null" json:"amount"`
	TransactionType string            `gorm:"size:30;not null;index" json:"transaction_type"` // credit, debit, payment, withdrawal
	Narration       string            `gorm:"size:150" json:"narration"`
	Status          payment.Status    `gorm:"size:20;not null;index" json:"status"`
	MetaInfo        datatypes.JSONMap `json:"meta_info"`
	UserID          uint              `gorm:"not null;index" json:"user_id"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Transaction) TableName() string {
	return "transactions"
}
