package models

import (
	"time"

	"scancodes/internal/domain"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       uint            `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"balance"`
	CurrencyCode string          `gorm:"size:10;not null;default:'NGN'" json:"currency_code"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Wallet) TableName() string {
	return "wallets"
}

func NewWallet(userID uint) *Wallet {
	return &Wallet{UserID: userID, Balance: decimal.Zero, CurrencyCode: domain.DefaultCurrency}
}
