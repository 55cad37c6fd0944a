package repository

import (
	"context"
	"errors"
	"fmt"

	"scancodes/internal/models"
	"scancodes/pkg/payment"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInsufficientBalance = fmt.Errorf("%w: insufficient wallet balance", payment.ErrInsufficientFunds)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) WithTx(tx *gorm.DB) *WalletRepository {
	return &WalletRepository{db: tx}
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("wallet for user %d", userID))
	}
	return &w, nil
}

func (r *WalletRepository) GetOrCreate(ctx context.Context, userID uint) (*models.Wallet, error) {
	w, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, payment.ErrNotFound) {
		return nil, err
	}
	w = models.NewWallet(userID)
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		return nil, err
	}
	return w, nil
}

// Credit adds amount to the locked wallet row and returns the new balance.
// Callers run it inside a transaction so the row lock holds until commit.
func (r *WalletRepository) Credit(ctx context.Context, userID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	w, err := r.lock(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return r.write(ctx, w, w.Balance.Add(amount))
}

// Debit subtracts amount only when the balance covers it; a short wallet is
// left untouched.
func (r *WalletRepository) Debit(ctx context.Context, userID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	w, err := r.lock(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if w.Balance.LessThan(amount) {
		return decimal.Zero, ErrInsufficientBalance
	}
	return r.write(ctx, w, w.Balance.Sub(amount))
}

// lock reads the wallet with FOR UPDATE. Balances are rounded on read since
// SQLite hands NUMERIC columns back as floats.
func (r *WalletRepository) lock(ctx context.Context, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&w).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("wallet for user %d", userID))
	}
	w.Balance = w.Balance.Round(2)
	return &w, nil
}

// write stores the computed balance as a literal; no SQL arithmetic touches it.
func (r *WalletRepository) write(ctx context.Context, w *models.Wallet, balance decimal.Decimal) (decimal.Decimal, error) {
	balance = balance.Round(2)
	err := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", w.ID).
		Update("balance", balance).Error
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}
