package repository

import (
	"context"

	"scancodes/internal/models"
	"scancodes/pkg/payment"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentStats struct {
	TotalPayments     int64            `json:"total_payments"`
	ByStatus          map[string]int64 `json:"by_status"`
	CompletedRevenue  decimal.Decimal  `json:"completed_revenue"`
	TotalTransactions int64            `json:"total_transactions"`
	TotalWalletFunds  decimal.Decimal  `json:"total_wallet_funds"`
}

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) GetPaymentStats(ctx context.Context) (*PaymentStats, error) {
	db := r.db.WithContext(ctx)
	s := PaymentStats{ByStatus: map[string]int64{}}
	if err := db.Model(&models.Payment{}).Count(&s.TotalPayments).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Payment{}).Select("status, COUNT(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		s.ByStatus[row.Status] = row.Count
	}

	var rev struct{ Total decimal.NullDecimal }
	if err := db.Model(&models.Payment{}).Select("SUM(amount) as total").Where("status = ?", payment.StatusCompleted).Scan(&rev).Error; err != nil {
		return nil, err
	}
	s.CompletedRevenue = rev.Total.Decimal.Round(2)

	if err := db.Model(&models.Transaction{}).Count(&s.TotalTransactions).Error; err != nil {
		return nil, err
	}

	var funds struct{ Total decimal.NullDecimal }
	if err := db.Model(&models.Wallet{}).Select("SUM(balance) as total").Scan(&funds).Error; err != nil {
		return nil, err
	}
	s.TotalWalletFunds = funds.Total.Decimal.Round(2)
	return &s, nil
}

// ListPayments returns payments with optional status filter.
func (r *AdminRepository) ListPayments(ctx context.Context, status string, page, limit int) ([]models.Payment, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Payment{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Payment
	err := q.Preload("User").Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// ListTransactions returns transactions with optional type filter.
func (r *AdminRepository) ListTransactions(ctx context.Context, txType string, page, limit int) ([]models.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Transaction{})
	if txType != "" {
		q = q.Where("transaction_type = ?", txType)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Transaction
	err := q.Preload("User").Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}
